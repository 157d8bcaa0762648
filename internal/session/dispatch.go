package session

import (
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/inflatable-cookie/effigy-sub000/internal/metrics"
)

// Action is an entry of the options overlay.
type Action int

const (
	ActionToggleFollow Action = iota
	ActionRestart
	ActionStop
	ActionCancel
	ActionQuit
)

type optionItem struct {
	action   Action
	shortcut rune
	label    string
}

var optionItems = []optionItem{
	{ActionToggleFollow, 'f', "toggle follow"},
	{ActionRestart, 'r', "restart process"},
	{ActionStop, 's', "stop process"},
	{ActionCancel, 'c', "cancel"},
	{ActionQuit, 'q', "quit session"},
}

// HandleKey routes one key press. Precedence is overlay, then shell capture,
// then insert, then command. page is the output pane height.
func (s *State) HandleKey(ctrl Controller, ev *tcell.EventKey, page int) {
	metrics.Inc(metrics.Keypresses)
	switch {
	case s.overlay != OverlayNone:
		s.overlayKey(ctrl, ev)
	case s.mode == ModeShellCapture:
		s.shellKey(ctrl, ev)
	case s.mode == ModeInsert:
		s.insertKey(ctrl, ev)
	default:
		s.commandKey(ctrl, ev, page)
	}
}

func (s *State) overlayKey(ctrl Controller, ev *tcell.EventKey) {
	if s.overlay == OverlayHelp {
		s.overlay = OverlayNone
		return
	}
	switch ev.Key() {
	case tcell.KeyEscape:
		s.overlay = OverlayNone
	case tcell.KeyUp:
		s.moveOption(-1)
	case tcell.KeyDown:
		s.moveOption(1)
	case tcell.KeyEnter:
		s.apply(ctrl, optionItems[s.optionSel].action)
	case tcell.KeyRune:
		switch r := ev.Rune(); r {
		case 'k':
			s.moveOption(-1)
		case 'j':
			s.moveOption(1)
		default:
			for _, it := range optionItems {
				if it.shortcut == r {
					s.apply(ctrl, it.action)
					return
				}
			}
		}
	}
}

func (s *State) moveOption(d int) {
	n := len(optionItems)
	s.optionSel = ((s.optionSel+d)%n + n) % n
}

// apply runs an options action against the active tab and closes the overlay.
func (s *State) apply(ctrl Controller, a Action) {
	s.overlay = OverlayNone
	t := s.current()
	if t == nil {
		return
	}
	switch a {
	case ActionToggleFollow:
		s.toggleFollow(t)
	case ActionRestart:
		s.restart(ctrl, t)
	case ActionStop:
		if err := ctrl.TerminateProcess(t.name); err != nil {
			t.notice("stop failed: " + err.Error())
		}
	case ActionQuit:
		s.quit = true
	}
}

func (s *State) restart(ctrl Controller, t *tab) {
	if err := ctrl.RestartProcess(t.name); err != nil {
		t.notice("restart failed: " + err.Error())
		s.opts.Logger.Warn("restart failed", "process", t.name, "error", err)
		return
	}
	t.restarted(time.Now(), ctrl.Instance(t.name))
	if t.emu != nil && s.opts.Diagnostics {
		s.opts.Logger.Debug("emulator reset", "process", t.name)
	}
}

func (s *State) toggleFollow(t *tab) {
	if t.follow {
		t.offset = t.lastMax
	}
	t.follow = !t.follow
}

func (s *State) shellKey(ctrl Controller, ev *tcell.EventKey) {
	if ev.Key() == tcell.KeyTab || isCtrl(ev, tcell.KeyCtrlG, 'g') {
		s.setMode(ModeCommand)
		return
	}
	b := keyBytes(ev)
	if len(b) == 0 {
		return
	}
	t := s.current()
	if err := ctrl.SendInput(t.name, string(b)); err != nil {
		t.notice("input failed: " + err.Error())
		s.setMode(ModeCommand)
	}
}

func (s *State) insertKey(ctrl Controller, ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyTab, tcell.KeyCtrlC:
		s.setMode(ModeCommand)
	case tcell.KeyEnter:
		t := s.current()
		line := string(s.input) + "\n"
		s.input = s.input[:0]
		if t == nil {
			return
		}
		if err := ctrl.SendInput(t.name, line); err != nil {
			t.notice("input failed: " + err.Error())
		}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if n := len(s.input); n > 0 {
			s.input = s.input[:n-1]
		}
	case tcell.KeyCtrlU:
		s.input = s.input[:0]
	case tcell.KeyRune:
		s.input = append(s.input, ev.Rune())
	}
}

func (s *State) commandKey(ctrl Controller, ev *tcell.EventKey, page int) {
	t := s.current()
	if page < 1 {
		page = 1
	}
	switch {
	case isCtrl(ev, tcell.KeyCtrlC, 'c'):
		s.quit = true
		return
	case isCtrl(ev, tcell.KeyCtrlG, 'g'):
		if s.onShellTab() {
			s.setMode(ModeShellCapture)
		}
		return
	}
	switch ev.Key() {
	case tcell.KeyTab:
		if s.onShellTab() {
			s.setMode(ModeShellCapture)
		} else {
			s.setMode(ModeInsert)
		}
	case tcell.KeyEnter, tcell.KeyEscape:
		if s.opts.DismissOnComplete && s.allExited() {
			s.quit = true
		}
	case tcell.KeyLeft:
		s.selectTab(s.active - 1)
	case tcell.KeyRight:
		s.selectTab(s.active + 1)
	case tcell.KeyUp:
		s.scroll(t, -1)
	case tcell.KeyDown:
		s.scroll(t, 1)
	case tcell.KeyPgUp:
		s.scroll(t, -page)
	case tcell.KeyPgDn:
		s.scroll(t, page)
	case tcell.KeyHome:
		s.scrollTop(t)
	case tcell.KeyEnd:
		s.scrollEnd(t)
	case tcell.KeyRune:
		s.commandRune(ctrl, t, ev.Rune())
	}
}

func (s *State) commandRune(ctrl Controller, t *tab, r rune) {
	switch r {
	case 'q':
		s.quit = true
	case 'h':
		s.selectTab(s.active - 1)
	case 'l':
		s.selectTab(s.active + 1)
	case 'k':
		s.scroll(t, -1)
	case 'j':
		s.scroll(t, 1)
	case 'g':
		s.scrollTop(t)
	case 'G':
		s.scrollEnd(t)
	case 'f':
		if t != nil {
			s.toggleFollow(t)
		}
	case 'r':
		if t != nil {
			s.restart(ctrl, t)
		}
	case 'o':
		if t != nil {
			s.overlay = OverlayOptions
			s.optionSel = 0
		}
	case '?':
		s.overlay = OverlayHelp
	case 'i':
		if !s.onShellTab() {
			s.setMode(ModeInsert)
		}
	default:
		if r >= '1' && r <= '9' {
			s.selectTab(int(r - '1'))
		}
	}
}

// scroll moves the stored offset by d and leaves follow mode. Clamping to the
// current bounds happens when the next frame is built.
func (s *State) scroll(t *tab, d int) {
	if t == nil {
		return
	}
	if t.follow {
		t.offset = t.lastMax
		t.follow = false
	}
	t.offset += d
	if t.offset < 0 {
		t.offset = 0
	}
}

func (s *State) scrollTop(t *tab) {
	if t == nil {
		return
	}
	t.follow = false
	t.offset = 0
}

func (s *State) scrollEnd(t *tab) {
	if t == nil {
		return
	}
	t.follow = true
	t.offset = t.lastMax
}
