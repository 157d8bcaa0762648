package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/inflatable-cookie/effigy-sub000/internal/ansi"
	"github.com/inflatable-cookie/effigy-sub000/internal/process"
	"github.com/inflatable-cookie/effigy-sub000/internal/vt"
)

var (
	styleBase      = tcell.StyleDefault
	styleTab       = tcell.StyleDefault.Foreground(tcell.ColorSilver)
	styleTabActive = tcell.StyleDefault.Reverse(true).Bold(true)
	styleStderr    = tcell.StyleDefault.Foreground(tcell.ColorOlive)
	styleExit      = tcell.StyleDefault.Dim(true).Italic(true)
	styleNotice    = tcell.StyleDefault.Foreground(tcell.ColorMaroon).Bold(true)
	styleFooter    = tcell.StyleDefault.Reverse(true)
	styleOverlay   = tcell.StyleDefault.Background(tcell.ColorNavy).Foreground(tcell.ColorWhite)
	styleSelected  = styleOverlay.Reverse(true)
)

var statusGlyph = map[ExitState]string{
	Running:   "●",
	Succeeded: "✓",
	Stopped:   "■",
	Failed:    "✗",
}

var helpLines = []string{
	"Keys",
	"",
	"←/→ h/l 1-9   switch tab",
	"↑/↓ j/k       scroll one line",
	"PgUp/PgDn     scroll one page",
	"Home/g End/G  top / bottom (End follows)",
	"f             toggle follow",
	"r             restart process",
	"o             options",
	"Tab           insert mode (shell capture on the shell tab)",
	"Ctrl+G        toggle shell capture",
	"q Ctrl+C      quit",
	"",
	"any key closes this help",
}

// drawString writes s from x until maxX and returns the next column.
func drawString(scr tcell.Screen, x, y, maxX int, s string, st tcell.Style) int {
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if x+w > maxX {
			break
		}
		scr.SetContent(x, y, r, nil, st)
		x += w
	}
	return x
}

func fillRow(scr tcell.Screen, x, y, maxX int, st tcell.Style) {
	for ; x < maxX; x++ {
		scr.SetContent(x, y, ' ', nil, st)
	}
}

func tabLabel(i int, t *tab) string {
	var b strings.Builder
	b.WriteByte(' ')
	if i < 9 {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte(':')
	}
	b.WriteString(t.name)
	b.WriteByte(' ')
	b.WriteString(statusGlyph[t.exit])
	if t.restarts > 0 {
		b.WriteString(" ↻" + strconv.Itoa(t.restarts))
	}
	b.WriteByte(' ')
	return b.String()
}

// draw renders one frame.
func (s *State) draw(scr tcell.Screen, l Layout, vm ViewModel) {
	scr.Clear()
	scr.HideCursor()
	if l.Height <= 0 || l.Width <= 0 {
		scr.Show()
		return
	}
	s.drawTabs(scr, l)
	if vm.Emulated {
		drawCells(scr, l, vm)
		if s.mode == ModeShellCapture && vm.CursorVisible && vm.CursorY < l.OutputRows {
			scr.ShowCursor(vm.CursorX, l.OutputTop+vm.CursorY)
		}
	} else {
		drawLines(scr, l, vm)
	}
	switch s.overlay {
	case OverlayHelp:
		drawBox(scr, l, helpLines, -1)
	case OverlayOptions:
		lines := []string{"Options: " + s.current().name, ""}
		for _, it := range optionItems {
			lines = append(lines, fmt.Sprintf("[%c] %s", it.shortcut, it.label))
		}
		drawBox(scr, l, lines, s.optionSel+2)
	}
	if l.Height >= 3 {
		s.drawInput(scr, l)
	}
	if l.Height >= 2 {
		s.drawFooter(scr, l, vm)
	}
	scr.Show()
}

func (s *State) drawTabs(scr tcell.Screen, l Layout) {
	x := 0
	for i, t := range s.tabs {
		label := tabLabel(i, t)
		if rem := l.Width - x; runewidth.StringWidth(label) > rem {
			label = runewidth.Truncate(label, rem, "…")
		}
		st := styleTab
		if i == s.active {
			st = styleTabActive
		} else if t.exit == Failed {
			st = st.Foreground(tcell.ColorMaroon)
		}
		x = drawString(scr, x, 0, l.Width, label, st)
		if x >= l.Width {
			break
		}
	}
}

func lineStyle(vl ViewLine) tcell.Style {
	switch {
	case vl.Notice:
		return styleNotice
	case vl.Kind == EntryStderr:
		return styleStderr
	case vl.Kind == EntryExit:
		return styleExit
	default:
		return styleBase
	}
}

func spanStyle(base tcell.Style, st ansi.Style) tcell.Style {
	if st.FG != ansi.DefaultColor {
		base = base.Foreground(tcell.PaletteColor(int(st.FG)))
	}
	if st.Bold {
		base = base.Bold(true)
	}
	if st.Dim {
		base = base.Dim(true)
	}
	if st.Italic {
		base = base.Italic(true)
	}
	if st.Underline {
		base = base.Underline(true)
	}
	return base
}

func drawLines(scr tcell.Screen, l Layout, vm ViewModel) {
	for i, vl := range vm.Lines {
		if i >= l.OutputRows {
			break
		}
		y := l.OutputTop + i
		base := lineStyle(vl)
		x := 0
		for _, sp := range vl.Spans {
			x = drawString(scr, x, y, l.Width, strings.ReplaceAll(sp.Text, "\t", "    "), spanStyle(base, sp.Style))
		}
	}
}

func cellColor(c vt.Color) tcell.Color {
	switch {
	case c == vt.DefaultColor:
		return tcell.ColorDefault
	case c.IsRGB():
		return tcell.NewHexColor(int32(c))
	default:
		return tcell.PaletteColor(int(c))
	}
}

func cellStyle(c vt.Cell) tcell.Style {
	return tcell.StyleDefault.
		Foreground(cellColor(c.FG)).
		Background(cellColor(c.BG)).
		Bold(c.Bold).
		Italic(c.Italic).
		Underline(c.Underline).
		Reverse(c.Reverse).
		Blink(c.Blink)
}

func drawCells(scr tcell.Screen, l Layout, vm ViewModel) {
	for y, row := range vm.Cells {
		if y >= l.OutputRows {
			break
		}
		for x := 0; x < len(row) && x < l.Width; x++ {
			c := row[x]
			scr.SetContent(x, l.OutputTop+y, c.Char, nil, cellStyle(c))
			if runewidth.RuneWidth(c.Char) == 2 {
				// the next cell is the right half of this glyph
				x++
			}
		}
	}
}

// drawBox draws lines centered over the output pane; sel highlights one line.
func drawBox(scr tcell.Screen, l Layout, lines []string, sel int) {
	w := 0
	for _, ln := range lines {
		w = max(w, runewidth.StringWidth(ln))
	}
	w = min(w+4, l.Width)
	h := min(len(lines)+2, l.OutputRows)
	if w <= 0 || h <= 0 {
		return
	}
	x0 := (l.Width - w) / 2
	y0 := l.OutputTop + (l.OutputRows-h)/2
	for y := 0; y < h; y++ {
		fillRow(scr, x0, y0+y, x0+w, styleOverlay)
	}
	for i, ln := range lines {
		if i+1 >= h-1 {
			break
		}
		st := styleOverlay
		if i == sel {
			st = styleSelected
		}
		drawString(scr, x0+2, y0+1+i, x0+w-1, ln, st)
	}
}

func (s *State) drawInput(scr tcell.Screen, l Layout) {
	y := l.InputRow
	switch s.mode {
	case ModeInsert:
		x := drawString(scr, 0, y, l.Width, "> ", styleBase.Bold(true))
		x = drawString(scr, x, y, l.Width, string(s.input), styleBase)
		if s.overlay == OverlayNone && x < l.Width {
			scr.ShowCursor(x, y)
		}
	case ModeShellCapture:
		drawString(scr, 0, y, l.Width, "shell capture: keys go to "+s.current().name+" (Tab or Ctrl+G releases)", styleStderr)
	default:
		if s.opts.DismissOnComplete && s.allExited() {
			drawString(scr, 0, y, l.Width, "all processes exited, press Enter to close", styleExit)
		}
	}
}

func (s *State) drawFooter(scr tcell.Screen, l Layout, vm ViewModel) {
	y := l.FooterRow
	fillRow(scr, 0, y, l.Width, styleFooter)
	t := s.current()
	if t == nil {
		return
	}
	follow := "scroll"
	if t.follow {
		follow = "follow"
	}
	left := fmt.Sprintf(" %s  %s  %s  %d/%d", s.mode, t.name, follow, vm.Offset, vm.MaxOffset)
	if t.exitDiag != "" {
		left += "  " + t.exitDiag
	}
	right := "?:help o:options q:quit "
	x := drawString(scr, 0, y, l.Width, left, styleFooter)
	if rx := l.Width - runewidth.StringWidth(right); rx > x+1 {
		drawString(scr, rx, y, l.Width, right, styleFooter)
	}
}

// shutdownText describes a shutdown phase for the progress screen.
func shutdownText(p process.ShutdownProgress) string {
	switch p.Phase {
	case process.PhaseSendingTerm:
		return fmt.Sprintf("Stopping %d process(es): sending TERM", p.Total)
	case process.PhaseWaiting:
		return fmt.Sprintf("Waiting for %d/%d process(es) to exit (%.1fs)", p.Remaining, p.Total, p.Elapsed.Seconds())
	case process.PhaseForceKilling:
		return fmt.Sprintf("Force killing %d process(es)", p.Forced)
	case process.PhaseComplete:
		return ShutdownSummary(p.Total, p.Forced)
	default:
		return ""
	}
}

func drawShutdown(scr tcell.Screen, p process.ShutdownProgress) {
	w, h := scr.Size()
	scr.Clear()
	scr.HideCursor()
	msg := shutdownText(p)
	x := max((w-runewidth.StringWidth(msg))/2, 0)
	drawString(scr, x, h/2, w, msg, styleBase.Bold(true))
	scr.Show()
}
