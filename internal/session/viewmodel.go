package session

import (
	"github.com/inflatable-cookie/effigy-sub000/internal/ansi"
	"github.com/inflatable-cookie/effigy-sub000/internal/vt"
)

// Layout splits the screen into its fixed rows.
type Layout struct {
	Width, Height int
	// OutputTop is the first output row; OutputRows may be zero on tiny screens.
	OutputTop, OutputRows int
	InputRow, FooterRow   int
}

func layoutFor(w, h int) Layout {
	l := Layout{Width: w, Height: h, OutputTop: 1, OutputRows: h - 3, InputRow: h - 2, FooterRow: h - 1}
	if l.OutputRows < 0 {
		l.OutputRows = 0
	}
	return l
}

// ViewLine is one rendered line of the line path.
type ViewLine struct {
	Kind   EntryKind
	Notice bool
	Spans  []ansi.Span
}

// ViewModel is what one frame draws for the active tab.
type ViewModel struct {
	Emulated  bool
	Lines     []ViewLine  // line path
	Cells     [][]vt.Cell // emulator path
	Offset    int
	MaxOffset int

	CursorX, CursorY int
	CursorVisible    bool
}

// MaxOffset is the largest top-of-view offset for content of length total in
// a viewport of height rows.
func MaxOffset(total, rows int) int {
	if m := total - rows; m > 0 {
		return m
	}
	return 0
}

func clampOffset(off, maxOff int) int {
	if off < 0 {
		return 0
	}
	if off > maxOff {
		return maxOff
	}
	return off
}

// buildView derives the active tab's frame and writes back the clamped offset.
// Emulator tabs are resized to the output pane and their pty follows.
func (s *State) buildView(ctrl Controller, l Layout) ViewModel {
	t := s.current()
	if t == nil {
		return ViewModel{}
	}
	if t.path == pathEmulator && t.emu != nil {
		return s.buildEmulatorView(ctrl, t, l)
	}
	return buildLineView(t, l.OutputRows)
}

func buildLineView(t *tab, rows int) ViewModel {
	maxOff := MaxOffset(len(t.log), rows)
	t.offset = clampOffset(t.offset, maxOff)
	if t.follow {
		t.offset = maxOff
	}
	t.lastMax = maxOff

	end := min(t.offset+rows, len(t.log))
	vm := ViewModel{Offset: t.offset, MaxOffset: maxOff}
	for _, e := range t.log[t.offset:end] {
		vm.Lines = append(vm.Lines, ViewLine{Kind: e.Kind, Notice: e.Notice, Spans: ansi.ParseSGR(e.Text)})
	}
	return vm
}

func (s *State) buildEmulatorView(ctrl Controller, t *tab, l Layout) ViewModel {
	rows := max(l.OutputRows, 1)
	cols := max(l.Width, 1)
	t.emu.Resize(cols, rows)
	if cols != t.ptyCols || rows != t.ptyRows {
		t.ptyCols, t.ptyRows = cols, rows
		if err := ctrl.Resize(t.name, cols, rows); err != nil {
			s.opts.Logger.Debug("pty resize failed", "process", t.name, "error", err)
		}
	}

	maxOff := t.emu.MaxScrollback()
	t.offset = clampOffset(t.offset, maxOff)
	if t.follow {
		t.offset = maxOff
	}
	t.lastMax = maxOff
	t.emu.SetScrollback(maxOff - t.offset)

	x, y, vis := t.emu.Cursor()
	return ViewModel{
		Emulated:      true,
		Cells:         t.emu.Rows(),
		Offset:        t.offset,
		MaxOffset:     maxOff,
		CursorX:       x,
		CursorY:       y,
		CursorVisible: vis,
	}
}
