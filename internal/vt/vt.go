// Package vt wraps a VT100 emulator for PTY-backed processes and keeps the
// scrollback the emulator itself does not retain.
package vt

import (
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hinshun/vt10x"
)

// DefaultHistory is the scrollback kept per emulator when none is given.
const DefaultHistory = 2000

// glyph attribute bits as set by vt10x
const (
	attrReverse   = 1 << 0
	attrUnderline = 1 << 1
	attrBold      = 1 << 2
	attrItalic    = 1 << 4
	attrBlink     = 1 << 5
)

// Color is a palette index (0-255), a 24-bit RGB value, or DefaultColor.
type Color int32

// DefaultColor selects the terminal default for the slot.
const DefaultColor Color = -1

// IsRGB reports whether c carries a truecolor value rather than a palette index.
func (c Color) IsRGB() bool { return c > 255 }

// Cell is one rendered screen position.
type Cell struct {
	Char      rune
	FG, BG    Color
	Bold      bool
	Italic    bool
	Underline bool
	Reverse   bool
	Blink     bool
}

// Emulator is a fixed-size terminal grid plus captured scrollback.
// It is not safe for concurrent use.
type Emulator struct {
	term       vt10x.Terminal
	cols, rows int
	history    [][]Cell
	maxHistory int
	depth      int // scrollback rows shown above the live screen

	// scroll region as last set on the terminal, zero based and inclusive
	top, bottom int

	esc     escState
	csi     []byte
	carry   []byte // incomplete UTF-8 sequence from the previous write
	pending []byte // bytes queued for the terminal
	safe    int    // printable runes that can be queued before the right margin
}

// escState follows the terminal parser closely enough to classify each rune.
type escState int

const (
	escGround escState = iota
	escEsc
	escCSI
	escStr    // OSC, DCS, APC, PM: until BEL or ST
	escStrEnd // ESC seen inside a string
	escOne    // one more rune completes the sequence
)

// New returns an emulator of the given size. maxHistory <= 0 selects
// DefaultHistory.
func New(cols, rows, maxHistory int) *Emulator {
	cols, rows = atLeastOne(cols), atLeastOne(rows)
	if maxHistory <= 0 {
		maxHistory = DefaultHistory
	}
	return &Emulator{
		term:       vt10x.New(vt10x.WithSize(cols, rows), vt10x.WithWriter(io.Discard)),
		cols:       cols,
		rows:       rows,
		maxHistory: maxHistory,
		bottom:     rows - 1,
	}
}

// Write feeds raw process output to the emulator. Rows scrolled off the top
// of the main screen are kept as history, whatever scrolled them: line feed,
// index, scroll-up or autowrap on the bottom row.
func (e *Emulator) Write(p []byte) {
	if len(e.carry) > 0 {
		p = append(e.carry, p...)
		e.carry = nil
	}
	for len(p) > 0 {
		if !utf8.FullRune(p) {
			e.carry = append([]byte(nil), p...)
			break
		}
		r, n := utf8.DecodeRune(p)
		raw := p[:n]
		p = p[n:]
		if r == utf8.RuneError && n == 1 {
			continue
		}
		e.feed(r, raw)
	}
	e.flush()
}

func (e *Emulator) feed(r rune, raw []byte) {
	switch e.esc {
	case escStr:
		switch r {
		case 0x1b:
			e.esc = escStrEnd
		case '\a':
			e.esc = escGround
		}
		e.queue(raw)
		return
	case escStrEnd:
		if handledControl(r) {
			e.control(r, raw)
			return
		}
		e.esc = escGround
		e.queue(raw)
		return
	}
	if handledControl(r) {
		e.control(r, raw)
		return
	}
	switch e.esc {
	case escGround:
		if r < 0x20 || r == 0x7f {
			e.safe = 0
			e.queue(raw)
			return
		}
		e.printable(raw)
	case escEsc:
		e.escFinal(r, raw)
	case escCSI:
		e.csiByte(r, raw)
	case escOne:
		e.esc = escGround
		e.queue(raw)
	}
}

// handledControl lists the C0 codes the terminal acts on in every state but
// strings.
func handledControl(r rune) bool {
	switch r {
	case '\t', '\b', '\r', '\f', '\v', '\n', '\a', 0x1b, 0x0e, 0x0f, 0x1a, 0x18, 0x05, 0x00, 0x11, 0x13, 0x7f:
		return true
	}
	return false
}

func (e *Emulator) control(r rune, raw []byte) {
	e.safe = 0
	switch r {
	case '\n', '\v', '\f':
		e.lineFeed(raw)
	case 0x1b:
		e.esc = escEsc
		e.csi = e.csi[:0]
		e.queue(raw)
	case 0x18, 0x1a:
		e.csi = e.csi[:0]
		e.queue(raw)
	default:
		e.queue(raw)
	}
}

func (e *Emulator) escFinal(r rune, raw []byte) {
	e.safe = 0
	e.esc = escGround
	switch r {
	case '[':
		e.esc = escCSI
		e.csi = e.csi[:0]
		e.queue(raw)
	case ']', 'P', '_', '^', 'k':
		e.esc = escStr
		e.queue(raw)
	case '(', '#':
		e.esc = escOne
		e.queue(raw)
	case 'D', 'E': // IND, NEL
		e.lineFeed(raw)
	case 'c': // RIS
		e.queue(raw)
		e.top, e.bottom = 0, e.rows-1
	default:
		e.queue(raw)
	}
}

func (e *Emulator) csiByte(r rune, raw []byte) {
	e.csi = append(e.csi, byte(r))
	if !(r >= 0x40 && r <= 0x7e) && len(e.csi) < 256 {
		e.queue(raw)
		return
	}
	e.esc = escGround
	e.safe = 0
	priv, args := csiArgs(e.csi)
	switch e.csi[len(e.csi)-1] {
	case 'S': // SU
		e.writeScrolling(raw, argOr(args, 0, 1))
	case 'r': // DECSTBM
		e.queue(raw)
		if !priv {
			e.setRegion(argOr(args, 0, 1)-1, argOr(args, 1, e.rows)-1)
		}
	default:
		e.queue(raw)
	}
}

// csiArgs parses a CSI buffer (final byte included) the way the terminal
// does: numeric fields up to the first one that is not a number.
func csiArgs(buf []byte) (priv bool, args []int) {
	if len(buf) <= 1 {
		return false, nil
	}
	s := string(buf[:len(buf)-1])
	if strings.HasPrefix(s, "?") {
		priv = true
		s = s[1:]
	}
	for _, f := range strings.Split(s, ";") {
		n, err := strconv.Atoi(f)
		if err != nil {
			break
		}
		args = append(args, n)
	}
	return priv, args
}

func argOr(args []int, i, def int) int {
	if i < len(args) {
		return args[i]
	}
	return def
}

func (e *Emulator) setRegion(top, bottom int) {
	top = min(max(top, 0), e.rows-1)
	bottom = min(max(bottom, 0), e.rows-1)
	if top > bottom {
		top, bottom = bottom, top
	}
	e.top, e.bottom = top, bottom
}

// printable queues one glyph. Runes that can land at or before the right
// margin are batched; a rune written with the cursor on the margin may wrap,
// so it goes through alone and the cursor tells whether it did.
func (e *Emulator) printable(raw []byte) {
	if e.safe > 0 {
		e.safe--
		e.queue(raw)
		return
	}
	e.flush()
	c := e.term.Cursor()
	if c.X < e.cols-1 {
		e.safe = e.cols - c.X - 1
		e.queue(raw)
		return
	}
	var saved []Cell
	keep := c.Y == e.bottom && e.saving()
	if keep {
		saved = e.row(0)
	}
	_, _ = e.term.Write(raw)
	after := e.term.Cursor()
	if keep && after.X != e.cols-1 {
		e.push(saved)
	}
	if after.X < e.cols-1 {
		e.safe = e.cols - after.X
	}
}

// lineFeed writes a LF, VT, FF, IND or NEL, which scroll when the cursor is
// on the bottom margin.
func (e *Emulator) lineFeed(raw []byte) {
	e.flush()
	n := 0
	if e.term.Cursor().Y == e.bottom {
		n = 1
	}
	e.writeScrolling(raw, n)
}

// writeScrolling writes raw, which scrolls the region up by n, after saving
// the rows it pushes off the main screen.
func (e *Emulator) writeScrolling(raw []byte, n int) {
	e.flush()
	n = min(n, e.bottom-e.top+1)
	var saved [][]Cell
	if n > 0 && e.saving() {
		for y := 0; y < n; y++ {
			saved = append(saved, e.row(y))
		}
	}
	_, _ = e.term.Write(raw)
	for _, r := range saved {
		e.push(r)
	}
}

// saving reports whether scrolled rows leave the main screen for good.
func (e *Emulator) saving() bool {
	return e.top == 0 && e.term.Mode()&vt10x.ModeAltScreen == 0
}

func (e *Emulator) queue(raw []byte) { e.pending = append(e.pending, raw...) }

func (e *Emulator) flush() {
	if len(e.pending) == 0 {
		return
	}
	_, _ = e.term.Write(e.pending)
	e.pending = e.pending[:0]
}

func (e *Emulator) push(row []Cell) {
	e.history = append(e.history, row)
	if over := len(e.history) - e.maxHistory; over > 0 {
		e.history = append(e.history[:0:0], e.history[over:]...)
	}
}

func (e *Emulator) row(y int) []Cell {
	out := make([]Cell, e.cols)
	for x := 0; x < e.cols; x++ {
		out[x] = convert(e.term.Cell(x, y))
	}
	return out
}

func convert(g vt10x.Glyph) Cell {
	ch := g.Char
	if ch == 0 {
		ch = ' '
	}
	return Cell{
		Char:      ch,
		FG:        color(g.FG),
		BG:        color(g.BG),
		Bold:      g.Mode&attrBold != 0,
		Italic:    g.Mode&attrItalic != 0,
		Underline: g.Mode&attrUnderline != 0,
		Reverse:   g.Mode&attrReverse != 0,
		Blink:     g.Mode&attrBlink != 0,
	}
}

// color maps the vt10x default sentinels (DefaultFG and above) to DefaultColor.
func color(c vt10x.Color) Color {
	if c >= vt10x.DefaultFG {
		return DefaultColor
	}
	return Color(c)
}

// Size returns the current grid size.
func (e *Emulator) Size() (cols, rows int) { return e.cols, e.rows }

// Resize changes the grid size. It reports whether the size changed.
func (e *Emulator) Resize(cols, rows int) bool {
	cols, rows = atLeastOne(cols), atLeastOne(rows)
	if cols == e.cols && rows == e.rows {
		return false
	}
	e.flush()
	e.term.Resize(cols, rows)
	e.cols, e.rows = cols, rows
	e.top, e.bottom = 0, rows-1
	e.safe = 0
	e.depth = e.clamp(e.depth)
	return true
}

// MaxScrollback is the deepest scrollback that can be shown: bounded by the
// captured history and by one less than the screen height.
func (e *Emulator) MaxScrollback() int {
	return min(len(e.history), e.rows-1)
}

// SetScrollback requests n rows of history above the live screen and returns
// the depth actually applied.
func (e *Emulator) SetScrollback(n int) int {
	e.depth = e.clamp(n)
	return e.depth
}

// Scrollback returns the applied depth.
func (e *Emulator) Scrollback() int { return e.depth }

// HistoryLen is the number of captured scrollback rows.
func (e *Emulator) HistoryLen() int { return len(e.history) }

func (e *Emulator) clamp(n int) int {
	if n < 0 {
		return 0
	}
	if m := e.MaxScrollback(); n > m {
		return m
	}
	return n
}

// Rows returns the visible grid: the newest depth rows of history followed by
// the top of the live screen.
func (e *Emulator) Rows() [][]Cell {
	out := make([][]Cell, 0, e.rows)
	for _, h := range e.history[len(e.history)-e.depth:] {
		out = append(out, fit(h, e.cols))
	}
	for y := 0; len(out) < e.rows; y++ {
		out = append(out, e.row(y))
	}
	return out
}

// Cursor returns the cursor position within Rows and whether it should be
// drawn.
func (e *Emulator) Cursor() (x, y int, visible bool) {
	c := e.term.Cursor()
	y = c.Y + e.depth
	return c.X, y, e.term.CursorVisible() && y < e.rows && c.X < e.cols
}

// String returns the live screen as text.
func (e *Emulator) String() string { return e.term.String() }

func fit(row []Cell, cols int) []Cell {
	if len(row) >= cols {
		return row[:cols]
	}
	out := make([]Cell, cols)
	copy(out, row)
	for i := len(row); i < cols; i++ {
		out[i] = Cell{Char: ' ', FG: DefaultColor, BG: DefaultColor}
	}
	return out
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
