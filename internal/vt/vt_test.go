package vt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowText(r []Cell) string {
	var b strings.Builder
	for _, c := range r {
		b.WriteRune(c.Char)
	}
	return strings.TrimRight(b.String(), " ")
}

func TestWriteCapturesScrollback(t *testing.T) {
	e := New(20, 3, 0)
	for i := 1; i <= 6; i++ {
		e.Write([]byte(fmt.Sprintf("line%d\r\n", i)))
	}
	assert.Equal(t, 4, e.HistoryLen())
	assert.Equal(t, 2, e.MaxScrollback())

	rows := e.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "line5", rowText(rows[0]))
	assert.Equal(t, "line6", rowText(rows[1]))

	assert.Equal(t, 2, e.SetScrollback(2))
	rows = e.Rows()
	assert.Equal(t, "line3", rowText(rows[0]))
	assert.Equal(t, "line4", rowText(rows[1]))
	assert.Equal(t, "line5", rowText(rows[2]))
}

func TestScrollbackClampsFarOffsets(t *testing.T) {
	e := New(10, 4, 5)
	for i := 0; i < 50; i++ {
		e.Write([]byte("x\r\n"))
	}
	assert.Equal(t, 5, e.HistoryLen())
	assert.NotPanics(t, func() {
		assert.Equal(t, 3, e.SetScrollback(1_000_000))
		assert.Len(t, e.Rows(), 4)
	})
	assert.Equal(t, 0, e.SetScrollback(-7))
}

func TestResize(t *testing.T) {
	e := New(10, 4, 0)
	assert.False(t, e.Resize(10, 4))
	assert.True(t, e.Resize(30, 2))
	cols, rows := e.Size()
	assert.Equal(t, 30, cols)
	assert.Equal(t, 2, rows)
	assert.Len(t, e.Rows(), 2)
	assert.Len(t, e.Rows()[0], 30)
	assert.True(t, e.Resize(0, 0))
	cols, rows = e.Size()
	assert.Equal(t, 1, cols)
	assert.Equal(t, 1, rows)
}

func TestCellAttributes(t *testing.T) {
	e := New(10, 2, 0)
	e.Write([]byte("\x1b[31mR\x1b[0;1mB\x1b[0mn"))
	rows := e.Rows()
	assert.Equal(t, 'R', rows[0][0].Char)
	assert.Equal(t, Color(1), rows[0][0].FG)
	assert.False(t, rows[0][0].Bold)
	assert.True(t, rows[0][1].Bold)
	assert.Equal(t, DefaultColor, rows[0][2].FG)
	assert.False(t, rows[0][2].Bold)

	x, y, _ := e.Cursor()
	assert.Equal(t, 3, x)
	assert.Equal(t, 0, y)
}

func TestCarriageReturnOverwrites(t *testing.T) {
	e := New(20, 2, 0)
	e.Write([]byte("building\rdone    "))
	assert.Equal(t, "done", rowText(e.Rows()[0]))
}

func historyText(e *Emulator) []string {
	var out []string
	for _, h := range e.history {
		out = append(out, rowText(h))
	}
	return out
}

func TestAutowrapOnBottomRowCapturesScrollback(t *testing.T) {
	e := New(10, 3, 0)
	e.Write([]byte("l1\r\nl2\r\nl3\r\n"))
	e.Write([]byte(strings.Repeat("x", 35)))

	assert.Equal(t, []string{"l1", "l2", "l3", "xxxxxxxxxx"}, historyText(e))
	rows := e.Rows()
	assert.Equal(t, "xxxxxxxxxx", rowText(rows[0]))
	assert.Equal(t, "xxxxxxxxxx", rowText(rows[1]))
	assert.Equal(t, "xxxxx", rowText(rows[2]))
}

func TestLongLineAcrossWritesCapturesScrollback(t *testing.T) {
	e := New(4, 2, 0)
	for _, s := range []string{"ab", "cdef", "gh", "ij\r\n"} {
		e.Write([]byte(s))
	}
	assert.Equal(t, []string{"abcd", "efgh"}, historyText(e))
	assert.Equal(t, "ij", rowText(e.Rows()[0]))
}

func TestScrollUpCapturesScrollback(t *testing.T) {
	e := New(10, 3, 0)
	e.Write([]byte("a\r\nb\r\nc"))
	e.Write([]byte("\x1b[2S"))

	assert.Equal(t, []string{"a", "b"}, historyText(e))
	assert.Equal(t, "c", rowText(e.Rows()[0]))
}

func TestIndexOnBottomRowCapturesScrollback(t *testing.T) {
	e := New(10, 3, 0)
	e.Write([]byte("a\r\nb\r\nc\x1bD"))
	assert.Equal(t, []string{"a"}, historyText(e))

	e.Write([]byte("\x1bEd"))
	assert.Equal(t, []string{"a", "b"}, historyText(e))
	assert.Equal(t, "d", rowText(e.Rows()[2]))
}

func TestScrollRegionKeepsHistory(t *testing.T) {
	e := New(10, 4, 0)
	e.Write([]byte("\x1b[2;4r"))
	e.Write([]byte("\x1b[4;1Hx\ny\nz\n"))
	assert.Zero(t, e.HistoryLen())

	// reset restores the full screen region
	e.Write([]byte("\x1b[r\x1b[4;1H\n"))
	assert.Equal(t, 1, e.HistoryLen())
}

func TestTopAnchoredRegionCapturesScrollback(t *testing.T) {
	e := New(10, 3, 0)
	e.Write([]byte("\x1b[3;1Hstatus\x1b[1;2r"))
	e.Write([]byte("a\r\nb\r\nc"))

	assert.Equal(t, []string{"a"}, historyText(e))
	rows := e.Rows()
	assert.Equal(t, "b", rowText(rows[0]))
	assert.Equal(t, "c", rowText(rows[1]))
	assert.Equal(t, "status", rowText(rows[2]))
}

func TestAltScreenKeepsHistory(t *testing.T) {
	e := New(10, 3, 0)
	e.Write([]byte("\x1b[?1049h"))
	for i := 0; i < 5; i++ {
		e.Write([]byte(strings.Repeat("y", 12) + "\r\n"))
	}
	e.Write([]byte("\x1b[2S"))
	assert.Zero(t, e.HistoryLen())

	e.Write([]byte("\x1b[?1049l"))
	e.Write([]byte("a\r\nb\r\nc\r\n"))
	assert.Equal(t, []string{"a"}, historyText(e))
}

func TestStringSequencesAreNotScrolls(t *testing.T) {
	e := New(10, 2, 0)
	e.Write([]byte("a\r\n"))
	// LF inside an OSC title is collected, not executed
	e.Write([]byte("\x1b]0;t\ni\nt\x07b"))
	assert.Zero(t, e.HistoryLen())
	assert.Equal(t, "b", rowText(e.Rows()[1]))
}

func TestSplitUTF8AcrossWrites(t *testing.T) {
	e := New(10, 2, 0)
	r := []byte("é")
	e.Write(r[:1])
	e.Write(r[1:])
	assert.Equal(t, 'é', e.Rows()[0][0].Char)
	assert.Equal(t, ' ', e.Rows()[0][1].Char)
}
