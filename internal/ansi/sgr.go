// Package ansi turns process output into styled plain-text spans for the
// line-buffered rendering path.
package ansi

import (
	"strconv"
	"strings"
)

// Color is a foreground color index in the 16-color set, or DefaultColor.
type Color int

// DefaultColor leaves the terminal's configured foreground in place.
const DefaultColor Color = -1

// Style is the subset of SGR state the line path renders.
type Style struct {
	FG        Color
	Bold      bool
	Dim       bool
	Italic    bool
	Underline bool
}

// Plain is the reset style.
var Plain = Style{FG: DefaultColor}

// Span is a run of text sharing one style.
type Span struct {
	Text  string
	Style Style
}

const esc = 0x1b

// ParseSGR splits s into styled spans. SGR sequences update the style, other
// CSI and OSC sequences are dropped, and empty spans are never returned.
func ParseSGR(s string) []Span {
	var (
		spans []Span
		cur   = Plain
		text  strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			spans = append(spans, Span{Text: text.String(), Style: cur})
			text.Reset()
		}
	}
	for i := 0; i < len(s); {
		if s[i] != esc {
			j := strings.IndexByte(s[i:], esc)
			if j < 0 {
				text.WriteString(s[i:])
				break
			}
			text.WriteString(s[i : i+j])
			i += j
			continue
		}
		seq, final, params := scanEscape(s, i)
		if final == 'm' {
			next := applySGR(cur, params)
			if next != cur {
				flush()
				cur = next
			}
		}
		i += seq
	}
	flush()
	return spans
}

// Strip removes every escape sequence from s.
func Strip(s string) string {
	if strings.IndexByte(s, esc) < 0 {
		return s
	}
	var b strings.Builder
	for _, sp := range ParseSGR(s) {
		b.WriteString(sp.Text)
	}
	return b.String()
}

// scanEscape measures the escape sequence starting at s[i]. For CSI sequences
// it also returns the final byte and the parameter bytes.
func scanEscape(s string, i int) (n int, final byte, params string) {
	if i+1 >= len(s) {
		return len(s) - i, 0, ""
	}
	switch s[i+1] {
	case '[':
		j := i + 2
		for j < len(s) && s[j] >= 0x30 && s[j] <= 0x3f {
			j++
		}
		p := s[i+2 : j]
		for j < len(s) && s[j] >= 0x20 && s[j] <= 0x2f {
			j++
		}
		if j >= len(s) {
			return len(s) - i, 0, ""
		}
		return j + 1 - i, s[j], p
	case ']':
		for j := i + 2; j < len(s); j++ {
			if s[j] == 0x07 {
				return j + 1 - i, 0, ""
			}
			if s[j] == esc && j+1 < len(s) && s[j+1] == '\\' {
				return j + 2 - i, 0, ""
			}
		}
		return len(s) - i, 0, ""
	default:
		return 2, 0, ""
	}
}

func applySGR(st Style, params string) Style {
	if params == "" {
		return Plain
	}
	codes := strings.Split(params, ";")
	for k := 0; k < len(codes); k++ {
		n, err := strconv.Atoi(codes[k])
		if err != nil {
			if codes[k] == "" {
				n = 0
			} else {
				continue
			}
		}
		switch {
		case n == 0:
			st = Plain
		case n == 1:
			st.Bold = true
		case n == 2:
			st.Dim = true
		case n == 3:
			st.Italic = true
		case n == 4:
			st.Underline = true
		case n == 22:
			st.Bold, st.Dim = false, false
		case n == 23:
			st.Italic = false
		case n == 24:
			st.Underline = false
		case n >= 30 && n <= 37:
			st.FG = Color(n - 30)
		case n == 39:
			st.FG = DefaultColor
		case n >= 90 && n <= 97:
			st.FG = Color(n - 90 + 8)
		case n == 38 || n == 48:
			// extended color: 5;idx or 2;r;g;b
			if k+1 < len(codes) && codes[k+1] == "5" && k+2 < len(codes) {
				if idx, err := strconv.Atoi(codes[k+2]); err == nil && n == 38 && idx >= 0 && idx < 16 {
					st.FG = Color(idx)
				}
				k += 2
			} else if k+1 < len(codes) && codes[k+1] == "2" {
				k += 4
			}
		}
	}
	return st
}
