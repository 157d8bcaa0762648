package ansi

import "strings"

// Sanitize drops C0 control bytes and DEL, keeping ESC, tab, carriage return
// and newline so the escape and CR handling downstream still sees them.
func Sanitize(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if dropByte(s[i]) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if !dropByte(s[i]) {
			b = append(b, s[i])
		}
	}
	return string(b)
}

func dropByte(c byte) bool {
	switch c {
	case esc, '\t', '\r', '\n':
		return false
	}
	return c < 0x20 || c == 0x7f
}

// LeadingCursorUp reports whether s begins with a cursor-up (CSI A) or
// cursor-previous-line (CSI F) sequence. The returned rest has that sequence
// and any erase-line sequences directly after it removed.
func LeadingCursorUp(s string) (rest string, ok bool) {
	if len(s) < 3 || s[0] != esc || s[1] != '[' {
		return s, false
	}
	n, final, params := scanEscape(s, 0)
	if (final != 'A' && final != 'F') || !digitsOnly(params) {
		return s, false
	}
	rest = s[n:]
	for len(rest) >= 3 && rest[0] == esc && rest[1] == '[' {
		m, f, _ := scanEscape(rest, 0)
		if f != 'K' && f != 'G' {
			break
		}
		rest = rest[m:]
	}
	return rest, true
}

func digitsOnly(p string) bool {
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			return false
		}
	}
	return true
}

// StripCursorSequences removes every CSI and OSC sequence except SGR.
func StripCursorSequences(s string) string {
	if strings.IndexByte(s, esc) < 0 {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != esc {
			b.WriteByte(s[i])
			i++
			continue
		}
		n, final, _ := scanEscape(s, i)
		if final == 'm' {
			b.WriteString(s[i : i+n])
		}
		i += n
	}
	return b.String()
}

// CollapseCR keeps what a terminal would finally show for a line rewritten
// with carriage returns: the last non-empty segment.
func CollapseCR(s string) string {
	if strings.IndexByte(s, '\r') < 0 {
		return s
	}
	parts := strings.Split(s, "\r")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}
