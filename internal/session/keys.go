package session

import (
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
)

// special keys forwarded in shell capture
var keySequences = map[tcell.Key]string{
	tcell.KeyEnter:      "\r",
	tcell.KeyBackspace:  "\x7f",
	tcell.KeyBackspace2: "\x7f",
	tcell.KeyEscape:     "\x1b",
	tcell.KeyUp:         "\x1b[A",
	tcell.KeyDown:       "\x1b[B",
	tcell.KeyRight:      "\x1b[C",
	tcell.KeyLeft:       "\x1b[D",
	tcell.KeyHome:       "\x1b[H",
	tcell.KeyEnd:        "\x1b[F",
	tcell.KeyInsert:     "\x1b[2~",
	tcell.KeyDelete:     "\x1b[3~",
	tcell.KeyPgUp:       "\x1b[5~",
	tcell.KeyPgDn:       "\x1b[6~",
	tcell.KeyBacktab:    "\x1b[Z",
	tcell.KeyF1:         "\x1bOP",
	tcell.KeyF2:         "\x1bOQ",
	tcell.KeyF3:         "\x1bOR",
	tcell.KeyF4:         "\x1bOS",
}

// keyBytes translates a key press into the bytes a terminal would send.
// It returns nil for keys with no encoding.
func keyBytes(ev *tcell.EventKey) []byte {
	if ev.Key() == tcell.KeyRune {
		r := ev.Rune()
		if ev.Modifiers()&tcell.ModCtrl != 0 && r < utf8.RuneSelf {
			if c, ok := ctrlByte(r); ok {
				return []byte{c}
			}
		}
		var b []byte
		if ev.Modifiers()&tcell.ModAlt != 0 {
			b = append(b, 0x1b)
		}
		return utf8.AppendRune(b, r)
	}
	if seq, ok := keySequences[ev.Key()]; ok {
		return []byte(seq)
	}
	// KeyCtrlA..KeyCtrlZ and the other C0 keys carry their byte value
	if k := ev.Key(); k >= tcell.KeyCtrlSpace && k <= tcell.KeyCtrlUnderscore {
		return []byte{byte(k)}
	}
	return nil
}

func ctrlByte(r rune) (byte, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return byte(r-'a') + 1, true
	case r >= 'A' && r <= 'Z':
		return byte(r-'A') + 1, true
	case r == ' ' || r == '@':
		return 0, true
	case r >= '[' && r <= '_':
		return byte(r-'[') + 0x1b, true
	}
	return 0, false
}

// isCtrl matches both the legacy control key codes and rune+ModCtrl reports.
func isCtrl(ev *tcell.EventKey, key tcell.Key, r rune) bool {
	if ev.Key() == key {
		return true
	}
	return ev.Key() == tcell.KeyRune && ev.Modifiers()&tcell.ModCtrl != 0 && (ev.Rune() == r || ev.Rune() == r-'a'+'A')
}
