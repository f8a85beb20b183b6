package ui

import (
	"io"
	"unicode/utf8"

	"git.sr.ht/~rockorager/vaxis"
	"git.sr.ht/~rockorager/vaxis/ansi"
)

// KeyNames maps the key names usable in shortcuts to key codes.
var KeyNames = map[string]rune{
	"Up":        vaxis.KeyUp,
	"Down":      vaxis.KeyDown,
	"Left":      vaxis.KeyLeft,
	"Right":     vaxis.KeyRight,
	"Page_Up":   vaxis.KeyPgUp,
	"Page_Down": vaxis.KeyPgDown,
	"Home":      vaxis.KeyHome,
	"End":       vaxis.KeyEnd,
	"Insert":    vaxis.KeyInsert,
	"Delete":    vaxis.KeyDelete,
	"BackSpace": vaxis.KeyBackspace,
	"Tab":       vaxis.KeyTab,
	"Return":    vaxis.KeyEnter,
	"Enter":     vaxis.KeyEnter,
	"Escape":    vaxis.KeyEsc,
	"space":     ' ',
	"F1":        vaxis.KeyF01,
	"F2":        vaxis.KeyF02,
	"F3":        vaxis.KeyF03,
	"F4":        vaxis.KeyF04,
	"F5":        vaxis.KeyF05,
	"F6":        vaxis.KeyF06,
	"F7":        vaxis.KeyF07,
	"F8":        vaxis.KeyF08,
	"F9":        vaxis.KeyF09,
	"F10":       vaxis.KeyF10,
	"F11":       vaxis.KeyF11,
	"F12":       vaxis.KeyF12,
}

// KeyReader decodes keystrokes from a terminal in raw mode.
type KeyReader struct {
	p *ansi.Parser
}

func NewKeyReader(r io.Reader) *KeyReader {
	return &KeyReader{
		p: ansi.NewParser(r),
	}
}

// ReadKey blocks until a full keystroke is read. It returns io.EOF once the
// input is closed.
func (kr *KeyReader) ReadKey() (vaxis.Key, error) {
	for seq := range kr.p.Next() {
		if _, ok := seq.(ansi.EOF); ok {
			break
		}
		k, ok := decodeKey(seq)
		kr.p.Finish(seq)
		if ok {
			k.EventType = vaxis.EventPress
			return k, nil
		}
	}
	return vaxis.Key{}, io.EOF
}

// decodeKey maps a sequence to a key. Sequences that are not keystrokes,
// such as replies to terminal queries, are ignored.
func decodeKey(seq ansi.Sequence) (vaxis.Key, bool) {
	switch seq := seq.(type) {
	case ansi.Print:
		r, _ := utf8.DecodeRuneInString(seq.Grapheme)
		if r == 0x7F {
			return vaxis.Key{Keycode: vaxis.KeyBackspace}, true
		}
		if r == utf8.RuneError {
			return vaxis.Key{}, false
		}
		return vaxis.Key{Keycode: r, Text: seq.Grapheme}, true
	case ansi.C0:
		return controlKey(rune(seq))
	case ansi.ESC:
		if len(seq.Intermediate) > 0 {
			return vaxis.Key{}, false
		}
		var k vaxis.Key
		if seq.Final == 0x7F {
			k.Keycode = vaxis.KeyBackspace
		} else {
			k.Keycode = seq.Final
		}
		k.Modifiers = vaxis.ModAlt
		return k, true
	case ansi.SS3:
		return ss3Key(rune(seq))
	case ansi.CSI:
		if len(seq.Intermediate) > 0 {
			return vaxis.Key{}, false
		}
		return csiKey(seq.Parameters, seq.Final)
	}
	return vaxis.Key{}, false
}

func controlKey(r rune) (vaxis.Key, bool) {
	switch {
	case r == 0x1B:
		return vaxis.Key{Keycode: vaxis.KeyEsc}, true
	case r == 0x0D || r == 0x0A:
		return vaxis.Key{Keycode: vaxis.KeyEnter}, true
	case r == 0x09:
		return vaxis.Key{Keycode: vaxis.KeyTab}, true
	case r == 0x08:
		return vaxis.Key{Keycode: vaxis.KeyBackspace}, true
	case r == 0x00:
		return vaxis.Key{Keycode: ' ', Modifiers: vaxis.ModCtrl}, true
	case r < 0x1B:
		return vaxis.Key{Keycode: 'a' + r - 1, Modifiers: vaxis.ModCtrl}, true
	}
	return vaxis.Key{}, false
}

// csiKey decodes "ESC [ <number> ; <modifiers> <final>".
func csiKey(params [][]int, final rune) (vaxis.Key, bool) {
	var k vaxis.Key
	number := 1
	if len(params) >= 1 && len(params[0]) >= 1 {
		number = params[0][0]
	}
	if len(params) >= 2 && len(params[1]) >= 1 {
		k.Modifiers = modifiers(params[1][0])
	}
	switch final {
	case 'A':
		k.Keycode = vaxis.KeyUp
	case 'B':
		k.Keycode = vaxis.KeyDown
	case 'C':
		k.Keycode = vaxis.KeyRight
	case 'D':
		k.Keycode = vaxis.KeyLeft
	case 'H':
		k.Keycode = vaxis.KeyHome
	case 'F':
		k.Keycode = vaxis.KeyEnd
	case 'Z':
		k.Keycode = vaxis.KeyTab
		k.Modifiers |= vaxis.ModShift
	case '~':
		code, ok := tildeKeys[number]
		if !ok {
			return k, false
		}
		k.Keycode = code
	default:
		return k, false
	}
	return k, true
}

// tildeKeys maps the numbers of "ESC [ <number> ~" sequences to key codes.
var tildeKeys = map[int]rune{
	1:  vaxis.KeyHome,
	2:  vaxis.KeyInsert,
	3:  vaxis.KeyDelete,
	4:  vaxis.KeyEnd,
	5:  vaxis.KeyPgUp,
	6:  vaxis.KeyPgDown,
	7:  vaxis.KeyHome,
	8:  vaxis.KeyEnd,
	15: vaxis.KeyF05,
	17: vaxis.KeyF06,
	18: vaxis.KeyF07,
	19: vaxis.KeyF08,
	20: vaxis.KeyF09,
	21: vaxis.KeyF10,
	23: vaxis.KeyF11,
	24: vaxis.KeyF12,
}

func ss3Key(r rune) (vaxis.Key, bool) {
	switch r {
	case 'A':
		return vaxis.Key{Keycode: vaxis.KeyUp}, true
	case 'B':
		return vaxis.Key{Keycode: vaxis.KeyDown}, true
	case 'C':
		return vaxis.Key{Keycode: vaxis.KeyRight}, true
	case 'D':
		return vaxis.Key{Keycode: vaxis.KeyLeft}, true
	case 'H':
		return vaxis.Key{Keycode: vaxis.KeyHome}, true
	case 'F':
		return vaxis.Key{Keycode: vaxis.KeyEnd}, true
	case 'P':
		return vaxis.Key{Keycode: vaxis.KeyF01}, true
	case 'Q':
		return vaxis.Key{Keycode: vaxis.KeyF02}, true
	case 'R':
		return vaxis.Key{Keycode: vaxis.KeyF03}, true
	case 'S':
		return vaxis.Key{Keycode: vaxis.KeyF04}, true
	}
	return vaxis.Key{}, false
}

// modifiers decodes the xterm modifier parameter: 1 + a bit field of
// shift (1), alt (2), control (4).
func modifiers(p int) vaxis.ModifierMask {
	p--
	var m vaxis.ModifierMask
	if p&1 != 0 {
		m |= vaxis.ModShift
	}
	if p&2 != 0 {
		m |= vaxis.ModAlt
	}
	if p&4 != 0 {
		m |= vaxis.ModCtrl
	}
	return m
}
