package ui

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"git.sr.ht/~rockorager/vaxis"
)

func TestReadKey(t *testing.T) {
	tests := []struct {
		input string
		want  []vaxis.Key
	}{
		{"a", []vaxis.Key{{Keycode: 'a', Text: "a"}}},
		{"é", []vaxis.Key{{Keycode: 'é', Text: "é"}}},
		{"\r", []vaxis.Key{{Keycode: vaxis.KeyEnter}}},
		{"\x7f", []vaxis.Key{{Keycode: vaxis.KeyBackspace}}},
		{"\t", []vaxis.Key{{Keycode: vaxis.KeyTab}}},
		{"\x03", []vaxis.Key{{Keycode: 'c', Modifiers: vaxis.ModCtrl}}},
		{"\x1b[A", []vaxis.Key{{Keycode: vaxis.KeyUp}}},
		{"\x1bOB", []vaxis.Key{{Keycode: vaxis.KeyDown}}},
		{"\x1b[6~", []vaxis.Key{{Keycode: vaxis.KeyPgDown}}},
		{"\x1b[1;5C", []vaxis.Key{{Keycode: vaxis.KeyRight, Modifiers: vaxis.ModCtrl}}},
		{"\x1b[1;3D", []vaxis.Key{{Keycode: vaxis.KeyLeft, Modifiers: vaxis.ModAlt}}},
		{"\x1b[Z", []vaxis.Key{{Keycode: vaxis.KeyTab, Modifiers: vaxis.ModShift}}},
		{"\x1bx", []vaxis.Key{{Keycode: 'x', Modifiers: vaxis.ModAlt}}},
		{"\x1b\x7f", []vaxis.Key{{Keycode: vaxis.KeyBackspace, Modifiers: vaxis.ModAlt}}},
		{"\x1b[3;2~", []vaxis.Key{{Keycode: vaxis.KeyDelete, Modifiers: vaxis.ModShift}}},
		{"\x1b[?1;2c", nil},
		{"hi\r", []vaxis.Key{
			{Keycode: 'h', Text: "h"},
			{Keycode: 'i', Text: "i"},
			{Keycode: vaxis.KeyEnter},
		}},
	}

	for _, test := range tests {
		t.Run(strings.ReplaceAll(test.input, "\x1b", "ESC"), func(t *testing.T) {
			// Escape sequences may arrive split across reads.
			kr := NewKeyReader(iotest.OneByteReader(strings.NewReader(test.input)))
			for i, want := range test.want {
				want.EventType = vaxis.EventPress
				got, err := kr.ReadKey()
				if err != nil {
					t.Fatalf("key %d: %v", i, err)
				}
				if got != want {
					t.Errorf("key %d: got %+v, want %+v", i, got, want)
				}
			}
			if _, err := kr.ReadKey(); !errors.Is(err, io.EOF) {
				t.Errorf("got %v after the last key, want EOF", err)
			}
		})
	}
}

func TestReadKeyLoneEscape(t *testing.T) {
	pr, pw := io.Pipe()
	kr := NewKeyReader(pr)
	go pw.Write([]byte("\x1b"))

	done := make(chan vaxis.Key, 1)
	go func() {
		k, _ := kr.ReadKey()
		done <- k
	}()
	select {
	case k := <-done:
		if k.Keycode != vaxis.KeyEsc || k.Modifiers != 0 {
			t.Errorf("got %+v, want Escape", k)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("a lone escape was not reported")
	}

	pw.Close()
	if _, err := kr.ReadKey(); !errors.Is(err, io.EOF) {
		t.Errorf("got %v after the pipe was closed, want EOF", err)
	}
}

func TestModifiers(t *testing.T) {
	if got := modifiers(8); got != vaxis.ModShift|vaxis.ModAlt|vaxis.ModCtrl {
		t.Errorf("got %v", got)
	}
	if got := modifiers(1); got != 0 {
		t.Errorf("got %v", got)
	}
}
