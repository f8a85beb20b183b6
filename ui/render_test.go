package ui

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"git.sr.ht/~rockorager/vaxis"
	"github.com/rivo/uniseg"
)

// vt is a minimal terminal that understands what the renderer emits.
type vt struct {
	t     *testing.T
	scr   *Screen
	x, y  int
	style Cell
}

func newVT(t *testing.T, width, height int) *vt {
	return &vt{
		t:   t,
		scr: NewScreen(width, height),
	}
}

func (v *vt) apply(b []byte) {
	s := string(b)
	for len(s) > 0 {
		if strings.HasPrefix(s, "\x1b[") {
			end := strings.IndexAny(s[2:], "HJm")
			if end < 0 {
				v.t.Fatalf("unterminated escape sequence %q", s)
			}
			params := s[2 : 2+end]
			final := s[2+end]
			s = s[3+end:]
			v.escape(params, final)
			continue
		}
		g, rest, w, _ := uniseg.FirstGraphemeClusterInString(s, -1)
		s = rest
		c := v.style
		c.Grapheme = g
		v.scr.SetCell(v.x, v.y, c)
		v.x += w
		width, _ := v.scr.Size()
		if v.x >= width {
			v.x = width - 1
		}
	}
}

func (v *vt) escape(params string, final byte) {
	switch final {
	case 'H':
		var y, x int
		if _, err := parsePosition(params, &y, &x); err != nil {
			v.t.Fatalf("bad cursor position %q", params)
		}
		v.x, v.y = x-1, y-1
	case 'J':
		if params != "2" {
			v.t.Fatalf("unexpected erase %q", params)
		}
		w, h := v.scr.Size()
		v.scr.Fill(0, 0, w, h, Cell{Grapheme: " ", Fg: ColorDefault, Bg: v.style.Bg})
	case 'm':
		v.sgr(strings.Split(params, ";"))
	}
}

func parsePosition(params string, y, x *int) (int, error) {
	parts := strings.Split(params, ";")
	if len(parts) != 2 {
		return 0, strconv.ErrSyntax
	}
	var err error
	if *y, err = strconv.Atoi(parts[0]); err != nil {
		return 0, err
	}
	if *x, err = strconv.Atoi(parts[1]); err != nil {
		return 1, err
	}
	return 2, nil
}

func (v *vt) sgr(ps []string) {
	n := func(i int) int {
		k, err := strconv.Atoi(ps[i])
		if err != nil {
			v.t.Fatalf("bad SGR parameter %q", ps[i])
		}
		return k
	}
	for i := 0; i < len(ps); i++ {
		p := n(i)
		switch {
		case p == 0:
			v.style = Cell{}
		case p == 1:
			v.style.Bold = true
		case p == 22:
			v.style.Bold = false
		case p >= 30 && p <= 37:
			v.style.Fg = vaxis.IndexColor(uint8(p - 30))
		case p >= 90 && p <= 97:
			v.style.Fg = vaxis.IndexColor(uint8(p - 90 + 8))
		case p >= 40 && p <= 47:
			v.style.Bg = vaxis.IndexColor(uint8(p - 40))
		case p >= 100 && p <= 107:
			v.style.Bg = vaxis.IndexColor(uint8(p - 100 + 8))
		case p == 39:
			v.style.Fg = ColorDefault
		case p == 49:
			v.style.Bg = ColorDefault
		case p == 38 || p == 48:
			var c vaxis.Color
			if n(i+1) == 5 {
				c = vaxis.IndexColor(uint8(n(i + 2)))
				i += 2
			} else {
				c = vaxis.RGBColor(uint8(n(i+2)), uint8(n(i+3)), uint8(n(i+4)))
				i += 4
			}
			if p == 38 {
				v.style.Fg = c
			} else {
				v.style.Bg = c
			}
		default:
			v.t.Fatalf("unexpected SGR parameter %d", p)
		}
	}
}

func screenString(s *Screen) string {
	var sb strings.Builder
	w, h := s.Size()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sb.WriteString(s.Cell(x, y).Grapheme)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func checkScreen(t *testing.T, got, want *Screen) {
	t.Helper()
	if got.Equal(want) {
		return
	}
	w, h := want.Size()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if g, e := got.Cell(x, y), want.Cell(x, y); g != e {
				t.Errorf("cell (%d, %d): got %+v, want %+v", x, y, g, e)
			}
		}
	}
	t.Fatalf("terminal:\n%s\nwant:\n%s", screenString(got), screenString(want))
}

type frameFunc func(scr *Screen)

func text(x, y int, s string, st vaxis.Style) frameFunc {
	return func(scr *Screen) {
		printString(scr, &x, y, -1, Styled(s, st))
	}
}

func frame(w, h int, fs ...frameFunc) *Screen {
	scr := NewScreen(w, h)
	for _, f := range fs {
		f(scr)
	}
	return scr
}

func TestRenderDiff(t *testing.T) {
	red := vaxis.Style{Foreground: ColorRed}
	bold := vaxis.Style{Attribute: vaxis.AttrBold}
	rev := vaxis.Style{Attribute: vaxis.AttrReverse}
	rgb := vaxis.Style{Foreground: vaxis.RGBColor(10, 20, 30), Background: vaxis.IndexColor(200)}

	frames := []*Screen{
		frame(20, 4),
		frame(20, 4, text(0, 0, "hello world", vaxis.Style{})),
		frame(20, 4, text(0, 0, "hello there", red), text(2, 2, "bold", bold)),
		frame(20, 4, text(0, 0, "日本語 wide", rev), text(18, 3, "xy", rgb)),
		frame(20, 4, text(1, 0, "日本語", vaxis.Style{}), text(0, 3, "abc", bold)),
		frame(20, 4, text(0, 1, "a日b", red), text(19, 2, "end", vaxis.Style{})),
		frame(20, 4),
	}

	for i := range frames {
		for j := range frames {
			var out bytes.Buffer
			r := NewRenderer(&out)
			if err := r.Render(frames[i], 0, 0); err != nil {
				t.Fatalf("render: %v", err)
			}
			term := newVT(t, 20, 4)
			term.apply(out.Bytes())
			checkScreen(t, term.scr, frames[i])

			out.Reset()
			if err := r.Render(frames[j], 3, 2); err != nil {
				t.Fatalf("render: %v", err)
			}
			term.apply(out.Bytes())
			checkScreen(t, term.scr, frames[j])
			if term.x != 3 || term.y != 2 {
				t.Errorf("frames %d -> %d: cursor at (%d, %d), want (3, 2)", i, j, term.x, term.y)
			}
		}
	}
}

func TestRenderNoChange(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)
	a := frame(10, 2, text(0, 0, "same", vaxis.Style{Foreground: ColorGray}))
	b := frame(10, 2, text(0, 0, "same", vaxis.Style{Foreground: ColorGray}))
	if err := r.Render(a, 4, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	out.Reset()
	if err := r.Render(b, 4, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("rendering an identical frame wrote %q", out.String())
	}
}

func TestRenderResize(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)
	if err := r.Render(frame(10, 2, text(0, 0, "abc", vaxis.Style{})), 0, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	out.Reset()
	if err := r.Render(frame(12, 3, text(0, 0, "abc", vaxis.Style{})), 0, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(out.String(), "\x1b[0m\x1b[2J") {
		t.Errorf("resized frame did not start with a full clear: %q", out.String())
	}
	term := newVT(t, 12, 3)
	term.apply(out.Bytes())
	checkScreen(t, term.scr, frame(12, 3, text(0, 0, "abc", vaxis.Style{})))
}

func TestRenderInvalidate(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)
	a := frame(10, 2, text(0, 0, "abc", vaxis.Style{}))
	if err := r.Render(a, 0, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	r.Invalidate()
	out.Reset()
	if err := r.Render(frame(10, 2, text(0, 0, "abc", vaxis.Style{})), 0, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(out.String(), "\x1b[0m\x1b[2J") {
		t.Errorf("invalidated renderer did not repaint: %q", out.String())
	}
}

func TestRenderMinimalOutput(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)
	if err := r.Render(frame(10, 1), 0, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	out.Reset()
	red := vaxis.Style{Foreground: ColorRed}
	if err := r.Render(frame(10, 1, text(2, 0, "abc", red)), 5, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	// One move, one style change, then the run itself; the cursor is
	// already where it must be left.
	want := "\x1b[1;3H\x1b[91mabc"
	if got := out.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	out.Reset()
	if err := r.Render(frame(10, 1, text(2, 0, "abd", red)), 5, 0); err != nil {
		t.Fatalf("render: %v", err)
	}
	want = "\x1b[1;5Hd"
	if got := out.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRendererFrameFlush(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out)
	scr := r.Frame(8, 2)
	x := 0
	printString(scr, &x, 1, -1, PlainString("one"))
	if err := r.Flush(0, 0); err != nil {
		t.Fatalf("flush: %v", err)
	}
	term := newVT(t, 8, 2)
	term.apply(out.Bytes())

	scr = r.Frame(8, 2)
	x = 0
	printString(scr, &x, 1, -1, PlainString("two"))
	out.Reset()
	if err := r.Flush(0, 0); err != nil {
		t.Fatalf("flush: %v", err)
	}
	term.apply(out.Bytes())
	checkScreen(t, term.scr, frame(8, 2, text(0, 1, "two", vaxis.Style{})))
}
