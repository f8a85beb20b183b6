package ui

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"git.sr.ht/~rockorager/vaxis"
)

// Renderer draws screens on a terminal, only writing the cells that changed
// since the previous frame.
type Renderer struct {
	out io.Writer

	// prev is what the terminal shows; nil forces a full repaint.
	prev *Screen
	next *Screen

	buf bytes.Buffer

	// SGR state of the terminal, kept across frames.
	style      Cell
	styleKnown bool

	cursorX     int
	cursorY     int
	cursorKnown bool
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{
		out:  out,
		next: NewScreen(0, 0),
	}
}

// Frame returns the blank screen to draw the next frame into.
func (r *Renderer) Frame(width, height int) *Screen {
	if w, h := r.next.Size(); w != width || h != height {
		r.next.Resize(width, height)
	} else {
		r.next.Clear()
	}
	return r.next
}

// Invalidate makes the next Flush repaint the whole terminal.
func (r *Renderer) Invalidate() {
	r.prev = nil
}

// Flush writes the frame returned by Frame and leaves the cursor at
// (cursorX, cursorY).
func (r *Renderer) Flush(cursorX, cursorY int) error {
	return r.Render(r.next, cursorX, cursorY)
}

// Render writes next to the terminal and leaves the cursor at
// (cursorX, cursorY). The renderer keeps next as its previous frame: the
// caller must not modify it afterwards.
func (r *Renderer) Render(next *Screen, cursorX, cursorY int) error {
	r.buf.Reset()

	prev := r.prev
	width, height := next.Size()
	if prev == nil || !sameSize(prev, next) {
		r.buf.WriteString("\x1b[0m\x1b[2J")
		r.style = Cell{}
		r.styleKnown = true
		r.cursorKnown = false
		prev = nil
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := next.Cell(x, y)
			if c.Grapheme == "" {
				continue
			}
			var old Cell
			if prev != nil {
				old = prev.Cell(x, y)
			} else {
				old = blankCell
			}
			if c == old {
				continue
			}
			r.moveTo(x, y)
			r.setStyle(c)
			r.buf.WriteString(c.Grapheme)
			w := 1
			if x+1 < width && next.Cell(x+1, y).Grapheme == "" {
				w = 2
			}
			r.cursorX += w
			if r.cursorX >= width {
				// Terminals disagree on the pending wrap state.
				r.cursorKnown = false
			}
		}
	}
	r.moveTo(cursorX, cursorY)

	if r.buf.Len() > 0 {
		if _, err := r.out.Write(r.buf.Bytes()); err != nil {
			r.prev = nil
			r.cursorKnown = false
			r.styleKnown = false
			return fmt.Errorf("failed to write to terminal: %w", err)
		}
	}

	if next == r.next && r.prev != nil {
		r.next = r.prev
	} else if next == r.next {
		r.next = NewScreen(width, height)
	}
	r.prev = next
	return nil
}

func sameSize(a, b *Screen) bool {
	aw, ah := a.Size()
	bw, bh := b.Size()
	return aw == bw && ah == bh
}

func (r *Renderer) moveTo(x, y int) {
	if r.cursorKnown && r.cursorX == x && r.cursorY == y {
		return
	}
	r.buf.WriteString("\x1b[")
	r.buf.WriteString(strconv.Itoa(y + 1))
	r.buf.WriteByte(';')
	r.buf.WriteString(strconv.Itoa(x + 1))
	r.buf.WriteByte('H')
	r.cursorX = x
	r.cursorY = y
	r.cursorKnown = true
}

func (r *Renderer) setStyle(c Cell) {
	if r.styleKnown && r.style.sameStyle(c) {
		return
	}
	var params []string
	if !r.styleKnown {
		params = append(params, "0")
		r.style = Cell{}
	}
	if c.Bold != r.style.Bold {
		if c.Bold {
			params = append(params, "1")
		} else {
			params = append(params, "22")
		}
	}
	if c.Fg != r.style.Fg {
		params = append(params, colorParams(c.Fg, false))
	}
	if c.Bg != r.style.Bg {
		params = append(params, colorParams(c.Bg, true))
	}
	r.buf.WriteString("\x1b[")
	for i, p := range params {
		if i > 0 {
			r.buf.WriteByte(';')
		}
		r.buf.WriteString(p)
	}
	r.buf.WriteByte('m')
	r.style = Cell{Fg: c.Fg, Bg: c.Bg, Bold: c.Bold}
	r.styleKnown = true
}

func colorParams(c vaxis.Color, bg bool) string {
	base := 30
	bright := 90
	ext := "38"
	if bg {
		base = 40
		bright = 100
		ext = "48"
	}
	ps := c.Params()
	switch len(ps) {
	case 1:
		i := int(ps[0])
		switch {
		case i < 8:
			return strconv.Itoa(base + i)
		case i < 16:
			return strconv.Itoa(bright + i - 8)
		default:
			return ext + ";5;" + strconv.Itoa(i)
		}
	case 3:
		return fmt.Sprintf("%s;2;%d;%d;%d", ext, ps[0], ps[1], ps[2])
	default:
		return strconv.Itoa(base + 9)
	}
}
