package ui

import (
	"git.sr.ht/~rockorager/vaxis"
	"github.com/rivo/uniseg"
)

// Cell is one terminal cell.
//
// A wide grapheme occupies its cell and the next one; the next one then has
// an empty Grapheme and the same colors.
type Cell struct {
	Grapheme string
	Fg       vaxis.Color
	Bg       vaxis.Color
	Bold     bool
}

var blankCell = Cell{Grapheme: " "}

func (c Cell) sameStyle(o Cell) bool {
	return c.Fg == o.Fg && c.Bg == o.Bg && c.Bold == o.Bold
}

func cellStyle(st vaxis.Style) Cell {
	c := Cell{
		Fg:   st.Foreground,
		Bg:   st.Background,
		Bold: st.Attribute&vaxis.AttrBold != 0,
	}
	if st.Attribute&vaxis.AttrReverse != 0 {
		c.Fg, c.Bg = c.Bg, c.Fg
		if c.Fg == ColorDefault {
			c.Fg = vaxis.IndexColor(0)
		}
		if c.Bg == ColorDefault {
			c.Bg = vaxis.IndexColor(7)
		}
	}
	if st.Hyperlink != "" || st.HyperlinkParams != "" {
		c.Fg = ColorLink
	}
	return c
}

// Screen is a grid of cells.
type Screen struct {
	width  int
	height int
	cells  []Cell
}

func NewScreen(width, height int) *Screen {
	s := &Screen{}
	s.Resize(width, height)
	return s
}

func (s *Screen) Size() (width, height int) {
	return s.width, s.height
}

// Resize changes the dimensions of the screen and clears it.
func (s *Screen) Resize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	s.width = width
	s.height = height
	if n := width * height; cap(s.cells) >= n {
		s.cells = s.cells[:n]
	} else {
		s.cells = make([]Cell, n)
	}
	s.Clear()
}

func (s *Screen) Clear() {
	for i := range s.cells {
		s.cells[i] = blankCell
	}
}

func (s *Screen) Cell(x, y int) Cell {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return blankCell
	}
	return s.cells[y*s.width+x]
}

// SetCell writes c at (x, y) and returns the number of columns it took.
// Out-of-bounds writes are dropped. A wide grapheme that does not fit
// before the right edge is replaced by a blank.
func (s *Screen) SetCell(x, y int, c Cell) int {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return 0
	}
	w := uniseg.StringWidth(c.Grapheme)
	if w <= 0 {
		return 0
	}
	if w > 2 {
		w = 2
	}
	if w == 2 && x+1 >= s.width {
		c.Grapheme = " "
		w = 1
	}
	s.clearWide(x, y)
	if w == 2 {
		s.clearWide(x+1, y)
	}
	i := y*s.width + x
	s.cells[i] = c
	if w == 2 {
		cont := c
		cont.Grapheme = ""
		s.cells[i+1] = cont
	}
	return w
}

// clearWide blanks the other half of a wide grapheme overlapping (x, y).
func (s *Screen) clearWide(x, y int) {
	i := y*s.width + x
	if s.cells[i].Grapheme == "" && x > 0 {
		lead := s.cells[i-1]
		lead.Grapheme = " "
		s.cells[i-1] = lead
	}
	if x+1 < s.width && s.cells[i+1].Grapheme == "" {
		cont := s.cells[i+1]
		cont.Grapheme = " "
		s.cells[i+1] = cont
	}
}

// Fill sets the rectangle to c, which must be one column wide.
func (s *Screen) Fill(x0, y0, width, height int, c Cell) {
	for y := y0; y < y0+height; y++ {
		for x := x0; x < x0+width; x++ {
			s.SetCell(x, y, c)
		}
	}
}

// Equal reports whether both screens have the same size and cells.
func (s *Screen) Equal(o *Screen) bool {
	if s.width != o.width || s.height != o.height {
		return false
	}
	for i := range s.cells {
		if s.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}
