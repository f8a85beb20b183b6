package ui

import (
	"strings"
	"sync"
	"time"

	"git.sr.ht/~rockorager/vaxis"
	"github.com/delthas/go-localeinfo"
	"github.com/rivo/uniseg"
)

func stringWidth(s string) int {
	if len(s) == 1 { // Single-character ASCII fast path
		if s[0] <= 0x1F {
			return 0
		}
		if s[0] <= 0x7F {
			return 1
		}
	}
	return uniseg.StringWidth(s)
}

func truncate(s string, w int, tail string) string {
	if stringWidth(s) <= w {
		return s
	}
	w -= stringWidth(tail)

	width := 0
	var sb strings.Builder
	for _, c := range vaxis.Characters(s) {
		chWidth := stringWidth(c.Grapheme)
		if width+chWidth > w {
			break
		}
		width += chWidth
		sb.WriteString(c.Grapheme)
	}
	sb.WriteString(tail)
	return sb.String()
}

func setCell(scr *Screen, x int, y int, r rune, st vaxis.Style) {
	c := cellStyle(st)
	c.Grapheme = string(r)
	scr.SetCell(x, y, c)
}

// printString draws s from *x, stopping before limit (-1 means no limit).
// Zero-width clusters are skipped.
func printString(scr *Screen, x *int, y int, limit int, s StyledString) {
	var st vaxis.Style
	nextStyles := s.styles

	state := -1
	rest := s.string
	i := 0
	for len(rest) > 0 {
		var cluster string
		var boundaries int
		cluster, rest, boundaries, state = uniseg.StepString(rest, state)
		for len(nextStyles) > 0 && nextStyles[0].Start <= i {
			st = nextStyles[0].Style
			nextStyles = nextStyles[1:]
		}
		i += len(cluster)
		w := boundaries >> uniseg.ShiftWidth
		if w == 0 {
			continue
		}
		if limit >= 0 && *x+w > limit {
			return
		}
		c := cellStyle(st)
		c.Grapheme = cluster
		*x += scr.SetCell(*x, y, c)
	}
}

// printIdent draws s right-aligned in a column of the given width.
func printIdent(scr *Screen, x, y, width int, s StyledString) {
	s.string = truncate(s.string, width, "…")
	x += width - stringWidth(s.string)
	printString(scr, &x, y, -1, s)
}

var dateConfig sync.Once
var dateMonthFirst bool

func loadDateInfo() {
	// Try to extract from the user locale whether they'd rather have the date
	// printed as dd/mm or mm/dd.
	// If we're not sure, print dd/mm.
	l, err := localeinfo.NewLocale("")
	if err != nil {
		return
	}
	format := l.DateFormat()
	dayIndex := -1
	for _, s := range []string{"%d", "%e"} {
		dayIndex = strings.Index(format, s)
		if dayIndex >= 0 {
			break
		}
	}
	if dayIndex == -1 {
		return
	}
	monthIndex := -1
	for _, s := range []string{"%m", "%b", "%B"} {
		monthIndex = strings.Index(format, s)
		if monthIndex >= 0 {
			break
		}
	}
	if monthIndex == -1 {
		return
	}
	if monthIndex < dayIndex {
		dateMonthFirst = true
	}
}

func printDate(scr *Screen, x int, y int, st vaxis.Style, t time.Time) {
	dateConfig.Do(loadDateInfo)
	_, m, d := t.Date()
	var left, right int
	if dateMonthFirst {
		left, right = int(m), d
	} else {
		left, right = d, int(m)
	}
	setCell(scr, x+0, y, rune(left/10)+'0', st)
	setCell(scr, x+1, y, rune(left%10)+'0', st)
	setCell(scr, x+2, y, '/', st)
	setCell(scr, x+3, y, rune(right/10)+'0', st)
	setCell(scr, x+4, y, rune(right%10)+'0', st)
}

func clearArea(scr *Screen, x0, y0, width, height int) {
	scr.Fill(x0, y0, width, height, blankCell)
}

func drawVerticalLine(scr *Screen, x, y0, height int) {
	for y := y0; y < y0+height; y++ {
		setCell(scr, x, y, '│', vaxis.Style{Foreground: ColorGray})
	}
}
