package ui

import (
	"hash/fnv"

	"git.sr.ht/~rockorager/vaxis"
)

// ColorDefault is the terminal's default color.
var ColorDefault vaxis.Color

var ColorRed = vaxis.IndexColor(9)
var ColorGray = vaxis.IndexColor(8)
var ColorLink = vaxis.IndexColor(12)

type ColorSchemeType int

// ColorScheme selects how sender names are colored. Fixed uses Color for
// every sender.
type ColorScheme struct {
	Type  ColorSchemeType
	Color vaxis.Color
}

const (
	ColorSchemeBase ColorSchemeType = iota
	ColorSchemeExtended
	ColorSchemeFixed
)

// palettes lists the xterm color indexes of each scheme.
var palettes = map[ColorSchemeType][]uint8{
	// 16-color palette minus black, white and the grays.
	ColorSchemeBase: {1, 2, 3, 4, 5, 6, 7, 9, 10, 11, 12, 13, 14},
	// Fully saturated colors of the 256-color cube, by hue.
	ColorSchemeExtended: {
		196, 202, 208, 214, 220, 226, 190, 154, 118, 82,
		46, 47, 48, 49, 50, 51, 45, 39, 33, 27,
		21, 57, 93, 129, 165, 201, 200, 199, 198, 197,
	},
}

// IdentColor returns the color of a sender name. The same name always gets
// the same color; different names may collide.
func IdentColor(scheme ColorScheme, ident string) vaxis.Color {
	if scheme.Type == ColorSchemeFixed {
		return scheme.Color
	}
	p := palettes[scheme.Type]
	h := fnv.New32()
	_, _ = h.Write([]byte(ident))
	return vaxis.IndexColor(p[h.Sum32()%uint32(len(p))])
}

// senderColors memoizes IdentColor for the senders of one server.
type senderColors struct {
	scheme ColorScheme
	m      map[string]vaxis.Color
}

func newSenderColors(scheme ColorScheme) senderColors {
	return senderColors{
		scheme: scheme,
		m:      make(map[string]vaxis.Color),
	}
}

func (sc *senderColors) color(sender string) vaxis.Color {
	if c, ok := sc.m[sender]; ok {
		return c
	}
	c := IdentColor(sc.scheme, sender)
	sc.m[sender] = c
	return c
}
