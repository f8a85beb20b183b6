package ui

import (
	"regexp"
	"strconv"
	"strings"

	"git.sr.ht/~rockorager/vaxis"
	"mvdan.cc/xurls/v2"
)

// Message bodies may carry mIRC formatting codes. Only what a Cell can show
// is kept: bold, reverse and colors. Other attributes are stripped.
const (
	codeBold      = 0x02
	codeColor     = 0x03
	codeHexColor  = 0x04
	codeReset     = 0x0F
	codeMonospace = 0x11
	codeReverse   = 0x16
	codeItalic    = 0x1D
	codeStrike    = 0x1E
	codeUnderline = 0x1F
)

// mircPalette maps mIRC color codes to xterm color indexes.
var mircPalette = [...]uint8{
	15, 0, 4, 2, 9, 1, 5, 3, 11, 10, 6, 14, 12, 13, 8, 7,
	52, 94, 100, 58, 22, 29, 23, 24, 17, 54, 53, 89,
	88, 130, 142, 64, 28, 35, 30, 25, 18, 91, 90, 125,
	124, 166, 184, 106, 34, 49, 37, 33, 19, 129, 127, 161,
	196, 208, 226, 154, 46, 86, 51, 75, 21, 171, 201, 198,
	203, 215, 227, 191, 83, 122, 87, 111, 63, 177, 207, 205,
	217, 223, 229, 193, 157, 158, 159, 153, 147, 183, 219, 212,
	16, 233, 235, 237, 239, 241, 244, 247, 250, 254, 231,
}

func mircColor(code int) vaxis.Color {
	if code < 0 || code >= len(mircPalette) {
		// 99 is the default color.
		return ColorDefault
	}
	return vaxis.IndexColor(mircPalette[code])
}

type rangedStyle struct {
	Start int // byte index at which Style is effective
	Style vaxis.Style
}

// StyledString is a string with styles starting at byte offsets. Bytes
// before the first style use the zero style.
type StyledString struct {
	string
	styles []rangedStyle // sorted by Start
}

func PlainString(s string) StyledString {
	return StyledString{string: s}
}

func Styled(s string, style vaxis.Style) StyledString {
	return StyledString{
		string: s,
		styles: []rangedStyle{{Start: 0, Style: style}},
	}
}

func (s StyledString) String() string {
	return s.string
}

func (s StyledString) styleAt(i int) vaxis.Style {
	var st vaxis.Style
	for _, rs := range s.styles {
		if rs.Start > i {
			break
		}
		st = rs.Style
	}
	return st
}

// Slice returns the bytes of s in [start, end) with their styles.
func (s StyledString) Slice(start, end int) StyledString {
	out := StyledString{string: s.string[start:end]}
	if st := s.styleAt(start); st != (vaxis.Style{}) {
		out.styles = append(out.styles, rangedStyle{Style: st})
	}
	for _, rs := range s.styles {
		if rs.Start <= start {
			continue
		}
		if rs.Start >= end {
			break
		}
		rs.Start -= start
		out.styles = append(out.styles, rs)
	}
	return out
}

// withBase returns s with a style at offset 0, so that it does not inherit
// the style of what precedes it once concatenated.
func (s StyledString) withBase() StyledString {
	if len(s.styles) > 0 && s.styles[0].Start == 0 {
		return s
	}
	styles := make([]rangedStyle, 0, len(s.styles)+1)
	styles = append(styles, rangedStyle{})
	s.styles = append(styles, s.styles...)
	return s
}

var urlRegex *regexp.Regexp

func init() {
	urlRegex = xurls.Strict()
	urlRegex.Longest()
}

// ParseURLs marks the URLs of s. They are drawn in the link color.
func (s StyledString) ParseURLs() StyledString {
	if !strings.Contains(s.string, ":") {
		return s
	}
	locs := urlRegex.FindAllStringIndex(s.string, -1)
	if len(locs) == 0 {
		return s
	}

	var sb StyledStringBuilder
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			sb.WriteStyledString(s.Slice(last, loc[0]).withBase())
		}
		link := s.Slice(loc[0], loc[1]).withBase()
		for i := range link.styles {
			link.styles[i].Style.Hyperlink = link.string
		}
		sb.WriteStyledString(link)
		last = loc[1]
	}
	if last < len(s.string) {
		sb.WriteStyledString(s.Slice(last, len(s.string)).withBase())
	}
	return sb.StyledString()
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// parseCodeNumber parses a mIRC color number of one or two digits.
func parseCodeNumber(raw string) (color vaxis.Color, n int) {
	for n < len(raw) && n < 2 && isDigit(raw[n]) {
		n++
	}
	if n == 0 {
		return ColorDefault, 0
	}
	code, _ := strconv.Atoi(raw[:n])
	return mircColor(code), n
}

// parseHexNumber parses a RRGGBB color.
func parseHexNumber(raw string) (color vaxis.Color, n int) {
	if len(raw) < 6 || raw[0] == '+' || raw[0] == '-' {
		return ColorDefault, 0
	}
	v, err := strconv.ParseUint(raw[:6], 16, 32)
	if err != nil {
		return ColorDefault, 0
	}
	return vaxis.HexColor(uint32(v)), 6
}

type colorChange struct {
	fg, bg vaxis.Color
	hasBg  bool
}

// parseColorCode parses the arguments of a color code: a foreground,
// optionally followed by a comma and a background. n is the number of bytes
// consumed; a comma not followed by a color is left alone.
func parseColorCode(raw string, hex bool) (c colorChange, n int) {
	parse := parseCodeNumber
	if hex {
		parse = parseHexNumber
	}
	c.fg, n = parse(raw)
	if n == 0 || n >= len(raw) || raw[n] != ',' {
		return c, n
	}
	bg, m := parse(raw[n+1:])
	if m == 0 {
		return c, n
	}
	c.bg = bg
	c.hasBg = true
	return c, n + 1 + m
}

func isFormatCode(b byte) bool {
	switch b {
	case codeBold, codeColor, codeHexColor, codeReset, codeMonospace,
		codeReverse, codeItalic, codeStrike, codeUnderline:
		return true
	}
	return false
}

// ParseMarkup strips the formatting codes of raw and returns the remaining
// text styled accordingly.
func ParseMarkup(raw string) StyledString {
	var sb StyledStringBuilder
	var cur, written vaxis.Style
	for i := 0; i < len(raw); {
		b := raw[i]
		i++
		switch b {
		case codeBold:
			cur.Attribute ^= vaxis.AttrBold
		case codeReverse:
			cur.Attribute ^= vaxis.AttrReverse
		case codeReset:
			cur = vaxis.Style{}
		case codeColor, codeHexColor:
			c, n := parseColorCode(raw[i:], b == codeHexColor)
			i += n
			if n == 0 {
				cur.Foreground = ColorDefault
				cur.Background = ColorDefault
				break
			}
			cur.Foreground = c.fg
			if c.hasBg {
				cur.Background = c.bg
			}
		case codeMonospace, codeItalic, codeStrike, codeUnderline:
		default:
			j := i
			for j < len(raw) && !isFormatCode(raw[j]) {
				j++
			}
			if cur != written {
				sb.SetStyle(cur)
				written = cur
			}
			sb.WriteString(raw[i-1 : j])
			i = j
		}
	}
	return sb.StyledString()
}

type StyledStringBuilder struct {
	strings.Builder
	styles []rangedStyle
}

func (sb *StyledStringBuilder) WriteStyledString(s StyledString) {
	for _, rs := range s.styles {
		rs.Start += sb.Len()
		sb.styles = append(sb.styles, rs)
	}
	sb.WriteString(s.string)
}

// SetStyle applies style to what is written next.
func (sb *StyledStringBuilder) SetStyle(style vaxis.Style) {
	sb.styles = append(sb.styles, rangedStyle{
		Start: sb.Len(),
		Style: style,
	})
}

// StyledString returns the built string. Styles past its end are dropped.
func (sb *StyledStringBuilder) StyledString() StyledString {
	s := sb.String()
	styles := make([]rangedStyle, 0, len(sb.styles))
	for _, rs := range sb.styles {
		if rs.Start >= len(s) {
			break
		}
		styles = append(styles, rs)
	}
	return StyledString{
		string: s,
		styles: styles,
	}
}
