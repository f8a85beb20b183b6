package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"git.sr.ht/~rockorager/vaxis"
	"github.com/rivo/uniseg"
)

// continuationIndent is the hanging indent of wrapped message lines.
const continuationIndent = 4

// timeWidth is the width of the "15:04" column.
const timeWidth = 5

type Reaction struct {
	Name  string
	Count int
}

// Message is a chat message as displayed in a channel.
type Message struct {
	ID     string
	Sender string
	At     time.Time

	text      string
	reactions []Reaction

	// cache holds the lines for the last requested width.
	cache *formatted
}

type formatted struct {
	width int
	lines []StyledString
}

func NewMessage(id, sender, text string, at time.Time, reactions []Reaction) *Message {
	return &Message{
		ID:        id,
		Sender:    sender,
		At:        at,
		text:      text,
		reactions: append([]Reaction(nil), reactions...),
	}
}

func (m *Message) Text() string {
	return m.text
}

func (m *Message) Reactions() []Reaction {
	return m.reactions
}

func (m *Message) SetText(text string) {
	m.text = text
	m.invalidate()
}

func (m *Message) AddReaction(name string) {
	defer m.invalidate()
	for i := range m.reactions {
		if m.reactions[i].Name == name {
			m.reactions[i].Count++
			return
		}
	}
	m.reactions = append(m.reactions, Reaction{Name: name, Count: 1})
}

// RemoveReaction decrements the count of name, dropping it at zero.
func (m *Message) RemoveReaction(name string) {
	for i := range m.reactions {
		if m.reactions[i].Name != name {
			continue
		}
		m.reactions[i].Count--
		if m.reactions[i].Count <= 0 {
			m.reactions = append(m.reactions[:i], m.reactions[i+1:]...)
		}
		m.invalidate()
		return
	}
}

func (m *Message) invalidate() {
	m.cache = nil
}

// Lines returns the message wrapped at width columns. The first line starts
// with the time and the sender; the following ones are indented.
func (m *Message) Lines(width int, senderColor vaxis.Color) []StyledString {
	if m.cache != nil && m.cache.width == width {
		return m.cache.lines
	}
	lines := formatMessage(m, width, senderColor)
	m.cache = &formatted{
		width: width,
		lines: lines,
	}
	return lines
}

// formatHeader returns the "15:04 sender " prefix of the first line. Parts
// are dropped, the sender first, so that at least one column is left for
// the body.
func formatHeader(m *Message, width int, senderColor vaxis.Color) StyledString {
	var head StyledStringBuilder
	if width <= timeWidth+1 {
		return head.StyledString()
	}
	head.SetStyle(vaxis.Style{Foreground: ColorGray})
	head.WriteString(m.At.Local().Format("15:04"))
	head.SetStyle(vaxis.Style{})
	head.WriteByte(' ')
	if senderWidth := width - timeWidth - 3; m.Sender != "" && senderWidth > 0 {
		head.SetStyle(vaxis.Style{Foreground: senderColor, Attribute: vaxis.AttrBold})
		head.WriteString(truncate(m.Sender, senderWidth, "…"))
		head.SetStyle(vaxis.Style{})
		head.WriteByte(' ')
	}
	return head.StyledString()
}

func formatMessage(m *Message, width int, senderColor vaxis.Color) []StyledString {
	width = max(width, 1)
	header := formatHeader(m, width, senderColor)
	// The indent leaves at least one column too.
	indent := PlainString(strings.Repeat(" ", min(continuationIndent, width-1)))

	body := messageBody(m.text, m.reactions)
	firstWidth := width - stringWidth(header.string)
	restWidth := width - stringWidth(indent.string)
	spans := wrapSpans(body.string, firstWidth, restWidth)

	lines := make([]StyledString, 0, len(spans))
	for i, sp := range spans {
		var sb StyledStringBuilder
		if i == 0 {
			sb.WriteStyledString(header)
		} else {
			sb.WriteStyledString(indent)
		}
		sb.WriteStyledString(body.Slice(sp.start, sp.end))
		lines = append(lines, sb.StyledString())
	}
	return lines
}

func messageBody(text string, reactions []Reaction) StyledString {
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\t", " ")
	body := ParseMarkup(text).ParseURLs()
	if len(reactions) == 0 {
		return body
	}
	var sb StyledStringBuilder
	sb.WriteStyledString(body.Slice(0, len(strings.TrimRightFunc(body.string, unicode.IsSpace))))
	sb.SetStyle(vaxis.Style{Foreground: ColorGray})
	for _, r := range reactions {
		fmt.Fprintf(&sb, " %s(%d)", r.Name, r.Count)
	}
	return sb.StyledString()
}

type span struct {
	start, end int // byte offsets
}

// wrapSpans splits s into lines of at most firstWidth columns for the first
// line and restWidth columns for the others. Lines break on whitespace,
// which is dropped at the start and end of wrapped lines. A word longer than
// a line starts on its own line and is split at the column boundary. '\n'
// always breaks the line.
func wrapSpans(s string, firstWidth, restWidth int) []span {
	w := wrapper{width: firstWidth, rest: restWidth}
	w.cur.start = -1

	for len(s) > 0 || w.pos == 0 {
		nl := strings.IndexByte(s, '\n')
		para := s
		if nl >= 0 {
			para = s[:nl]
		}
		w.paragraph(para)
		w.pos += len(para)
		if nl < 0 {
			break
		}
		w.newLine()
		w.pos++
		s = s[nl+1:]
		if len(s) == 0 {
			// Trailing '\n': keep the empty last line.
			w.lines = append(w.lines, span{w.pos, w.pos})
			return w.lines
		}
	}
	if w.cur.start >= 0 || len(w.lines) == 0 {
		w.newLine()
	}
	return w.lines
}

type wrapper struct {
	width int
	rest  int

	lines []span
	pos   int // byte offset of the current paragraph in the whole string

	cur    span // cur.start < 0 when the line is empty
	curW   int
	spaceW int // width of the whitespace after the last word of cur
}

func (w *wrapper) newLine() {
	if w.cur.start < 0 {
		w.lines = append(w.lines, span{w.pos, w.pos})
	} else {
		w.lines = append(w.lines, w.cur)
	}
	w.cur.start = -1
	w.curW = 0
	w.spaceW = 0
	w.width = w.rest
}

func (w *wrapper) paragraph(s string) {
	off := 0
	for off < len(s) {
		tok, tw, space := nextToken(s[off:])
		b0 := w.pos + off
		b1 := b0 + len(tok)
		if !space {
			w.word(tok, b0, b1, tw)
		} else if w.cur.start >= 0 {
			w.spaceW += tw
		} else if off == 0 && len(w.lines) == 0 && tw <= w.width {
			// Leading whitespace of the message is kept.
			w.cur = span{b0, b1}
			w.curW = tw
		}
		off += len(tok)
	}
}

func (w *wrapper) word(tok string, b0, b1, tw int) {
	if w.cur.start >= 0 {
		if w.curW+w.spaceW+tw <= w.width {
			w.cur.end = b1
			w.curW += w.spaceW + tw
			w.spaceW = 0
			return
		}
		w.newLine()
	}
	if tw <= w.width {
		w.cur = span{b0, b1}
		w.curW = tw
		return
	}
	// Hard split.
	state := -1
	rest := tok
	chunkStart := b0
	chunkW := 0
	i := b0
	for len(rest) > 0 {
		var cluster string
		var boundaries int
		cluster, rest, boundaries, state = uniseg.StepString(rest, state)
		gw := boundaries >> uniseg.ShiftWidth
		if chunkW > 0 && chunkW+gw > w.width {
			w.cur = span{chunkStart, i}
			w.newLine()
			chunkStart = i
			chunkW = 0
		}
		chunkW += gw
		i += len(cluster)
	}
	w.cur = span{chunkStart, b1}
	w.curW = chunkW
}

// nextToken returns the leading run of whitespace or non-whitespace of s,
// with its width.
func nextToken(s string) (tok string, width int, space bool) {
	r, _ := utf8.DecodeRuneInString(s)
	space = unicode.IsSpace(r)
	state := -1
	rest := s
	n := 0
	for len(rest) > 0 {
		r, _ := utf8.DecodeRuneInString(rest)
		if unicode.IsSpace(r) != space {
			break
		}
		var cluster string
		var boundaries int
		cluster, rest, boundaries, state = uniseg.StepString(rest, state)
		n += len(cluster)
		width += boundaries >> uniseg.ShiftWidth
	}
	return s[:n], width, space
}
