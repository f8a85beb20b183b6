package ui

import (
	"strings"

	"git.sr.ht/~rockorager/vaxis"
)

// Editor is the compose line. Its text is stored as grapheme clusters, so
// the cursor always sits between two of them.
type Editor struct {
	clusters []string
	// offsets[i] is the width of clusters[:i]. It has len(clusters)+1
	// elements.
	offsets []int

	// history holds the sent lines, oldest first. lines is history followed
	// by the draft; recalled lines may be edited there until the next Flush
	// restores them.
	history []string
	lines   []string
	lineIdx int

	cursorIdx int // cluster before which the cursor is
	offsetIdx int // first cluster drawn
	width     int
}

// NewEditor returns an empty editor. Call Resize once before using it.
func NewEditor() Editor {
	e := Editor{
		lines: []string{""},
	}
	e.load("")
	return e
}

func (e *Editor) load(text string) {
	e.clusters = e.clusters[:0]
	for _, c := range vaxis.Characters(text) {
		e.clusters = append(e.clusters, c.Grapheme)
	}
	e.offsets = append(e.offsets[:0], 0)
	w := 0
	for _, c := range e.clusters {
		w += stringWidth(c)
		e.offsets = append(e.offsets, w)
	}
}

func (e *Editor) text() string {
	return strings.Join(e.clusters, "")
}

// clusterAt returns the index of the first cluster that starts at or after
// the byte offset off of the text.
func (e *Editor) clusterAt(off int) int {
	n := 0
	for i, c := range e.clusters {
		if n >= off {
			return i
		}
		n += len(c)
	}
	return len(e.clusters)
}

// splice replaces clusters [start, end) with s and puts the cursor after s.
func (e *Editor) splice(start, end int, s string) {
	before := strings.Join(e.clusters[:start], "") + s
	after := strings.Join(e.clusters[end:], "")
	e.load(before + after)
	e.setCursor(e.clusterAt(len(before)))
}

func (e *Editor) Resize(width int) {
	e.width = width
	e.setCursor(e.cursorIdx)
}

func (e *Editor) Content() []rune {
	return []rune(e.text())
}

func (e *Editor) Empty() bool {
	return len(e.clusters) == 0
}

// setCursor moves the cursor and scrolls so that it stays visible.
func (e *Editor) setCursor(idx int) {
	idx = max(0, min(idx, len(e.clusters)))
	e.cursorIdx = idx
	if e.offsetIdx > idx {
		e.offsetIdx = idx
	}
	for e.offsetIdx < idx && e.width <= e.offsets[idx]-e.offsets[e.offsetIdx] {
		e.offsetIdx++
	}
}

// PutRune inserts r at the cursor. A combining rune joins the cluster
// before it.
func (e *Editor) PutRune(r rune) {
	e.splice(e.cursorIdx, e.cursorIdx, string(r))
}

func (e *Editor) RemCluster() bool {
	if e.cursorIdx == 0 {
		return false
	}
	e.splice(e.cursorIdx-1, e.cursorIdx, "")
	return true
}

func (e *Editor) RemClusterForward() bool {
	if e.cursorIdx >= len(e.clusters) {
		return false
	}
	cursor := e.cursorIdx
	e.splice(cursor, cursor+1, "")
	e.setCursor(cursor)
	return true
}

// wordStart returns the index of the first cluster of the word that ends
// at the cursor.
func (e *Editor) wordStart() int {
	start := e.cursorIdx
	for start > 0 && e.clusters[start-1] != " " {
		start--
	}
	return start
}

// RemWord deletes the spaces before the cursor, then the word before them.
func (e *Editor) RemWord() bool {
	if e.cursorIdx == 0 {
		return false
	}
	end := e.cursorIdx
	for e.cursorIdx > 0 && e.clusters[e.cursorIdx-1] == " " {
		e.cursorIdx--
	}
	e.splice(e.wordStart(), end, "")
	return true
}

// Flush clears the line and returns its content, adding it to the history.
func (e *Editor) Flush() string {
	content := e.text()
	if content != "" {
		e.history = append(e.history, content)
	}
	e.lines = append(append(e.lines[:0], e.history...), "")
	e.lineIdx = len(e.lines) - 1
	e.load("")
	e.cursorIdx = 0
	e.offsetIdx = 0
	return content
}

func (e *Editor) Clear() bool {
	if e.Empty() {
		return false
	}
	e.load("")
	e.cursorIdx = 0
	e.offsetIdx = 0
	return true
}

func (e *Editor) Set(text string) {
	e.load(text)
	e.offsetIdx = 0
	e.setCursor(len(e.clusters))
}

func (e *Editor) LastWord() string {
	return strings.Join(e.clusters[e.wordStart():e.cursorIdx], "")
}

func (e *Editor) ReplaceLastWord(word string) {
	e.splice(e.wordStart(), e.cursorIdx, word)
}

func (e *Editor) Right() {
	e.setCursor(e.cursorIdx + 1)
}

func (e *Editor) Left() {
	e.setCursor(e.cursorIdx - 1)
}

func (e *Editor) Home() {
	e.offsetIdx = 0
	e.setCursor(0)
}

func (e *Editor) End() {
	e.setCursor(len(e.clusters))
}

func (e *Editor) recall(idx int) {
	if idx < 0 || idx >= len(e.lines) {
		return
	}
	e.lines[e.lineIdx] = e.text()
	e.lineIdx = idx
	e.load(e.lines[idx])
	e.offsetIdx = 0
	e.End()
}

// Up recalls the previous line of the history.
func (e *Editor) Up() {
	e.recall(e.lineIdx - 1)
}

// Down recalls the next line of the history.
func (e *Editor) Down() {
	e.recall(e.lineIdx + 1)
}

// Draw draws the prompt and the line at (x0, y) and returns the column of
// the cursor. The line takes the width given to Resize, after the prompt.
func (e *Editor) Draw(scr *Screen, x0, y int, prompt StyledString) (cursorX int) {
	x := x0
	printString(scr, &x, y, -1, prompt)
	start := x
	visible := strings.Join(e.clusters[e.offsetIdx:], "")
	printString(scr, &x, y, start+e.width, PlainString(visible))
	return start + e.offsets[e.cursorIdx] - e.offsets[e.offsetIdx]
}
