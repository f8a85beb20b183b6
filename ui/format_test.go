package ui

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func spanStrings(s string, spans []span) []string {
	var out []string
	for _, sp := range spans {
		out = append(out, s[sp.start:sp.end])
	}
	return out
}

func TestWrapSpans(t *testing.T) {
	tests := []struct {
		name  string
		input string
		first int
		rest  int
		want  []string
	}{
		{
			name:  "fits",
			input: "hello world",
			first: 20,
			rest:  20,
			want:  []string{"hello world"},
		},
		{
			name:  "empty",
			input: "",
			first: 10,
			rest:  10,
			want:  []string{""},
		},
		{
			name:  "break on space",
			input: "hello world",
			first: 7,
			rest:  7,
			want:  []string{"hello", "world"},
		},
		{
			name:  "narrower continuation",
			input: "aaa bbb ccc",
			first: 7,
			rest:  3,
			want:  []string{"aaa bbb", "ccc"},
		},
		{
			name:  "hard split",
			input: "a very long unbreakable-url-like-string-of-length-40",
			first: 10,
			rest:  10,
			want: []string{
				"a very",
				"long",
				"unbreakabl",
				"e-url-like",
				"-string-of",
				"-length-40",
			},
		},
		{
			name:  "newline",
			input: "one\ntwo",
			first: 10,
			rest:  10,
			want:  []string{"one", "two"},
		},
		{
			name:  "trailing newline",
			input: "one\n",
			first: 10,
			rest:  10,
			want:  []string{"one", ""},
		},
		{
			name:  "leading spaces kept",
			input: "  indented",
			first: 20,
			rest:  20,
			want:  []string{"  indented"},
		},
		{
			name:  "wide graphemes",
			input: "日本語日本語",
			first: 4,
			rest:  4,
			want:  []string{"日本", "語日", "本語"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := spanStrings(test.input, wrapSpans(test.input, test.first, test.rest))
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("got %q, want %q", got, test.want)
			}
		})
	}
}

func TestWrapSpansWidth(t *testing.T) {
	input := "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. 日本語のテキスト"
	// Single graphemes wider than the line are the only allowed overflow.
	for width := 2; width < 40; width++ {
		lines := spanStrings(input, wrapSpans(input, width, width))
		for _, l := range lines {
			if w := stringWidth(l); w > width {
				t.Errorf("width %d: line %q is %d columns wide", width, l, w)
			}
		}
	}
}

func messageLines(lines []StyledString) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.String()
	}
	return out
}

func TestMessageLines(t *testing.T) {
	at := time.Date(2024, 3, 1, 13, 37, 0, 0, time.Local)
	m := NewMessage("1", "alice", "hi there everyone", at, nil)
	got := messageLines(m.Lines(20, ColorRed))
	want := []string{
		"13:37 alice hi there",
		"    everyone",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMessageLinesFitWidth(t *testing.T) {
	at := time.Date(2024, 3, 1, 13, 37, 0, 0, time.Local)
	m := NewMessage("1", "bob", strings.Repeat("word ", 30)+"https://example.org/a/very/long/path", at, []Reaction{{Name: ":+1:", Count: 2}})
	for width := 1; width < 80; width++ {
		for _, l := range m.Lines(width, ColorRed) {
			if w := stringWidth(l.String()); w > width {
				t.Errorf("width %d: line %q is %d columns wide", width, l.String(), w)
			}
		}
	}
}

func TestMessageHeaderNarrow(t *testing.T) {
	at := time.Date(2024, 3, 1, 13, 37, 0, 0, time.Local)
	m := NewMessage("1", "bob", "hi", at, nil)
	tests := []struct {
		width int
		want  []string
	}{
		{10, []string{"13:37 b… h", "    i"}},
		{9, []string{"13:37 … h", "    i"}},
		{8, []string{"13:37 hi"}},
		{7, []string{"13:37 h", "    i"}},
		{6, []string{"hi"}},
		{2, []string{"hi"}},
		{1, []string{"h", "i"}},
	}
	for _, test := range tests {
		if got := messageLines(formatMessage(m, test.width, ColorRed)); !reflect.DeepEqual(got, test.want) {
			t.Errorf("width %d: got %q, want %q", test.width, got, test.want)
		}
	}
}

func TestMessageLinesCache(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 5, 0, 0, time.Local)
	m := NewMessage("1", "alice", "the quick brown fox jumps over the lazy dog", at, nil)

	first := m.Lines(20, ColorRed)
	again := m.Lines(20, ColorRed)
	if !reflect.DeepEqual(first, again) {
		t.Fatalf("cached lines differ: %q, %q", messageLines(first), messageLines(again))
	}
	fresh := formatMessage(m, 20, ColorRed)
	if !reflect.DeepEqual(first, fresh) {
		t.Fatalf("cached lines differ from a fresh format: %q, %q", messageLines(first), messageLines(fresh))
	}

	m.Lines(33, ColorRed)
	back := m.Lines(20, ColorRed)
	if !reflect.DeepEqual(first, back) {
		t.Errorf("reflowing 20 -> 33 -> 20 changed the output: %q, %q", messageLines(first), messageLines(back))
	}
}

func TestMessageInvalidation(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 5, 0, 0, time.Local)
	m := NewMessage("1", "alice", "hello  ", at, nil)
	if got := messageLines(m.Lines(40, ColorRed)); got[0] != "09:05 alice hello" {
		t.Fatalf("got %q", got)
	}

	m.AddReaction("tada")
	m.AddReaction("tada")
	m.AddReaction("eyes")
	want := "09:05 alice hello tada(2) eyes(1)"
	if got := messageLines(m.Lines(40, ColorRed)); got[0] != want {
		t.Errorf("after reactions: got %q, want %q", got[0], want)
	}

	m.RemoveReaction("tada")
	m.RemoveReaction("eyes")
	want = "09:05 alice hello tada(1)"
	if got := messageLines(m.Lines(40, ColorRed)); got[0] != want {
		t.Errorf("after removing reactions: got %q, want %q", got[0], want)
	}

	m.SetText("edited")
	want = "09:05 alice edited tada(1)"
	if got := messageLines(m.Lines(40, ColorRed)); got[0] != want {
		t.Errorf("after edit: got %q, want %q", got[0], want)
	}
}
