package chat

import "testing"

func TestComplete(t *testing.T) {
	channels := []string{"#general", "#general-chat", "#random"}
	users := []string{"alice", "Albert", "bob"}
	extra := []string{"partyparrot"}

	tests := []struct {
		word string
		want string
		ok   bool
	}{
		{"#gen", "#general", true},
		{"#RAN", "#random", true},
		{"#xyz", "", false},
		{"@ali", "@alice", true},
		{"@alb", "@Albert", true},
		{"@", "", false},
		{":thu", ":thumbsup:", true},
		{":thumbsdown", ":thumbsdown:", true},
		{"+thu", "+:thumbsup:", true},
		{"+:thu", "+:thumbsup:", true},
		{":partyp", ":partyparrot:", true},
		{":zzzzzz", "", false},
		{"hello", "", false},
	}
	for _, tc := range tests {
		got, ok := Complete(tc.word, channels, users, extra)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Complete(%q): expected %q, %v, got %q, %v", tc.word, tc.want, tc.ok, got, ok)
		}
	}
}

func TestReplaceEmojiAliases(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hi", "hi"},
		{"nice :thumbsup:", "nice 👍"},
		{"at 10:30 :fire:", "at 10:30 🔥"},
		{":unknown: :tada:", ":unknown: 🎉"},
		{"::", "::"},
	}
	for _, tc := range tests {
		if got := ReplaceEmojiAliases(tc.in); got != tc.want {
			t.Errorf("ReplaceEmojiAliases(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestParseReaction(t *testing.T) {
	tests := []struct {
		text string
		name string
		ok   bool
	}{
		{"+:thumbsup:", "thumbsup", true},
		{"+:party_parrot:", "party_parrot", true},
		{"+::", "", false},
		{"+:a b:", "", false},
		{":thumbsup:", "", false},
		{"+:thumbsup: nice", "", false},
	}
	for _, tc := range tests {
		name, ok := ParseReaction(tc.text)
		if name != tc.name || ok != tc.ok {
			t.Errorf("ParseReaction(%q): expected %q, %v, got %q, %v", tc.text, tc.name, tc.ok, name, ok)
		}
	}
}
