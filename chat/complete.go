package chat

import (
	"sort"
	"strings"
)

// Complete returns the completion of a sigil-prefixed word:
//
//	#gen   -> #general  (channels)
//	@ali   -> @alice    (users)
//	:thu   -> :thumbsup:
//	+thu   -> +:thumbsup: (reaction to the latest message)
//
// extraEmoji holds backend-specific emoji names, without colons. Matching is
// case-insensitive on the prefix. It has no side effect.
func Complete(word string, channels, users, extraEmoji []string) (string, bool) {
	if len(word) < 2 {
		return "", false
	}
	prefix := word[1:]
	switch word[0] {
	case '#':
		if name, ok := completeName(prefix, channels, func(s string) string {
			return strings.TrimPrefix(s, "#")
		}); ok {
			return "#" + name, true
		}
	case '@':
		if name, ok := completeName(prefix, users, nil); ok {
			return "@" + name, true
		}
	case ':':
		if name, ok := completeEmoji(prefix, extraEmoji); ok {
			return ":" + name + ":", true
		}
	case '+':
		prefix = strings.TrimPrefix(prefix, ":")
		if name, ok := completeEmoji(prefix, extraEmoji); ok {
			return "+:" + name + ":", true
		}
	}
	return "", false
}

func completeName(prefix string, names []string, normalize func(string) string) (string, bool) {
	lPrefix := strings.ToLower(prefix)
	var matches []string
	for _, name := range names {
		if normalize != nil {
			name = normalize(name)
		}
		if strings.HasPrefix(strings.ToLower(name), lPrefix) {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	// Shortest first, so that "gen" completes to "general" rather than
	// "general-chat".
	sort.Slice(matches, func(i, j int) bool {
		if len(matches[i]) != len(matches[j]) {
			return len(matches[i]) < len(matches[j])
		}
		return matches[i] < matches[j]
	})
	return matches[0], true
}

func completeEmoji(prefix string, extra []string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	if name, ok := completeName(prefix, extra, nil); ok && strings.EqualFold(name, prefix) {
		return name, true
	}
	found := findEmoji(strings.ToLower(prefix))
	if len(found) > 0 {
		best := found[0]
		if best.Alias != prefix {
			for _, e := range found[1:] {
				if e.rank < best.rank {
					best = e
				}
			}
		}
		return best.Alias, true
	}
	return completeName(prefix, extra, nil)
}

// ParseReaction reports whether text is a reaction shorthand such as
// "+:thumbsup:", and returns the emoji name without colons.
func ParseReaction(text string) (name string, ok bool) {
	if !strings.HasPrefix(text, "+:") || !strings.HasSuffix(text, ":") || len(text) < 4 {
		return "", false
	}
	name = text[2 : len(text)-1]
	if strings.ContainsAny(name, ": \t") {
		return "", false
	}
	return name, true
}
