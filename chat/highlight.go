package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func isWordBoundary(r rune) bool {
	switch r {
	case '-', '_', '|':
		return false
	default:
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}
}

// IsHighlight reports whether text mentions nick as a whole word. The
// comparison is case-insensitive.
func IsHighlight(text, nick string) bool {
	if nick == "" {
		return false
	}
	text = strings.ToLower(text)
	nick = strings.ToLower(nick)
	for {
		i := strings.Index(text, nick)
		if i < 0 {
			return false
		}

		left, _ := utf8.DecodeLastRuneInString(text[:i])
		right, _ := utf8.DecodeRuneInString(text[i+len(nick):])
		if isWordBoundary(left) && isWordBoundary(right) {
			return true
		}

		text = text[i+len(nick):]
	}
}
