package slack

import (
	"strings"

	"git.sr.ht/~delthas/polychat/chat"
)

// lookupFunc resolves a Slack identifier to a display name.
type lookupFunc func(id string) (name string, ok bool)

var unescaper = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">")

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// renderText turns Slack message markup into plain text: references such
// as <@U123> and <#C123|general> become @name and #general, links become
// their label, and :emoji: codes become emoji.
func renderText(text string, users, channels lookupFunc) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for {
		start := strings.IndexByte(text, '<')
		if start < 0 {
			break
		}
		end := strings.IndexByte(text[start:], '>')
		if end < 0 {
			break
		}
		end += start
		sb.WriteString(text[:start])
		sb.WriteString(renderRef(text[start+1:end], users, channels))
		text = text[end+1:]
	}
	sb.WriteString(text)
	return chat.ReplaceEmojiAliases(unescaper.Replace(sb.String()))
}

func renderRef(ref string, users, channels lookupFunc) string {
	target, label, hasLabel := strings.Cut(ref, "|")
	switch {
	case strings.HasPrefix(target, "@"):
		if hasLabel {
			return "@" + label
		}
		if name, ok := users(target[1:]); ok {
			return "@" + name
		}
		return target
	case strings.HasPrefix(target, "#"):
		if hasLabel && label != "" {
			return "#" + label
		}
		if name, ok := channels(target[1:]); ok {
			return "#" + name
		}
		return target
	case strings.HasPrefix(target, "!subteam^"):
		if hasLabel {
			return label
		}
		return "@team"
	case strings.HasPrefix(target, "!"):
		if hasLabel {
			return label
		}
		// <!here>, <!channel>, <!everyone>
		return "@" + strings.TrimPrefix(target, "!")
	}
	if !hasLabel || label == target || "mailto:"+label == target {
		return strings.TrimPrefix(target, "mailto:")
	}
	return label + " (" + target + ")"
}

// escapeText escapes the characters Slack reserves for markup.
func escapeText(text string) string {
	return escaper.Replace(text)
}
