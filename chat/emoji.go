package chat

import (
	_ "embed"
	"encoding/json"
	"sort"
	"strings"
)

//go:embed emoji.json
var emojiJSON []byte

type emoji struct {
	Emoji string
	Alias string
	rank  int // position in emoji.json, lower is more common
}

type emojis []emoji

func (e emojis) Len() int {
	return len(e)
}

func (e emojis) Less(i, j int) bool {
	return e[i].Alias < e[j].Alias
}

func (e emojis) Swap(i, j int) {
	e[i], e[j] = e[j], e[i]
}

var emojiData []emoji

func init() {
	type rawEmoji struct {
		Emoji   string   `json:"emoji"`
		Aliases []string `json:"aliases"`
	}
	var data []rawEmoji
	_ = json.Unmarshal(emojiJSON, &data)
	for rank, e := range data {
		for _, alias := range e.Aliases {
			emojiData = append(emojiData, emoji{
				Emoji: e.Emoji,
				Alias: alias,
				rank:  rank,
			})
		}
	}
	sort.Sort(emojis(emojiData))
}

// findEmoji returns the emojis whose alias starts with s, the exact match
// first if there is one.
func findEmoji(s string) []emoji {
	if len(emojiData) == 0 {
		return nil
	}
	i, ok := sort.Find(len(emojiData), func(i int) int {
		return strings.Compare(s, emojiData[i].Alias)
	})
	var b, e int
	for b = i; b >= 0 && b < len(emojiData); b-- {
		if !strings.HasPrefix(emojiData[b].Alias, s) {
			break
		}
	}
	b++
	for e = i; e < len(emojiData); e++ {
		if !strings.HasPrefix(emojiData[e].Alias, s) {
			break
		}
	}
	if b >= e {
		return nil
	}
	if ok {
		r := make([]emoji, 0, e-b)
		r = append(r, emojiData[i])
		r = append(r, emojiData[b:i]...)
		r = append(r, emojiData[i+1:e]...)
		return r
	}
	return emojiData[b:e]
}

// EmojiByAlias returns the emoji character for an alias such as "thumbsup".
func EmojiByAlias(alias string) (string, bool) {
	if r := findEmoji(alias); len(r) > 0 && r[0].Alias == alias {
		return r[0].Emoji, true
	}
	return "", false
}

// ReplaceEmojiAliases replaces every ":alias:" in text with its emoji.
// Unknown aliases are left as is.
func ReplaceEmojiAliases(text string) string {
	if !strings.Contains(text, ":") {
		return text
	}
	var sb strings.Builder
	for {
		i := strings.IndexByte(text, ':')
		if i < 0 {
			break
		}
		j := strings.IndexByte(text[i+1:], ':')
		if j < 0 {
			break
		}
		alias := text[i+1 : i+1+j]
		if e, ok := EmojiByAlias(alias); ok && alias != "" {
			sb.WriteString(text[:i])
			sb.WriteString(e)
			text = text[i+j+2:]
		} else {
			sb.WriteString(text[:i+1])
			text = text[i+1:]
		}
	}
	sb.WriteString(text)
	return sb.String()
}
