package polychat

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// completeCommand completes the client command name being typed as the
// only word of the compose line, e.g. "/he" into "/help ".
func completeCommand(text []rune) (string, bool) {
	if len(text) < 2 || text[0] != '/' || text[1] == '/' {
		return "", false
	}
	for _, r := range text {
		if r == ' ' {
			return "", false
		}
	}

	uText := strings.ToUpper(string(text[1:]))
	var names []string
	for name := range commands {
		if strings.HasPrefix(name, uText) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return "/" + strings.ToLower(names[0]) + " ", true
}

func (app *App) autocomplete() {
	if c, ok := completeCommand(app.win.InputContent()); ok {
		app.win.InputSet(c)
		return
	}

	conn, _, err := app.currentConn()
	if err != nil {
		return
	}
	word := app.win.InputLastWord()
	if word == "" {
		return
	}
	completion, ok := conn.Autocomplete(word)
	if !ok {
		log.Debug().Str("word", word).Msg("no completion")
		return
	}
	app.win.InputReplaceLastWord(completion)
}
