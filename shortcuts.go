package polychat

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"git.sr.ht/~rockorager/vaxis"

	"git.sr.ht/~delthas/polychat/ui"
)

type keyMatch struct {
	keycode rune
	mods    vaxis.ModifierMask
}

var defaultShortcuts = map[string][]string{
	"Control+c":     {"quit"},
	"Control+k":     {"set-editor", "/channel "},
	"Control+a":     {"cursor-start"},
	"Control+e":     {"cursor-end"},
	"Control+l":     {"redraw"},
	"Control+u":     {"clear-editor"},
	"Control+n":     {"channel-next"},
	"Control+p":     {"channel-previous"},
	"Down":          {"channel-next"},
	"Up":            {"channel-previous"},
	"Right":         {"server-next"},
	"Left":          {"server-previous"},
	"Page_Down":     {"channel-next-unread"},
	"Control+Right": {"cursor-right"},
	"Control+Left":  {"cursor-left"},
	"Control+f":     {"cursor-right"},
	"Control+b":     {"cursor-left"},
	"Alt+Up":        {"cursor-up"},
	"Alt+Down":      {"cursor-down"},
	"Home":          {"cursor-start"},
	"End":           {"cursor-end"},
	"Alt+BackSpace": {"cursor-delete-previous-word"},
	"BackSpace":     {"cursor-delete-previous"},
	"Delete":        {"cursor-delete-next"},
	"Control+w":     {"cursor-delete-previous-word"},
	"Tab":           {"auto-complete"},
	"Escape":        {"none"},
	"Enter":         {"send"},
	"Control+j":     {"send"},
	"Alt+1":         {"server", "0"},
	"Alt+2":         {"server", "1"},
	"Alt+3":         {"server", "2"},
	"Alt+4":         {"server", "3"},
	"Alt+5":         {"server", "4"},
	"Alt+6":         {"server", "5"},
	"Alt+7":         {"server", "6"},
	"Alt+8":         {"server", "7"},
	"Alt+9":         {"server", "8"},
}

func keyNameMatch(name string) *keyMatch {
	parts := strings.Split(name, "+")
	mods := parts[:len(parts)-1]
	key := parts[len(parts)-1]

	var m vaxis.ModifierMask
	for _, mod := range mods {
		switch mod {
		case "Control":
			m |= vaxis.ModCtrl
		case "Shift":
			m |= vaxis.ModShift
		case "Alt":
			m |= vaxis.ModAlt
		case "Super":
			m |= vaxis.ModSuper
		default:
			return nil
		}
	}
	if r, n := utf8.DecodeRuneInString(key); n == len(key) && n > 0 {
		return &keyMatch{
			keycode: r,
			mods:    m,
		}
	}
	if r := ui.KeyNames[key]; r > 0 {
		return &keyMatch{
			keycode: r,
			mods:    m,
		}
	}
	return nil
}

func keyMatches(k vaxis.Key) []keyMatch {
	m := k.Modifiers
	m &^= vaxis.ModCapsLock
	m &^= vaxis.ModNumLock

	keys := []keyMatch{
		{
			keycode: k.Keycode,
			mods:    m,
		},
	}
	if m&vaxis.ModShift != 0 && k.ShiftedCode != 0 {
		keys = append(keys, keyMatch{
			keycode: k.ShiftedCode,
			mods:    m &^ vaxis.ModShift,
		})
	}
	return keys
}

// loadShortcuts merges the user shortcuts over the default ones.
func loadShortcuts(user map[string][]string) map[keyMatch][]string {
	shortcuts := make(map[keyMatch][]string, len(defaultShortcuts)+len(user))
	for _, set := range []map[string][]string{defaultShortcuts, user} {
		for name, action := range set {
			if km := keyNameMatch(name); km != nil {
				shortcuts[*km] = action
			}
		}
	}
	return shortcuts
}

func (app *App) handleKeyEvent(ev vaxis.Key) {
	switch ev.EventType {
	case vaxis.EventPress, vaxis.EventRepeat, vaxis.EventPaste:
	default:
		return
	}
	if len(ev.Text) == 1 && ev.Text[0] < ' ' {
		// Drop control characters text (sent by some terminal emulators)
		ev.Text = ""
	}
	if ev.Modifiers&(vaxis.ModCtrl|vaxis.ModAlt|vaxis.ModSuper|vaxis.ModMeta) != 0 {
		// Drop text when sent with modifiers preventing text
		ev.Text = ""
	}
	if ev.Text != "" {
		for _, r := range ev.Text {
			app.win.InputRune(r)
		}
		return
	}

	for _, km := range keyMatches(ev) {
		if d := app.shortcuts[km]; len(d) != 0 {
			app.handleAction(d[0], d[1:]...)
			return
		}
	}
}

func (app *App) handleAction(action string, args ...string) {
	switch action {
	case "quit":
		app.quit()
	case "set-editor":
		if len(app.win.InputContent()) == 0 {
			app.win.InputSet(strings.Join(args, " "))
		}
	case "clear-editor":
		app.win.InputClear()
	case "cursor-start":
		app.win.InputHome()
	case "cursor-end":
		app.win.InputEnd()
	case "redraw":
		app.win.Resize()
	case "channel-next":
		app.win.NextChannel()
	case "channel-previous":
		app.win.PreviousChannel()
	case "channel-next-unread":
		app.win.NextUnread()
	case "server-next":
		app.win.NextServer()
	case "server-previous":
		app.win.PreviousServer()
	case "cursor-right":
		app.win.InputRight()
	case "cursor-left":
		app.win.InputLeft()
	case "cursor-up":
		app.win.InputUp()
	case "cursor-down":
		app.win.InputDown()
	case "cursor-delete-previous-word":
		app.win.InputDeleteWord()
	case "cursor-delete-previous":
		app.win.InputBackspace()
	case "cursor-delete-next":
		app.win.InputDelete()
	case "auto-complete":
		app.autocomplete()
	case "send":
		input := string(app.win.InputContent())
		if err := app.handleInput(input); err != nil {
			app.printError(fmt.Errorf("%q: %w", input, err))
			break
		}
		app.win.InputFlush()
	case "server":
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				app.win.JumpServerIndex(n)
			}
		}
	case "none":
	default:
		app.printError(fmt.Errorf("shortcut: action %q does not exist", action))
	}
}
