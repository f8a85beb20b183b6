package polychat

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var errNoChannel = errors.New("can't send message to this channel")

const maxArgsInfinite = -1

type command struct {
	MinArgs int
	MaxArgs int
	Usage   string
	Desc    string
	Handle  func(app *App, args []string) error
}

// commandSet maps upper-case names to client commands. Commands that are not
// in the set are handled by the current server.
type commandSet map[string]*command

var commands commandSet

func init() {
	commands = commandSet{
		"HELP": {
			MaxArgs: 1,
			Usage:   "[command]",
			Desc:    "show the list of commands, or the ones matching the argument",
			Handle:  commandDoHelp,
		},
		"QUIT": {
			MaxArgs: 1,
			Usage:   "[reason]",
			Desc:    "quit polychat",
			Handle:  commandDoQuit,
		},
		"SERVER": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<index|name>",
			Desc:    "switch to the server at the given position, or with the given name",
			Handle:  commandDoServer,
		},
		"CHANNEL": {
			MinArgs: 1,
			MaxArgs: 1,
			Usage:   "<name>",
			Desc:    "switch to the channel of the current server with the given name",
			Handle:  commandDoChannel,
		},
	}
}

func (cs commandSet) names() []string {
	names := make([]string, 0, len(cs))
	for name := range cs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// find returns the command named name, or the only one it is a prefix of.
// ok is false when no client command matches.
func (cs commandSet) find(name string) (fullName string, cmd *command, ok bool, err error) {
	if cmd, ok := cs[name]; ok {
		return name, cmd, true, nil
	}
	var matches []string
	for _, n := range cs.names() {
		if strings.HasPrefix(n, name) {
			matches = append(matches, n)
		}
	}
	switch len(matches) {
	case 0:
		return "", nil, false, nil
	case 1:
		return matches[0], cs[matches[0]], true, nil
	default:
		return "", nil, false, fmt.Errorf("ambiguous command %q (could mean %s)", name, strings.Join(matches, ", "))
	}
}

func noCommand(app *App, content string) error {
	conn, channel, err := app.currentConn()
	if err != nil {
		return err
	}
	if channel == "" {
		return errNoChannel
	}
	conn.SendChannelMessage(channel, content)
	return nil
}

func commandDoHelp(app *App, args []string) error {
	names := commands.names()
	if len(args) > 0 {
		search := strings.ToUpper(args[0])
		var matching []string
		for _, name := range names {
			if strings.Contains(name, search) {
				matching = append(matching, name)
			}
		}
		if len(matching) == 0 {
			app.printLine("--", fmt.Sprintf("no command matches %q", args[0]))
			return nil
		}
		app.printLine("--", "Matching commands:")
		names = matching
	} else {
		app.printLine("--", "Available commands:")
	}
	for _, name := range names {
		cmd := commands[name]
		app.printLine("--", fmt.Sprintf("%s %s", name, cmd.Usage))
		app.printLine("", "  "+cmd.Desc)
	}
	if len(args) == 0 {
		app.printLine("--", "Other commands are sent to the current server.")
	}
	return nil
}

func commandDoQuit(app *App, args []string) error {
	app.quit()
	return nil
}

func commandDoServer(app *App, args []string) error {
	name := args[0]
	if i, err := strconv.Atoi(name); err == nil && app.win.JumpServerIndex(i-1) {
		return nil
	}
	if app.win.JumpServer(name) {
		return nil
	}
	return fmt.Errorf("none of the servers match %q", name)
}

func commandDoChannel(app *App, args []string) error {
	// IRC channels keep their '#', the other backends name them without.
	name := args[0]
	if app.win.JumpChannel(name) || app.win.JumpChannel(strings.TrimPrefix(name, "#")) {
		return nil
	}
	return fmt.Errorf("none of the channels match %q", name)
}

// fieldsN splits s on spaces into at most n fields, the last one holding the
// rest of s. n == maxArgsInfinite means no limit.
func fieldsN(s string, n int) []string {
	s = strings.Trim(s, " ")
	if s == "" || n == 0 {
		return nil
	}
	var fields []string
	for s != "" {
		if n != maxArgsInfinite && len(fields) == n-1 {
			return append(fields, s)
		}
		field, rest, _ := strings.Cut(s, " ")
		fields = append(fields, field)
		s = strings.TrimLeft(rest, " ")
	}
	return fields
}

// parseCommand splits "/name args" input. "//text" is the message "/text".
func parseCommand(s string) (name, args string, isCommand bool) {
	if !strings.HasPrefix(s, "/") {
		return "", s, false
	}
	if strings.HasPrefix(s, "//") {
		return "", s[1:], false
	}
	name, args, _ = strings.Cut(s[1:], " ")
	return strings.ToUpper(name), strings.TrimLeft(args, " "), true
}

// handleInput runs the compose line: a client command, a command of the
// current server, or a message to the current channel.
func (app *App) handleInput(content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	name, rawArgs, isCommand := parseCommand(content)
	if !isCommand {
		return noCommand(app, rawArgs)
	}
	if name == "" {
		return fmt.Errorf("lone slash at the beginning")
	}

	fullName, cmd, ok, err := commands.find(name)
	if err != nil {
		return err
	}
	if !ok {
		conn, channel, err := app.currentConn()
		if err != nil {
			return err
		}
		conn.HandleCmd(channel, strings.ToLower(name), fieldsN(rawArgs, maxArgsInfinite))
		return nil
	}

	var args []string
	if cmd.MaxArgs != 0 {
		args = fieldsN(rawArgs, cmd.MaxArgs)
	}
	if len(args) < cmd.MinArgs {
		return fmt.Errorf("usage: %s %s", fullName, cmd.Usage)
	}
	return cmd.Handle(app, args)
}
