package ui

import (
	"fmt"
	"io"

	"git.sr.ht/~rockorager/vaxis"
)

type Config struct {
	ChanColWidth int
	Colors       ConfigColors
}

type ConfigColors struct {
	Prompt vaxis.Color
	Unread vaxis.Color
	Nicks  ColorScheme
}

// SizeFunc returns the current size of the terminal.
type SizeFunc func() (width, height int, err error)

type UI struct {
	config Config

	servers ServerList
	e       Editor
	prompt  StyledString

	renderer *Renderer
	size     SizeFunc
}

func New(config Config, out io.Writer, size SizeFunc) *UI {
	if config.ChanColWidth <= 0 {
		config.ChanColWidth = 16
	}
	ui := &UI{
		config:   config,
		servers:  NewServerList(config.Colors.Nicks),
		e:        NewEditor(),
		renderer: NewRenderer(out),
		size:     size,
	}
	ui.prompt = Styled("> ", vaxis.Style{Foreground: config.Colors.Prompt})
	return ui
}

func (ui *UI) Servers() *ServerList {
	return &ui.servers
}

// CurrentChannel returns the names of the selected server and channel.
func (ui *UI) CurrentChannel() (server, channel string) {
	if ui.servers.Len() == 0 {
		return "", ""
	}
	s, c := ui.servers.Current()
	return s.Name, c.Name
}

func (ui *UI) AddServer(name string, channels []string) {
	ui.servers.AddServer(name, channels)
}

func (ui *UI) AddChannel(server, channel string) error {
	_, err := ui.servers.AddChannel(server, channel)
	return err
}

func (ui *UI) AddMessage(server, channel string, m *Message, live, mention bool) error {
	return ui.servers.AddMessage(server, channel, m, live, mention)
}

func (ui *UI) HasChannel(server, channel string) bool {
	return ui.servers.Has(server, channel)
}

func (ui *UI) NextServer() {
	ui.servers.NextServer()
}

func (ui *UI) PreviousServer() {
	ui.servers.PreviousServer()
}

func (ui *UI) NextChannel() {
	ui.servers.NextChannel()
}

func (ui *UI) PreviousChannel() {
	ui.servers.PreviousChannel()
}

func (ui *UI) NextUnread() {
	ui.servers.NextUnread()
}

func (ui *UI) JumpServer(name string) bool {
	return ui.servers.JumpServer(name)
}

func (ui *UI) JumpServerIndex(i int) bool {
	return ui.servers.ToServer(i)
}

func (ui *UI) JumpChannel(name string) bool {
	return ui.servers.JumpChannel(name)
}

func (ui *UI) Highlights() int {
	return ui.servers.Highlights()
}

// InputContent result must not be modified.
func (ui *UI) InputContent() []rune {
	return ui.e.Content()
}

func (ui *UI) InputRune(r rune) {
	ui.e.PutRune(r)
}

func (ui *UI) InputRight() {
	ui.e.Right()
}

func (ui *UI) InputLeft() {
	ui.e.Left()
}

func (ui *UI) InputHome() {
	ui.e.Home()
}

func (ui *UI) InputEnd() {
	ui.e.End()
}

func (ui *UI) InputUp() {
	ui.e.Up()
}

func (ui *UI) InputDown() {
	ui.e.Down()
}

func (ui *UI) InputBackspace() (ok bool) {
	return ui.e.RemCluster()
}

func (ui *UI) InputDelete() (ok bool) {
	return ui.e.RemClusterForward()
}

func (ui *UI) InputDeleteWord() (ok bool) {
	return ui.e.RemWord()
}

func (ui *UI) InputLastWord() string {
	return ui.e.LastWord()
}

func (ui *UI) InputReplaceLastWord(word string) {
	ui.e.ReplaceLastWord(word)
}

func (ui *UI) InputFlush() (content string) {
	return ui.e.Flush()
}

func (ui *UI) InputClear() bool {
	return ui.e.Clear()
}

func (ui *UI) InputSet(text string) {
	ui.e.Set(text)
}

// Resize makes the next Draw repaint the whole terminal.
func (ui *UI) Resize() {
	ui.renderer.Invalidate()
}

// Draw renders the tab bar on the first row, the channel list and the
// messages of the current channel below it, and the compose line on the
// last row.
func (ui *UI) Draw() error {
	w, h, err := ui.size()
	if err != nil {
		return fmt.Errorf("failed to get terminal size: %w", err)
	}
	if w <= 0 || h <= 0 {
		return nil
	}
	scr := ui.renderer.Frame(w, h)

	cursorY := h - 1
	cursorX := 0
	if ui.servers.Len() > 0 {
		chanWidth := ui.config.ChanColWidth
		if chanWidth > w/2 {
			chanWidth = w / 2
		}
		ui.servers.DrawServerTabs(scr, 0, 0, w, ui.config.Colors)
		if bodyHeight := h - 2; bodyHeight > 0 {
			x0 := 0
			if chanWidth > 1 {
				ui.servers.DrawChannelList(scr, 0, 1, chanWidth, bodyHeight, ui.config.Colors)
				x0 = chanWidth + 1
			}
			if x0 < w {
				ui.servers.DrawTimeline(scr, x0, 1, w-x0, bodyHeight)
			}
		}
	}
	if h >= 2 || ui.servers.Len() == 0 {
		textWidth := w - stringWidth(ui.prompt.string)
		if textWidth < 1 {
			textWidth = 1
		}
		ui.e.Resize(textWidth)
		cursorX = ui.e.Draw(scr, 0, cursorY, ui.prompt)
		if cursorX >= w {
			cursorX = w - 1
		}
	}

	return ui.renderer.Flush(cursorX, cursorY)
}
