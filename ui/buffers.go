package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"git.sr.ht/~rockorager/vaxis"
)

var (
	ErrUnknownServer  = errors.New("unknown server")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrUnknownMessage = errors.New("unknown message")
)

// DefaultChannel is created for servers that announce no channel.
const DefaultChannel = "status"

type Channel struct {
	Name       string
	Messages   []*Message
	Unread     bool
	Highlights int

	byID map[string]*Message
}

type Server struct {
	Name     string
	Channels []*Channel
	Current  int
	Unread   bool

	colors senderColors
}

// CurrentChannel returns the selected channel of the server.
func (s *Server) CurrentChannel() *Channel {
	return s.Channels[s.Current]
}

func (s *Server) channel(name string) (int, *Channel) {
	lName := strings.ToLower(name)
	for i, c := range s.Channels {
		if strings.ToLower(c.Name) == lName {
			return i, c
		}
	}
	return -1, nil
}

// add inserts a channel, keeping the list sorted case-insensitively and the
// cursor on the same channel.
func (s *Server) add(name string) (i int, added bool) {
	lName := strings.ToLower(name)
	i = len(s.Channels)
	for ci, c := range s.Channels {
		lc := strings.ToLower(c.Name)
		if lc == lName {
			return ci, false
		}
		if lc > lName {
			i = ci
			break
		}
	}

	if i <= s.Current && s.Current < len(s.Channels) {
		s.Current++
	}

	c := &Channel{
		Name: name,
		byID: make(map[string]*Message),
	}
	s.Channels = append(s.Channels, nil)
	copy(s.Channels[i+1:], s.Channels[i:])
	s.Channels[i] = c
	return i, true
}

// SenderColor returns the color of a sender name in this server.
func (s *Server) SenderColor(sender string) vaxis.Color {
	return s.colors.color(sender)
}

// ServerList holds all servers, their channels and messages, and the
// selection cursors. It is owned by the application loop.
type ServerList struct {
	scheme ColorScheme

	servers []*Server
	current int
}

func NewServerList(scheme ColorScheme) ServerList {
	return ServerList{
		scheme:  scheme,
		servers: []*Server{},
	}
}

func (sl *ServerList) Servers() []*Server {
	return sl.servers
}

func (sl *ServerList) Len() int {
	return len(sl.servers)
}

// Current returns the selected server and channel. It must not be called
// on an empty list.
func (sl *ServerList) Current() (*Server, *Channel) {
	s := sl.servers[sl.current]
	return s, s.CurrentChannel()
}

// AddServer adds a server with the given channels, or adds the channels to
// the server of the same name. A server always has at least one channel.
func (sl *ServerList) AddServer(name string, channels []string) *Server {
	_, s := sl.server(name)
	if s == nil {
		s = &Server{
			Name:   name,
			colors: newSenderColors(sl.scheme),
		}
		sl.servers = append(sl.servers, s)
	}
	for _, c := range channels {
		s.add(c)
	}
	if len(s.Channels) == 0 {
		s.add(DefaultChannel)
	}
	return s
}

func (sl *ServerList) AddChannel(server, channel string) (added bool, err error) {
	_, s := sl.server(server)
	if s == nil {
		return false, fmt.Errorf("%w %q", ErrUnknownServer, server)
	}
	_, added = s.add(channel)
	return added, nil
}

func (sl *ServerList) server(name string) (int, *Server) {
	for i, s := range sl.servers {
		if s.Name == name {
			return i, s
		}
	}
	return -1, nil
}

func (sl *ServerList) at(server, channel string) (*Server, *Channel, error) {
	_, s := sl.server(server)
	if s == nil {
		return nil, nil, fmt.Errorf("%w %q", ErrUnknownServer, server)
	}
	_, c := s.channel(channel)
	if c == nil {
		return s, nil, fmt.Errorf("%w %q in %q", ErrUnknownChannel, channel, server)
	}
	return s, c, nil
}

// Has reports whether the channel exists.
func (sl *ServerList) Has(server, channel string) bool {
	_, _, err := sl.at(server, channel)
	return err == nil
}

func (sl *ServerList) Channel(server, channel string) (*Channel, error) {
	_, c, err := sl.at(server, channel)
	return c, err
}

func cyclicNext(i, n int) int {
	return (i + 1) % n
}

func cyclicPrevious(i, n int) int {
	return (i - 1 + n) % n
}

// ToServer selects the server at index i, and its current channel.
func (sl *ServerList) ToServer(i int) bool {
	if i < 0 || i >= len(sl.servers) {
		return false
	}
	sl.current = i
	sl.servers[i].CurrentChannel().markRead()
	return true
}

// ToChannel selects the channel at index i of the current server.
func (sl *ServerList) ToChannel(i int) bool {
	s := sl.servers[sl.current]
	if i < 0 || i >= len(s.Channels) {
		return false
	}
	s.Current = i
	s.Channels[i].markRead()
	return true
}

// JumpChannel selects a channel of the current server by name.
func (sl *ServerList) JumpChannel(name string) bool {
	s := sl.servers[sl.current]
	i, _ := s.channel(name)
	return sl.ToChannel(i)
}

// JumpServer selects a server by name.
func (sl *ServerList) JumpServer(name string) bool {
	i, _ := sl.server(name)
	return sl.ToServer(i)
}

func (c *Channel) markRead() {
	c.Unread = false
	c.Highlights = 0
}

func (sl *ServerList) NextServer() {
	sl.ToServer(cyclicNext(sl.current, len(sl.servers)))
}

func (sl *ServerList) PreviousServer() {
	sl.ToServer(cyclicPrevious(sl.current, len(sl.servers)))
}

func (sl *ServerList) NextChannel() {
	s := sl.servers[sl.current]
	sl.ToChannel(cyclicNext(s.Current, len(s.Channels)))
}

func (sl *ServerList) PreviousChannel() {
	s := sl.servers[sl.current]
	sl.ToChannel(cyclicPrevious(s.Current, len(s.Channels)))
}

// NextUnread selects the first unread channel of the current server,
// starting from the current channel itself. It does nothing if all
// channels are read.
func (sl *ServerList) NextUnread() bool {
	s := sl.servers[sl.current]
	for i := 0; i < len(s.Channels); i++ {
		c := (s.Current + i) % len(s.Channels)
		if s.Channels[c].Unread {
			return sl.ToChannel(c)
		}
	}
	return false
}

// AddMessage appends m to a channel.
//
// A live message marks the channel unread unless it is the one being
// viewed, and counts as a highlight if mention is set. The server unread
// flag is set when the server is not being viewed, and cleared when it is.
// History messages do not change any flag.
func (sl *ServerList) AddMessage(server, channel string, m *Message, live, mention bool) error {
	s, c, err := sl.at(server, channel)
	if err != nil {
		return err
	}
	c.Messages = append(c.Messages, m)
	if m.ID != "" {
		c.byID[m.ID] = m
	}
	if !live {
		return nil
	}
	viewingServer := sl.servers[sl.current] == s
	if !viewingServer || s.CurrentChannel() != c {
		c.Unread = true
		if mention {
			c.Highlights++
		}
	}
	s.Unread = !viewingServer
	return nil
}

func (sl *ServerList) message(server, channel, id string) (*Message, error) {
	_, c, err := sl.at(server, channel)
	if err != nil {
		return nil, err
	}
	m, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w %q in %q/%q", ErrUnknownMessage, id, server, channel)
	}
	return m, nil
}

func (sl *ServerList) EditMessage(server, channel, id, text string) error {
	m, err := sl.message(server, channel, id)
	if err != nil {
		return err
	}
	m.SetText(text)
	return nil
}

func (sl *ServerList) AddReaction(server, channel, id, emoji string) error {
	m, err := sl.message(server, channel, id)
	if err != nil {
		return err
	}
	m.AddReaction(emoji)
	return nil
}

func (sl *ServerList) RemoveReaction(server, channel, id, emoji string) error {
	m, err := sl.message(server, channel, id)
	if err != nil {
		return err
	}
	m.RemoveReaction(emoji)
	return nil
}

// Highlights returns the number of highlights in all channels.
func (sl *ServerList) Highlights() int {
	n := 0
	for _, s := range sl.servers {
		for _, c := range s.Channels {
			n += c.Highlights
		}
	}
	return n
}

func (sl *ServerList) DrawServerTabs(scr *Screen, x0, y0, width int, colors ConfigColors) {
	clearArea(scr, x0, y0, width, 1)
	x := x0
	for i, s := range sl.servers {
		st := vaxis.Style{}
		if s.Unread {
			st.Attribute |= vaxis.AttrBold
			st.Foreground = colors.Unread
		}
		if i == sl.current {
			st.Attribute |= vaxis.AttrReverse
		}
		title := truncate(" "+s.Name+" ", x0+width-x, "…")
		printString(scr, &x, y0, x0+width, Styled(title, st))
		if x >= x0+width {
			break
		}
		setCell(scr, x, y0, ' ', vaxis.Style{})
		x++
	}
}

func (sl *ServerList) DrawChannelList(scr *Screen, x0, y0, width, height int, colors ConfigColors) {
	width--
	drawVerticalLine(scr, x0+width, y0, height)
	clearArea(scr, x0, y0, width, height)

	s := sl.servers[sl.current]
	offset := 0
	if s.Current >= height {
		offset = s.Current - height + 1
	}
	for i, c := range s.Channels[offset:] {
		ci := offset + i
		if i >= height {
			break
		}
		y := y0 + i
		st := vaxis.Style{}
		if c.Unread {
			st.Attribute |= vaxis.AttrBold
			st.Foreground = colors.Unread
		}
		if ci == s.Current {
			st.Attribute |= vaxis.AttrReverse
			for x := x0; x < x0+width; x++ {
				setCell(scr, x, y, ' ', st)
			}
		}
		x := x0 + 1
		title := truncate(c.Name, width-1, "…")
		printString(scr, &x, y, x0+width, Styled(title, st))

		if c.Highlights != 0 {
			highlightSt := vaxis.Style{Foreground: ColorRed, Attribute: vaxis.AttrReverse | vaxis.AttrBold}
			printIdent(scr, x0, y, width, Styled(fmt.Sprintf(" %d ", c.Highlights), highlightSt))
		}
	}
}

// DrawTimeline draws the messages of the current channel from the bottom of
// the area upwards, until it is full.
func (sl *ServerList) DrawTimeline(scr *Screen, x0, y0, width, height int) {
	clearArea(scr, x0, y0, width, height)
	s, c := sl.Current()

	y := y0 + height
	for i := len(c.Messages) - 1; i >= 0 && y > y0; i-- {
		m := c.Messages[i]
		lines := m.Lines(width, s.SenderColor(m.Sender))
		y -= len(lines)
		for li, line := range lines {
			ly := y + li
			if ly < y0 {
				continue
			}
			x := x0
			printString(scr, &x, ly, x0+width, line)
		}
		if y >= y0 && (i == 0 || !sameDay(c.Messages[i-1].At, m.At)) {
			printDate(scr, x0, y, vaxis.Style{Foreground: ColorGray, Attribute: vaxis.AttrBold}, m.At.Local())
		}
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
