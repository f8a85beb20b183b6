// Package slack connects a Slack workspace through the RTM and Web APIs.
package slack

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slackapi "github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"git.sr.ht/~delthas/polychat/chat"
)

// SearchChannel receives the results of the search command.
const SearchChannel = "search"

const (
	historyLimit  = 50
	searchLimit   = 20
	userCacheSize = 512

	// nameFormat names the users and conversations that share the name of
	// another one.
	nameFormat = "%s~%d"
)

var conversationTypes = []string{"public_channel", "private_channel", "mpim", "im"}

type Config struct {
	// Name is the server tab label. It defaults to the team name.
	Name  string
	Token string
}

type Conn struct {
	name   string
	api    *slackapi.Client
	sink   chat.Sink
	logger zerolog.Logger

	selfID string

	channels *chat.BiMap
	users    *chat.BiMap
	emoji    []string

	// strangers caches users missing from the workspace list, such as
	// members of shared channels.
	strangers *lru.Cache[string, string]

	mu     sync.Mutex
	latest map[string]string // channel ID -> timestamp of its latest message
	ims    map[string]bool   // channel ID -> whether it is a direct conversation

	hasSearch atomic.Bool

	outbox *chat.Outbox
	// closed is cancelled by Close.
	closed context.Context
	close  context.CancelFunc
}

// New authenticates and loads the users, conversations and custom emoji of
// the workspace.
func New(ctx context.Context, cfg Config, sink chat.Sink, options ...slackapi.Option) (*Conn, error) {
	api := slackapi.New(cfg.Token, options...)
	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack: authentication failed: %w", err)
	}

	strangers, err := lru.New[string, string](userCacheSize)
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = auth.Team
	}
	c := &Conn{
		name:      name,
		api:       api,
		sink:      sink,
		logger:    log.With().Str("server", name).Logger(),
		selfID:    auth.UserID,
		channels:  chat.NewBiMap(),
		users:     chat.NewBiMap(),
		strangers: strangers,
		latest:    make(map[string]string),
		ims:       make(map[string]bool),
		outbox:    chat.NewOutbox(chat.OutboxSize, rate.NewLimiter(rate.Every(time.Second), 3)),
	}
	c.closed, c.close = context.WithCancel(context.Background())

	users, err := api.GetUsersContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack: failed to list users: %w", err)
	}
	for _, u := range users {
		if u.Deleted {
			continue
		}
		// Display names are not unique in a workspace.
		c.users.SetUnique(u.ID, userName(u), nameFormat)
	}

	cursor := ""
	for {
		conversations, next, err := api.GetConversationsForUserContext(ctx, &slackapi.GetConversationsForUserParameters{
			UserID:          auth.UserID,
			Types:           conversationTypes,
			Limit:           200,
			Cursor:          cursor,
			ExcludeArchived: true,
		})
		if err != nil {
			return nil, fmt.Errorf("slack: failed to list conversations: %w", err)
		}
		for _, ch := range conversations {
			c.setChannel(ch)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	emoji, err := api.GetEmojiContext(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to list custom emoji")
	}
	for e := range emoji {
		c.emoji = append(c.emoji, e)
	}
	sort.Strings(c.emoji)

	c.logger.Info().Int("users", c.users.Len()).Int("channels", c.channels.Len()).Msg("slack: connected")
	return c, nil
}

func userName(u slackapi.User) string {
	if u.Profile.DisplayName != "" {
		return u.Profile.DisplayName
	}
	return u.Name
}

// setChannel records a conversation and returns its display name.
func (c *Conn) setChannel(ch slackapi.Channel) string {
	name := ch.Name
	if ch.IsIM {
		name = "@" + c.userName(context.Background(), ch.User)
	}
	name = c.channels.SetUnique(ch.ID, name, nameFormat)
	c.mu.Lock()
	c.ims[ch.ID] = ch.IsIM
	c.mu.Unlock()
	return name
}

func (c *Conn) userName(ctx context.Context, id string) string {
	if id == "" {
		return "bot"
	}
	if name, ok := c.users.Name(id); ok {
		return name
	}
	if name, ok := c.strangers.Get(id); ok {
		return name
	}
	u, err := c.api.GetUserInfoContext(ctx, id)
	if err != nil {
		c.logger.Debug().Err(err).Str("user", id).Msg("failed to resolve user")
		c.strangers.Add(id, id)
		return id
	}
	name := userName(*u)
	c.strangers.Add(id, name)
	return name
}

// Run backfills history and forwards live events until ctx is done or the
// application stops.
func (c *Conn) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(c.closed, cancel)()

	go c.outbox.Run(ctx, func(channel string, err error) {
		c.sendError(channel, err.Error())
	})
	go c.backfill(ctx)

	rtm := c.api.NewRTM()
	go rtm.ManageConnection()
	defer rtm.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-rtm.IncomingEvents:
			if !ok {
				return nil
			}
			if err := c.handleEvent(ctx, msg.Data); err != nil {
				if errors.Is(err, chat.ErrClosed) {
					return nil
				}
				return err
			}
		}
	}
}

func (c *Conn) Close() error {
	c.close()
	return nil
}

func (c *Conn) backfill(ctx context.Context) {
	ids := make([]string, 0, c.channels.Len())
	for _, name := range c.channels.Names() {
		if id, ok := c.channels.ID(name); ok {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		resp, err := c.api.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
			ChannelID: id,
			Limit:     historyLimit,
		})
		if ctx.Err() != nil {
			return
		}
		channel, _ := c.channels.Name(id)
		if err != nil {
			c.sendError(channel, fmt.Sprintf("failed to fetch history: %v", err))
			continue
		}
		// Slack returns the newest messages first.
		for i := len(resp.Messages) - 1; i >= 0; i-- {
			m := c.message(ctx, id, resp.Messages[i].Msg)
			if err := c.sink.Send(chat.HistoryMessage{Message: m}); err != nil {
				return
			}
		}
	}
	c.logger.Debug().Int("channels", len(ids)).Msg("history backfilled")
}

func (c *Conn) message(ctx context.Context, channelID string, m slackapi.Msg) chat.Message {
	channel, _ := c.channels.Name(channelID)
	sender := m.Username
	if m.User != "" || sender == "" {
		sender = c.userName(ctx, m.User)
	}
	reactions := make([]chat.Reaction, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		reactions = append(reactions, chat.Reaction{Name: r.Name, Count: r.Count})
	}
	c.mu.Lock()
	if m.Timestamp > c.latest[channelID] {
		c.latest[channelID] = m.Timestamp
	}
	c.mu.Unlock()
	return chat.Message{
		Server:    c.name,
		Channel:   channel,
		Sender:    sender,
		Text:      c.renderText(ctx, m.Text),
		ID:        m.Timestamp,
		At:        parseTimestamp(m.Timestamp),
		Reactions: reactions,
	}
}

func (c *Conn) renderText(ctx context.Context, text string) string {
	return renderText(text, func(id string) (string, bool) {
		return c.userName(ctx, id), true
	}, c.channels.Name)
}

// channel returns the name of a channel, fetching it if it was unknown.
func (c *Conn) channel(ctx context.Context, id string) (string, error) {
	if name, ok := c.channels.Name(id); ok {
		return name, nil
	}
	ch, err := c.api.GetConversationInfoContext(ctx, &slackapi.GetConversationInfoInput{ChannelID: id})
	if err != nil {
		return "", err
	}
	return c.addChannel(*ch)
}

func (c *Conn) addChannel(ch slackapi.Channel) (string, error) {
	if name, ok := c.channels.Name(ch.ID); ok {
		return name, nil
	}
	name := c.setChannel(ch)
	return name, c.sink.Send(chat.ChannelAdded{Server: c.name, Channel: name})
}

func (c *Conn) handleEvent(ctx context.Context, data interface{}) error {
	switch ev := data.(type) {
	case *slackapi.ConnectedEvent:
		c.logger.Info().Int("attempt", ev.ConnectionCount).Msg("slack: rtm connected")
	case *slackapi.ConnectionErrorEvent:
		c.logger.Warn().Err(ev.ErrorObj).Int("attempt", ev.Attempt).Msg("slack: rtm connection failed")
	case *slackapi.InvalidAuthEvent:
		c.sendError("", "invalid credentials")
		return errors.New("slack: invalid credentials")
	case *slackapi.RTMError:
		c.sendError("", ev.Error())
	case *slackapi.ChannelJoinedEvent:
		_, err := c.addChannel(ev.Channel)
		return err
	case *slackapi.GroupJoinedEvent:
		_, err := c.addChannel(ev.Channel)
		return err
	case *slackapi.IMCreatedEvent:
		ch := slackapi.Channel{}
		ch.ID = ev.Channel.ID
		ch.IsIM = true
		ch.User = ev.User
		_, err := c.addChannel(ch)
		return err
	case *slackapi.MessageEvent:
		return c.handleMessage(ctx, ev)
	case *slackapi.ReactionAddedEvent:
		channel, ok := c.channels.Name(ev.Item.Channel)
		if !ok || ev.Item.Timestamp == "" {
			return nil
		}
		return c.sink.Send(chat.ReactionAdded{
			Server:  c.name,
			Channel: channel,
			ID:      ev.Item.Timestamp,
			Emoji:   ev.Reaction,
		})
	case *slackapi.ReactionRemovedEvent:
		channel, ok := c.channels.Name(ev.Item.Channel)
		if !ok || ev.Item.Timestamp == "" {
			return nil
		}
		return c.sink.Send(chat.ReactionRemoved{
			Server:  c.name,
			Channel: channel,
			ID:      ev.Item.Timestamp,
			Emoji:   ev.Reaction,
		})
	}
	return nil
}

func (c *Conn) handleMessage(ctx context.Context, ev *slackapi.MessageEvent) error {
	channel, err := c.channel(ctx, ev.Channel)
	if errors.Is(err, chat.ErrClosed) {
		return err
	} else if err != nil {
		c.logger.Warn().Err(err).Str("channel", ev.Channel).Msg("message in unknown channel")
		return nil
	}

	switch ev.SubType {
	case "message_changed":
		if ev.SubMessage == nil {
			return nil
		}
		return c.sink.Send(chat.Edit{
			Server:  c.name,
			Channel: channel,
			ID:      ev.SubMessage.Timestamp,
			Text:    c.renderText(ctx, ev.SubMessage.Text),
		})
	case "message_deleted", "message_replied":
		return nil
	}

	m := c.message(ctx, ev.Channel, ev.Msg)
	if ev.User != c.selfID && c.isMention(ev.Channel, ev.Text) {
		return c.sink.Send(chat.Mention{Message: m})
	}
	return c.sink.Send(m)
}

func (c *Conn) isMention(channelID, text string) bool {
	c.mu.Lock()
	im := c.ims[channelID]
	c.mu.Unlock()
	return im || strings.Contains(text, "<@"+c.selfID+">") || strings.Contains(text, "<!here>") || strings.Contains(text, "<!channel>")
}

func (c *Conn) sendError(channel, text string) {
	if err := c.sink.Send(chat.Error{Server: c.name, Channel: channel, Text: text}); err != nil {
		c.logger.Debug().Err(err).Msg("dropping error")
	}
}

func (c *Conn) push(channel string, do func(ctx context.Context) error) {
	if !c.outbox.Push(channel, do) {
		c.sendError(channel, "too many pending operations, try again later")
	}
}

func (c *Conn) Name() string {
	return c.name
}

func (c *Conn) SetName(name string) {
	c.name = name
	c.logger = log.With().Str("server", name).Logger()
}

func (c *Conn) Channels() []string {
	return c.channels.Names()
}

func (c *Conn) SendChannelMessage(channel, text string) {
	id, ok := c.channels.ID(channel)
	if !ok {
		c.sendError(channel, fmt.Sprintf("unknown channel %q", channel))
		return
	}
	if emoji, ok := chat.ParseReaction(text); ok {
		c.mu.Lock()
		ts := c.latest[id]
		c.mu.Unlock()
		if ts == "" {
			c.sendError(channel, "no message to react to")
			return
		}
		c.push(channel, func(ctx context.Context) error {
			return c.api.AddReactionContext(ctx, emoji, slackapi.NewRefToMessage(id, ts))
		})
		return
	}
	c.push(channel, func(ctx context.Context) error {
		_, _, err := c.api.PostMessageContext(ctx, id,
			slackapi.MsgOptionText(escapeText(text), false),
			slackapi.MsgOptionAsUser(true))
		return err
	})
}

func (c *Conn) HandleCmd(channel, cmd string, args []string) {
	switch cmd {
	case "join":
		if len(args) == 0 {
			c.sendError(channel, "usage: join <#channel>")
			return
		}
		name := strings.TrimPrefix(args[0], "#")
		c.push(channel, func(ctx context.Context) error {
			return c.join(ctx, name)
		})
	case "leave", "part":
		target := channel
		if len(args) > 0 {
			target = strings.TrimPrefix(args[0], "#")
		}
		id, ok := c.channels.ID(target)
		if !ok {
			c.sendError(channel, fmt.Sprintf("unknown channel %q", target))
			return
		}
		c.push(channel, func(ctx context.Context) error {
			_, err := c.api.LeaveConversationContext(ctx, id)
			return err
		})
	case "search":
		if len(args) == 0 {
			c.sendError(channel, "usage: search <query>")
			return
		}
		query := strings.Join(args, " ")
		c.push(channel, func(ctx context.Context) error {
			return c.search(ctx, query)
		})
	default:
		c.logger.Debug().Str("command", cmd).Msg("unknown command")
	}
}

func (c *Conn) join(ctx context.Context, name string) error {
	if _, ok := c.channels.ID(name); ok {
		return nil
	}
	cursor := ""
	for {
		channels, next, err := c.api.GetConversationsContext(ctx, &slackapi.GetConversationsParameters{
			Cursor:          cursor,
			ExcludeArchived: true,
			Limit:           1000,
			Types:           []string{"public_channel"},
		})
		if err != nil {
			return err
		}
		for _, ch := range channels {
			if ch.Name != name {
				continue
			}
			joined, _, _, err := c.api.JoinConversationContext(ctx, ch.ID)
			if err != nil {
				return err
			}
			_, err = c.addChannel(*joined)
			return err
		}
		if next == "" {
			return fmt.Errorf("no channel named %q", name)
		}
		cursor = next
	}
}

func (c *Conn) search(ctx context.Context, query string) error {
	params := slackapi.NewSearchParameters()
	params.Count = searchLimit
	params.Sort = "timestamp"
	params.SortDirection = "desc"
	results, err := c.api.SearchMessagesContext(ctx, query, params)
	if err != nil {
		return err
	}
	if !c.hasSearch.Swap(true) {
		if err := c.sink.Send(chat.ChannelAdded{Server: c.name, Channel: SearchChannel}); err != nil {
			return err
		}
	}
	matches := results.Matches
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Timestamp < matches[j].Timestamp
	})
	for _, m := range matches {
		sender := m.Username
		if m.User != "" {
			sender = c.userName(ctx, m.User)
		}
		err := c.sink.Send(chat.HistoryMessage{Message: chat.Message{
			Server:  c.name,
			Channel: SearchChannel,
			Sender:  sender,
			Text:    fmt.Sprintf("[#%s] %s", m.Channel.Name, c.renderText(ctx, m.Text)),
			At:      parseTimestamp(m.Timestamp),
		}})
		if err != nil {
			return err
		}
	}
	c.logger.Debug().Str("query", query).Int("results", len(matches)).Msg("search done")
	return nil
}

func (c *Conn) Autocomplete(word string) (string, bool) {
	names := c.channels.Names()
	channels := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, "@") {
			channels = append(channels, "#"+name)
		}
	}
	return chat.Complete(word, channels, c.users.Names(), c.emoji)
}

// parseTimestamp parses Slack timestamps such as "1700000000.000200".
func parseTimestamp(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Now()
	}
	var ns int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		ns, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, ns)
}
