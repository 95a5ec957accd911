// Package discord relays Discord channel messages through the Gateway.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/zulandar/momotalk/internal/relay"
)

// MaxTextLen is Discord's message content limit.
const MaxTextLen = 2000

const (
	sendRetries = 3
	retryBase   = 2 * time.Second
	retryLimit  = 2 * time.Minute
)

// session is the discordgo surface the adapter calls.
type session interface {
	Open() error
	Close() error
	Channel(channelID string) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

// gatewaySession adapts *discordgo.Session. Channel lookups hit the state
// cache first and fall back to REST.
type gatewaySession struct{ *discordgo.Session }

func (s gatewaySession) Channel(channelID string) (*discordgo.Channel, error) {
	if ch, err := s.State.Channel(channelID); err == nil {
		return ch, nil
	}
	return s.Session.Channel(channelID)
}

type state int

const (
	stateIdle state = iota
	stateConnected
	stateClosed
)

// Adapter relays the guild channels a Discord bot can read.
type Adapter struct {
	botToken string
	sess     session

	mu        sync.Mutex
	state     state
	botUserID string
	unhook    func()

	// inboundMu is held for reading while a handler delivers and for
	// writing while Close closes inbound. done unblocks pending deliveries.
	inboundMu sync.RWMutex
	inbound   chan relay.InboundMessage
	done      chan struct{}

	retryBase  time.Duration
	retryLimit time.Duration
}

// AdapterOpts configures New. Session replaces the real gateway session in
// tests.
type AdapterOpts struct {
	BotToken string
	Session  session
}

// New validates opts and returns an unconnected Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	return &Adapter{
		botToken:   opts.BotToken,
		sess:       opts.Session,
		inbound:    make(chan relay.InboundMessage, 64),
		done:       make(chan struct{}),
		retryBase:  retryBase,
		retryLimit: retryLimit,
	}, nil
}

// Connect opens the gateway. The bot's user id arrives with the Ready
// event; discordgo handles reconnects after that.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case stateClosed:
		return fmt.Errorf("discord: adapter already closed")
	case stateConnected:
		return nil
	}

	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
		a.sess = gatewaySession{dg}
	}

	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.SetBotUserID(r.User.ID)
		log.Info().Str("bot_user", r.User.ID).Str("name", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord: ready")
	})
	a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		log.Warn().Msg("discord: gateway disconnected")
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.state = stateConnected
	return nil
}

// Listen hooks message creation and returns the channel of user messages.
func (a *Adapter) Listen(ctx context.Context) (<-chan relay.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != stateConnected {
		return nil, fmt.Errorf("discord: not connected")
	}
	a.unhook = a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(ctx, m)
	})
	return a.inbound, nil
}

// Send posts msg. Discord threads are channels, so ThreadID, when set, is
// the target.
func (a *Adapter) Send(ctx context.Context, msg relay.OutboundMessage) error {
	a.mu.Lock()
	connected := a.state == stateConnected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("discord: not connected")
	}

	target := msg.ThreadID
	if target == "" {
		target = msg.ChannelID
	}
	if target == "" {
		return fmt.Errorf("discord: no channel specified")
	}

	data := &discordgo.MessageSend{
		Content:         msg.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	err := a.retryOnRateLimit(ctx, func() error {
		_, err := a.sess.ChannelMessageSendComplex(target, data)
		return err
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// Close unhooks the message handler, closes the inbound channel and the
// gateway. It is safe to call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.state == stateClosed {
		a.mu.Unlock()
		return nil
	}
	a.state = stateClosed
	if a.unhook != nil {
		a.unhook()
	}
	close(a.done)
	sess := a.sess
	a.mu.Unlock()

	a.inboundMu.Lock()
	close(a.inbound)
	a.inboundMu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.Close()
}

// BotUserID implements relay.BotUserIDer. It is empty until Ready.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// SetBotUserID records the bot's own user id.
func (a *Adapter) SetBotUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botUserID = id
}

// MaxTextLen implements relay.TextLimiter.
func (a *Adapter) MaxTextLen() int { return MaxTextLen }

func (a *Adapter) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	msg, ok := a.inboundFrom(m)
	if !ok {
		return
	}
	if err := a.sess.ChannelTyping(m.ChannelID); err != nil {
		log.Debug().Err(err).Str("channel", m.ChannelID).Msg("discord: typing indicator")
	}

	a.inboundMu.RLock()
	defer a.inboundMu.RUnlock()
	select {
	case <-a.done:
		return
	default:
	}
	select {
	case a.inbound <- msg:
	case <-a.done:
	case <-ctx.Done():
	}
}

// inboundFrom converts a message written by a person. A message inside a
// thread is reported on the thread's parent channel, which is what
// bindings name, with the thread as ThreadID.
func (a *Adapter) inboundFrom(m *discordgo.MessageCreate) (relay.InboundMessage, bool) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == a.BotUserID() {
		return relay.InboundMessage{}, false
	}

	msg := relay.InboundMessage{
		Platform:  "discord",
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Text:      m.Content,
	}
	if ch, err := a.sess.Channel(m.ChannelID); err == nil && ch.IsThread() {
		msg.ChannelID = ch.ParentID
		msg.ThreadID = m.ChannelID
	}
	if ts, err := discordgo.SnowflakeTimestamp(m.ID); err == nil {
		msg.Timestamp = ts
	}
	return msg, true
}

// retryOnRateLimit retries fn while Discord answers 429, backing off
// exponentially from a.retryBase.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	return relay.Retry(ctx, sendRetries, func(err error, attempt int) (time.Duration, bool) {
		var rest *discordgo.RESTError
		if !errors.As(err, &rest) || rest.Response == nil || rest.Response.StatusCode != http.StatusTooManyRequests {
			return 0, false
		}
		wait := relay.Backoff(attempt, a.retryBase, a.retryLimit)
		log.Warn().Int("attempt", attempt+1).Dur("wait", wait).Msg("discord: rate limited")
		return wait, true
	}, fn)
}
