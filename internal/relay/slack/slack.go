// Package slack relays Slack channel messages through Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/zulandar/momotalk/internal/relay"
)

// MaxTextLen is the longest text Slack renders in one message.
const MaxTextLen = 4000

const (
	sendRetries      = 3
	reconnectBase    = 2 * time.Second
	reconnectLimit   = 2 * time.Minute
	reconnectRetries = 10
)

// slackClient is the Web API surface the adapter calls.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient is the Socket Mode surface the adapter calls.
type socketClient interface {
	Run() error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

type socketModeClient struct{ *socketmode.Client }

func (c socketModeClient) EventsChan() chan socketmode.Event { return c.Events }

type state int

const (
	stateIdle state = iota
	stateConnected
	stateClosed
)

// Adapter relays one Slack workspace.
type Adapter struct {
	appToken string
	botToken string
	api      slackClient
	sm       socketClient

	mu        sync.Mutex
	state     state
	botUserID string
	names     map[string]string
	stop      context.CancelFunc
	consumed  chan struct{} // closed when consume returns
	inbound   chan relay.InboundMessage

	reconnectBase  time.Duration
	reconnectLimit time.Duration
	reconnects     int
}

// AdapterOpts configures New. Client and Socket replace the real Slack
// clients in tests.
type AdapterOpts struct {
	AppToken string // xapp-..., required for Socket Mode
	BotToken string // xoxb-...
	Client   slackClient
	Socket   socketClient
}

// New validates opts and returns an unconnected Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	return &Adapter{
		appToken:       opts.AppToken,
		botToken:       opts.BotToken,
		api:            opts.Client,
		sm:             opts.Socket,
		names:          make(map[string]string),
		inbound:        make(chan relay.InboundMessage, 64),
		reconnectBase:  reconnectBase,
		reconnectLimit: reconnectLimit,
		reconnects:     reconnectRetries,
	}, nil
}

// Connect authenticates the bot token and records the bot's user id.
// The socket itself is opened by Listen.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case stateClosed:
		return fmt.Errorf("slack: adapter already closed")
	case stateConnected:
		return nil
	}

	if a.api == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.api = api
		a.sm = socketModeClient{socketmode.New(api)}
	}
	auth, err := a.api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID
	a.state = stateConnected
	log.Info().Str("bot_user", auth.UserID).Str("team", auth.Team).Msg("slack: authenticated")
	return nil
}

// Listen opens the socket and returns the channel of user messages.
func (a *Adapter) Listen(ctx context.Context) (<-chan relay.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != stateConnected {
		return nil, fmt.Errorf("slack: not connected")
	}
	if a.stop != nil {
		return a.inbound, nil
	}
	ctx, a.stop = context.WithCancel(ctx)
	a.consumed = make(chan struct{})
	go a.runSocket(ctx)
	go func() {
		defer close(a.consumed)
		a.consume(ctx)
	}()
	return a.inbound, nil
}

// Send posts msg as plain text, in its thread when ThreadID is set.
// Rate-limited posts are retried after the delay Slack asks for.
func (a *Adapter) Send(ctx context.Context, msg relay.OutboundMessage) error {
	a.mu.Lock()
	connected := a.state == stateConnected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("slack: not connected")
	}
	if msg.ChannelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}

	opts := msgOptions(msg)
	err := retryOnRateLimit(ctx, func() error {
		_, _, err := a.api.PostMessage(msg.ChannelID, opts...)
		return err
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close stops the socket and closes the inbound channel. It is safe to
// call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.state == stateClosed {
		a.mu.Unlock()
		return nil
	}
	a.state = stateClosed
	stop, consumed := a.stop, a.consumed
	a.mu.Unlock()

	if stop != nil {
		stop()
		<-consumed
	}
	close(a.inbound)
	return nil
}

// BotUserID implements relay.BotUserIDer.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// MaxTextLen implements relay.TextLimiter.
func (a *Adapter) MaxTextLen() int { return MaxTextLen }

// runSocket keeps the Socket Mode client running, restarting it with
// exponential backoff until ctx ends or the restart budget is spent.
func (a *Adapter) runSocket(ctx context.Context) {
	for attempt := 0; attempt < a.reconnects; attempt++ {
		err := a.sm.Run()
		if err == nil || ctx.Err() != nil {
			return
		}
		wait := relay.Backoff(attempt, a.reconnectBase, a.reconnectLimit)
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("wait", wait).Msg("slack: socket dropped, reconnecting")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	log.Error().Int("attempts", a.reconnects).Msg("slack: giving up on socket mode")
}

// consume acknowledges Events API envelopes and forwards user messages.
func (a *Adapter) consume(ctx context.Context) {
	events := a.sm.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				log.Debug().Str("type", string(evt.Type)).Msg("slack: socket event")
				continue
			}
			api, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			if evt.Request != nil {
				a.sm.Ack(*evt.Request)
			}
			if msg, ok := a.inboundFrom(api); ok {
				select {
				case a.inbound <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// inboundFrom converts a callback message event written by a person.
// Bot posts, the adapter's own posts and subtyped events (edits, deletes,
// joins) are dropped.
func (a *Adapter) inboundFrom(api slackevents.EventsAPIEvent) (relay.InboundMessage, bool) {
	if api.Type != slackevents.CallbackEvent {
		return relay.InboundMessage{}, false
	}
	ev, ok := api.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || ev.BotID != "" || ev.SubType != "" || ev.User == a.BotUserID() {
		return relay.InboundMessage{}, false
	}
	return relay.InboundMessage{
		Platform:  "slack",
		ChannelID: ev.Channel,
		ThreadID:  ev.ThreadTimeStamp,
		UserID:    ev.User,
		UserName:  a.resolveUserName(ev.User),
		Text:      ev.Text,
		Timestamp: parseSlackTimestamp(ev.TimeStamp),
	}, true
}

// resolveUserName returns the user's display name, then real name, then
// id. Successful lookups are cached for the adapter's lifetime.
func (a *Adapter) resolveUserName(userID string) string {
	if userID == "" {
		return ""
	}
	a.mu.Lock()
	name, ok := a.names[userID]
	a.mu.Unlock()
	if ok {
		return name
	}

	user, err := a.api.GetUserInfo(userID)
	if err != nil {
		log.Debug().Err(err).Str("user", userID).Msg("slack: user lookup failed")
		return userID
	}
	name = user.Profile.DisplayName
	if name == "" {
		name = user.RealName
	}
	if name == "" {
		name = userID
	}
	a.mu.Lock()
	a.names[userID] = name
	a.mu.Unlock()
	return name
}

func msgOptions(msg relay.OutboundMessage) []slackapi.MsgOption {
	opts := []slackapi.MsgOption{slackapi.MsgOptionText(msg.Text, false)}
	if msg.ThreadID != "" {
		opts = append(opts, slackapi.MsgOptionTS(msg.ThreadID))
	}
	return opts
}

func retryOnRateLimit(ctx context.Context, fn func() error) error {
	return relay.Retry(ctx, sendRetries, rateLimitPolicy, fn)
}

// rateLimitPolicy retries only rate-limit errors, waiting RetryAfter or a
// doubling delay when Slack gives none.
func rateLimitPolicy(err error, attempt int) (time.Duration, bool) {
	var rle *slackapi.RateLimitedError
	if !errors.As(err, &rle) {
		return 0, false
	}
	if rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return relay.Backoff(attempt, time.Second, 30*time.Second), true
}

// parseSlackTimestamp converts "1700000000.123456" (seconds.micros) to a
// time. Malformed input gives the zero time.
func parseSlackTimestamp(ts string) time.Time {
	secStr, microStr, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Time{}
	}
	micro, _ := strconv.ParseInt(microStr, 10, 64)
	return time.Unix(sec, micro*int64(time.Microsecond))
}
