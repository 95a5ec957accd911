package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zulandar/momotalk/internal/chat"
	"github.com/zulandar/momotalk/internal/models"
)

// commandPrefix is the prefix that triggers relay command handling.
const commandPrefix = "!momo"

const helpText = "Messages in this channel are sent to the bound conversation.\n" +
	"`!momo conversation` shows the bound conversation id.\n" +
	"`!momo help` shows this message."

// Exchanger runs one chat exchange.
type Exchanger interface {
	Exchange(ctx context.Context, incoming models.Turn, conversationID string) (models.Turn, error)
}

// Router routes inbound chat messages from bound channels through an
// Exchanger and posts the reply back to the same channel and thread.
type Router struct {
	exchanger Exchanger
	adapter   Adapter
	bindings  map[string]string // channel id -> conversation id
	botUserID string
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Exchanger Exchanger
	Adapter   Adapter
	Bindings  map[string]string // channel id -> conversation id
	BotUserID string            // bot's user ID for self-message filtering
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Exchanger == nil {
		return nil, fmt.Errorf("relay: router: exchanger is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("relay: router: adapter is required")
	}
	bindings := make(map[string]string, len(opts.Bindings))
	for ch, conv := range opts.Bindings {
		bindings[ch] = conv
	}
	return &Router{
		exchanger: opts.Exchanger,
		adapter:   opts.Adapter,
		bindings:  bindings,
		botUserID: opts.BotUserID,
	}, nil
}

// Handle routes a single inbound message. Routing paths:
//  1. Bot self-message → ignore
//  2. Unbound channel → ignore
//  3. Command prefix "!momo" → command reply
//  4. Anything else non-empty → exchange on the bound conversation
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.isSelfMessage(msg) {
		return
	}
	convID, ok := r.bindings[msg.ChannelID]
	if !ok {
		log.Debug().Str("platform", msg.Platform).Str("channel", msg.ChannelID).Msg("relay: ignore unbound channel")
		return
	}

	text := stripMentions(msg.Text)
	if text == "" {
		return
	}
	log.Info().
		Str("channel", msg.ChannelID).
		Str("thread", msg.ThreadID).
		Str("user", msg.UserName).
		Str("conversation", convID).
		Msgf("relay: recv %q", truncate(text, 80))

	if isCommand(text) {
		r.reply(ctx, msg, r.execute(text, convID))
		return
	}

	reply, err := r.exchanger.Exchange(ctx, models.Turn{Role: models.RoleUser, Content: text}, convID)
	if err != nil {
		log.Warn().Err(err).Str("conversation", convID).Msg("relay: exchange failed")
		r.reply(ctx, msg, chat.Describe(err))
		return
	}
	r.reply(ctx, msg, reply.Content)
}

// reply sends text to the message's channel and thread, split to the
// adapter's length limit.
func (r *Router) reply(ctx context.Context, msg InboundMessage, text string) {
	limit := 0
	if tl, ok := r.adapter.(TextLimiter); ok {
		limit = tl.MaxTextLen()
	}
	for _, chunk := range SplitText(text, limit) {
		if err := r.adapter.Send(ctx, OutboundMessage{
			ChannelID: msg.ChannelID,
			ThreadID:  msg.ThreadID,
			Text:      chunk,
		}); err != nil {
			log.Error().Err(err).Str("channel", msg.ChannelID).Msg("relay: send reply")
			return
		}
	}
}

// execute runs a "!momo" command and returns its response text.
func (r *Router) execute(text, convID string) string {
	fields := strings.Fields(strings.TrimPrefix(text, commandPrefix))
	if len(fields) == 0 {
		return helpText
	}
	switch fields[0] {
	case "conversation", "conv":
		return "Bound conversation: " + convID
	case "help":
		return helpText
	default:
		return fmt.Sprintf("Unknown command %q.\n%s", fields[0], helpText)
	}
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}

// isCommand returns true if the text starts with the command prefix.
func isCommand(text string) bool {
	return strings.HasPrefix(text, commandPrefix+" ") || text == commandPrefix
}
