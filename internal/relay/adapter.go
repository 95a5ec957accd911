// Package relay bridges chat platforms (Slack, Discord) to conversations:
// messages posted in a bound channel are run through an exchange and the
// reply is posted back.
package relay

import (
	"context"
	"time"
)

// Adapter connects the relay to one chat platform.
type Adapter interface {
	// Connect authenticates with the platform.
	Connect(ctx context.Context) error

	// Listen starts delivery of user messages. The returned channel is
	// closed by Close. Listen is only valid after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send posts a reply.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close disconnects. Calling it again is a no-op.
	Close() error
}

// InboundMessage is one user post in a platform channel.
type InboundMessage struct {
	Platform  string // "slack" or "discord"
	ChannelID string // the channel bindings are keyed by
	ThreadID  string // empty for top-level posts
	UserID    string
	UserName  string
	Text      string // as posted, mentions included
	Timestamp time.Time
}

// OutboundMessage is one reply posted by the relay.
type OutboundMessage struct {
	ChannelID string
	ThreadID  string // reply in this thread when set
	Text      string
}

// BotUserIDer is implemented by adapters that know the bot's own user id,
// so the relay can ignore its own posts.
type BotUserIDer interface {
	BotUserID() string
}

// TextLimiter is implemented by adapters whose platform caps the length
// of one message. Longer replies are split.
type TextLimiter interface {
	MaxTextLen() int
}
