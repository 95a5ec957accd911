package relay

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Relay is the long-running bridge process. It connects to a chat platform
// via an Adapter and pumps inbound messages through a Router.
type Relay struct {
	adapter   Adapter
	exchanger Exchanger
	bindings  map[string]string
}

// Opts holds parameters for creating a Relay.
type Opts struct {
	Adapter   Adapter
	Exchanger Exchanger
	Bindings  map[string]string // channel id -> conversation id
}

// New creates a Relay with the given options.
func New(opts Opts) (*Relay, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("relay: adapter is required")
	}
	if opts.Exchanger == nil {
		return nil, fmt.Errorf("relay: exchanger is required")
	}
	if len(opts.Bindings) == 0 {
		return nil, fmt.Errorf("relay: at least one channel binding is required")
	}
	return &Relay{
		adapter:   opts.Adapter,
		exchanger: opts.Exchanger,
		bindings:  opts.Bindings,
	}, nil
}

// Run connects the adapter and blocks handling inbound messages until the
// context is cancelled or the adapter closes its inbound channel. Messages
// are handled one at a time in arrival order.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("relay: connect: %w", err)
	}

	var botUserID string
	if bui, ok := r.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	router, err := NewRouter(RouterOpts{
		Exchanger: r.exchanger,
		Adapter:   r.adapter,
		Bindings:  r.bindings,
		BotUserID: botUserID,
	})
	if err != nil {
		r.adapter.Close()
		return fmt.Errorf("relay: build router: %w", err)
	}

	inbound, err := r.adapter.Listen(ctx)
	if err != nil {
		r.adapter.Close()
		return fmt.Errorf("relay: listen: %w", err)
	}
	log.Info().Int("bindings", len(r.bindings)).Msg("relay online")

	for {
		select {
		case <-ctx.Done():
			if err := r.adapter.Close(); err != nil {
				log.Warn().Err(err).Msg("relay: close adapter")
			}
			log.Info().Msg("relay stopped")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				log.Info().Msg("relay: inbound channel closed")
				return nil
			}
			router.Handle(ctx, msg)
		}
	}
}
