package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zulandar/momotalk/internal/api"
	"github.com/zulandar/momotalk/internal/config"
	"github.com/zulandar/momotalk/internal/relay"
	discordadapter "github.com/zulandar/momotalk/internal/relay/discord"
	slackadapter "github.com/zulandar/momotalk/internal/relay/slack"
	"github.com/zulandar/momotalk/internal/roster"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, roster schedule, and chat relay",
		Long: `Starts the JSON API. When roster.schedule is set the roster is re-synced
on that cron schedule; when relay.platform is set messages from bound
channels are relayed to their conversations. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v, port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper, port int) error {
	a, err := openApp(cmd, v)
	if err != nil {
		return err
	}
	defer a.Close()
	if port > 0 {
		a.cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := a.orchestrator()

	// Build everything that can fail before anything starts listening.
	var sched *roster.Scheduler
	if expr := a.cfg.Roster.Schedule; expr != "" {
		sched, err = roster.NewScheduler(expr, func(ctx context.Context) error {
			_, err := roster.Sync(ctx, a.db, rosterOpts(a))
			return err
		})
		if err != nil {
			return err
		}
		log.Info().Str("schedule", expr).Dur("next", sched.Next()).Msg("roster sync scheduled")
	}

	var r *relay.Relay
	if a.cfg.Relay.Platform != "" {
		adapter, err := createAdapter(a.cfg.Relay)
		if err != nil {
			return err
		}
		r, err = relay.New(relay.Opts{
			Adapter:   adapter,
			Exchanger: orch,
			Bindings:  relayBindings(a.cfg.Relay),
		})
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Start(gctx, api.StartOpts{
			Store:     a.store,
			Exchanger: orch,
			Port:      a.cfg.Server.Port,
			Out:       cmd.OutOrStdout(),
		})
	})
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}
	if r != nil {
		g.Go(func() error { return r.Run(gctx) })
	}

	err = g.Wait()
	fmt.Fprintln(cmd.OutOrStdout(), "momotalk stopped")
	return err
}

// createAdapter builds a platform adapter from the relay config.
func createAdapter(cfg config.RelayConfig) (relay.Adapter, error) {
	switch cfg.Platform {
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken: cfg.Slack.AppToken,
			BotToken: cfg.Slack.BotToken,
		})
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken: cfg.Discord.BotToken,
		})
	default:
		return nil, fmt.Errorf("relay: unsupported platform %q", cfg.Platform)
	}
}

func relayBindings(cfg config.RelayConfig) map[string]string {
	out := make(map[string]string, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		out[b.Channel] = b.Conversation
	}
	return out
}
