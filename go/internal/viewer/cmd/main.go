package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcdev12/betsync/go/internal/viewer"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "betsync-viewer",
		Short:        "Watch betsync rounds from the terminal",
		Long:         "betsync-viewer joins a betsync server, keeps a simulated player in sync with the round clock and optionally bets on every round.",
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("url", "ws://localhost:8080/ws", "game server WebSocket URL")
	flags.String("bet", "", "choice to bet on every round; empty watches only")
	flags.Float64("drift-rate", 1.0, "playback rate of the simulated player")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Int("max-attempts", viewer.DefaultReconnectConfig().MaxAttempts, "reconnect attempts before giving up")

	v.SetEnvPrefix("BETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	level, err := zerolog.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", v.GetString("log-level"), err)
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rate := v.GetFloat64("drift-rate")
	if rate <= 0 {
		return fmt.Errorf("drift-rate must be positive, got %v", rate)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	cfg := viewer.DefaultConfig(v.GetString("url"))
	cfg.Clock = clock
	cfg.Reconnect.MaxAttempts = v.GetInt("max-attempts")

	client := viewer.NewClient(cfg, viewer.NewSimulatedPlayer(clock, rate))

	result := make(chan error, 1)
	go func() { result <- client.Run(ctx) }()

	render(ctx, client, strings.TrimSpace(v.GetString("bet")))

	return <-result
}

// render logs every event until the stream closes, betting once per round
// when a choice is configured
func render(ctx context.Context, client *viewer.Client, choice string) {
	betRound := 0
	for ev := range client.Events() {
		logEvent(ev)

		if choice == "" || ev.Round == betRound {
			continue
		}
		if ev.Kind != viewer.EventRoundStarted && ev.Kind != viewer.EventRoundSynced {
			continue
		}
		if ev.Remaining == 0 {
			continue
		}
		betRound = ev.Round
		if err := client.PlaceBet(ctx, choice); err != nil {
			log.Warn().Err(err).Int("round", ev.Round).Str("bet", choice).Msg("could not place bet")
		}
	}
}

func logEvent(ev viewer.Event) {
	switch ev.Kind {
	case viewer.EventRoundStarted, viewer.EventRoundSynced:
		log.Info().
			Str("event", ev.Kind.String()).
			Int("round", ev.Round).
			Str("video", ev.VideoName).
			Str("url", ev.VideoURL).
			Msg("round playing")
	case viewer.EventCountdown:
		log.Debug().Int("remaining", ev.Remaining).Msg("betting countdown")
	case viewer.EventBetConfirmed:
		log.Info().Str("bet", ev.Bet).Msg(ev.Message)
	case viewer.EventRoundEnded:
		log.Info().
			Int("round", ev.Round).
			Int("total_bets", ev.TotalBets).
			Interface("bet_stats", ev.BetStats).
			Msg("round ended")
	case viewer.EventBettingClosed:
		log.Info().Int("total_bets", ev.TotalBets).Msg(ev.Message)
	case viewer.EventDrift:
		log.Debug().
			Dur("drift", ev.Sync.Drift).
			Str("action", ev.Sync.Action.String()).
			Str("band", ev.Sync.Band).
			Msg("sync check")
	case viewer.EventReconnecting:
		log.Warn().Int("attempt", ev.Attempt).Dur("delay", ev.Delay).Msg("connection lost, reconnecting")
	case viewer.EventBetRejected, viewer.EventReconnectExhausted, viewer.EventServerShutdown:
		log.Warn().Str("event", ev.Kind.String()).Msg(ev.Message)
	default:
		log.Info().Str("event", ev.Kind.String()).Msg(ev.Message)
	}
}
