package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mcdev12/betsync/go/internal/config"
	"github.com/mcdev12/betsync/go/internal/events"
	"github.com/mcdev12/betsync/go/internal/gateway"
	"github.com/mcdev12/betsync/go/internal/media"
	"github.com/mcdev12/betsync/go/internal/round"
)

type Services struct {
	Game     *round.Game
	Library  *media.Library
	Gateway  *gateway.Service
	Media    *media.Server
	Registry *prometheus.Registry

	// nil when NATS_URL is not set
	Dispatcher *events.Dispatcher
	publisher  *events.RoundStream

	gameCancel    context.CancelFunc
	gameDone      chan error
	gatewayCancel context.CancelFunc
	gatewayDone   chan struct{}
	mediaCancel   context.CancelFunc
	mediaDone     chan struct{}
	eventsCancel  context.CancelFunc
	eventsDone    chan struct{}
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := round.NewPrometheusMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	s := &Services{Registry: registry}

	opts := []round.Option{round.WithMetrics(metrics)}
	if cfg.NATS.URL != "" {
		streamCfg := events.DefaultStreamConfig()
		streamCfg.URL = cfg.NATS.URL
		streamCfg.SubjectPrefix = cfg.NATS.SubjectPrefix

		publisher, err := events.OpenRoundStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("open round event stream: %w", err)
		}
		s.publisher = publisher
		s.Dispatcher = events.NewDispatcher(publisher, 256)
		opts = append(opts, round.WithPublisher(s.Dispatcher))
	}

	// Game
	s.Library = media.NewLibrary(cfg.VideoDir, cfg.MediaBaseURL)
	game, err := round.NewGame(cfg.RoundTimings(), s.Library, opts...)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	s.Game = game

	// Viewer gateway
	connCfg := gateway.DefaultConnectionConfig()
	connCfg.InboundRate = rate.Limit(cfg.BetRateLimit)
	connCfg.InboundBurst = cfg.BetRateBurst
	connCfg.CheckOrigin = gateway.OriginChecker(cfg.AllowedOrigins)
	s.Gateway = gateway.NewService(gateway.Config{
		Addr:             fmt.Sprintf(":%d", cfg.WSPort),
		ConnectionConfig: connCfg,
	}, game)

	// Media, assets, health and metrics
	s.Media = setupMediaServer(cfg, s)

	return s, nil
}

// Start runs every component in the background
func (s *Services) Start() {
	var ctx context.Context

	if s.Dispatcher != nil {
		ctx, s.eventsCancel = context.WithCancel(context.Background())
		s.eventsDone = make(chan struct{})
		go func(ctx context.Context) {
			defer close(s.eventsDone)
			s.Dispatcher.Run(ctx)
		}(ctx)
	}

	ctx, s.gameCancel = context.WithCancel(context.Background())
	s.gameDone = make(chan error, 1)
	go func(ctx context.Context) { s.gameDone <- s.Game.Run(ctx) }(ctx)

	ctx, s.gatewayCancel = context.WithCancel(context.Background())
	s.gatewayDone = make(chan struct{})
	go func(ctx context.Context) {
		defer close(s.gatewayDone)
		if err := s.Gateway.Start(ctx); err != nil {
			if ctx.Err() != nil {
				log.Error().Err(err).Msg("WebSocket gateway failed during shutdown")
				return
			}
			log.Fatal().Err(err).Msg("WebSocket gateway failed")
		}
	}(ctx)

	ctx, s.mediaCancel = context.WithCancel(context.Background())
	s.mediaDone = make(chan struct{})
	go func(ctx context.Context) {
		defer close(s.mediaDone)
		if err := s.Media.Start(ctx); err != nil {
			if ctx.Err() != nil {
				log.Error().Err(err).Msg("media server failed during shutdown")
				return
			}
			log.Fatal().Err(err).Msg("media server failed")
		}
	}(ctx)
}

// Shutdown stops the game first so viewers get the shutdown notice, then
// closes the transports and flushes pending lifecycle events
func (s *Services) Shutdown() {
	s.gameCancel()
	if err := <-s.gameDone; err != nil {
		log.Error().Err(err).Msg("round scheduler stopped with error")
	}

	s.gatewayCancel()
	<-s.gatewayDone

	s.mediaCancel()
	<-s.mediaDone

	if s.Dispatcher != nil {
		s.eventsCancel()
		<-s.eventsDone
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close round event stream")
		}
	}
}
