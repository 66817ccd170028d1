package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Service is the viewer gateway: it accepts WebSocket connections and
// hands them to the game
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	server            *http.Server
}

// Config holds configuration for the gateway service
type Config struct {
	Addr             string
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		Addr:             ":8080",
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service
func NewService(config Config, session Session) *Service {
	connectionManager := NewConnectionManager(session, config.ConnectionConfig)
	wsHandler := NewWebSocketHandler(connectionManager)

	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Handler returns the HTTP handler serving the gateway routes
func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

// Start serves WebSocket connections until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("WebSocket gateway starting")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("WebSocket gateway shutting down")
	return s.Stop()
}

// Stop closes every viewer connection and the listener
func (s *Service) Stop() error {
	s.connectionManager.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	log.Info().Msg("WebSocket gateway stopped")
	return nil
}

// Connections returns the number of open viewer connections
func (s *Service) Connections() int {
	return s.connectionManager.Count()
}
