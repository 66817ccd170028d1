package round

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/betsync/go/internal/protocol"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// Game owns the round, the bet ledger and the connection registry. Every
// mutation happens under mu, so all connections observe events in the same order.
type Game struct {
	mu sync.Mutex

	cfg       Config
	clock     Clock
	selector  MediaSelector
	publisher EventPublisher
	metrics   MetricsCollector

	round       *Round
	roundNumber int
	ledger      *BetLedger
	registry    *Registry
	sched       schedule
}

// Option configures a Game
type Option func(*Game)

func WithClock(clock Clock) Option {
	return func(g *Game) { g.clock = clock }
}

func WithPublisher(publisher EventPublisher) Option {
	return func(g *Game) { g.publisher = publisher }
}

func WithMetrics(metrics MetricsCollector) Option {
	return func(g *Game) { g.metrics = metrics }
}

// NewGame creates a game with no round in progress
func NewGame(cfg Config, selector MediaSelector, opts ...Option) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if selector == nil {
		return nil, errors.New("media selector is required")
	}

	g := &Game{
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		selector:  selector,
		publisher: noopPublisher{},
		metrics:   &NoOpMetricsCollector{},
		ledger:    NewBetLedger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.registry = NewRegistry(g.metrics)

	return g, nil
}

// Register adds a connection and immediately sends it either the
// snapshot of the round in progress or a waiting notice
func (g *Game) Register(sub Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.registry.Register(sub, now)

	if err := g.sendSnapshotLocked(sub.ID(), now); err != nil {
		log.Warn().Err(err).Str("connection_id", sub.ID()).Msg("failed to send snapshot")
	}
}

// Unregister removes a connection and discards its bet
func (g *Game) Unregister(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	joinedAt, ok := g.registry.JoinedAt(id)
	if !ok {
		return
	}
	g.registry.Unregister(id)
	choice, hadBet := g.ledger.Bet(id)
	g.ledger.Drop(id)

	log.Info().
		Str("connection_id", id).
		Dur("connected_for", g.clock.Now().Sub(joinedAt)).
		Bool("bet_dropped", hadBet).
		Str("dropped_choice", choice).
		Int("total_connections", g.registry.Len()).
		Msg("connection unregistered")
}

// PlaceBet records a bet for the connection and answers it with a
// confirmation or a rejection. The returned error is the rejection cause.
func (g *Game) PlaceBet(id, choice string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.registry.Has(id) {
		return ErrUnknownClient
	}

	now := g.clock.Now()
	accepted, err := g.ledger.Place(id, choice)
	if err != nil {
		g.metrics.RecordBet(false, rejectionReason(err))
		g.unicastLocked(id, protocol.BetRejected{
			Type:       protocol.TypeBetRejected,
			Message:    rejectionMessage(err),
			ServerTime: protocol.Millis(now),
		})
		log.Debug().Err(err).Str("connection_id", id).Msg("bet rejected")
		return err
	}

	g.metrics.RecordBet(true, "")
	g.unicastLocked(id, protocol.BetConfirmed{
		Type:       protocol.TypeBetConfirmed,
		Bet:        accepted,
		Message:    "Bet placed successfully!",
		ServerTime: protocol.Millis(now),
	})

	log.Info().
		Str("connection_id", id).
		Str("bet", accepted).
		Int("round", g.roundNumber).
		Msg("bet placed")
	return nil
}

// RequestSync answers an on-demand resync with a fresh time_sync
func (g *Game) RequestSync(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.registry.Has(id) {
		return ErrUnknownClient
	}
	return g.unicastLocked(id, g.timeSyncLocked(g.clock.Now()))
}

// Status returns a view of the game for health and stats endpoints
func (g *Game) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := Status{
		Clients:     g.registry.Len(),
		RoundNumber: g.roundNumber,
		TotalBets:   g.ledger.Count(),
	}
	if g.round != nil {
		st.State = g.round.State
		st.Active = g.round.Playing()
		if st.Active {
			st.Elapsed = g.round.Elapsed(g.clock.Now())
		}
	}
	return st
}

func (g *Game) broadcastLocked(msg any) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}
	g.registry.Broadcast(payload)
}

func (g *Game) unicastLocked(id string, msg any) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := g.registry.SendTo(id, payload); err != nil {
		log.Warn().Err(err).Str("connection_id", id).Msg("failed to deliver message")
		return err
	}
	return nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrBettingClosed):
		return "closed"
	case errors.Is(err, ErrDuplicateBet):
		return "duplicate"
	case errors.Is(err, ErrInvalidChoice):
		return "invalid"
	default:
		return "other"
	}
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrBettingClosed):
		return "Betting is closed!"
	case errors.Is(err, ErrDuplicateBet):
		return "You have already placed a bet!"
	case errors.Is(err, ErrInvalidChoice):
		return "Invalid bet!"
	default:
		return "Bet rejected"
	}
}
