package round

import (
	"fmt"
	"time"

	"github.com/mcdev12/betsync/go/internal/protocol"
)

// State is the phase of a round
type State int

const (
	StateBettingOpen State = iota + 1
	StateBettingClosed
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateBettingOpen:
		return "betting_open"
	case StateBettingClosed:
		return "betting_closed"
	case StateEnded:
		return "ended"
	default:
		return "none"
	}
}

// Media is the video selected for a round
type Media struct {
	Name string
	URL  string
}

// MediaSelector picks the media for the next round. An error means no media
// is currently available; the game retries later.
type MediaSelector interface {
	Select() (Media, error)
}

// Round is the authoritative unit of play
type Round struct {
	Number          int
	Media           Media
	StartTime       time.Time
	State           State
	BettingDuration time.Duration
	RoundDuration   time.Duration
}

// Playing reports whether the video of the round is running
func (r *Round) Playing() bool {
	return r != nil && (r.State == StateBettingOpen || r.State == StateBettingClosed)
}

// Elapsed returns the authoritative elapsed time at now
func (r *Round) Elapsed(now time.Time) time.Duration {
	if r == nil {
		return 0
	}
	elapsed := now.Sub(r.StartTime)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Config holds the round timings
type Config struct {
	BettingDuration time.Duration
	RoundDuration   time.Duration
	Gap             time.Duration
	StartupDelay    time.Duration
	MediaRetryDelay time.Duration
	SyncInterval    time.Duration
}

// DefaultConfig returns the default round timings
func DefaultConfig() Config {
	return Config{
		BettingDuration: 19 * time.Second,
		RoundDuration:   30 * time.Second,
		Gap:             5 * time.Second,
		StartupDelay:    3 * time.Second,
		MediaRetryDelay: 5 * time.Second,
		SyncInterval:    time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.BettingDuration <= 0:
		return fmt.Errorf("%w: betting duration must be positive", ErrInvalidConfig)
	case c.RoundDuration < c.BettingDuration:
		return fmt.Errorf("%w: round duration %s shorter than betting duration %s", ErrInvalidConfig, c.RoundDuration, c.BettingDuration)
	case c.Gap < 0:
		return fmt.Errorf("%w: round gap must not be negative", ErrInvalidConfig)
	case c.StartupDelay < 0:
		return fmt.Errorf("%w: startup delay must not be negative", ErrInvalidConfig)
	case c.MediaRetryDelay <= 0:
		return fmt.Errorf("%w: media retry delay must be positive", ErrInvalidConfig)
	case c.SyncInterval <= 0:
		return fmt.Errorf("%w: sync interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// LifecycleEvent describes a round transition for out-of-band consumers
type LifecycleEvent struct {
	Type        protocol.MessageType
	RoundNumber int
	VideoName   string
	StartTime   time.Time
	OccurredAt  time.Time
	TotalBets   int
	BetStats    map[string]int
}

// EventPublisher receives lifecycle events. Publish must not block.
type EventPublisher interface {
	Publish(event LifecycleEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(LifecycleEvent) {}

// Status is a point-in-time view of the game for health reporting
type Status struct {
	Active      bool
	RoundNumber int
	State       State
	Elapsed     time.Duration
	Clients     int
	TotalBets   int
}
