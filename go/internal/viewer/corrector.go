package viewer

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// SyncCheckInterval is how often playback is compared with the round clock
	SyncCheckInterval = 2 * time.Second
	MaxSyncDiff       = 500 * time.Millisecond
	ResyncThreshold   = 5 * time.Second

	perfectBand = 300 * time.Millisecond
	goodBand    = time.Second
)

// Action is the correction applied for a measured drift
type Action int

const (
	ActionNone Action = iota
	ActionSeek
	ActionResync
)

func (a Action) String() string {
	switch a {
	case ActionSeek:
		return "seek"
	case ActionResync:
		return "resync"
	default:
		return "none"
	}
}

// Assessment is the result of one drift check
type Assessment struct {
	Drift  time.Duration
	Action Action
	// Band is a display label: perfect, good or adjusting
	Band   string
	Target time.Duration
}

// Assess compares the expected elapsed time with the player position.
// Small drift is tolerated, moderate drift is corrected by seeking and
// large drift asks the server for a fresh time sync.
func Assess(localElapsed, position time.Duration) Assessment {
	drift := localElapsed - position
	if drift < 0 {
		drift = -drift
	}

	a := Assessment{Drift: drift, Target: localElapsed}
	switch {
	case drift <= MaxSyncDiff:
		a.Action = ActionNone
	case drift < ResyncThreshold:
		a.Action = ActionSeek
	default:
		a.Action = ActionResync
	}

	switch {
	case drift < perfectBand:
		a.Band = "perfect"
	case drift < goodBand:
		a.Band = "good"
	default:
		a.Band = "adjusting"
	}
	return a
}

// Corrector keeps a Player aligned with the authoritative round clock.
// It is not safe for concurrent use; the client event loop owns it.
type Corrector struct {
	clock  clockwork.Clock
	player Player

	startTime time.Time
	// offset is server time minus local time
	offset time.Duration
	active bool
}

func NewCorrector(clock clockwork.Clock, player Player) *Corrector {
	return &Corrector{clock: clock, player: player}
}

// Begin loads the round video and starts playback at the authoritative position
func (c *Corrector) Begin(url string, startTime time.Time, elapsed time.Duration, serverTime time.Time) {
	c.startTime = startTime
	c.Refresh(serverTime)
	c.active = true

	c.player.Load(url)
	c.player.Seek(elapsed)
	c.player.Play()
}

// Refresh re-measures the server clock offset
func (c *Corrector) Refresh(serverTime time.Time) {
	if serverTime.IsZero() {
		return
	}
	c.offset = serverTime.Sub(c.clock.Now())
}

// Resync applies an authoritative time_sync after a large drift: the offset
// is re-measured and the player jumps to the elapsed time the server
// reported, advanced by the time spent since it was stamped.
func (c *Corrector) Resync(elapsed time.Duration, serverTime time.Time) time.Duration {
	c.Refresh(serverTime)
	target := elapsed
	if !serverTime.IsZero() {
		target += c.clock.Now().Add(c.offset).Sub(serverTime)
	}
	c.player.Seek(target)
	return target
}

// Stop ends correction for the current round
func (c *Corrector) Stop() {
	c.active = false
}

func (c *Corrector) Active() bool {
	return c.active
}

// LocalElapsed is the round elapsed time as estimated from the local clock
func (c *Corrector) LocalElapsed() time.Duration {
	return c.clock.Now().Add(c.offset).Sub(c.startTime)
}

// Check measures drift and seeks when needed. It reports false when no
// round is being corrected or the player is paused.
func (c *Corrector) Check() (Assessment, bool) {
	if !c.active || c.player.Paused() {
		return Assessment{}, false
	}

	a := Assess(c.LocalElapsed(), c.player.Position())
	if a.Action == ActionSeek {
		c.player.Seek(a.Target)
	}
	return a, true
}
