package round

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/betsync/go/internal/protocol"
)

type task int

const (
	taskNone task = iota
	taskOpen
	taskClose
	taskEnd
	taskTick
)

// schedule holds the pending deadlines of the game. A zero deadline is not
// scheduled; clearing a deadline cancels its task.
type schedule struct {
	open  time.Time
	close time.Time
	end   time.Time
	tick  time.Time
}

// due returns the earliest task whose deadline is at or before now.
// On equal deadlines transitions win over the sync tick.
func (s schedule) due(now time.Time) task {
	best, at := s.earliest()
	if best == taskNone || at.After(now) {
		return taskNone
	}
	return best
}

func (s schedule) earliest() (task, time.Time) {
	best := taskNone
	var at time.Time
	candidates := []struct {
		t  task
		at time.Time
	}{
		{taskOpen, s.open},
		{taskClose, s.close},
		{taskEnd, s.end},
		{taskTick, s.tick},
	}
	for _, c := range candidates {
		if c.at.IsZero() {
			continue
		}
		if best == taskNone || c.at.Before(at) {
			best, at = c.t, c.at
		}
	}
	return best, at
}

// Run drives the round lifecycle until ctx is cancelled. On cancellation
// every connection is told that the server is shutting down.
func (g *Game) Run(ctx context.Context) error {
	g.mu.Lock()
	start := g.clock.Now()
	g.sched = schedule{open: start.Add(g.cfg.StartupDelay)}
	g.mu.Unlock()

	log.Info().
		Dur("startup_delay", g.cfg.StartupDelay).
		Dur("betting_duration", g.cfg.BettingDuration).
		Dur("round_duration", g.cfg.RoundDuration).
		Dur("round_gap", g.cfg.Gap).
		Msg("round scheduler started")

	timer := g.clock.NewTimer(g.cfg.StartupDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			g.Shutdown()
			log.Info().Msg("round scheduler stopped")
			return nil
		case <-timer.Chan():
			timer.Reset(g.advance(g.clock.Now()))
		}
	}
}

// advance runs every task due at now and returns the wait until the next one
func (g *Game) advance(now time.Time) time.Duration {
	for {
		g.mu.Lock()
		next := g.sched.due(now)
		switch next {
		case taskNone:
			pending, at := g.sched.earliest()
			g.mu.Unlock()
			if pending == taskNone {
				return g.cfg.MediaRetryDelay
			}
			return at.Sub(now)
		case taskOpen:
			g.mu.Unlock()
			// media lookup stays outside the lock
			media, err := g.selector.Select()
			g.mu.Lock()
			// the lookup may have taken a while; the round starts when it returns
			now = g.clock.Now()
			if err != nil {
				g.postponeOpenLocked(now, err)
			} else {
				g.openRoundLocked(now, media)
			}
		case taskClose:
			g.closeBettingLocked(now)
		case taskEnd:
			g.endRoundLocked(now)
		case taskTick:
			g.tickLocked(now)
		}
		g.mu.Unlock()
	}
}

func (g *Game) postponeOpenLocked(now time.Time, err error) {
	g.metrics.RecordMediaUnavailable()
	g.sched.open = now.Add(g.cfg.MediaRetryDelay)

	log.Error().
		Err(err).
		Dur("retry_in", g.cfg.MediaRetryDelay).
		Msg("no media available, postponing round")
}

func (g *Game) openRoundLocked(now time.Time, media Media) {
	g.roundNumber++
	g.round = &Round{
		Number:          g.roundNumber,
		Media:           media,
		StartTime:       now,
		State:           StateBettingOpen,
		BettingDuration: g.cfg.BettingDuration,
		RoundDuration:   g.cfg.RoundDuration,
	}
	g.ledger.Clear()
	g.sched = schedule{
		close: now.Add(g.cfg.BettingDuration),
		end:   now.Add(g.cfg.RoundDuration),
		tick:  now.Add(g.cfg.SyncInterval),
	}

	g.broadcastLocked(protocol.GameStart{
		Type:        protocol.TypeGameStart,
		VideoName:   media.Name,
		VideoURL:    media.URL,
		StartTime:   protocol.Millis(now),
		RoundNumber: g.roundNumber,
		ServerTime:  protocol.Millis(now),
	})
	g.metrics.RecordRoundStarted(g.roundNumber)
	g.publisher.Publish(LifecycleEvent{
		Type:        protocol.TypeGameStart,
		RoundNumber: g.roundNumber,
		VideoName:   media.Name,
		StartTime:   now,
		OccurredAt:  now,
	})

	log.Info().
		Int("round", g.roundNumber).
		Str("video", media.Name).
		Time("start_time", now).
		Int("clients", g.registry.Len()).
		Msg("round started")
}

func (g *Game) closeBettingLocked(now time.Time) {
	g.sched.close = time.Time{}
	if g.round == nil || g.round.State != StateBettingOpen {
		return
	}

	g.round.State = StateBettingClosed
	g.ledger.Seal()
	total := g.ledger.Count()

	g.broadcastLocked(protocol.BettingClosed{
		Type:       protocol.TypeBettingClosed,
		Message:    "Betting is now closed!",
		TotalBets:  total,
		ServerTime: protocol.Millis(now),
	})
	g.publisher.Publish(LifecycleEvent{
		Type:        protocol.TypeBettingClosed,
		RoundNumber: g.round.Number,
		VideoName:   g.round.Media.Name,
		StartTime:   g.round.StartTime,
		OccurredAt:  now,
		TotalBets:   total,
	})

	log.Info().Int("round", g.round.Number).Int("total_bets", total).Msg("betting closed")
}

func (g *Game) endRoundLocked(now time.Time) {
	g.sched.end = time.Time{}
	if g.round == nil || !g.round.Playing() {
		return
	}
	// a round always passes through BettingClosed before it ends
	if g.round.State == StateBettingOpen {
		g.closeBettingLocked(now)
	}

	g.round.State = StateEnded
	g.ledger.Seal()
	stats := g.ledger.Tally()

	// the sync tick of this round stops here
	g.sched.tick = time.Time{}
	g.sched.open = now.Add(g.cfg.Gap)

	g.broadcastLocked(protocol.GameEnd{
		Type:       protocol.TypeGameEnd,
		Message:    "Round complete!",
		BetStats:   stats,
		ServerTime: protocol.Millis(now),
	})
	g.publisher.Publish(LifecycleEvent{
		Type:        protocol.TypeGameEnd,
		RoundNumber: g.round.Number,
		VideoName:   g.round.Media.Name,
		StartTime:   g.round.StartTime,
		OccurredAt:  now,
		TotalBets:   g.ledger.Count(),
		BetStats:    stats,
	})

	log.Info().
		Int("round", g.round.Number).
		Interface("bet_stats", stats).
		Dur("next_round_in", g.cfg.Gap).
		Msg("round complete")
}

// Shutdown notifies every connection that the server is going away
func (g *Game) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sched = schedule{}
	g.broadcastLocked(protocol.ServerShutdown{
		Type:    protocol.TypeServerShutdown,
		Message: "Server is shutting down",
	})
}
