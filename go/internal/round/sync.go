package round

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/betsync/go/internal/protocol"
)

// tickLocked broadcasts the periodic time_sync and schedules the next one.
// Ticks stay anchored to the round start so late ticks do not accumulate drift.
func (g *Game) tickLocked(now time.Time) {
	if !g.round.Playing() {
		g.sched.tick = time.Time{}
		return
	}

	g.broadcastLocked(g.timeSyncLocked(now))

	next := g.sched.tick
	for !next.After(now) {
		next = next.Add(g.cfg.SyncInterval)
	}
	g.sched.tick = next
}

// timeSyncLocked computes elapsed fresh from the authoritative start time;
// zero when no round is playing
func (g *Game) timeSyncLocked(now time.Time) protocol.TimeSync {
	msg := protocol.TimeSync{
		Type:       protocol.TypeTimeSync,
		ServerTime: protocol.Millis(now),
	}
	if g.round.Playing() {
		msg.Elapsed = g.round.Elapsed(now).Milliseconds()
		msg.BettingOpen = g.round.State == StateBettingOpen
	}
	return msg
}

// sendSnapshotLocked sends a late joiner everything it needs to resume
// playback without waiting for the next tick
func (g *Game) sendSnapshotLocked(id string, now time.Time) error {
	if !g.round.Playing() {
		return g.unicastLocked(id, protocol.Waiting{
			Type:       protocol.TypeWaiting,
			Message:    "Waiting for next round...",
			ServerTime: protocol.Millis(now),
		})
	}

	elapsed := g.round.Elapsed(now)
	if err := g.unicastLocked(id, protocol.GameSync{
		Type:        protocol.TypeGameSync,
		VideoName:   g.round.Media.Name,
		VideoURL:    g.round.Media.URL,
		StartTime:   protocol.Millis(g.round.StartTime),
		Elapsed:     elapsed.Milliseconds(),
		BettingOpen: g.round.State == StateBettingOpen,
		RoundNumber: g.round.Number,
		ServerTime:  protocol.Millis(now),
	}); err != nil {
		return err
	}

	log.Info().
		Str("connection_id", id).
		Int("round", g.round.Number).
		Dur("elapsed", elapsed).
		Msg("synced client with round in progress")
	return nil
}
