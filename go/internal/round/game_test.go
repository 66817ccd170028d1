package round

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/betsync/go/internal/protocol"
)

func TestGame_LateJoinBetAndSettle(t *testing.T) {
	h := newHarness(t, DefaultConfig(), staticSelector{testMedia})

	observer := newRecorder("observer")
	h.game.Register(observer)
	assert.Equal(t, []protocol.MessageType{protocol.TypeWaiting}, observer.types(t))

	h.advance(3 * time.Second)
	t0 := h.clock.Now()

	start, ok := observer.last(t).(*protocol.GameStart)
	require.True(t, ok)
	assert.Equal(t, 1, start.RoundNumber)
	assert.Equal(t, protocol.Millis(t0), start.StartTime)
	assert.Equal(t, testMedia.Name, start.VideoName)
	assert.Equal(t, testMedia.URL, start.VideoURL)

	h.seconds(10)

	late := newRecorder("late")
	h.game.Register(late)

	snap, ok := late.last(t).(*protocol.GameSync)
	require.True(t, ok)
	assert.Equal(t, int64(10000), snap.Elapsed)
	assert.InDelta(t, h.clock.Now().Sub(t0).Milliseconds(), snap.Elapsed, 50)
	assert.True(t, snap.BettingOpen)
	assert.Equal(t, 1, snap.RoundNumber)
	assert.Equal(t, protocol.Millis(t0), snap.StartTime)
	assert.Equal(t, testMedia.URL, snap.VideoURL)

	require.NoError(t, h.game.PlaceBet("late", "red"))
	confirmed, ok := late.last(t).(*protocol.BetConfirmed)
	require.True(t, ok)
	assert.Equal(t, "red", confirmed.Bet)
	assert.NotContains(t, observer.types(t), protocol.TypeBetConfirmed)

	h.seconds(9)
	closed, ok := observer.last(t).(*protocol.BettingClosed)
	require.True(t, ok, "betting_closed is broadcast at t0+19s")
	assert.Equal(t, 1, closed.TotalBets)

	h.seconds(11)
	end, ok := observer.last(t).(*protocol.GameEnd)
	require.True(t, ok, "game_end is broadcast at t0+30s")
	assert.Equal(t, map[string]int{"red": 1}, end.BetStats)

	assert.Equal(t, []protocol.MessageType{
		protocol.TypeWaiting,
		protocol.TypeGameStart,
		protocol.TypeBettingClosed,
		protocol.TypeGameEnd,
	}, observer.lifecycle(t))
	assert.Equal(t, 29, observer.count(t, protocol.TypeTimeSync))

	assert.Equal(t, []protocol.MessageType{
		protocol.TypeGameSync,
		protocol.TypeBetConfirmed,
		protocol.TypeBettingClosed,
		protocol.TypeGameEnd,
	}, late.lifecycle(t))
}

func TestGame_TimeSyncTicks(t *testing.T) {
	h := newHarness(t, DefaultConfig(), staticSelector{testMedia})
	observer := newRecorder("observer")
	h.game.Register(observer)

	h.advance(3 * time.Second)
	h.seconds(30)

	var ticks []*protocol.TimeSync
	for _, msg := range observer.decoded(t) {
		if tick, ok := msg.(*protocol.TimeSync); ok {
			ticks = append(ticks, tick)
		}
	}
	require.Len(t, ticks, 29)
	for i, tick := range ticks {
		second := int64(i + 1)
		assert.Equal(t, second*1000, tick.Elapsed)
		assert.Equal(t, second < 19, tick.BettingOpen, "tick at %ds", second)
	}
}

func TestGame_TransitionsInOrderAcrossRounds(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, cfg, staticSelector{testMedia})
	observer := newRecorder("observer")
	h.game.Register(observer)

	h.advance(3 * time.Second)
	for i := 0; i < 3; i++ {
		// round duration then gap, one second at a time
		h.seconds(30 + 5)
	}

	var lifecycle []protocol.MessageType
	rounds := []int{}
	endedRound := false
	for _, msg := range observer.decoded(t) {
		switch m := msg.(type) {
		case *protocol.GameStart:
			lifecycle = append(lifecycle, protocol.TypeGameStart)
			rounds = append(rounds, m.RoundNumber)
			endedRound = false
		case *protocol.BettingClosed:
			lifecycle = append(lifecycle, protocol.TypeBettingClosed)
		case *protocol.GameEnd:
			lifecycle = append(lifecycle, protocol.TypeGameEnd)
			endedRound = true
		case *protocol.TimeSync:
			assert.False(t, endedRound, "time_sync after game_end of the same round")
		}
	}

	want := []protocol.MessageType{}
	for i := 0; i < 3; i++ {
		want = append(want, protocol.TypeGameStart, protocol.TypeBettingClosed, protocol.TypeGameEnd)
	}
	want = append(want, protocol.TypeGameStart)
	assert.Equal(t, want, lifecycle)
	assert.Equal(t, []int{1, 2, 3, 4}, rounds)
}

func TestGame_NewRoundClearsBets(t *testing.T) {
	h := newHarness(t, DefaultConfig(), staticSelector{testMedia})
	a := newRecorder("a")
	h.game.Register(a)

	h.advance(3 * time.Second)
	require.NoError(t, h.game.PlaceBet("a", "red"))

	h.seconds(30)
	h.advance(5 * time.Second)

	start, ok := a.last(t).(*protocol.GameStart)
	require.True(t, ok)
	assert.Equal(t, 2, start.RoundNumber)
	assert.Equal(t, 0, h.game.Status().TotalBets)
	require.NoError(t, h.game.PlaceBet("a", "blue"))
}

func TestGame_DisconnectExcludesBet(t *testing.T) {
	h := newHarness(t, DefaultConfig(), staticSelector{testMedia})
	a := newRecorder("a")
	b := newRecorder("b")
	h.game.Register(a)
	h.game.Register(b)

	h.advance(3 * time.Second)
	require.NoError(t, h.game.PlaceBet("a", "red"))
	require.NoError(t, h.game.PlaceBet("b", "blue"))

	h.seconds(5)
	h.game.Unregister("b")
	h.game.Unregister("b")
	received := len(b.types(t))
	status := h.game.Status()
	assert.Equal(t, 1, status.Clients)
	assert.Equal(t, 1, status.TotalBets)

	h.seconds(14)
	closed, ok := a.last(t).(*protocol.BettingClosed)
	require.True(t, ok)
	assert.Equal(t, 1, closed.TotalBets)

	h.seconds(11)
	end, ok := a.last(t).(*protocol.GameEnd)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"red": 1}, end.BetStats)
	assert.Len(t, b.types(t), received, "unregistered connection receives nothing")
}

func TestGame_BetRejections(t *testing.T) {
	h := newHarness(t, DefaultConfig(), staticSelector{testMedia})
	a := newRecorder("a")
	h.game.Register(a)

	// no round yet
	assert.ErrorIs(t, h.game.PlaceBet("a", "red"), ErrBettingClosed)

	h.advance(3 * time.Second)
	require.NoError(t, h.game.PlaceBet("a", "red"))

	err := h.game.PlaceBet("a", "blue")
	assert.ErrorIs(t, err, ErrDuplicateBet)
	rejected, ok := a.last(t).(*protocol.BetRejected)
	require.True(t, ok)
	assert.Equal(t, "You have already placed a bet!", rejected.Message)

	assert.ErrorIs(t, h.game.PlaceBet("ghost", "red"), ErrUnknownClient)

	h.seconds(19)
	late := newRecorder("late")
	h.game.Register(late)
	snap := late.last(t).(*protocol.GameSync)
	assert.False(t, snap.BettingOpen)

	assert.ErrorIs(t, h.game.PlaceBet("late", "green"), ErrBettingClosed)
	rejected, ok = late.last(t).(*protocol.BetRejected)
	require.True(t, ok)
	assert.Equal(t, "Betting is closed!", rejected.Message)

	h.seconds(11)
	end := a.last(t).(*protocol.GameEnd)
	assert.Equal(t, map[string]int{"red": 1}, end.BetStats)
}

func TestGame_RequestSync(t *testing.T) {
	h := newHarness(t, DefaultConfig(), staticSelector{testMedia})
	a := newRecorder("a")
	h.game.Register(a)

	require.NoError(t, h.game.RequestSync("a"))
	idle := a.last(t).(*protocol.TimeSync)
	assert.Equal(t, int64(0), idle.Elapsed)
	assert.False(t, idle.BettingOpen)

	h.advance(3 * time.Second)
	h.seconds(7)
	h.advance(500 * time.Millisecond)

	require.NoError(t, h.game.RequestSync("a"))
	fresh := a.last(t).(*protocol.TimeSync)
	assert.Equal(t, int64(7500), fresh.Elapsed)
	assert.True(t, fresh.BettingOpen)
	assert.Equal(t, protocol.Millis(h.clock.Now()), fresh.ServerTime)

	assert.ErrorIs(t, h.game.RequestSync("ghost"), ErrUnknownClient)
}

func TestGame_RetriesWhenNoMedia(t *testing.T) {
	selector := &MockMediaSelector{}
	selector.On("Select").Return(Media{}, errors.New("no media available")).Twice()
	selector.On("Select").Return(testMedia, nil)

	h := newHarness(t, DefaultConfig(), selector)
	a := newRecorder("a")
	h.game.Register(a)
	begin := h.clock.Now()

	h.advance(3 * time.Second)
	assert.False(t, h.game.Status().Active)
	h.advance(5 * time.Second)
	assert.False(t, h.game.Status().Active)
	h.advance(5 * time.Second)

	status := h.game.Status()
	assert.True(t, status.Active)
	assert.Equal(t, 1, status.RoundNumber)

	start := a.last(t).(*protocol.GameStart)
	assert.Equal(t, protocol.Millis(begin.Add(13*time.Second)), start.StartTime)
	selector.AssertNumberOfCalls(t, "Select", 3)
}

func TestGame_FailingConnectionDoesNotBlockOthers(t *testing.T) {
	h := newHarness(t, DefaultConfig(), staticSelector{testMedia})
	broken := newRecorder("broken")
	broken.fail = true
	healthy := newRecorder("healthy")
	h.game.Register(broken)
	h.game.Register(healthy)

	h.advance(3 * time.Second)
	h.seconds(2)

	assert.Equal(t, []protocol.MessageType{
		protocol.TypeWaiting,
		protocol.TypeGameStart,
		protocol.TypeTimeSync,
		protocol.TypeTimeSync,
	}, healthy.types(t))
}

func TestGame_ShutdownNotifiesConnections(t *testing.T) {
	h := newHarness(t, DefaultConfig(), staticSelector{testMedia})
	a := newRecorder("a")
	h.game.Register(a)
	h.advance(3 * time.Second)

	h.stop()

	_, ok := a.last(t).(*protocol.ServerShutdown)
	assert.True(t, ok)
}

func TestGame_Status(t *testing.T) {
	h := newHarness(t, DefaultConfig(), staticSelector{testMedia})
	h.game.Register(newRecorder("a"))
	h.game.Register(newRecorder("b"))

	st := h.game.Status()
	assert.False(t, st.Active)
	assert.Equal(t, 2, st.Clients)

	h.advance(3 * time.Second)
	h.seconds(4)
	require.NoError(t, h.game.PlaceBet("a", "red"))
	h.game.Unregister("b")

	st = h.game.Status()
	assert.True(t, st.Active)
	assert.Equal(t, StateBettingOpen, st.State)
	assert.Equal(t, 4*time.Second, st.Elapsed)
	assert.Equal(t, 1, st.Clients)
	assert.Equal(t, 1, st.TotalBets)
}

func TestNewGame_Validation(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RoundDuration = cfg.BettingDuration - time.Second
	_, err := NewGame(cfg, staticSelector{testMedia})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewGame(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestSchedule_TransitionsBeforeTick(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 1, 0, 0, 19, 0, time.UTC)
	s := schedule{close: at, end: at.Add(11 * time.Second), tick: at}

	assert.Equal(t, taskNone, s.due(at.Add(-time.Millisecond)))
	assert.Equal(t, taskClose, s.due(at))

	s.close = time.Time{}
	assert.Equal(t, taskTick, s.due(at))

	s = schedule{end: at, tick: at}
	assert.Equal(t, taskEnd, s.due(at))
	assert.Equal(t, taskNone, schedule{}.due(at))
}

func TestGame_StartTimeFollowsMediaLookup(t *testing.T) {
	selector := &slowSelector{delay: 1500 * time.Millisecond}
	h := newHarness(t, DefaultConfig(), selector)
	selector.clock = h.clock

	a := newRecorder("a")
	h.game.Register(a)
	begin := h.clock.Now()

	h.advance(3 * time.Second)
	opened := begin.Add(4500 * time.Millisecond)
	assert.Equal(t, opened, h.clock.Now())

	start, ok := a.last(t).(*protocol.GameStart)
	require.True(t, ok)
	assert.Equal(t, protocol.Millis(opened), start.StartTime)

	h.advance(time.Second)
	tick, ok := a.last(t).(*protocol.TimeSync)
	require.True(t, ok)
	assert.Equal(t, int64(1000), tick.Elapsed, "first tick lands one interval after the real start")
}
