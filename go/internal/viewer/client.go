package viewer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/betsync/go/internal/protocol"
)

// Config configures a viewer client
type Config struct {
	URL               string
	BettingDuration   time.Duration
	SyncCheckInterval time.Duration
	WriteTimeout      time.Duration
	EventBuffer       int
	Reconnect         ReconnectConfig

	Clock  clockwork.Clock
	Dialer *websocket.Dialer
	Logger *zerolog.Logger
}

func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		BettingDuration:   19 * time.Second,
		SyncCheckInterval: SyncCheckInterval,
		WriteTimeout:      10 * time.Second,
		EventBuffer:       64,
		Reconnect:         DefaultReconnectConfig(),
	}
}

type commandKind int

const (
	cmdPlaceBet commandKind = iota
	cmdVisible
)

type command struct {
	kind   commandKind
	choice string
	result chan error
}

// Client is a viewer session. Run owns the connection and all round state;
// other goroutines talk to it through PlaceBet, Visible and Close.
type Client struct {
	cfg       Config
	clock     clockwork.Clock
	dialer    *websocket.Dialer
	logger    zerolog.Logger
	corrector *Corrector
	reconnect *ReconnectManager

	events    chan Event
	cmds      chan command
	closed    chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}

	// owned by the Run goroutine
	write       func(msg any) error
	round       int
	bettingOpen bool
	currentBet  string
	remaining   int
	syncTicker  clockwork.Ticker
	countdown   clockwork.Ticker

	// a time_request went out for a large drift; the next time_sync is applied
	resyncPending bool
}

func NewClient(cfg Config, player Player) *Client {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		cfg:       cfg,
		clock:     clock,
		dialer:    dialer,
		logger:    logger,
		corrector: NewCorrector(clock, player),
		reconnect: NewReconnectManager(cfg.Reconnect),
		events:    make(chan Event, cfg.EventBuffer),
		cmds:      make(chan command),
		closed:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Events returns the client's event stream. It is closed when Run returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Run connects and keeps the session alive until ctx is cancelled, Close is
// called or reconnect attempts are exhausted. It must be called once.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer func() {
		c.stopRound()
		close(c.stopped)
		close(c.events)
	}()

	for {
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn().Err(err).Str("url", c.cfg.URL).Msg("failed to connect")
		} else {
			c.reconnect.Reset()
			c.logger.Info().Str("url", c.cfg.URL).Msg("connected to server")
			c.emit(Event{Kind: EventConnected})

			c.serve(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn().Msg("disconnected from server")
			c.emit(Event{Kind: EventDisconnected})
		}

		delay, err := c.reconnect.Next()
		if err != nil {
			c.logger.Error().Int("attempts", c.reconnect.Attempts()).Msg("max reconnection attempts reached")
			c.emit(Event{Kind: EventReconnectExhausted, Attempt: c.reconnect.Attempts()})
			return err
		}
		c.logger.Info().
			Dur("delay", delay).
			Int("attempt", c.reconnect.Attempts()).
			Msg("reconnecting")
		c.emit(Event{Kind: EventReconnecting, Delay: delay, Attempt: c.reconnect.Attempts()})

		if !c.pause(ctx, delay) {
			return nil
		}
	}
}

// Close stops Run and closes the connection
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// PlaceBet sends a bet for the current round. Bets the client already knows
// will be rejected fail locally without reaching the server.
func (c *Client) PlaceBet(ctx context.Context, choice string) error {
	return c.do(ctx, command{kind: cmdPlaceBet, choice: choice})
}

// Visible asks for a fresh time sync, as when a hidden viewer comes back
func (c *Client) Visible(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdVisible})
}

func (c *Client) do(ctx context.Context, cmd command) error {
	cmd.result = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrClosed
	case <-c.stopped:
		return ErrNotConnected
	}

	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pause waits out a reconnect delay, refusing commands meanwhile
func (c *Client) pause(ctx context.Context, d time.Duration) bool {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.Chan():
			return true
		case cmd := <-c.cmds:
			cmd.result <- ErrNotConnected
		}
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	inbound := make(chan []byte)
	done := make(chan struct{})
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		defer close(inbound)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.logger.Debug().Err(err).Msg("read loop finished")
				return
			}
			select {
			case inbound <- data:
			case <-done:
				return
			}
		}
	}()

	c.write = func(msg any) error {
		payload, err := protocol.Encode(msg)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return fmt.Errorf("write message: %w", err)
		}
		return nil
	}
	defer func() {
		c.write = nil
		c.stopRound()
		c.bettingOpen = false
		c.currentBet = ""
		close(done)
		conn.Close()
		<-readerDone
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case data, ok := <-inbound:
			if !ok {
				return
			}
			c.handleRaw(data)
		case cmd := <-c.cmds:
			cmd.result <- c.execute(cmd)
		case <-tickerChan(c.syncTicker):
			c.checkSync()
		case <-tickerChan(c.countdown):
			c.tickCountdown()
		}
	}
}

func (c *Client) handleRaw(data []byte) {
	msg, err := protocol.DecodeServer(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("ignoring server message")
		return
	}
	c.handleMessage(msg)
}

func (c *Client) handleMessage(msg any) {
	switch m := msg.(type) {
	case *protocol.GameStart:
		c.currentBet = ""
		c.beginRound(m.RoundNumber, m.VideoURL, protocol.FromMillis(m.StartTime), 0, true, serverTime(m.ServerTime))
		c.logger.Info().Int("round", m.RoundNumber).Str("video", m.VideoName).Msg("new round started")
		c.emit(Event{Kind: EventRoundStarted, Round: m.RoundNumber, VideoName: m.VideoName, VideoURL: m.VideoURL, Remaining: c.remaining})

	case *protocol.GameSync:
		// bets do not survive a connection; the server dropped ours on disconnect
		c.currentBet = ""
		elapsed := time.Duration(m.Elapsed) * time.Millisecond
		c.beginRound(m.RoundNumber, m.VideoURL, protocol.FromMillis(m.StartTime), elapsed, m.BettingOpen, serverTime(m.ServerTime))
		c.logger.Info().Int("round", m.RoundNumber).Dur("elapsed", elapsed).Msg("synced with round in progress")
		c.emit(Event{Kind: EventRoundSynced, Round: m.RoundNumber, VideoName: m.VideoName, VideoURL: m.VideoURL, Remaining: c.remaining})

	case *protocol.TimeSync:
		if c.resyncPending && c.corrector.Active() {
			c.resyncPending = false
			target := c.corrector.Resync(time.Duration(m.Elapsed)*time.Millisecond, serverTime(m.ServerTime))
			c.logger.Info().Dur("position", target).Msg("playback resynced with server")
		} else {
			c.corrector.Refresh(serverTime(m.ServerTime))
		}
		if m.BettingOpen && c.countdown != nil {
			c.remaining = c.remainingAt(time.Duration(m.Elapsed) * time.Millisecond)
		}

	case *protocol.BettingClosed:
		c.bettingOpen = false
		c.remaining = 0
		c.stopCountdown()
		c.emit(Event{Kind: EventBettingClosed, Round: c.round, Message: m.Message, TotalBets: m.TotalBets})

	case *protocol.BetConfirmed:
		c.currentBet = m.Bet
		c.emit(Event{Kind: EventBetConfirmed, Round: c.round, Bet: m.Bet, Message: m.Message})

	case *protocol.BetRejected:
		c.emit(Event{Kind: EventBetRejected, Round: c.round, Message: m.Message})

	case *protocol.GameEnd:
		c.stopRound()
		c.bettingOpen = false
		c.currentBet = ""
		c.emit(Event{Kind: EventRoundEnded, Round: c.round, Message: m.Message, BetStats: m.BetStats})

	case *protocol.Waiting:
		c.emit(Event{Kind: EventWaiting, Message: m.Message})

	case *protocol.ServerShutdown:
		c.logger.Warn().Msg("server is shutting down")
		c.emit(Event{Kind: EventServerShutdown, Message: m.Message})
	}
}

func (c *Client) beginRound(number int, url string, start time.Time, elapsed time.Duration, open bool, serverTime time.Time) {
	c.stopRound()
	c.round = number
	c.corrector.Begin(url, start, elapsed, serverTime)
	c.syncTicker = c.clock.NewTicker(c.cfg.SyncCheckInterval)

	c.remaining = c.remainingAt(elapsed)
	c.bettingOpen = open && c.remaining > 0
	if !c.bettingOpen {
		c.remaining = 0
		return
	}
	c.countdown = c.clock.NewTicker(time.Second)
}

// remainingAt is the betting countdown for an elapsed time, in whole seconds
func (c *Client) remainingAt(elapsed time.Duration) int {
	return max(0, int(c.cfg.BettingDuration/time.Second)-int(elapsed/time.Second))
}

func (c *Client) tickCountdown() {
	c.remaining--
	if c.remaining >= 0 {
		c.emit(Event{Kind: EventCountdown, Round: c.round, Remaining: c.remaining})
	}
	if c.remaining <= 0 {
		c.remaining = 0
		c.stopCountdown()
	}
}

func (c *Client) checkSync() {
	a, ok := c.corrector.Check()
	if !ok {
		return
	}
	if a.Action != ActionNone {
		c.logger.Info().
			Dur("drift", a.Drift).
			Str("action", a.Action.String()).
			Msg("playback drift")
	}
	c.emit(Event{Kind: EventDrift, Round: c.round, Sync: a})

	if a.Action == ActionResync && c.write != nil {
		if err := c.write(protocol.TimeRequest{Type: protocol.TypeTimeRequest}); err != nil {
			c.logger.Warn().Err(err).Msg("failed to request time sync")
			return
		}
		c.resyncPending = true
	}
}

func (c *Client) execute(cmd command) error {
	if c.write == nil {
		return ErrNotConnected
	}

	switch cmd.kind {
	case cmdPlaceBet:
		if !c.bettingOpen {
			return ErrBettingClosed
		}
		if c.currentBet != "" {
			return ErrAlreadyBet
		}
		c.logger.Info().Str("bet", cmd.choice).Msg("placing bet")
		return c.write(protocol.PlaceBet{Type: protocol.TypePlaceBet, Bet: cmd.choice})

	case cmdVisible:
		if c.round == 0 {
			return nil
		}
		return c.write(protocol.TimeRequest{Type: protocol.TypeTimeRequest})
	}
	return nil
}

func (c *Client) stopRound() {
	c.corrector.Stop()
	c.resyncPending = false
	if c.syncTicker != nil {
		c.syncTicker.Stop()
		c.syncTicker = nil
	}
	c.stopCountdown()
}

func (c *Client) stopCountdown() {
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn().Str("event", ev.Kind.String()).Msg("event buffer full, dropping event")
	}
}

// serverTime converts a wire timestamp; zero means absent
func serverTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return protocol.FromMillis(ms)
}

func tickerChan(t clockwork.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}
