package round

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/betsync/go/internal/protocol"
)

var errSendBufferFull = errors.New("send buffer full")

// recorder is a Subscriber that keeps every payload it receives
type recorder struct {
	id   string
	fail bool

	mu   sync.Mutex
	msgs [][]byte
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Deliver(payload []byte) error {
	if r.fail {
		return errSendBufferFull
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, append([]byte(nil), payload...))
	return nil
}

func (r *recorder) decoded(t *testing.T) []any {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]any, 0, len(r.msgs))
	for _, raw := range r.msgs {
		msg, err := protocol.DecodeServer(raw)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func (r *recorder) types(t *testing.T) []protocol.MessageType {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]protocol.MessageType, 0, len(r.msgs))
	for _, raw := range r.msgs {
		msgType, err := protocol.PeekType(raw)
		require.NoError(t, err)
		out = append(out, msgType)
	}
	return out
}

// lifecycle returns the message types without the periodic time_sync
func (r *recorder) lifecycle(t *testing.T) []protocol.MessageType {
	t.Helper()
	var out []protocol.MessageType
	for _, msgType := range r.types(t) {
		if msgType != protocol.TypeTimeSync {
			out = append(out, msgType)
		}
	}
	return out
}

func (r *recorder) count(t *testing.T, msgType protocol.MessageType) int {
	t.Helper()
	n := 0
	for _, got := range r.types(t) {
		if got == msgType {
			n++
		}
	}
	return n
}

func (r *recorder) last(t *testing.T) any {
	t.Helper()
	msgs := r.decoded(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

type staticSelector struct {
	media Media
}

func (s staticSelector) Select() (Media, error) {
	return s.media, nil
}

type MockMediaSelector struct {
	mock.Mock
}

func (m *MockMediaSelector) Select() (Media, error) {
	args := m.Called()
	return args.Get(0).(Media), args.Error(1)
}

var testMedia = Media{Name: "a.mp4", URL: "http://localhost:8081/video/a.mp4"}

// harness runs a Game on a fake clock
type harness struct {
	t      *testing.T
	ctx    context.Context
	clock  *clockwork.FakeClock
	game   *Game
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func newHarness(t *testing.T, cfg Config, selector MediaSelector, opts ...Option) *harness {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	game, err := NewGame(cfg, selector, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	h := &harness{
		t:      t,
		ctx:    ctx,
		clock:  clock,
		game:   game,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { h.done <- game.Run(ctx) }()
	h.settle()

	t.Cleanup(h.stop)
	return h
}

// settle waits until the scheduler has armed its timer again
func (h *harness) settle() {
	h.t.Helper()
	require.NoError(h.t, h.clock.BlockUntilContext(h.ctx, 1))
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.settle()
	h.clock.Advance(d)
	h.settle()
}

// seconds advances the clock one second at a time
func (h *harness) seconds(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.advance(time.Second)
	}
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			h.t.Error("scheduler did not stop")
		}
	})
}

// slowSelector stands in for a media directory that takes a while to read
type slowSelector struct {
	clock *clockwork.FakeClock
	delay time.Duration
}

func (s *slowSelector) Select() (Media, error) {
	s.clock.Advance(s.delay)
	return testMedia, nil
}
