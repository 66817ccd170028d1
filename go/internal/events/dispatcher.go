package events

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/betsync/go/internal/round"
)

// Sink delivers envelopes to the event bus
type Sink interface {
	Publish(ctx context.Context, env Envelope) error
}

// Dispatcher decouples the game from the event bus. It implements
// round.EventPublisher: Publish only enqueues, Run does the I/O.
type Dispatcher struct {
	sink           Sink
	queue          chan Envelope
	publishTimeout time.Duration
}

func NewDispatcher(sink Sink, buffer int) *Dispatcher {
	return &Dispatcher{
		sink:           sink,
		queue:          make(chan Envelope, buffer),
		publishTimeout: 5 * time.Second,
	}
}

// Publish queues the event, dropping it when the queue is full
func (d *Dispatcher) Publish(event round.LifecycleEvent) {
	env := NewEnvelope(event)
	select {
	case d.queue <- env:
	default:
		log.Warn().
			Str("event_type", env.EventType).
			Int("round", env.RoundNumber).
			Msg("event queue full, dropping lifecycle event")
	}
}

// Run forwards queued envelopes until ctx is cancelled, then drains what is left
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case env := <-d.queue:
			d.send(ctx, env)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case env := <-d.queue:
			d.send(context.Background(), env)
		default:
			return
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, env Envelope) {
	ctx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	if err := d.sink.Publish(ctx, env); err != nil {
		log.Error().
			Err(err).
			Str("event_type", env.EventType).
			Int("round", env.RoundNumber).
			Msg("failed to publish lifecycle event")
	}
}
