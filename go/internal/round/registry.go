package round

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Subscriber is one live transport session as seen by the game.
// Deliver must not block; it should enqueue the payload or fail.
type Subscriber interface {
	ID() string
	Deliver(payload []byte) error
}

type member struct {
	sub      Subscriber
	joinedAt time.Time
}

// Registry tracks the connected subscribers and fans events out to them.
// Like the ledger it relies on the Game for serialization.
type Registry struct {
	members map[string]member
	metrics MetricsCollector
}

func NewRegistry(metrics MetricsCollector) *Registry {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &Registry{
		members: make(map[string]member),
		metrics: metrics,
	}
}

func (r *Registry) Register(sub Subscriber, joinedAt time.Time) {
	r.members[sub.ID()] = member{sub: sub, joinedAt: joinedAt}
	r.metrics.RecordConnections(len(r.members))

	log.Debug().
		Str("connection_id", sub.ID()).
		Int("total_connections", len(r.members)).
		Msg("connection registered")
}

// Unregister removes a subscriber, reporting whether it was a member
func (r *Registry) Unregister(id string) bool {
	if _, exists := r.members[id]; !exists {
		return false
	}
	delete(r.members, id)
	r.metrics.RecordConnections(len(r.members))
	return true
}

func (r *Registry) Has(id string) bool {
	_, ok := r.members[id]
	return ok
}

func (r *Registry) Len() int {
	return len(r.members)
}

// JoinedAt returns when id registered
func (r *Registry) JoinedAt(id string) (time.Time, bool) {
	m, ok := r.members[id]
	return m.joinedAt, ok
}

// Broadcast delivers payload to every member. A failing member is logged
// and skipped; the remaining members still receive the payload.
func (r *Registry) Broadcast(payload []byte) int {
	delivered := 0
	for id, m := range r.members {
		if err := m.sub.Deliver(payload); err != nil {
			r.metrics.RecordDeliveryFailure()
			log.Warn().
				Err(err).
				Str("connection_id", id).
				Msg("failed to deliver broadcast")
			continue
		}
		delivered++
	}
	return delivered
}

// SendTo delivers payload to a single member
func (r *Registry) SendTo(id string, payload []byte) error {
	m, ok := r.members[id]
	if !ok {
		return ErrUnknownClient
	}
	if err := m.sub.Deliver(payload); err != nil {
		r.metrics.RecordDeliveryFailure()
		return err
	}
	return nil
}
