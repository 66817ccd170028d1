package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/betsync/go/internal/protocol"
	"github.com/mcdev12/betsync/go/internal/round"
)

// Envelope is the JSON document published for a round transition
type Envelope struct {
	EventID     string         `json:"eventId"`
	EventType   string         `json:"eventType"`
	RoundNumber int            `json:"roundNumber"`
	VideoName   string         `json:"videoName"`
	StartTime   int64          `json:"startTime"`
	Timestamp   time.Time      `json:"timestamp"`
	TotalBets   int            `json:"totalBets"`
	BetStats    map[string]int `json:"betStats,omitempty"`
}

// NewEnvelope wraps a lifecycle event with a fresh event id
func NewEnvelope(event round.LifecycleEvent) Envelope {
	return Envelope{
		EventID:     uuid.NewString(),
		EventType:   string(event.Type),
		RoundNumber: event.RoundNumber,
		VideoName:   event.VideoName,
		StartTime:   protocol.Millis(event.StartTime),
		Timestamp:   event.OccurredAt.UTC(),
		TotalBets:   event.TotalBets,
		BetStats:    event.BetStats,
	}
}

// Subject returns the subject the envelope is published on
func (e Envelope) Subject(prefix string) string {
	return fmt.Sprintf("%s.%s", prefix, e.EventType)
}

func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}
