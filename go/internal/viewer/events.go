package viewer

import "time"

// EventKind identifies what happened on the client
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventReconnecting
	EventReconnectExhausted
	EventWaiting
	EventRoundStarted
	EventRoundSynced
	EventCountdown
	EventBettingClosed
	EventBetConfirmed
	EventBetRejected
	EventRoundEnded
	EventDrift
	EventServerShutdown
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventReconnectExhausted:
		return "reconnect_exhausted"
	case EventWaiting:
		return "waiting"
	case EventRoundStarted:
		return "round_started"
	case EventRoundSynced:
		return "round_synced"
	case EventCountdown:
		return "countdown"
	case EventBettingClosed:
		return "betting_closed"
	case EventBetConfirmed:
		return "bet_confirmed"
	case EventBetRejected:
		return "bet_rejected"
	case EventRoundEnded:
		return "round_ended"
	case EventDrift:
		return "drift"
	case EventServerShutdown:
		return "server_shutdown"
	default:
		return "unknown"
	}
}

// Event is what a presentation layer renders. Only the fields relevant to
// the Kind are set.
type Event struct {
	Kind EventKind

	Round     int
	VideoName string
	VideoURL  string
	Message   string

	// Remaining is the betting countdown in whole seconds
	Remaining int
	Bet       string
	TotalBets int
	BetStats  map[string]int

	Sync Assessment

	Delay   time.Duration
	Attempt int
}
