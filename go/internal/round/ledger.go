package round

import (
	"fmt"
	"strings"
)

// maxChoiceLen bounds the opaque choice token
const maxChoiceLen = 64

// BetLedger records at most one bet per connection for the current round.
// It is not safe for concurrent use; the Game serializes access.
type BetLedger struct {
	bets map[string]string
	open bool
}

func NewBetLedger() *BetLedger {
	return &BetLedger{bets: make(map[string]string)}
}

// Place records choice for connID. The first bet of a connection wins; a
// second one is rejected with ErrDuplicateBet.
func (l *BetLedger) Place(connID, choice string) (string, error) {
	if !l.open {
		return "", ErrBettingClosed
	}

	choice = strings.TrimSpace(choice)
	if choice == "" || len(choice) > maxChoiceLen {
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}

	if _, exists := l.bets[connID]; exists {
		return "", ErrDuplicateBet
	}

	l.bets[connID] = choice
	return choice, nil
}

// Clear invalidates every bet and opens the ledger for a new round
func (l *BetLedger) Clear() {
	clear(l.bets)
	l.open = true
}

// Seal stops accepting bets until the next Clear
func (l *BetLedger) Seal() {
	l.open = false
}

// Drop removes the bet of a departed connection, reporting whether one existed
func (l *BetLedger) Drop(connID string) bool {
	if _, exists := l.bets[connID]; !exists {
		return false
	}
	delete(l.bets, connID)
	return true
}

// Bet returns the choice recorded for connID
func (l *BetLedger) Bet(connID string) (string, bool) {
	choice, ok := l.bets[connID]
	return choice, ok
}

func (l *BetLedger) Count() int {
	return len(l.bets)
}

// Tally groups the recorded bets by choice
func (l *BetLedger) Tally() map[string]int {
	stats := make(map[string]int, len(l.bets))
	for _, choice := range l.bets {
		stats[choice]++
	}
	return stats
}
