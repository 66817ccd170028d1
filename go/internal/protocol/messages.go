package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType selects the variant of a WebSocket message
type MessageType string

// Server to client
const (
	TypeGameStart      MessageType = "game_start"
	TypeGameSync       MessageType = "game_sync"
	TypeTimeSync       MessageType = "time_sync"
	TypeBettingClosed  MessageType = "betting_closed"
	TypeBetConfirmed   MessageType = "bet_confirmed"
	TypeBetRejected    MessageType = "bet_rejected"
	TypeGameEnd        MessageType = "game_end"
	TypeWaiting        MessageType = "waiting"
	TypeServerShutdown MessageType = "server_shutdown"
)

// Client to server
const (
	TypePlaceBet    MessageType = "place_bet"
	TypeTimeRequest MessageType = "time_request"
)

// GameStart announces a new round
type GameStart struct {
	Type        MessageType `json:"type"`
	VideoName   string      `json:"videoName"`
	VideoURL    string      `json:"videoUrl"`
	StartTime   int64       `json:"startTime"`
	RoundNumber int         `json:"roundNumber"`
	ServerTime  int64       `json:"serverTime"`
}

// GameSync is the late-join snapshot sent to a connection registering mid-round
type GameSync struct {
	Type        MessageType `json:"type"`
	VideoName   string      `json:"videoName"`
	VideoURL    string      `json:"videoUrl"`
	StartTime   int64       `json:"startTime"`
	Elapsed     int64       `json:"elapsed"`
	BettingOpen bool        `json:"bettingOpen"`
	RoundNumber int         `json:"roundNumber"`
	ServerTime  int64       `json:"serverTime"`
}

// TimeSync carries the authoritative elapsed time (periodic or on demand)
type TimeSync struct {
	Type        MessageType `json:"type"`
	Elapsed     int64       `json:"elapsed"`
	BettingOpen bool        `json:"bettingOpen"`
	ServerTime  int64       `json:"serverTime"`
}

type BettingClosed struct {
	Type       MessageType `json:"type"`
	Message    string      `json:"message"`
	TotalBets  int         `json:"totalBets"`
	ServerTime int64       `json:"serverTime"`
}

type BetConfirmed struct {
	Type       MessageType `json:"type"`
	Bet        string      `json:"bet"`
	Message    string      `json:"message"`
	ServerTime int64       `json:"serverTime"`
}

type BetRejected struct {
	Type       MessageType `json:"type"`
	Message    string      `json:"message"`
	ServerTime int64       `json:"serverTime"`
}

// GameEnd settles a round. BetStats maps choice to number of bets.
type GameEnd struct {
	Type       MessageType    `json:"type"`
	Message    string         `json:"message"`
	BetStats   map[string]int `json:"betStats"`
	ServerTime int64          `json:"serverTime"`
}

type Waiting struct {
	Type       MessageType `json:"type"`
	Message    string      `json:"message"`
	ServerTime int64       `json:"serverTime"`
}

type ServerShutdown struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// PlaceBet is sent by a client during the betting window
type PlaceBet struct {
	Type MessageType `json:"type"`
	Bet  string      `json:"bet"`
}

type TimeRequest struct {
	Type MessageType `json:"type"`
}

// Millis converts t to Unix milliseconds, the unit used on the wire
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// Encode marshals any message for the wire
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}
