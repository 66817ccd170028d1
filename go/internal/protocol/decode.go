package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

type envelope struct {
	Type MessageType `json:"type"`
}

// PeekType returns the type field of a raw message
func PeekType(data []byte) (MessageType, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env.Type, nil
}

// DecodeClient parses a message received by the server. The result is
// either a PlaceBet or a TimeRequest.
func DecodeClient(data []byte) (any, error) {
	msgType, err := PeekType(data)
	if err != nil {
		return nil, err
	}

	switch msgType {
	case TypePlaceBet:
		var msg PlaceBet
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil

	case TypeTimeRequest:
		return TimeRequest{Type: TypeTimeRequest}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, msgType)
	}
}

// DecodeServer parses a message received by a viewer
func DecodeServer(data []byte) (any, error) {
	msgType, err := PeekType(data)
	if err != nil {
		return nil, err
	}

	var target any
	switch msgType {
	case TypeGameStart:
		target = &GameStart{}
	case TypeGameSync:
		target = &GameSync{}
	case TypeTimeSync:
		target = &TimeSync{}
	case TypeBettingClosed:
		target = &BettingClosed{}
	case TypeBetConfirmed:
		target = &BetConfirmed{}
	case TypeBetRejected:
		target = &BetRejected{}
	case TypeGameEnd:
		target = &GameEnd{}
	case TypeWaiting:
		target = &Waiting{}
	case TypeServerShutdown:
		target = &ServerShutdown{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, msgType)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return target, nil
}
