package viewer

import "errors"

var (
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrNotConnected       = errors.New("not connected to server")
	ErrBettingClosed      = errors.New("betting is closed")
	ErrAlreadyBet         = errors.New("bet already placed")
	ErrClosed             = errors.New("client closed")
)
