package round

import "errors"

var (
	ErrBettingClosed = errors.New("betting closed")
	ErrDuplicateBet  = errors.New("bet already placed")
	ErrInvalidChoice = errors.New("invalid bet choice")
	ErrUnknownClient = errors.New("unknown connection")
	ErrInvalidConfig = errors.New("invalid round configuration")
)
