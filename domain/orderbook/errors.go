package orderbook

import "errors"

var (
	ErrStaleUpdate       = errors.New("stale update")
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrDesynced          = errors.New("instrument desynced")
	ErrInvalidLevel      = errors.New("invalid level")
	ErrInvalidUpdate     = errors.New("invalid update")
)
