package client

import "errors"

var (
	ErrClosed          = errors.New("client is closed")
	ErrMissingCallsign = errors.New("callsign is required")
)
