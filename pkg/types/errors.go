package types

import "errors"

var (
	ErrInvalidMessage   = errors.New("invalid message")
	ErrForbiddenMarker  = errors.New("text contains a reserved protocol marker")
	ErrCallsignTooShort = errors.New("callsign must be at least 3 characters")
)
