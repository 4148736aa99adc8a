package transport

import "errors"

var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrDuplicateConnection = errors.New("connection id already registered")
	ErrNotPending          = errors.New("connection is not pending")
	ErrConnectionClosed    = errors.New("connection is closed")
	ErrWriteTimeout        = errors.New("write timeout")
)
