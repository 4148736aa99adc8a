package server

import "errors"

var (
	ErrServerClosed = errors.New("server is shut down")
	ErrNotListening = errors.New("server is not listening")
)
