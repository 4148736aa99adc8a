package interfaces

import "tacboard/pkg/types"

// Peer is one connected board client as seen by message handling code.
// Implementations must serialize writes.
type Peer interface {
	// ID is the integer user id carried on the wire.
	ID() int

	// Callsign is empty until the peer authenticates.
	Callsign() string

	// Send stamps and writes a single message.
	Send(msg *types.Message) error

	// WriteFrame writes bytes that are already framed.
	WriteFrame(data []byte) error

	String() string
}
