package interfaces

import "tacboard/pkg/types"

// Outbox delivers server messages. Delivery is best effort: a failed write
// to one peer is logged and never stops delivery to the others.
type Outbox interface {
	// Broadcast sends msg to every authenticated peer and returns how many
	// writes succeeded.
	Broadcast(msg *types.Message) int

	// Reply sends msg to a single peer.
	Reply(to Peer, msg *types.Message)
}
