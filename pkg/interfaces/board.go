package interfaces

import (
	"context"

	"tacboard/pkg/types"
)

// Board exposes read access to the live board. Every call is answered by
// the processing goroutine, so results are consistent with message order.
type Board interface {
	Snapshot(ctx context.Context) (*types.Message, error)
	Resync(ctx context.Context, id int) error
	Stats() types.BoardStats
}
