package frame

import "errors"

var (
	// ErrNeedMore means the buffered bytes do not yet hold a complete frame.
	ErrNeedMore = errors.New("frame: need more data")

	// ErrFraming is a protocol violation; the connection must be aborted.
	ErrFraming = errors.New("frame: framing violation")
)
