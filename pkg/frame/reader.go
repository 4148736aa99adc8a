package frame

import (
	"errors"
	"io"
)

// DefaultReadSize is the per-call receive size.
const DefaultReadSize = 4096

// Reader pulls complete payloads out of a byte stream.
type Reader struct {
	r       io.Reader
	dec     *Decoder
	scratch []byte
}

// NewReader wraps r. readSize <= 0 selects DefaultReadSize.
func NewReader(r io.Reader, readSize int) *Reader {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	return &Reader{
		r:       r,
		dec:     NewDecoder(),
		scratch: make([]byte, readSize),
	}
}

// Decoder exposes the underlying decoder so callers can tune limits.
func (r *Reader) Decoder() *Decoder {
	return r.dec
}

// ReadFrame blocks until a full payload is available. A closed stream is
// reported as io.EOF, distinct from framing violations (ErrFraming) and
// transport errors, which are returned unchanged.
func (r *Reader) ReadFrame() ([]byte, error) {
	for {
		payload, err := r.dec.Next()
		if err == nil {
			return payload, nil
		}
		if !errors.Is(err, ErrNeedMore) {
			return nil, err
		}

		n, readErr := r.r.Read(r.scratch)
		if n > 0 {
			r.dec.Feed(r.scratch[:n])
			continue
		}
		if readErr == nil {
			// empty read
			return nil, io.EOF
		}
		return nil, readErr
	}
}
