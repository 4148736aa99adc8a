// Package frame implements the length-prefixed wire framing shared by the
// server and the client: "†" + decimal payload length + "‡" + payload.
package frame

import (
	"bytes"
	"fmt"
	"strconv"
)

// Protocol control markers. Both are three bytes in UTF-8.
const (
	HeaderStart = "†" // † E2 80 A0
	HeaderEnd   = "‡" // ‡ E2 80 A1
)

var (
	headerStart = []byte(HeaderStart)
	headerEnd   = []byte(HeaderEnd)
)

// maxHeaderLen bounds the bytes that may precede a header end marker.
// A decimal length never needs more than 19 digits.
const maxHeaderLen = len(HeaderStart) + 19 + len(HeaderEnd)

// DefaultMaxPayload is the largest payload a Decoder accepts unless configured otherwise.
const DefaultMaxPayload = 16 << 20

// Encode frames a payload for the wire.
func Encode(payload []byte) []byte {
	length := strconv.Itoa(len(payload))
	out := make([]byte, 0, len(headerStart)+len(length)+len(headerEnd)+len(payload))
	out = append(out, headerStart...)
	out = append(out, length...)
	out = append(out, headerEnd...)
	return append(out, payload...)
}

// Decoder reassembles payloads from arbitrarily split stream reads.
// It never blocks and is not safe for concurrent use.
type Decoder struct {
	buf        []byte
	expected   int
	hasHeader  bool
	MaxPayload int
}

// NewDecoder returns a Decoder with the default payload limit.
func NewDecoder() *Decoder {
	return &Decoder{MaxPayload: DefaultMaxPayload}
}

// Feed appends bytes received from the transport.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered reports how many bytes are held but not yet emitted.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next returns the next complete payload. It returns ErrNeedMore when the
// buffer holds no complete frame and an error wrapping ErrFraming when the
// stream violates the framing rules. Callers loop on Next after every Feed
// since one read may carry several frames.
func (d *Decoder) Next() ([]byte, error) {
	if !d.hasHeader {
		if err := d.parseHeader(); err != nil {
			return nil, err
		}
	}

	if len(d.buf) < d.expected {
		return nil, ErrNeedMore
	}

	payload := make([]byte, d.expected)
	copy(payload, d.buf[:d.expected])
	d.buf = d.buf[d.expected:]
	d.expected = 0
	d.hasHeader = false

	if len(d.buf) == 0 {
		d.buf = nil
	}
	return payload, nil
}

func (d *Decoder) parseHeader() error {
	end := bytes.Index(d.buf, headerEnd)
	if end < 0 {
		if len(d.buf) > maxHeaderLen {
			return fmt.Errorf("%w: no header end marker within %d bytes", ErrFraming, maxHeaderLen)
		}
		return ErrNeedMore
	}

	if !bytes.HasPrefix(d.buf, headerStart) {
		return fmt.Errorf("%w: expected header start marker, got %q", ErrFraming, preview(d.buf))
	}

	digits := d.buf[len(headerStart):end]
	length, err := strconv.Atoi(string(digits))
	if err != nil || length < 0 {
		return fmt.Errorf("%w: invalid payload length %q", ErrFraming, digits)
	}

	limit := d.MaxPayload
	if limit <= 0 {
		limit = DefaultMaxPayload
	}
	if length > limit {
		return fmt.Errorf("%w: payload length %d exceeds limit %d", ErrFraming, length, limit)
	}

	d.buf = d.buf[end+len(headerEnd):]
	d.expected = length
	d.hasHeader = true
	return nil
}

func preview(b []byte) []byte {
	if len(b) > 16 {
		return b[:16]
	}
	return b
}
