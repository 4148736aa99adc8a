// Package transporttest provides an in-memory Stream that records every
// frame written to it, for tests of code that sends to connections.
package transporttest

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"tacboard/pkg/frame"
	"tacboard/pkg/types"
)

// Stream records writes and blocks reads until closed.
type Stream struct {
	mu       sync.Mutex
	dec      *frame.Decoder
	messages []*types.Message
	writeErr error
	closed   chan struct{}
	once     sync.Once
	addr     net.Addr
}

func NewStream(addr string) *Stream {
	return &Stream{
		dec:    frame.NewDecoder(),
		closed: make(chan struct{}),
		addr:   &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: portOf(addr)},
	}
}

func portOf(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	p, _ := net.LookupPort("tcp", port)
	return p
}

func (s *Stream) Read(p []byte) (int, error) {
	<-s.closed
	return 0, io.EOF
}

func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.dec.Feed(p)
	for {
		payload, err := s.dec.Next()
		if err != nil {
			if errors.Is(err, frame.ErrNeedMore) {
				return len(p), nil
			}
			return 0, err
		}
		msg, err := types.Decode(payload)
		if err != nil {
			return 0, err
		}
		s.messages = append(s.messages, msg)
	}
}

func (s *Stream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *Stream) SetWriteDeadline(time.Time) error { return nil }

func (s *Stream) RemoteAddr() net.Addr { return s.addr }

// FailWrites makes every later write return err.
func (s *Stream) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Messages returns the decoded messages written so far.
func (s *Stream) Messages() []*types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Message(nil), s.messages...)
}

// Reset drops recorded messages.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
