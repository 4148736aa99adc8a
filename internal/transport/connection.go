package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"tacboard/pkg/frame"
	"tacboard/pkg/types"
)

// Stream is the byte transport under a Connection. *net.TCPConn satisfies
// it directly; WebSocket clients are adapted by NewWebSocketStream.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

// Connection is one client of the board.
// Writes are serialized and bounded by a deadline so a stalled peer cannot
// hold the processor indefinitely.
type Connection struct {
	stream       Stream
	reader       *frame.Reader
	id           int
	key          uuid.UUID
	addr         string
	writeTimeout time.Duration
	connectedAt  time.Time

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}

	mu       sync.RWMutex
	callsign string
}

// NewConnection wraps stream. id is the wire user id of the connection.
func NewConnection(stream Stream, id int, writeTimeout time.Duration, readSize int) *Connection {
	addr := ""
	if ra := stream.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &Connection{
		stream:       stream,
		reader:       frame.NewReader(stream, readSize),
		id:           id,
		key:          uuid.New(),
		addr:         addr,
		writeTimeout: writeTimeout,
		connectedAt:  time.Now(),
		closed:       make(chan struct{}),
	}
}

func (c *Connection) ID() int { return c.id }

// Key is an opaque handle that stays unique across server restarts.
func (c *Connection) Key() uuid.UUID { return c.key }

func (c *Connection) Addr() string { return c.addr }

func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// String identifies the connection in logs as "<id>-<addr>".
func (c *Connection) String() string {
	return formatID(c.id, c.addr)
}

func (c *Connection) Callsign() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.callsign
}

func (c *Connection) SetCallsign(callsign string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callsign = callsign
}

// ReadFrame blocks for the next payload. Only the connection's reader
// goroutine may call it.
func (c *Connection) ReadFrame() ([]byte, error) {
	return c.reader.ReadFrame()
}

// Send stamps, encodes and writes a single message.
func (c *Connection) Send(msg *types.Message) error {
	msg.Stamp(time.Now())
	payload, err := types.Encode(msg)
	if err != nil {
		return err
	}
	return c.WriteFrame(frame.Encode(payload))
}

// WriteFrame writes already framed bytes.
func (c *Connection) WriteFrame(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.stream.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}

	if _, err := c.stream.Write(data); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return ErrWriteTimeout
		}
		return err
	}
	return nil
}

// Close is idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.stream.Close()
	})
	return err
}

// Done is closed once Close has been called.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}
