// Package client is the headless core of a board client: it authenticates,
// mirrors server state from deltas and sends proposed edits.
package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"tacboard/internal/transport"
	"tacboard/pkg/frame"
	"tacboard/pkg/types"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// Options configures Dial.
type Options struct {
	Callsign string
	Password string

	// SkipSetup sends request_setup=false. The server then sends no snapshot.
	SkipSetup bool

	Handler        Handler
	Logger         *slog.Logger
	ReadBufferSize int
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
}

type stream interface {
	io.ReadWriteCloser
	SetWriteDeadline(t time.Time) error
}

// Client is one connection to a board server.
type Client struct {
	stream  stream
	reader  *frame.Reader
	opts    Options
	handler Handler
	log     *slog.Logger
	mirror  *Mirror

	writeMu       sync.Mutex
	closing       atomic.Bool
	closeOnce     sync.Once
	done          chan struct{}
	authenticated atomic.Bool
}

// Dial connects to addr, sends Init and starts the read loop. addr is
// host:port for TCP, or a ws:// or wss:// URL for the WebSocket bridge.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	if opts.Callsign == "" {
		return nil, ErrMissingCallsign
	}
	hello := &types.Message{Init: &types.Init{
		Callsign:     opts.Callsign,
		Password:     opts.Password,
		RequestSetup: !opts.SkipSetup,
	}}
	if err := hello.Validate(); err != nil {
		return nil, err
	}

	if opts.Handler == nil {
		opts.Handler = NopHandler{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	s, err := dialStream(ctx, addr, opts.DialTimeout)
	if err != nil {
		return nil, err
	}

	c := &Client{
		stream:  s,
		reader:  frame.NewReader(s, opts.ReadBufferSize),
		opts:    opts,
		handler: opts.Handler,
		log:     opts.Logger.With("addr", addr),
		mirror:  NewMirror(),
		done:    make(chan struct{}),
	}

	if err := c.send(hello); err != nil {
		_ = s.Close()
		return nil, err
	}
	c.log.Info("connected", "callsign", opts.Callsign)

	go c.readLoop()
	return c, nil
}

func dialStream(ctx context.Context, addr string, timeout time.Duration) (stream, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		dialer := websocket.Dialer{HandshakeTimeout: timeout}
		conn, _, err := dialer.DialContext(ctx, addr, nil)
		if err != nil {
			return nil, err
		}
		return transport.NewWebSocketStream(conn), nil
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// DialWithRetry retries Dial with exponential backoff until it succeeds,
// ctx ends or maxElapsed passes. Invalid options are not retried.
func DialWithRetry(ctx context.Context, addr string, opts Options, maxElapsed time.Duration) (*Client, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = maxElapsed

	var c *Client
	err := backoff.RetryNotify(func() error {
		var err error
		c, err = Dial(ctx, addr, opts)
		if errors.Is(err, types.ErrForbiddenMarker) || errors.Is(err, ErrMissingCallsign) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		if opts.Logger != nil {
			opts.Logger.Warn("connection refused, retrying", "addr", addr, "wait", wait, "err", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		payload, err := c.reader.ReadFrame()
		if err != nil {
			c.finish(err)
			return
		}

		msg, err := types.Decode(payload)
		if err != nil {
			c.log.Warn("dropped malformed message", "err", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) finish(err error) {
	_ = c.stream.Close()
	if c.closing.Load() {
		c.log.Debug("disconnected")
		return
	}

	reason := ReasonConnectionLost
	if errors.Is(err, io.EOF) {
		reason = ReasonServerClosed
	}
	c.log.Warn("connection ended", "reason", reason, "err", err)
	c.handler.OnDisconnected(reason)
}

func (c *Client) dispatch(msg *types.Message) {
	if msg.Status == types.StatusResync {
		c.mirror.Reset()
		c.mirror.Apply(msg)
		c.handler.OnResync(msg)
		return
	}
	if msg.Status != 0 {
		c.handler.OnStatus(msg.Status)
	}

	if meta := msg.Meta; meta != nil {
		switch {
		case meta.Password != nil && !*meta.Password:
			c.handler.OnAuthResult(false, ReasonPassword)
		case meta.Callsign != nil && !*meta.Callsign:
			c.handler.OnAuthResult(false, ReasonCallsign)
		case meta.Authenticated != nil && *meta.Authenticated:
			c.authenticated.Store(true)
			c.handler.OnAuthResult(true, "")
		}
	}

	if !msg.HasUpdates() {
		return
	}
	c.mirror.Apply(msg)

	if w := msg.Words; w != nil {
		if len(w.Add) > 0 {
			c.handler.OnWordsAdd(w.Add)
		}
		if len(w.Edit) > 0 {
			c.handler.OnWordsEdit(w.Edit)
		}
		if len(w.Remove) > 0 {
			c.handler.OnWordsRemove(types.Ints(w.Remove))
		}
	}
	if u := msg.Users; u != nil {
		if len(u.Add) > 0 {
			c.handler.OnUsersAdd(u.Add)
		}
		if len(u.Edit) > 0 {
			c.handler.OnUsersEdit(u.Edit)
		}
		if len(u.Remove) > 0 {
			c.handler.OnUsersRemove(types.Ints(u.Remove))
		}
	}
	if ch := msg.Chat; ch != nil && ch.Add != nil && len(ch.Add.Entries) > 0 {
		c.handler.OnChatAdd(ch.Add.Entries)
	}
}

// SendUpdate proposes a change. Text containing a protocol marker is
// refused with types.ErrForbiddenMarker and nothing is sent. The mirror
// is not touched until the server broadcasts the result.
func (c *Client) SendUpdate(msg *types.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.send(msg)
}

func (c *Client) send(msg *types.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if c.closing.Load() {
		return ErrClosed
	}

	msg.Stamp(time.Now())
	payload, err := types.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.stream.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	_, err = c.stream.Write(frame.Encode(payload))
	return err
}

func (c *Client) AddWord(idx int, text string) error {
	return c.SendUpdate(&types.Message{Words: &types.WordsSection{Add: types.TextEntries{{Index: idx, Text: text}}}})
}

func (c *Client) EditWord(idx int, text string) error {
	return c.SendUpdate(&types.Message{Words: &types.WordsSection{Edit: types.TextEntries{{Index: idx, Text: text}}}})
}

func (c *Client) RemoveWord(idx int) error {
	return c.SendUpdate(&types.Message{Words: &types.WordsSection{Remove: types.Indices([]int{idx})}})
}

func (c *Client) EditNote(id int, note string) error {
	return c.SendUpdate(&types.Message{Users: &types.UsersSection{Edit: types.UserEntries{{ID: id, Note: note}}}})
}

// SendChat sends one or more chat lines in a single message.
func (c *Client) SendChat(texts ...string) error {
	return c.SendUpdate(&types.Message{Chat: &types.ChatSection{Add: &types.ChatAdd{Texts: texts}}})
}

// Disconnect closes the connection and waits for the read loop to exit.
// OnDisconnected is not called for a local disconnect.
func (c *Client) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		err = c.stream.Close()
	})
	<-c.done
	return err
}

// Done is closed when the read loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Mirror() *Mirror {
	return c.mirror
}

// Authenticated reports whether the server accepted the Init.
func (c *Client) Authenticated() bool {
	return c.authenticated.Load()
}

// Callsign is the identity this client authenticated with.
func (c *Client) Callsign() string {
	return c.opts.Callsign
}
