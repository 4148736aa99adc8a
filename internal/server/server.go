// Package server runs the TCP board listener: one accept loop and one
// reader goroutine per connection, all feeding the hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"tacboard/internal/config"
	"tacboard/internal/hub"
	"tacboard/internal/logger"
	"tacboard/internal/transport"
	"tacboard/pkg/frame"
	"tacboard/pkg/types"
)

// Server accepts board clients and feeds their messages to the hub.
type Server struct {
	cfg      *config.ServerConfig
	hub      *hub.Hub
	registry *transport.Registry
	log      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener *net.TCPListener

	nextID   atomic.Int64
	shutdown atomic.Bool
	readers  sync.WaitGroup
}

func New(cfg *config.ServerConfig, h *hub.Hub, registry *transport.Registry, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		hub:      h,
		registry: registry,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Listen binds the configured address. A bind failure is returned to the
// caller, which treats it as fatal.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}
	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("Listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until ctx is cancelled or Shutdown is called.
// Accept waits at most AcceptTimeout so the shutdown flag is observed.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return ErrNotListening
	}

	timeout := s.cfg.AcceptTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	for {
		if s.shutdown.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := listener.SetDeadline(time.Now().Add(timeout)); err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return fmt.Errorf("set accept deadline: %w", err)
		}

		tcpConn, err := listener.AcceptTCP()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Trace("Accept timed out")
				continue
			}
			if errors.Is(err, net.ErrClosed) || s.shutdown.Load() {
				return nil
			}
			s.log.Error("Accept failed: %v", err)
			continue
		}

		if _, err := s.Attach(tcpConn); err != nil {
			s.log.Warn("Refused %s: %v", tcpConn.RemoteAddr(), err)
		}
	}
}

// Attach registers an already established stream as a pending connection
// and starts its reader. The WebSocket bridge uses it too.
func (s *Server) Attach(stream transport.Stream) (*transport.Connection, error) {
	if s.shutdown.Load() {
		_ = stream.Close()
		return nil, ErrServerClosed
	}

	id := int(s.nextID.Add(1))
	conn := transport.NewConnection(stream, id, s.cfg.WriteTimeout, s.cfg.ReadBuffer)
	if err := s.registry.AddPending(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.log.Info("Accepted connection %s", conn)
	s.readers.Add(1)
	go s.readLoop(conn)
	return conn, nil
}

func (s *Server) readLoop(conn *transport.Connection) {
	defer s.readers.Done()
	defer s.release(conn)

	for {
		payload, err := conn.ReadFrame()
		if err != nil {
			s.logReadError(conn, err)
			return
		}

		msg, err := types.Decode(payload)
		if err != nil {
			s.log.Warn("Dropped malformed message from %s: %v", conn, err)
			continue
		}
		s.log.Trace("Received from %s: %s", conn, payload)

		if err := s.hub.Enqueue(s.ctx, conn, msg); err != nil {
			s.log.Debug("Stopped reading %s: %v", conn, err)
			return
		}
	}
}

func (s *Server) logReadError(conn *transport.Connection, err error) {
	select {
	case <-conn.Done():
		s.log.Debug("Connection %s closed locally", conn)
		return
	default:
	}

	switch {
	case errors.Is(err, io.EOF):
		s.log.Info("Connection %s closed by peer", conn)
	case errors.Is(err, frame.ErrFraming):
		s.log.Warn("Dropping %s: %v", conn, err)
	default:
		s.log.Warn("Connection %s lost: %v", conn, err)
	}
}

// release tears a connection down. If the hub is gone the registry entry
// is removed directly.
func (s *Server) release(conn *transport.Connection) {
	_ = conn.Close()
	if err := s.hub.Disconnect(s.ctx, conn); err != nil {
		s.registry.Remove(conn.ID())
	}
}

// Shutdown stops accepting, closes every connection and waits for the
// reader goroutines until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	s.log.Info("Shutting down board listener")

	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()

	for _, conn := range s.registry.Clear() {
		_ = conn.Close()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
