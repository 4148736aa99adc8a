// Package hub owns the message queue and the single goroutine that applies
// every state change. Readers enqueue; only the processor touches the store.
package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tacboard/internal/auth"
	"tacboard/internal/logger"
	"tacboard/internal/router"
	"tacboard/internal/state"
	"tacboard/internal/transport"
	"tacboard/pkg/frame"
	"tacboard/pkg/interfaces"
	"tacboard/pkg/types"
)

// DefaultQueueSize is used when Options.QueueSize is not positive.
const DefaultQueueSize = 1000

type envelopeKind int

const (
	kindMessage envelopeKind = iota
	kindDisconnect
	kindCall
)

// envelope is one queue item. The queue preserves per-connection order
// because each reader enqueues sequentially.
type envelope struct {
	kind envelopeKind
	conn *transport.Connection
	msg  *types.Message
	fn   func()
}

// Options configures a Hub.
type Options struct {
	QueueSize int
	Journal   interfaces.Journal
	Limiter   *router.RateLimiter
	Logger    *logger.Logger
}

// Hub serializes message processing for one board.
type Hub struct {
	queue    chan envelope
	shutdown chan struct{}
	wg       sync.WaitGroup

	registry *transport.Registry
	store    *state.Store
	auth     *auth.Authenticator
	router   *router.Router
	journal  interfaces.Journal
	log      *logger.Logger

	running bool
	mu      sync.RWMutex

	processed    atomic.Uint64
	broadcasts   atomic.Uint64
	sendFailures atomic.Uint64

	words atomic.Int64
	users atomic.Int64
	chat  atomic.Int64
}

func NewHub(registry *transport.Registry, store *state.Store, authenticator *auth.Authenticator, opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Journal == nil {
		opts.Journal = interfaces.NopJournal{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	return &Hub{
		queue:    make(chan envelope, opts.QueueSize),
		shutdown: make(chan struct{}),
		registry: registry,
		store:    store,
		auth:     authenticator,
		router:   router.NewRouter(store, opts.Journal, opts.Limiter, opts.Logger.WithPrefix("router")),
		journal:  opts.Journal,
		log:      opts.Logger,
	}
}

// Start launches the processing goroutine. A hub cannot be restarted.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	select {
	case <-h.shutdown:
		return ErrHubNotRunning
	default:
	}
	h.running = true

	h.log.Info("Starting message processor")
	h.wg.Add(1)
	go h.run(ctx)
	return nil
}

// Stop ends processing and waits for the processor to exit. Queued items
// that were not yet processed are dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	h.mu.Unlock()

	h.log.Info("Stopping message processor")
	h.wg.Wait()
	return nil
}

// Enqueue hands a decoded message to the processor. It blocks while the
// queue is full.
func (h *Hub) Enqueue(ctx context.Context, conn *transport.Connection, msg *types.Message) error {
	if conn == nil {
		return ErrNilConnection
	}
	return h.push(ctx, envelope{kind: kindMessage, conn: conn, msg: msg})
}

// Disconnect asks the processor to forget conn and announce the departure.
// Calling it more than once for the same connection is harmless.
func (h *Hub) Disconnect(ctx context.Context, conn *transport.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	return h.push(ctx, envelope{kind: kindDisconnect, conn: conn})
}

func (h *Hub) push(ctx context.Context, env envelope) error {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return ErrHubNotRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case h.queue <- env:
		return nil
	case <-h.shutdown:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the processor and waits for it to finish.
func (h *Hub) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := h.push(ctx, envelope{kind: kindCall, fn: func() {
		defer close(done)
		fn()
	}}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-h.shutdown:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) run(ctx context.Context) {
	defer h.wg.Done()
	defer h.log.Info("Message processor stopped")

	for {
		select {
		case env := <-h.queue:
			h.dispatch(env)
		case <-h.shutdown:
			return
		case <-ctx.Done():
			h.log.Info("Processor context cancelled")
			return
		}
	}
}

func (h *Hub) dispatch(env envelope) {
	switch env.kind {
	case kindMessage:
		h.handleMessage(env.conn, env.msg)
		h.processed.Add(1)
	case kindDisconnect:
		h.handleDisconnect(env.conn)
	case kindCall:
		env.fn()
	}
	h.refreshCounts()
}

func (h *Hub) handleMessage(conn *transport.Connection, msg *types.Message) {
	switch h.registry.StateOf(conn.ID()) {
	case transport.StatePending:
		h.handlePending(conn, msg)
	case transport.StateAuthenticated:
		if err := h.router.Route(conn, msg, h); err != nil {
			if errors.Is(err, router.ErrRateLimitExceeded) {
				h.log.Warn("Dropped message from %s: %v", conn, err)
				return
			}
			h.log.Error("Failed to route message from %s: %v", conn, err)
		}
	default:
		h.log.Detail("Dropped message from departed connection %s", conn)
	}
}

func (h *Hub) handlePending(conn *transport.Connection, msg *types.Message) {
	if msg.Init == nil {
		h.log.Warn("Unauthenticated message from %s", conn)
		h.Reply(conn, types.StatusMessage(types.StatusUnauthenticated))
		return
	}

	decision, err := h.auth.Authenticate(msg.Init)
	if err != nil {
		h.log.Error("Authentication of %s failed: %v", conn, err)
		return
	}
	h.recordAuth(conn, decision)

	if !decision.Accepted() {
		h.log.Info("Rejected %s: %s", conn, decision.Outcome)
		h.Reply(conn, decision.Reply)
		return
	}

	h.log.Info("Authenticated %s as %s", conn, decision.Callsign)

	joined := types.UserEntry{ID: conn.ID(), Callsign: decision.Callsign, Note: types.DefaultNote}
	h.Broadcast(&types.Message{Users: &types.UsersSection{Add: types.UserEntries{joined}}})

	if _, err := h.registry.Promote(conn.ID()); err != nil {
		h.log.Error("Failed to promote %s: %v", conn, err)
		return
	}
	conn.SetCallsign(decision.Callsign)
	h.store.AddUser(conn.ID(), decision.Callsign)

	h.Reply(conn, types.MetaMessage("authenticated", true))

	if decision.RequestSetup {
		h.sendSnapshot(conn)
	} else {
		h.log.Warn("%s did not request setup", conn)
	}

	if msg.HasUpdates() {
		h.log.Debug("Ignored state sections sent with Init by %s", conn)
	}
}

func (h *Hub) handleDisconnect(conn *transport.Connection) {
	prev := h.registry.Remove(conn.ID())
	h.router.Forget(conn.ID())

	if err := conn.Close(); err != nil {
		h.log.Detail("Close of %s returned: %v", conn, err)
	}

	if prev != transport.StateAuthenticated {
		h.log.Debug("Removed %s connection %s", prev, conn)
		return
	}

	h.store.RemoveUser(conn.ID())
	h.log.Info("User %s (%s) left", conn, conn.Callsign())
	h.Broadcast(&types.Message{Users: &types.UsersSection{Remove: types.Indices([]int{conn.ID()})}})
}

func (h *Hub) sendSnapshot(conn interfaces.Peer) {
	snapshot := h.store.Snapshot()
	snapshot.Status = types.StatusResync
	h.Reply(conn, snapshot)
}

func (h *Hub) recordAuth(conn *transport.Connection, decision auth.Decision) {
	h.journal.Record(&types.JournalEntry{
		ID:            uuid.NewString(),
		ConnectionID:  conn.ID(),
		ConnectionKey: conn.Key().String(),
		Callsign:      decision.Callsign,
		Section:       types.SectionInit,
		Verb:          decision.Outcome.String(),
		CreatedAt:     time.Now(),
	})
}

// Broadcast writes msg to every authenticated connection. The message is
// encoded once. A failed write is logged and delivery continues.
func (h *Hub) Broadcast(msg *types.Message) int {
	msg.Stamp(time.Now())
	payload, err := types.Encode(msg)
	if err != nil {
		h.log.Error("Failed to encode broadcast: %v", err)
		return 0
	}
	data := frame.Encode(payload)
	h.broadcasts.Add(1)

	delivered := 0
	for _, conn := range h.registry.Authenticated() {
		if err := conn.WriteFrame(data); err != nil {
			h.sendFailures.Add(1)
			h.log.Warn("Broadcast to %s failed: %v", conn, err)
			continue
		}
		delivered++
	}
	h.log.Trace("Broadcast delivered to %d connections", delivered)
	return delivered
}

// Reply sends msg to one peer, logging a failed write.
func (h *Hub) Reply(to interfaces.Peer, msg *types.Message) {
	if err := to.Send(msg); err != nil {
		h.sendFailures.Add(1)
		h.log.Warn("Reply to %s failed: %v", to, err)
	}
}

// Snapshot returns the board as a resync message would carry it.
func (h *Hub) Snapshot(ctx context.Context) (*types.Message, error) {
	var snapshot *types.Message
	if err := h.call(ctx, func() { snapshot = h.store.Snapshot() }); err != nil {
		return nil, err
	}
	snapshot.Status = types.StatusResync
	return snapshot, nil
}

// Resync pushes a fresh snapshot to the authenticated connection id.
func (h *Hub) Resync(ctx context.Context, id int) error {
	var result error
	err := h.call(ctx, func() {
		conn, ok := h.registry.Get(id)
		if !ok || h.registry.StateOf(id) != transport.StateAuthenticated {
			result = ErrNotAuthenticated
			return
		}
		h.log.Info("Resync requested for %s", conn)
		h.sendSnapshot(conn)
	})
	if err != nil {
		return err
	}
	return result
}

// Stats reads counters without going through the queue. Board counts lag
// the processor by at most one item.
func (h *Hub) Stats() types.BoardStats {
	reg := h.registry.GetStats()
	return types.BoardStats{
		Pending:           reg["pending"],
		Authenticated:     reg["authenticated"],
		Words:             int(h.words.Load()),
		Users:             int(h.users.Load()),
		Chat:              int(h.chat.Load()),
		MessagesProcessed: h.processed.Load(),
		Broadcasts:        h.broadcasts.Load(),
		SendFailures:      h.sendFailures.Load(),
		QueueDepth:        len(h.queue),
	}
}

func (h *Hub) refreshCounts() {
	words, users, chat := h.store.Counts()
	h.words.Store(int64(words))
	h.users.Store(int64(users))
	h.chat.Store(int64(chat))
}
