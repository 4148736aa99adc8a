package transport

import (
	"sort"
	"strconv"
	"sync"

	"github.com/samber/lo"
)

// State is a connection's membership in the registry.
type State int

const (
	StateUnknown State = iota
	StatePending
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Registry tracks pending and authenticated connections. The two sets are
// mutually exclusive. Removal is idempotent so reader teardown can race
// the processor safely.
type Registry struct {
	mu            sync.RWMutex
	pending       map[int]*Connection
	authenticated map[int]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		pending:       make(map[int]*Connection),
		authenticated: make(map[int]*Connection),
	}
}

// AddPending registers a freshly accepted connection.
func (r *Registry) AddPending(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[conn.ID()]; ok {
		return ErrDuplicateConnection
	}
	if _, ok := r.authenticated[conn.ID()]; ok {
		return ErrDuplicateConnection
	}
	r.pending[conn.ID()] = conn
	return nil
}

// Promote moves a pending connection to the authenticated set.
func (r *Registry) Promote(id int) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.pending[id]
	if !ok {
		return nil, ErrNotPending
	}
	delete(r.pending, id)
	r.authenticated[id] = conn
	return conn, nil
}

// Remove drops id from whichever set holds it and reports the state it
// was in. Removing an unknown id returns StateUnknown.
func (r *Registry) Remove(id int) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.authenticated[id]; ok {
		delete(r.authenticated, id)
		return StateAuthenticated
	}
	if _, ok := r.pending[id]; ok {
		delete(r.pending, id)
		return StatePending
	}
	return StateUnknown
}

// StateOf returns the membership of id.
func (r *Registry) StateOf(id int) State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.authenticated[id]; ok {
		return StateAuthenticated
	}
	if _, ok := r.pending[id]; ok {
		return StatePending
	}
	return StateUnknown
}

// Get looks up a connection in either set.
func (r *Registry) Get(id int) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if conn, ok := r.authenticated[id]; ok {
		return conn, true
	}
	conn, ok := r.pending[id]
	return conn, ok
}

// Authenticated returns the authenticated connections ordered by id.
func (r *Registry) Authenticated() []*Connection {
	r.mu.RLock()
	conns := lo.Values(r.authenticated)
	r.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].ID() < conns[j].ID() })
	return conns
}

// Clear empties both sets and returns every connection that was held.
func (r *Registry) Clear() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := append(lo.Values(r.pending), lo.Values(r.authenticated)...)
	r.pending = make(map[int]*Connection)
	r.authenticated = make(map[int]*Connection)
	return all
}

// GetStats returns registry counters for monitoring.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"pending":       len(r.pending),
		"authenticated": len(r.authenticated),
	}
}

func formatID(id int, addr string) string {
	return strconv.Itoa(id) + "-" + addr
}
