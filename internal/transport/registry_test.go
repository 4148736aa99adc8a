package transport

import (
	"sync"
	"testing"

	"tacboard/internal/transport/transporttest"
)

func newTestConnection(id int) *Connection {
	return NewConnection(transporttest.NewStream("127.0.0.1:5000"), id, 0, 0)
}

// TestRegistry_Lifecycle tests functional validation - accept, promote, remove
func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry()
	conn := newTestConnection(1)

	if err := r.AddPending(conn); err != nil {
		t.Fatalf("AddPending failed: %v", err)
	}
	if got := r.StateOf(1); got != StatePending {
		t.Errorf("Expected pending, got %s", got)
	}
	if err := r.AddPending(conn); err != ErrDuplicateConnection {
		t.Errorf("Expected ErrDuplicateConnection, got %v", err)
	}

	promoted, err := r.Promote(1)
	if err != nil || promoted != conn {
		t.Fatalf("Promote failed: %v", err)
	}
	if got := r.StateOf(1); got != StateAuthenticated {
		t.Errorf("Expected authenticated, got %s", got)
	}
	if _, err := r.Promote(1); err != ErrNotPending {
		t.Errorf("Expected ErrNotPending on second promote, got %v", err)
	}

	if got := r.Remove(1); got != StateAuthenticated {
		t.Errorf("Expected removal from authenticated, got %s", got)
	}
	if got := r.Remove(1); got != StateUnknown {
		t.Errorf("Second removal should be a no-op, got %s", got)
	}
	if _, ok := r.Get(1); ok {
		t.Error("Removed connection should not be found")
	}
}

func TestRegistry_AddNil(t *testing.T) {
	if err := NewRegistry().AddPending(nil); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}
}

func TestRegistry_AuthenticatedOrdered(t *testing.T) {
	r := NewRegistry()
	for _, id := range []int{5, 2, 9, 7} {
		_ = r.AddPending(newTestConnection(id))
	}
	for _, id := range []int{9, 2, 5} {
		if _, err := r.Promote(id); err != nil {
			t.Fatal(err)
		}
	}

	conns := r.Authenticated()
	if len(conns) != 3 {
		t.Fatalf("Expected 3 authenticated, got %d", len(conns))
	}
	for i, want := range []int{2, 5, 9} {
		if conns[i].ID() != want {
			t.Errorf("Position %d: expected id %d, got %d", i, want, conns[i].ID())
		}
	}

	stats := r.GetStats()
	if stats["pending"] != 1 || stats["authenticated"] != 3 {
		t.Errorf("Unexpected stats: %v", stats)
	}

	if all := r.Clear(); len(all) != 4 {
		t.Errorf("Clear should return 4 connections, got %d", len(all))
	}
	if stats := r.GetStats(); stats["pending"] != 0 || stats["authenticated"] != 0 {
		t.Errorf("Registry should be empty after Clear: %v", stats)
	}
}

// TestRegistry_ConcurrentRemove tests technical validation - removal races are harmless
func TestRegistry_ConcurrentRemove(t *testing.T) {
	r := NewRegistry()
	for id := 1; id <= 50; id++ {
		_ = r.AddPending(newTestConnection(id))
		if id%2 == 0 {
			_, _ = r.Promote(id)
		}
	}

	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := 1; id <= 50; id++ {
				r.Remove(id)
				_ = r.Authenticated()
			}
		}()
	}
	wg.Wait()

	if stats := r.GetStats(); stats["pending"] != 0 || stats["authenticated"] != 0 {
		t.Errorf("Expected empty registry, got %v", stats)
	}
}
