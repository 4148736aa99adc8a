package client

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"tacboard/pkg/types"
)

// Mirror is the client's read-only copy of the board. It changes only when
// the server sends a delta or a snapshot.
type Mirror struct {
	mu    sync.RWMutex
	words map[int]string
	users map[int]types.UserEntry
	chat  map[int]types.ChatEntry
}

func NewMirror() *Mirror {
	m := &Mirror{}
	m.Reset()
	return m
}

// Reset discards all mirrored state.
func (m *Mirror) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.words = make(map[int]string)
	m.users = make(map[int]types.UserEntry)
	m.chat = make(map[int]types.ChatEntry)
}

// Apply merges the state sections of msg.
func (m *Mirror) Apply(msg *types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w := msg.Words; w != nil {
		for _, e := range w.Add {
			m.words[e.Index] = e.Text
		}
		for _, e := range w.Edit {
			m.words[e.Index] = e.Text
		}
		for _, idx := range types.Ints(w.Remove) {
			delete(m.words, idx)
		}
	}

	if u := msg.Users; u != nil {
		for _, e := range u.Add {
			m.users[e.ID] = e
		}
		for _, e := range u.Edit {
			cur, ok := m.users[e.ID]
			if !ok || e.Callsign != "" {
				cur = e
			}
			cur.Note = e.Note
			m.users[e.ID] = cur
		}
		for _, id := range types.Ints(u.Remove) {
			delete(m.users, id)
		}
	}

	if c := msg.Chat; c != nil && c.Add != nil {
		for _, e := range c.Add.Entries {
			m.chat[e.Seq] = e
		}
	}
}

func (m *Mirror) Word(idx int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.words[idx]
	return text, ok
}

func (m *Mirror) User(id int) (types.UserEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok
}

// Words returns the board ordered by index.
func (m *Mirror) Words() types.TextEntries {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Map(sortedKeys(m.words), func(idx int, _ int) types.TextEntry {
		return types.TextEntry{Index: idx, Text: m.words[idx]}
	})
}

// Users returns the roster ordered by id.
func (m *Mirror) Users() types.UserEntries {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Map(sortedKeys(m.users), func(id int, _ int) types.UserEntry {
		return m.users[id]
	})
}

// Chat returns the chat log ordered by sequence number.
func (m *Mirror) Chat() types.ChatEntries {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Map(sortedKeys(m.chat), func(seq int, _ int) types.ChatEntry {
		return m.chat[seq]
	})
}

func sortedKeys[V any](m map[int]V) []int {
	keys := lo.Keys(m)
	sort.Ints(keys)
	return keys
}
