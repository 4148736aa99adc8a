// Package state holds the authoritative board: WORDS, the user roster and
// the chat log. A Store is owned by the single processing goroutine and
// performs no locking of its own.
package state

import (
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"tacboard/pkg/types"
)

// ChatTimeLayout is the wall clock format stamped on chat lines.
const ChatTimeLayout = "15:04:05"

type userRecord struct {
	callsign string
	note     string
}

type Store struct {
	words   map[int]string
	users   map[int]userRecord
	chat    map[int]types.ChatEntry
	nextSeq int
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		words: make(map[int]string),
		users: make(map[int]userRecord),
		chat:  make(map[int]types.ChatEntry),
		now:   time.Now,
	}
}

// SetClock replaces the time source used for chat timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// AddWord fails with ErrWordExists if idx is occupied.
func (s *Store) AddWord(idx int, text string) error {
	if !types.IsValidWordIndex(idx) {
		return fmt.Errorf("%w: %d", ErrWordIndexRange, idx)
	}
	if _, ok := s.words[idx]; ok {
		return fmt.Errorf("%w: %d", ErrWordExists, idx)
	}
	s.words[idx] = text
	return nil
}

// EditWord fails with ErrWordNotFound if idx is empty.
func (s *Store) EditWord(idx int, text string) error {
	if !types.IsValidWordIndex(idx) {
		return fmt.Errorf("%w: %d", ErrWordIndexRange, idx)
	}
	if _, ok := s.words[idx]; !ok {
		return fmt.Errorf("%w: %d", ErrWordNotFound, idx)
	}
	s.words[idx] = text
	return nil
}

// RemoveWord fails with ErrWordNotFound if idx is empty.
func (s *Store) RemoveWord(idx int) error {
	if !types.IsValidWordIndex(idx) {
		return fmt.Errorf("%w: %d", ErrWordIndexRange, idx)
	}
	if _, ok := s.words[idx]; !ok {
		return fmt.Errorf("%w: %d", ErrWordNotFound, idx)
	}
	delete(s.words, idx)
	return nil
}

func (s *Store) Word(idx int) (string, bool) {
	text, ok := s.words[idx]
	return text, ok
}

// AddUser creates the roster record for a newly authenticated connection.
func (s *Store) AddUser(id int, callsign string) types.UserEntry {
	s.users[id] = userRecord{callsign: callsign, note: types.DefaultNote}
	return types.UserEntry{ID: id, Callsign: callsign, Note: types.DefaultNote}
}

// RemoveUser reports whether a record existed.
func (s *Store) RemoveUser(id int) bool {
	if _, ok := s.users[id]; !ok {
		return false
	}
	delete(s.users, id)
	return true
}

// EditUserNote replaces the note; the callsign never changes.
func (s *Store) EditUserNote(id int, note string) (types.UserEntry, error) {
	rec, ok := s.users[id]
	if !ok {
		return types.UserEntry{}, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	rec.note = note
	s.users[id] = rec
	return types.UserEntry{ID: id, Callsign: rec.callsign, Note: note}, nil
}

func (s *Store) User(id int) (types.UserEntry, bool) {
	rec, ok := s.users[id]
	if !ok {
		return types.UserEntry{}, false
	}
	return types.UserEntry{ID: id, Callsign: rec.callsign, Note: rec.note}, true
}

// ChatTimestamp returns the current wall clock in chat format.
func (s *Store) ChatTimestamp() string {
	return s.now().Format(ChatTimeLayout)
}

// AppendChat stores a line under the next sequence number. Sequence
// numbers start at 0 and are never reused.
func (s *Store) AppendChat(timestamp, label, text string) types.ChatEntry {
	entry := types.ChatEntry{Seq: s.nextSeq, Time: timestamp, Label: label, Text: text}
	s.chat[entry.Seq] = entry
	s.nextSeq++
	return entry
}

// Counts returns the number of words, users and chat lines.
func (s *Store) Counts() (words, users, chat int) {
	return len(s.words), len(s.users), len(s.chat)
}

// Snapshot builds the full resync message, keys in ascending order.
func (s *Store) Snapshot() *types.Message {
	words := make(types.TextEntries, 0, len(s.words))
	for _, idx := range sortedKeys(s.words) {
		words = append(words, types.TextEntry{Index: idx, Text: s.words[idx]})
	}

	users := make(types.UserEntries, 0, len(s.users))
	for _, id := range sortedKeys(s.users) {
		rec := s.users[id]
		users = append(users, types.UserEntry{ID: id, Callsign: rec.callsign, Note: rec.note})
	}

	chat := make(types.ChatEntries, 0, len(s.chat))
	for _, seq := range sortedKeys(s.chat) {
		chat = append(chat, s.chat[seq])
	}

	return &types.Message{
		Words: &types.WordsSection{Add: words},
		Users: &types.UsersSection{Add: users},
		Chat:  &types.ChatSection{Add: &types.ChatAdd{Entries: chat}},
	}
}

func sortedKeys[V any](m map[int]V) []int {
	keys := lo.Keys(m)
	sort.Ints(keys)
	return keys
}
