package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status codes carried in the top-level "status" field.
const (
	StatusResync          = 100 // full snapshot follows in the same message
	StatusUnauthenticated = 400 // message received before authentication
	StatusWordExists      = 410 // WORDS.ADD on an occupied index
	StatusWordNotFound    = 411 // WORDS.EDIT on an empty index
	StatusWordRemoveGone  = 412 // WORDS.REMOVE on an empty index
	StatusUserNotFound    = 420 // Users.EDIT on an unknown id
)

// Section and verb names as they appear on the wire.
const (
	SectionInit  = "Init"
	SectionMeta  = "Meta"
	SectionWords = "WORDS"
	SectionUsers = "Users"
	SectionChat  = "Chat"

	VerbAdd    = "ADD"
	VerbEdit   = "EDIT"
	VerbRemove = "REMOVE"
)

// DefaultNote is the note given to a user record on creation.
const DefaultNote = "None"

// Message is one decoded frame. Every top-level key is optional.
type Message struct {
	Time   *float64      `json:"time,omitempty"`
	Status int           `json:"status,omitempty"`
	Init   *Init         `json:"Init,omitempty"`
	Meta   *Meta         `json:"Meta,omitempty"`
	Words  *WordsSection `json:"WORDS,omitempty"`
	Users  *UsersSection `json:"Users,omitempty"`
	Chat   *ChatSection  `json:"Chat,omitempty"`
}

// Init is the client's authentication request.
type Init struct {
	Callsign     string `json:"callsign"`
	Password     string `json:"password"`
	RequestSetup bool   `json:"request_setup"`
}

// Meta reports authentication outcomes. Exactly one field is set.
type Meta struct {
	Password      *bool `json:"password,omitempty"`
	Callsign      *bool `json:"callsign,omitempty"`
	Authenticated *bool `json:"authenticated,omitempty"`
}

// WordsSection carries ordered WORDS batches.
type WordsSection struct {
	Add    TextEntries `json:"ADD,omitempty"`
	Edit   TextEntries `json:"EDIT,omitempty"`
	Remove []Index     `json:"REMOVE,omitempty"`
}

// UsersSection carries ordered Users batches. Clients may only send EDIT.
type UsersSection struct {
	Add    UserEntries `json:"ADD,omitempty"`
	Edit   UserEntries `json:"EDIT,omitempty"`
	Remove []Index     `json:"REMOVE,omitempty"`
}

// ChatSection carries chat additions. EDIT and REMOVE are kept raw so the
// server can notice and ignore them.
type ChatSection struct {
	Add    *ChatAdd        `json:"ADD,omitempty"`
	Edit   json.RawMessage `json:"EDIT,omitempty"`
	Remove json.RawMessage `json:"REMOVE,omitempty"`
}

// TextEntry is one index/text pair of a WORDS batch.
type TextEntry struct {
	Index int
	Text  string
}

// UserEntry is one user record. A client EDIT carries only Note; server
// messages always carry Callsign as well.
type UserEntry struct {
	ID       int
	Callsign string
	Note     string
}

// ChatEntry is one stored chat line.
type ChatEntry struct {
	Seq   int
	Time  string
	Label string
	Text  string
}

// ChatAdd is either a list of new texts (client) or seq-keyed stored lines (server).
type ChatAdd struct {
	Texts   []string
	Entries ChatEntries
}

// JournalEntry is an audit record of an accepted change or auth outcome.
type JournalEntry struct {
	ID            string    `json:"id"`
	ConnectionID  int       `json:"connection_id"`
	ConnectionKey string    `json:"connection_key"`
	Callsign      string    `json:"callsign"`
	Section       string    `json:"section"`
	Verb          string    `json:"verb"`
	Payload       string    `json:"payload"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stamp sets the send time in fractional epoch seconds.
func (m *Message) Stamp(t time.Time) {
	ts := float64(t.UnixNano()) / float64(time.Second)
	m.Time = &ts
}

// HasUpdates reports whether the message carries any state section.
func (m *Message) HasUpdates() bool {
	return m.Words != nil || m.Users != nil || m.Chat != nil
}

// Decode parses a payload into a Message.
func Decode(payload []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &msg, nil
}

// Encode serializes a message to its JSON payload.
func Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return data, nil
}

// StatusMessage builds a bare status reply.
func StatusMessage(code int) *Message {
	return &Message{Status: code}
}

// MetaMessage builds a Meta reply with a single field set.
func MetaMessage(field string, value bool) *Message {
	meta := &Meta{}
	switch field {
	case "password":
		meta.Password = &value
	case "callsign":
		meta.Callsign = &value
	case "authenticated":
		meta.Authenticated = &value
	}
	return &Message{Meta: meta}
}

// BoardStats is a point-in-time view of server counters.
type BoardStats struct {
	Pending           int    `json:"pending"`
	Authenticated     int    `json:"authenticated"`
	Words             int    `json:"words"`
	Users             int    `json:"users"`
	Chat              int    `json:"chat"`
	MessagesProcessed uint64 `json:"messages_processed"`
	Broadcasts        uint64 `json:"broadcasts"`
	SendFailures      uint64 `json:"send_failures"`
	QueueDepth        int    `json:"queue_depth"`
}
