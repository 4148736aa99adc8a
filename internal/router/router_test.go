package router

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacboard/internal/state"
	"tacboard/pkg/interfaces"
	"tacboard/pkg/types"
)

type fakePeer struct {
	id       int
	callsign string
}

func (p *fakePeer) ID() int { return p.id }
func (p *fakePeer) Callsign() string { return p.callsign }
func (p *fakePeer) Send(*types.Message) error { return nil }
func (p *fakePeer) WriteFrame([]byte) error { return nil }
func (p *fakePeer) String() string { return p.callsign }

type reply struct {
	to  int
	msg *types.Message
}

type fakeOutbox struct {
	broadcasts []*types.Message
	replies    []reply
}

func (o *fakeOutbox) Broadcast(msg *types.Message) int {
	o.broadcasts = append(o.broadcasts, msg)
	return 1
}

func (o *fakeOutbox) Reply(to interfaces.Peer, msg *types.Message) {
	o.replies = append(o.replies, reply{to: to.ID(), msg: msg})
}

type memJournal struct {
	mu      sync.Mutex
	entries []*types.JournalEntry
}

func (j *memJournal) Record(e *types.JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

func setup(t *testing.T) (*Router, *state.Store, *fakeOutbox, *memJournal) {
	t.Helper()
	store := state.NewStore()
	store.SetClock(func() time.Time { return time.Date(2024, 1, 1, 12, 0, 5, 0, time.Local) })
	journal := &memJournal{}
	return NewRouter(store, journal, nil, nil), store, &fakeOutbox{}, journal
}

func words(add, edit types.TextEntries, remove ...int) *types.Message {
	return &types.Message{Words: &types.WordsSection{Add: add, Edit: edit, Remove: types.Indices(remove)}}
}

func TestRouteWordsAdd(t *testing.T) {
	r, store, out, journal := setup(t)
	alice := &fakePeer{id: 1, callsign: "alice"}

	require.NoError(t, r.Route(alice, words(types.TextEntries{{Index: 0, Text: "hi"}, {Index: 3, Text: "yo"}}, nil), out))

	require.Len(t, out.broadcasts, 2)
	assert.Equal(t, types.TextEntries{{Index: 0, Text: "hi"}}, out.broadcasts[0].Words.Add)
	assert.Equal(t, types.TextEntries{{Index: 3, Text: "yo"}}, out.broadcasts[1].Words.Add)
	assert.Empty(t, out.replies)

	text, ok := store.Word(3)
	assert.True(t, ok)
	assert.Equal(t, "yo", text)

	require.Len(t, journal.entries, 2)
	assert.Equal(t, types.SectionWords, journal.entries[0].Section)
	assert.Equal(t, types.VerbAdd, journal.entries[0].Verb)
	assert.Equal(t, "alice", journal.entries[0].Callsign)
}

func TestRouteWordsAbortsVerbOnFailure(t *testing.T) {
	r, store, out, _ := setup(t)
	alice := &fakePeer{id: 1, callsign: "alice"}
	require.NoError(t, store.AddWord(1, "taken"))

	batch := types.TextEntries{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}, {Index: 2, Text: "c"}}
	require.NoError(t, r.Route(alice, words(batch, nil), out))

	require.Len(t, out.broadcasts, 1)
	require.Len(t, out.replies, 1)
	assert.Equal(t, 1, out.replies[0].to)
	assert.Equal(t, types.StatusWordExists, out.replies[0].msg.Status)

	_, ok := store.Word(2)
	assert.False(t, ok, "entries after the failure must not be applied")
	text, _ := store.Word(1)
	assert.Equal(t, "taken", text)
}

func TestRouteWordsAbortIsPerVerb(t *testing.T) {
	r, store, out, _ := setup(t)
	alice := &fakePeer{id: 1, callsign: "alice"}
	require.NoError(t, store.AddWord(5, "old"))

	msg := words(nil, types.TextEntries{{Index: 9, Text: "x"}, {Index: 5, Text: "never"}}, 5)
	require.NoError(t, r.Route(alice, msg, out))

	require.Len(t, out.replies, 1)
	assert.Equal(t, types.StatusWordNotFound, out.replies[0].msg.Status)

	require.Len(t, out.broadcasts, 1)
	assert.Equal(t, []int{5}, types.Ints(out.broadcasts[0].Words.Remove))
	_, ok := store.Word(5)
	assert.False(t, ok)
}

func TestRouteWordsRemoveMissing(t *testing.T) {
	r, _, out, _ := setup(t)
	require.NoError(t, r.Route(&fakePeer{id: 2, callsign: "bob"}, words(nil, nil, 7), out))

	require.Len(t, out.replies, 1)
	assert.Equal(t, types.StatusWordRemoveGone, out.replies[0].msg.Status)
	assert.Empty(t, out.broadcasts)
}

func TestRouteWordsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		msg    *types.Message
		status int
	}{
		{"add", words(types.TextEntries{{Index: 26, Text: "x"}}, nil), types.StatusWordExists},
		{"edit", words(nil, types.TextEntries{{Index: -1, Text: "x"}}), types.StatusWordNotFound},
		{"remove", words(nil, nil, 30), types.StatusWordRemoveGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, out, _ := setup(t)
			require.NoError(t, r.Route(&fakePeer{id: 1, callsign: "alice"}, tt.msg, out))
			require.Len(t, out.replies, 1)
			assert.Equal(t, tt.status, out.replies[0].msg.Status)
			assert.Empty(t, out.broadcasts)
		})
	}
}

func TestRouteWordsMarkerAbortsWithoutReply(t *testing.T) {
	r, store, out, _ := setup(t)
	batch := types.TextEntries{{Index: 0, Text: "ok"}, {Index: 1, Text: "bad†"}, {Index: 2, Text: "skip"}}
	require.NoError(t, r.Route(&fakePeer{id: 1, callsign: "alice"}, words(batch, nil), out))

	assert.Len(t, out.broadcasts, 1)
	assert.Empty(t, out.replies)
	_, ok := store.Word(2)
	assert.False(t, ok)
}

func TestRouteUsersEdit(t *testing.T) {
	r, store, out, _ := setup(t)
	store.AddUser(1, "alice")
	alice := &fakePeer{id: 1, callsign: "alice"}

	msg := &types.Message{Users: &types.UsersSection{Edit: types.UserEntries{{ID: 1, Note: "on watch"}}}}
	require.NoError(t, r.Route(alice, msg, out))

	require.Len(t, out.broadcasts, 1)
	assert.Equal(t, types.UserEntries{{ID: 1, Callsign: "alice", Note: "on watch"}}, out.broadcasts[0].Users.Edit)

	user, _ := store.User(1)
	assert.Equal(t, "on watch", user.Note)
}

func TestRouteUsersEditUnknown(t *testing.T) {
	r, store, out, _ := setup(t)
	store.AddUser(1, "alice")

	msg := &types.Message{Users: &types.UsersSection{Edit: types.UserEntries{
		{ID: 99, Note: "x"},
		{ID: 1, Note: "never"},
	}}}
	require.NoError(t, r.Route(&fakePeer{id: 1, callsign: "alice"}, msg, out))

	require.Len(t, out.replies, 1)
	assert.Equal(t, types.StatusUserNotFound, out.replies[0].msg.Status)
	assert.Empty(t, out.broadcasts)
	user, _ := store.User(1)
	assert.Equal(t, types.DefaultNote, user.Note)
}

func TestRouteUsersAddAndRemoveIgnored(t *testing.T) {
	r, store, out, _ := setup(t)
	store.AddUser(1, "alice")

	msg := &types.Message{Users: &types.UsersSection{
		Add:    types.UserEntries{{ID: 5, Callsign: "mallory", Note: "x"}},
		Remove: types.Indices([]int{1}),
	}}
	require.NoError(t, r.Route(&fakePeer{id: 1, callsign: "alice"}, msg, out))

	assert.Empty(t, out.broadcasts)
	assert.Empty(t, out.replies)
	_, ok := store.User(1)
	assert.True(t, ok)
	_, ok = store.User(5)
	assert.False(t, ok)
}

func TestRouteChatAdd(t *testing.T) {
	r, store, out, _ := setup(t)
	bob := &fakePeer{id: 2, callsign: "bob"}

	msg := &types.Message{Chat: &types.ChatSection{Add: &types.ChatAdd{Texts: []string{"hello", "there"}}}}
	require.NoError(t, r.Route(bob, msg, out))

	require.Len(t, out.broadcasts, 2)
	first := out.broadcasts[0].Chat.Add.Entries
	second := out.broadcasts[1].Chat.Add.Entries
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	assert.Equal(t, 0, first[0].Seq)
	assert.Equal(t, 1, second[0].Seq)
	assert.Equal(t, "[2] bob", first[0].Label)
	assert.Equal(t, "12:00:05", first[0].Time)
	assert.Equal(t, first[0].Time, second[0].Time)
	assert.Equal(t, "there", second[0].Text)

	_, _, chat := store.Counts()
	assert.Equal(t, 2, chat)
}

func TestRouteChatEditRemoveIgnored(t *testing.T) {
	r, store, out, _ := setup(t)
	msg := &types.Message{Chat: &types.ChatSection{
		Edit:   []byte(`{"0":"x"}`),
		Remove: []byte(`[0]`),
	}}
	require.NoError(t, r.Route(&fakePeer{id: 1, callsign: "alice"}, msg, out))

	assert.Empty(t, out.broadcasts)
	assert.Empty(t, out.replies)
	_, _, chat := store.Counts()
	assert.Zero(t, chat)
}

func TestRouteSectionOrder(t *testing.T) {
	r, store, out, _ := setup(t)
	store.AddUser(1, "alice")

	msg := &types.Message{
		Chat:  &types.ChatSection{Add: &types.ChatAdd{Texts: []string{"c"}}},
		Users: &types.UsersSection{Edit: types.UserEntries{{ID: 1, Note: "n"}}},
		Words: &types.WordsSection{Add: types.TextEntries{{Index: 4, Text: "w"}}},
	}
	require.NoError(t, r.Route(&fakePeer{id: 1, callsign: "alice"}, msg, out))

	require.Len(t, out.broadcasts, 3)
	assert.NotNil(t, out.broadcasts[0].Words)
	assert.NotNil(t, out.broadcasts[1].Users)
	assert.NotNil(t, out.broadcasts[2].Chat)
}

func TestRouteRateLimited(t *testing.T) {
	store := state.NewStore()
	r := NewRouter(store, nil, NewRateLimiter(0.001, 1), nil)
	out := &fakeOutbox{}
	alice := &fakePeer{id: 1, callsign: "alice"}

	require.NoError(t, r.Route(alice, words(types.TextEntries{{Index: 0, Text: "a"}}, nil), out))
	err := r.Route(alice, words(types.TextEntries{{Index: 1, Text: "b"}}, nil), out)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	_, ok := store.Word(1)
	assert.False(t, ok)
	assert.Len(t, out.broadcasts, 1)

	r.Forget(1)
	assert.Zero(t, r.limiter.Tracked())
}
