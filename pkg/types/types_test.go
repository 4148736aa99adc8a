package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecode_FullSchema tests functional validation - every section of a
// client message decodes with batch order preserved
func TestDecode_FullSchema(t *testing.T) {
	payload := `{
		"Init": {"callsign": "Red Crown", "password": "1234", "request_setup": true},
		"WORDS": {"ADD": {"3": "c", "1": "a", "2": "b"}, "EDIT": {"5": "x"}, "REMOVE": ["7", 8]},
		"Users": {"EDIT": {"4": "on station"}},
		"Chat": {"ADD": ["hello", "world"], "EDIT": {"0": "x"}}
	}`

	msg, err := Decode([]byte(payload))
	require.NoError(t, err)

	require.NotNil(t, msg.Init)
	assert.Equal(t, "Red Crown", msg.Init.Callsign)
	assert.Equal(t, "1234", msg.Init.Password)
	assert.True(t, msg.Init.RequestSetup)

	require.NotNil(t, msg.Words)
	assert.Equal(t, TextEntries{{3, "c"}, {1, "a"}, {2, "b"}}, msg.Words.Add)
	assert.Equal(t, TextEntries{{5, "x"}}, msg.Words.Edit)
	assert.Equal(t, []int{7, 8}, Ints(msg.Words.Remove))

	require.NotNil(t, msg.Users)
	assert.Equal(t, UserEntries{{ID: 4, Note: "on station"}}, msg.Users.Edit)

	require.NotNil(t, msg.Chat)
	require.NotNil(t, msg.Chat.Add)
	assert.Equal(t, []string{"hello", "world"}, msg.Chat.Add.Texts)
	assert.Nil(t, msg.Chat.Add.Entries)
	assert.NotEmpty(t, msg.Chat.Edit)
	assert.Empty(t, msg.Chat.Remove)
	assert.True(t, msg.HasUpdates())
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"WORDS":`},
		{"non numeric key", `{"WORDS":{"ADD":{"A":"x"}}}`},
		{"non string text", `{"WORDS":{"ADD":{"1":5}}}`},
		{"bad remove index", `{"WORDS":{"REMOVE":["x"]}}`},
		{"bad chat shape", `{"Chat":{"ADD":"hello"}}`},
		{"short user pair", `{"Users":{"EDIT":{"1":["only"]}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("Expected ErrInvalidMessage, got %v", err)
			}
		})
	}
}

// TestEncode_ServerShapes tests the shapes the server puts on the wire
func TestEncode_ServerShapes(t *testing.T) {
	msg := &Message{
		Status: StatusResync,
		Words:  &WordsSection{Add: TextEntries{{2, "two"}, {0, "zero"}}},
		Users:  &UsersSection{Add: UserEntries{{ID: 7, Callsign: "Red Crown", Note: DefaultNote}}},
		Chat: &ChatSection{Add: &ChatAdd{Entries: ChatEntries{
			{Seq: 0, Time: "12:00:00", Label: "[7] Red Crown", Text: "hello"},
		}}},
	}

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"status": 100,
		"WORDS": {"ADD": {"2": "two", "0": "zero"}},
		"Users": {"ADD": {"7": ["Red Crown", "None"]}},
		"Chat": {"ADD": {"0": ["12:00:00", "[7] Red Crown", "hello"]}}
	}`, string(data))

	// object key order follows slice order
	assert.Contains(t, string(data), `{"2":"two","0":"zero"}`)
}

func TestEncode_OmitsEmptySections(t *testing.T) {
	data, err := Encode(StatusMessage(StatusWordExists))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":410}`, string(data))

	data, err = Encode(&Message{Users: &UsersSection{Remove: Indices([]int{7})}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Users":{"REMOVE":[7]}}`, string(data))
}

func TestMetaMessage(t *testing.T) {
	tests := []struct {
		field    string
		value    bool
		expected string
	}{
		{"password", false, `{"Meta":{"password":false}}`},
		{"callsign", false, `{"Meta":{"callsign":false}}`},
		{"authenticated", true, `{"Meta":{"authenticated":true}}`},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			data, err := Encode(MetaMessage(tt.field, tt.value))
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestChatAdd_RoundTripShapes(t *testing.T) {
	var add ChatAdd
	require.NoError(t, json.Unmarshal([]byte(`{"3":["t","l","x"],"1":["t","l","y"]}`), &add))
	assert.Nil(t, add.Texts)
	assert.Equal(t, []int{3, 1}, []int{add.Entries[0].Seq, add.Entries[1].Seq})

	data, err := json.Marshal(ChatAdd{Texts: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, string(data))
}

func TestUserEntries_EditShapes(t *testing.T) {
	var entries UserEntries
	require.NoError(t, json.Unmarshal([]byte(`{"4":["Red Crown","tanker"],"5":"plain"}`), &entries))
	assert.Equal(t, UserEntries{
		{ID: 4, Callsign: "Red Crown", Note: "tanker"},
		{ID: 5, Note: "plain"},
	}, entries)

	data, err := json.Marshal(UserEntries{{ID: 5, Note: "plain"}})
	require.NoError(t, err)
	assert.Equal(t, `{"5":"plain"}`, string(data))
}

func TestIndex_Coercion(t *testing.T) {
	var idx []Index
	require.NoError(t, json.Unmarshal([]byte(`[1, "2", 3.0, " 4 "]`), &idx))
	assert.Equal(t, []int{1, 2, 3, 4}, Ints(idx))

	err := json.Unmarshal([]byte(`[1.5]`), &idx)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestStamp(t *testing.T) {
	msg := &Message{}
	msg.Stamp(time.Unix(1700000000, 500000000))
	require.NotNil(t, msg.Time)
	assert.InDelta(t, 1700000000.5, *msg.Time, 1e-6)
}

func TestValidation(t *testing.T) {
	assert.NoError(t, ValidateCallsign("Red Crown"))
	assert.NoError(t, ValidateCallsign("Äbc"), "length counts characters")
	assert.ErrorIs(t, ValidateCallsign("Ab"), ErrCallsignTooShort)
	assert.ErrorIs(t, ValidateCallsign("Red†Crown"), ErrForbiddenMarker)
	assert.ErrorIs(t, ValidateText("a‡b"), ErrForbiddenMarker)

	assert.True(t, IsValidWordIndex(0))
	assert.True(t, IsValidWordIndex(25))
	assert.False(t, IsValidWordIndex(26))
	assert.False(t, IsValidWordIndex(-1))
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     *Message
		wantErr error
	}{
		{"clean", &Message{Words: &WordsSection{Add: TextEntries{{0, "ok"}}}}, nil},
		{"word add marker", &Message{Words: &WordsSection{Add: TextEntries{{0, "†"}}}}, ErrForbiddenMarker},
		{"word edit marker", &Message{Words: &WordsSection{Edit: TextEntries{{0, "‡"}}}}, ErrForbiddenMarker},
		{"note marker", &Message{Users: &UsersSection{Edit: UserEntries{{ID: 1, Note: "‡"}}}}, ErrForbiddenMarker},
		{"chat marker", &Message{Chat: &ChatSection{Add: &ChatAdd{Texts: []string{"a", "†"}}}}, ErrForbiddenMarker},
		{"password marker", &Message{Init: &Init{Callsign: "abc", Password: "‡"}}, ErrForbiddenMarker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
