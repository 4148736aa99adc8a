package client

import "tacboard/pkg/types"

// Disconnect reasons passed to Handler.OnDisconnected.
const (
	ReasonServerClosed   = "Server closed"
	ReasonConnectionLost = "Connection Lost"
)

// Auth failure reasons passed to Handler.OnAuthResult.
const (
	ReasonPassword = "password"
	ReasonCallsign = "callsign"
)

// Handler receives every delta after it has been applied to the mirror.
// Callbacks run on the client's read goroutine and must not block for long.
type Handler interface {
	OnWordsAdd(entries types.TextEntries)
	OnWordsEdit(entries types.TextEntries)
	OnWordsRemove(indices []int)
	OnUsersAdd(users types.UserEntries)
	OnUsersEdit(users types.UserEntries)
	OnUsersRemove(ids []int)
	OnChatAdd(entries types.ChatEntries)
	OnAuthResult(success bool, reason string)
	OnStatus(code int)
	OnResync(snapshot *types.Message)
	OnDisconnected(reason string)
}

// NopHandler ignores every callback. Embed it to implement only a few.
type NopHandler struct{}

func (NopHandler) OnWordsAdd(types.TextEntries) {}
func (NopHandler) OnWordsEdit(types.TextEntries) {}
func (NopHandler) OnWordsRemove([]int) {}
func (NopHandler) OnUsersAdd(types.UserEntries) {}
func (NopHandler) OnUsersEdit(types.UserEntries) {}
func (NopHandler) OnUsersRemove([]int) {}
func (NopHandler) OnChatAdd(types.ChatEntries) {}
func (NopHandler) OnAuthResult(bool, string) {}
func (NopHandler) OnStatus(int) {}
func (NopHandler) OnResync(*types.Message) {}
func (NopHandler) OnDisconnected(string) {}
