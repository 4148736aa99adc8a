package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tacboard/internal/logger"
	"tacboard/internal/state"
	"tacboard/pkg/interfaces"
	"tacboard/pkg/types"
)

// Router applies messages from authenticated peers to the store and
// announces every accepted change through the outbox. It is driven only by
// the hub's processing goroutine.
type Router struct {
	store   *state.Store
	journal interfaces.Journal
	limiter *RateLimiter
	log     *logger.Logger
}

// NewRouter wires a router. A nil limiter disables rate limiting and a nil
// journal discards audit entries.
func NewRouter(store *state.Store, journal interfaces.Journal, limiter *RateLimiter, log *logger.Logger) *Router {
	if journal == nil {
		journal = interfaces.NopJournal{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Router{
		store:   store,
		journal: journal,
		limiter: limiter,
		log:     log,
	}
}

// Route processes the sections of msg in order: Init and Meta (ignored),
// WORDS, Users, Chat. Within a verb the first failing entry aborts the rest
// of that verb only; entries before it stay committed and announced.
func (r *Router) Route(from interfaces.Peer, msg *types.Message, out interfaces.Outbox) error {
	if r.limiter != nil && !r.limiter.Allow(from.ID()) {
		return ErrRateLimitExceeded
	}

	if msg.Init != nil {
		r.log.Warn("Received Init from authenticated user %s", from)
	}
	if msg.Meta != nil {
		r.log.Warn("Received Meta from authenticated user %s", from)
	}

	if msg.Words != nil {
		r.routeWords(from, msg.Words, out)
	}
	if msg.Users != nil {
		r.routeUsers(from, msg.Users, out)
	}
	if msg.Chat != nil {
		r.routeChat(from, msg.Chat, out)
	}
	return nil
}

// Forget drops per-peer state once a connection is gone.
func (r *Router) Forget(id int) {
	if r.limiter != nil {
		r.limiter.Forget(id)
	}
}

func (r *Router) routeWords(from interfaces.Peer, words *types.WordsSection, out interfaces.Outbox) {
	for _, e := range words.Add {
		if err := types.ValidateText(e.Text); err != nil {
			r.log.Warn("Rejected WORDS ADD from %s at index %d: %v", from, e.Index, err)
			break
		}
		if err := r.store.AddWord(e.Index, e.Text); err != nil {
			r.reject(from, out, types.StatusWordExists, "WORDS ADD", err)
			break
		}
		r.announce(from, out, types.SectionWords, types.VerbAdd,
			&types.Message{Words: &types.WordsSection{Add: types.TextEntries{e}}})
	}

	for _, e := range words.Edit {
		if err := types.ValidateText(e.Text); err != nil {
			r.log.Warn("Rejected WORDS EDIT from %s at index %d: %v", from, e.Index, err)
			break
		}
		if err := r.store.EditWord(e.Index, e.Text); err != nil {
			r.reject(from, out, types.StatusWordNotFound, "WORDS EDIT", err)
			break
		}
		r.announce(from, out, types.SectionWords, types.VerbEdit,
			&types.Message{Words: &types.WordsSection{Edit: types.TextEntries{e}}})
	}

	for _, idx := range types.Ints(words.Remove) {
		if err := r.store.RemoveWord(idx); err != nil {
			r.reject(from, out, types.StatusWordRemoveGone, "WORDS REMOVE", err)
			break
		}
		r.announce(from, out, types.SectionWords, types.VerbRemove,
			&types.Message{Words: &types.WordsSection{Remove: types.Indices([]int{idx})}})
	}
}

func (r *Router) routeUsers(from interfaces.Peer, users *types.UsersSection, out interfaces.Outbox) {
	if len(users.Add) > 0 {
		r.log.Error("User tried to ADD User: %s %d entries", from, len(users.Add))
	}

	for _, e := range users.Edit {
		if err := types.ValidateText(e.Note); err != nil {
			r.log.Warn("Rejected Users EDIT from %s for id %d: %v", from, e.ID, err)
			break
		}
		updated, err := r.store.EditUserNote(e.ID, e.Note)
		if err != nil {
			r.reject(from, out, types.StatusUserNotFound, "Users EDIT", err)
			break
		}
		r.announce(from, out, types.SectionUsers, types.VerbEdit,
			&types.Message{Users: &types.UsersSection{Edit: types.UserEntries{updated}}})
	}

	if len(users.Remove) > 0 {
		r.log.Error("User tried to REMOVE User: %s %v", from, types.Ints(users.Remove))
	}
}

func (r *Router) routeChat(from interfaces.Peer, chat *types.ChatSection, out interfaces.Outbox) {
	if chat.Add != nil && len(chat.Add.Texts) > 0 {
		timestamp := r.store.ChatTimestamp()
		label := fmt.Sprintf("[%d] %s", from.ID(), from.Callsign())

		for _, text := range chat.Add.Texts {
			if err := types.ValidateText(text); err != nil {
				r.log.Warn("Rejected Chat ADD from %s: %v", from, err)
				break
			}
			entry := r.store.AppendChat(timestamp, label, text)
			r.announce(from, out, types.SectionChat, types.VerbAdd,
				&types.Message{Chat: &types.ChatSection{Add: &types.ChatAdd{Entries: types.ChatEntries{entry}}}})
		}
	} else if chat.Add != nil && chat.Add.Entries != nil {
		r.log.Warn("Chat ADD from %s used server form, ignored", from)
	}

	if len(chat.Edit) > 0 {
		r.log.Warn("Chat edit doesn't exist: %s %s", from, chat.Edit)
	}
	if len(chat.Remove) > 0 {
		r.log.Warn("Chat remove doesn't exist: %s %s", from, chat.Remove)
	}
}

func (r *Router) reject(from interfaces.Peer, out interfaces.Outbox, status int, op string, err error) {
	r.log.Info("%s from %s failed with status %d: %v", op, from, status, err)
	if errors.Is(err, state.ErrWordIndexRange) {
		r.log.Warn("%s from %s used an index outside the board", op, from)
	}
	out.Reply(from, types.StatusMessage(status))
}

func (r *Router) announce(from interfaces.Peer, out interfaces.Outbox, section, verb string, delta *types.Message) {
	out.Broadcast(delta)

	payload, err := types.Encode(delta)
	if err != nil {
		r.log.Error("Failed to encode journal payload: %v", err)
		return
	}
	r.journal.Record(&types.JournalEntry{
		ID:           uuid.NewString(),
		ConnectionID: from.ID(),
		Callsign:     from.Callsign(),
		Section:      section,
		Verb:         verb,
		Payload:      string(payload),
		CreatedAt:    time.Now(),
	})
}
