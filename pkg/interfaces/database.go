package interfaces

import (
	"context"

	"tacboard/pkg/types"
)

// Journal receives audit entries. Record must not block the caller on I/O.
type Journal interface {
	Record(entry *types.JournalEntry)
}

// EventStore reads the audit journal back for the admin API.
type EventStore interface {
	RecentEvents(ctx context.Context, limit int) ([]*types.JournalEntry, error)
	CountEvents(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) error
}

// NopJournal discards every entry.
type NopJournal struct{}

func (NopJournal) Record(*types.JournalEntry) {}
