// Package database persists the audit journal of board changes in SQLite.
// All writes go through one goroutine; reads use the pool directly.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"

	"tacboard/internal/logger"
	dbconfig "tacboard/pkg/database"
	"tacboard/pkg/types"
)

const writeQueueSize = 256

// Manager owns the journal database.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	log          *logger.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	dropped      atomic.Uint64
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies migrations and starts the writer.
func NewManager(config *dbconfig.Config, log *logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.Nop()
	}

	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	m := &Manager{
		db:           db,
		config:       config,
		log:          log,
		writeChannel: make(chan writeOperation, writeQueueSize),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	log.Info("Journal database ready at %s", config.DatabasePath)
	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			m.run(op)
		case <-m.shutdown:
			for {
				select {
				case op := <-m.writeChannel:
					m.run(op)
				default:
					m.log.Debug("Database write loop shutting down")
					return
				}
			}
		}
	}
}

// run executes op, retrying busy and locked errors with exponential backoff.
func (m *Manager) run(op writeOperation) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Second

	err := backoff.RetryNotify(
		func() error {
			err := op.operation(m.db)
			if err != nil && !isTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		policy,
		func(err error, wait time.Duration) {
			m.log.Warn("Database write failed, retrying in %s: %v", wait, err)
		},
	)
	if err != nil {
		m.log.Error("Database write failed after retries: %v", err)
	}
	if op.result != nil {
		op.result <- err
	}
}

func isTransient(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// executeWrite queues operation and waits for its result.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	if m.isClosed() {
		return ErrManagerClosed
	}

	result := make(chan error, 1)
	timeout := time.NewTimer(m.config.WriteTimeout)
	defer timeout.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timeout.C:
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-timeout.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Record queues an entry without waiting. A full queue drops the entry.
func (m *Manager) Record(entry *types.JournalEntry) {
	if entry == nil || m.isClosed() {
		return
	}

	op := writeOperation{operation: func(db *sql.DB) error { return insertEvent(db, entry) }}
	select {
	case m.writeChannel <- op:
	default:
		m.dropped.Add(1)
		m.log.Warn("Journal queue full, dropped %s %s from %d", entry.Section, entry.Verb, entry.ConnectionID)
	}
}

// StoreEvent writes an entry and waits for the result.
func (m *Manager) StoreEvent(ctx context.Context, entry *types.JournalEntry) error {
	return m.executeWrite(ctx, func(db *sql.DB) error { return insertEvent(db, entry) })
}

// Flush waits until every entry queued before the call has been written.
func (m *Manager) Flush(ctx context.Context) error {
	return m.executeWrite(ctx, func(*sql.DB) error { return nil })
}

// Dropped reports how many entries Record discarded.
func (m *Manager) Dropped() uint64 {
	return m.dropped.Load()
}

func insertEvent(db *sql.DB, e *types.JournalEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO events (id, connection_id, connection_key, callsign, section, verb, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.ConnectionID,
		e.ConnectionKey,
		e.Callsign,
		e.Section,
		e.Verb,
		e.Payload,
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit entries, newest first.
func (m *Manager) RecentEvents(ctx context.Context, limit int) ([]*types.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, connection_id, connection_key, callsign, section, verb, payload, created_at
		FROM events
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.JournalEntry
	for rows.Next() {
		var e types.JournalEntry
		if err := rows.Scan(
			&e.ID,
			&e.ConnectionID,
			&e.ConnectionKey,
			&e.Callsign,
			&e.Section,
			&e.Verb,
			&e.Payload,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

func (m *Manager) CountEvents(ctx context.Context) (int, error) {
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := m.CountEvents(ctx); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains queued writes and closes the database. It is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
