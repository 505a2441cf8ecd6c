package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// HistoryType classifies an execution history record.
type HistoryType string

const (
	HistorySessionStarted HistoryType = "SESSION_STARTED"
	HistoryStateEntered   HistoryType = "STATE_ENTERED"
	HistoryTransition     HistoryType = "TRANSITION"
	HistoryPaused         HistoryType = "PAUSED"
	HistorySessionEnded   HistoryType = "SESSION_ENDED"
	HistoryException      HistoryType = "EXCEPTION"
)

// HistoryEvent is a small append-only audit record of a flow execution.
// Keep Detail low-volume: never dump scope contents here.
type HistoryEvent struct {
	ConversationID string
	At             time.Time
	Type           HistoryType
	FlowID         string
	StateID        string
	Detail         string
}

// HistoryStore is an append-only store of execution history.
type HistoryStore interface {
	Append(ctx context.Context, ev HistoryEvent) error
	List(ctx context.Context, conversationID string) ([]HistoryEvent, error)
}

// NoopHistoryStore discards all events.
type NoopHistoryStore struct{}

func (NoopHistoryStore) Append(context.Context, HistoryEvent) error { return nil }
func (NoopHistoryStore) List(context.Context, string) ([]HistoryEvent, error) {
	return nil, nil
}

// MemoryHistoryStore keeps history in process memory.
type MemoryHistoryStore struct {
	mu     sync.Mutex
	events map[string][]HistoryEvent
}

var _ HistoryStore = (*MemoryHistoryStore)(nil)

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{events: make(map[string][]HistoryEvent)}
}

func (s *MemoryHistoryStore) Append(_ context.Context, ev HistoryEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ConversationID] = append(s.events[ev.ConversationID], ev)
	return nil
}

func (s *MemoryHistoryStore) List(_ context.Context, conversationID string) ([]HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEvent(nil), s.events[conversationID]...), nil
}

// SQLHistoryStore stores history in the flow_history table.
type SQLHistoryStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ HistoryStore = (*SQLHistoryStore)(nil)

// NewSQLHistoryStore initializes the schema in db for dialect.
func NewSQLHistoryStore(db *sql.DB, dialect Dialect) (*SQLHistoryStore, error) {
	s := &SQLHistoryStore{db: db, dialect: dialect}
	stmts := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS flow_history (
			id %s,
			conversation_id TEXT NOT NULL,
			at BIGINT NOT NULL,
			type TEXT NOT NULL,
			flow_id TEXT NOT NULL DEFAULT '',
			state_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		)`, dialect.SerialKey),
		`CREATE INDEX IF NOT EXISTS idx_flow_history_conversation ON flow_history(conversation_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SQLHistoryStore) Append(ctx context.Context, ev HistoryEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO flow_history (conversation_id, at, type, flow_id, state_id, detail)
		VALUES (?, ?, ?, ?, ?, ?)`),
		ev.ConversationID,
		at.UnixNano(),
		string(ev.Type),
		ev.FlowID,
		ev.StateID,
		ev.Detail,
	)
	return err
}

func (s *SQLHistoryStore) List(ctx context.Context, conversationID string) ([]HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT conversation_id, at, type, flow_id, state_id, detail
		FROM flow_history
		WHERE conversation_id = ?
		ORDER BY id ASC`), conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEvent
	for rows.Next() {
		var (
			ev  HistoryEvent
			atN int64
			typ string
		)
		if err := rows.Scan(&ev.ConversationID, &atN, &typ, &ev.FlowID, &ev.StateID, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, atN)
		ev.Type = HistoryType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}
