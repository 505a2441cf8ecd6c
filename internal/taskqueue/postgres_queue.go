package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PostgresQueue implements Queue using a PostgreSQL table.
//
// Schema (created automatically if missing):
//
//	CREATE TABLE IF NOT EXISTS flow_tasks (
//	    seq        BIGSERIAL PRIMARY KEY,
//	    id         TEXT NOT NULL UNIQUE,
//	    task       BYTEA NOT NULL,
//	    not_before TIMESTAMPTZ NOT NULL
//	);
//
// Due rows are claimed with FOR UPDATE SKIP LOCKED, so concurrent
// consumers never block on each other.
type PostgresQueue struct {
	db           *sql.DB
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewPostgresQueue creates the required schema if needed and returns a Queue.
func NewPostgresQueue(db *sql.DB) (*PostgresQueue, error) {
	q := &PostgresQueue{db: db, pollInterval: 100 * time.Millisecond, logger: slog.Default()}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

// Ensure PostgresQueue implements Queue.
var _ Queue = (*PostgresQueue)(nil)

func (q *PostgresQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_tasks (
			seq        BIGSERIAL PRIMARY KEY,
			id         TEXT NOT NULL UNIQUE,
			task       BYTEA NOT NULL,
			not_before TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS flow_tasks_due ON flow_tasks (not_before, seq);
	`)
	return err
}

// Enqueue inserts a task into the queue.
func (q *PostgresQueue) Enqueue(ctx context.Context, t Task) error {
	prepare(&t, time.Now())
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO flow_tasks (id, task, not_before)
		VALUES ($1, $2, $3)
	`, t.ID, data, t.NotBefore.UTC())
	return err
}

// Dequeue blocks (with polling) until a due task is available or ctx is
// cancelled.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Task, error) {
	// Use a reusable timer to avoid allocating a new timer on every idle poll.
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		<-tmr.C
	}
	defer tmr.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		task, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		tmr.Reset(q.pollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tmr.C:
		}
	}
}

func (q *PostgresQueue) claim(ctx context.Context) (*Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		seq  int64
		data []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT seq, task
		FROM flow_tasks
		WHERE not_before <= now()
		ORDER BY not_before, seq
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&seq, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM flow_tasks WHERE seq = $1`, seq); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	task, err := DecodeTask(data)
	if err != nil {
		return nil, fmt.Errorf("decode task %d: %w", seq, err)
	}
	return task, nil
}

// Len returns an approximate number of queued tasks.
func (q *PostgresQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM flow_tasks`).Scan(&n); err != nil {
		q.logger.Warn("task_queue_len_failed", "queue", "flow_tasks", "error", err)
		return 0
	}
	return n
}
