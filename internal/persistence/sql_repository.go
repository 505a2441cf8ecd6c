package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/flowexec/pkg/api"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name     string
	BlobType string
	// SerialKey declares an auto-incrementing integer primary key.
	SerialKey string
	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
}

var (
	// SQLite expects an *sql.DB opened with a SQLite driver, for example
	// "modernc.org/sqlite".
	SQLite = Dialect{Name: "sqlite", BlobType: "BLOB", SerialKey: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	// Postgres expects an *sql.DB opened with the pgx stdlib driver.
	Postgres = Dialect{Name: "postgres", BlobType: "BYTEA", SerialKey: "BIGSERIAL PRIMARY KEY", Numbered: true}
)

// rebind rewrites "?" placeholders for the dialect.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLRepository stores snapshots in a relational database.
//
// The caller is responsible for importing the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	opts    Options
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLiteRepository initializes the schema in db and returns a repository.
func NewSQLiteRepository(db *sql.DB, opts Options) (*SQLRepository, error) {
	return NewSQLRepository(db, SQLite, opts)
}

// NewPostgresRepository initializes the schema in db and returns a
// repository.
func NewPostgresRepository(db *sql.DB, opts Options) (*SQLRepository, error) {
	return NewSQLRepository(db, Postgres, opts)
}

// NewSQLRepository initializes the schema in db for dialect.
func NewSQLRepository(db *sql.DB, dialect Dialect, opts Options) (*SQLRepository, error) {
	r := &SQLRepository{db: db, dialect: dialect, opts: opts}
	if err := r.initSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SQLRepository) initSchema() error {
	stmts := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS flow_snapshots (
			execution_id TEXT NOT NULL,
			snapshot_id INTEGER NOT NULL,
			flow_id TEXT NOT NULL,
			state_id TEXT NOT NULL,
			data %s NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			PRIMARY KEY (execution_id, snapshot_id)
		)`, r.dialect.BlobType),
		`
		CREATE TABLE IF NOT EXISTS flow_leases (
			execution_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expires_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLRepository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, r.dialect.rebind(query), args...)
}

func (r *SQLRepository) expiry(now time.Time) int64 {
	if r.opts.TTL <= 0 {
		return 0
	}
	return now.Add(r.opts.TTL).UnixNano()
}

func (r *SQLRepository) Save(ctx context.Context, s *Snapshot) error {
	data, err := r.opts.Serializer.Marshal(s)
	if err != nil {
		return err
	}
	now := time.Now()
	flowID, stateID := s.ActiveState()

	_, err = r.exec(ctx, `
		INSERT INTO flow_snapshots (execution_id, snapshot_id, flow_id, state_id, data, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id, snapshot_id) DO UPDATE
		SET flow_id = excluded.flow_id,
		    state_id = excluded.state_id,
		    data = excluded.data,
		    created_at = excluded.created_at,
		    expires_at = excluded.expires_at`,
		s.Key.ExecutionID,
		s.Key.SnapshotID,
		flowID,
		stateID,
		data,
		now.UnixNano(),
		r.expiry(now),
	)
	if err != nil {
		return err
	}

	if r.opts.MaxSnapshots > 0 {
		if _, err := r.exec(ctx, `
			DELETE FROM flow_snapshots
			WHERE execution_id = ? AND snapshot_id <= ?`,
			s.Key.ExecutionID, s.Key.SnapshotID-r.opts.MaxSnapshots,
		); err != nil {
			return err
		}
	}

	_, err = r.exec(ctx, `
		DELETE FROM flow_snapshots
		WHERE expires_at > 0 AND expires_at <= ?`,
		now.UnixNano(),
	)
	return err
}

func (r *SQLRepository) Load(ctx context.Context, key api.Key) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(`
		SELECT data
		FROM flow_snapshots
		WHERE execution_id = ? AND snapshot_id = ?
		AND (expires_at = 0 OR expires_at > ?)`),
		key.ExecutionID, key.SnapshotID, time.Now().UnixNano(),
	)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", api.ErrNoSuchFlowExecution, key)
		}
		return nil, err
	}
	return r.opts.Serializer.Unmarshal(data)
}

func (r *SQLRepository) LatestSnapshotID(ctx context.Context, executionID string) (int, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(`
		SELECT COALESCE(MAX(snapshot_id), 0)
		FROM flow_snapshots
		WHERE execution_id = ?
		AND (expires_at = 0 OR expires_at > ?)`),
		executionID, time.Now().UnixNano(),
	)
	var latest int64
	if err := row.Scan(&latest); err != nil {
		return 0, err
	}
	return int(latest), nil
}

func (r *SQLRepository) Remove(ctx context.Context, executionID string) error {
	_, err := r.exec(ctx, `DELETE FROM flow_snapshots WHERE execution_id = ?`, executionID)
	return err
}

func (r *SQLRepository) TryAcquireLease(ctx context.Context, executionID, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("ttl must be > 0")
	}
	now := time.Now()
	res, err := r.exec(ctx, `
		INSERT INTO flow_leases (execution_id, owner, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (execution_id) DO UPDATE
		SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE flow_leases.owner = excluded.owner
		OR flow_leases.owner = ''
		OR flow_leases.expires_at <= ?`,
		executionID, owner, now.Add(ttl).UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLRepository) ReleaseLease(ctx context.Context, executionID, owner string) error {
	_, err := r.exec(ctx, `
		DELETE FROM flow_leases
		WHERE execution_id = ? AND owner = ?`,
		executionID, owner,
	)
	return err
}
