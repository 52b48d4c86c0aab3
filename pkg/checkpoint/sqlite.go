package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
)

// sqliteTime is fixed-width so updated_at sorts as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps runs in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; the orchestrator is sequential anyway.
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open database and creates the schema.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate sqlite checkpoint store: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{`
	CREATE TABLE IF NOT EXISTS extraction_runs (
		run_id TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		cursor_pos INTEGER NOT NULL,
		total INTEGER NOT NULL,
		state JSON NOT NULL,
		started_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS extraction_runs_updated_at_idx ON extraction_runs (updated_at DESC);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, st *batch.State) error {
	b, err := encode(st)
	if err != nil {
		return err
	}
	query := `INSERT INTO extraction_runs (run_id, source, status, cursor_pos, total, state, started_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		status = excluded.status,
		cursor_pos = excluded.cursor_pos,
		total = excluded.total,
		state = excluded.state,
		updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		st.RunID, st.Source, st.Status().String(), st.Cursor, len(st.Records), string(b),
		st.StartedAt.UTC().Format(sqliteTime), st.UpdatedAt.UTC().Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", st.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, runID string) (*batch.State, error) {
	return s.queryOne(ctx, `SELECT run_id, state FROM extraction_runs WHERE run_id = ?`, runID)
}

func (s *SQLiteStore) Latest(ctx context.Context) (*batch.State, error) {
	return s.queryOne(ctx, `SELECT run_id, state FROM extraction_runs ORDER BY updated_at DESC, run_id DESC LIMIT 1`)
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, args ...any) (*batch.State, error) {
	var id, payload string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		key := LatestRunID
		if len(args) > 0 {
			key = fmt.Sprint(args[0])
		}
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	return decode(id, []byte(payload))
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]batch.Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, state FROM extraction_runs ORDER BY updated_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []batch.Summary
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		st, err := decode(id, []byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, st.Summarize(summaryWindow))
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM extraction_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(runID)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
