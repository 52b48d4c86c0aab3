package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/db"
)

// PostgresStore keeps runs in the extraction_runs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore applies the schema migrations and wraps pool. Close
// closes the pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := db.RunMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("migrate postgres checkpoint store: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Save(ctx context.Context, st *batch.State) error {
	b, err := encode(st)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO extraction_runs (run_id, source, status, cursor_pos, total, state, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			cursor_pos = EXCLUDED.cursor_pos,
			total = EXCLUDED.total,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`,
		st.RunID, st.Source, st.Status().String(), st.Cursor, len(st.Records), b, st.StartedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", st.RunID, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, runID string) (*batch.State, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM extraction_runs WHERE run_id = $1`, runID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return decode(runID, payload)
}

func (s *PostgresStore) Latest(ctx context.Context) (*batch.State, error) {
	var id string
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT run_id, state FROM extraction_runs ORDER BY updated_at DESC, run_id DESC LIMIT 1`).Scan(&id, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(LatestRunID)
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return decode(id, payload)
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]batch.Summary, error) {
	query := `SELECT run_id, state FROM extraction_runs ORDER BY updated_at DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []batch.Summary
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		st, err := decode(id, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, st.Summarize(summaryWindow))
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM extraction_runs WHERE run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(runID)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return db.Ping(ctx, s.pool)
}

// PoolHealth reports round-trip latency and pool usage for /healthz.
func (s *PostgresStore) PoolHealth(ctx context.Context) db.PoolHealth {
	return db.Probe(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
