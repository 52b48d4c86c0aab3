package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolHealth is a point-in-time view of the checkpoint database: whether a
// round trip succeeded, how long it took, and how the pool is being used.
type PoolHealth struct {
	Reachable bool      `json:"reachable"`
	LatencyMS float64   `json:"latency_ms"`
	Conns     PoolConns `json:"conns"`
	Error     string    `json:"error,omitempty"`
}

// PoolConns counts pool connections by state.
type PoolConns struct {
	Max      int32 `json:"max"`
	Total    int32 `json:"total"`
	Idle     int32 `json:"idle"`
	Acquired int32 `json:"acquired"`
}

// Ping checks if the database is reachable.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}
	return pool.Ping(ctx)
}

// Probe pings pool and reads its connection counts. Counts are filled even
// when the ping fails, since a saturated pool is the usual reason.
func Probe(ctx context.Context, pool *pgxpool.Pool) PoolHealth {
	if pool == nil {
		return PoolHealth{Error: "pool is nil"}
	}

	start := time.Now()
	err := pool.Ping(ctx)
	h := PoolHealth{LatencyMS: float64(time.Since(start).Microseconds()) / 1000}

	stats := pool.Stat()
	h.Conns = PoolConns{
		Max:      stats.MaxConns(),
		Total:    stats.TotalConns(),
		Idle:     stats.IdleConns(),
		Acquired: stats.AcquiredConns(),
	}
	if err != nil {
		h.Error = fmt.Sprintf("ping failed: %v", err)
		return h
	}
	h.Reachable = true
	return h
}
