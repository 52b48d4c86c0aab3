package checkpoint

import (
	"context"
	"time"

	"github.com/otherjamesbrown/judgeroute/pkg/db"
)

// Health is the checkpoint store's entry in /healthz.
type Health struct {
	Backend   string         `json:"backend"`
	Healthy   bool           `json:"healthy"`
	LatencyMS float64        `json:"latency_ms"`
	Pool      *db.PoolHealth `json:"pool,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// poolProber is implemented by stores backed by a connection pool.
type poolProber interface {
	PoolHealth(ctx context.Context) db.PoolHealth
}

// CheckHealth pings s, adding pool statistics for the postgres backend.
func CheckHealth(ctx context.Context, s Store, backend string) Health {
	h := Health{Backend: backend}

	if p, ok := s.(poolProber); ok {
		ph := p.PoolHealth(ctx)
		h.Pool = &ph
		h.Healthy = ph.Reachable
		h.LatencyMS = ph.LatencyMS
		h.Error = ph.Error
		return h
	}

	start := time.Now()
	err := s.Ping(ctx)
	h.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		h.Error = err.Error()
		return h
	}
	h.Healthy = true
	return h
}
