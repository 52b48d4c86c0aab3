package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/judgeroute/pkg/db"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string
	SQLitePath  string
	RedisAddr   string
	RedisDB     int
	PostgresDSN string
	// Registerer receives the postgres pool collector when set.
	Registerer prometheus.Registerer
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("checkpoint: sqlite path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o700); err != nil {
			return nil, fmt.Errorf("checkpoint: create directory: %w", err)
		}
		return OpenSQLite(ctx, cfg.SQLitePath)

	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("checkpoint: redis address is required")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("checkpoint: connect redis %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client), nil

	case BackendPostgres:
		pool, err := db.ConnectWithRetry(ctx, db.DefaultConfig(cfg.PostgresDSN), 3, 2*time.Second)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: %w", err)
		}
		if cfg.Registerer != nil {
			if _, err := db.RegisterPoolStatsCollector(pool, "judgeroute", cfg.Registerer); err != nil {
				pool.Close()
				return nil, fmt.Errorf("checkpoint: register pool metrics: %w", err)
			}
		}
		return NewPostgresStore(ctx, pool)

	case BackendMemory:
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("checkpoint: unknown backend %q", cfg.Backend)
	}
}
