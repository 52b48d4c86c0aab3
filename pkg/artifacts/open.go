package artifacts

import (
	"context"
	"fmt"
	"strings"
)

// Config selects the artifact backend.
type Config struct {
	Backend string
	Dir     string
	S3      S3Config
}

// Open builds the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendFS:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("output directory is required")
		}
		return NewFSStore(cfg.Dir)
	case BackendS3:
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown artifact store %q", cfg.Backend)
	}
}
