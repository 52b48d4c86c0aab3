// Package checkpoint persists extraction runs so an interrupted run can be
// resumed from its cursor.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
)

// Backend names.
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// LatestRunID selects the most recently updated run in Load.
const LatestRunID = "latest"

// Store saves and loads run state. Load, Latest and Delete return an error
// matching errors.ErrNotFound when the run does not exist.
type Store interface {
	Save(ctx context.Context, st *batch.State) error
	Load(ctx context.Context, runID string) (*batch.State, error)
	Latest(ctx context.Context) (*batch.State, error)
	List(ctx context.Context, limit int) ([]batch.Summary, error)
	Delete(ctx context.Context, runID string) error
	Ping(ctx context.Context) error
	Close() error
}

// Resolve loads runID, or the latest run when runID is "latest".
func Resolve(ctx context.Context, s Store, runID string) (*batch.State, error) {
	if strings.EqualFold(runID, LatestRunID) {
		return s.Latest(ctx)
	}
	return s.Load(ctx, runID)
}

func encode(st *batch.State) ([]byte, error) {
	if st == nil || st.RunID == "" {
		return nil, fmt.Errorf("%w: state without run id", jrerrors.ErrValidation)
	}
	b, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode run %s: %w", st.RunID, err)
	}
	return b, nil
}

func decode(runID string, b []byte) (*batch.State, error) {
	var st batch.State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &st, nil
}

func notFound(runID string) error {
	return fmt.Errorf("run %s: %w", runID, jrerrors.ErrNotFound)
}

// summaryWindow is the rolling window used for List summaries.
const summaryWindow = batch.DefaultBlockedWindow
