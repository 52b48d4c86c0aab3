package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/judgeroute/pkg/db"
)

type pooledStore struct {
	*MemoryStore
	health db.PoolHealth
}

func (p *pooledStore) PoolHealth(context.Context) db.PoolHealth { return p.health }

func TestCheckHealth_Memory(t *testing.T) {
	h := CheckHealth(context.Background(), NewMemoryStore(), BackendMemory)
	assert.True(t, h.Healthy)
	assert.Equal(t, BackendMemory, h.Backend)
	assert.Nil(t, h.Pool)
	assert.Empty(t, h.Error)
}

func TestCheckHealth_ClosedSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	assert.True(t, CheckHealth(ctx, s, BackendSQLite).Healthy)

	require.NoError(t, s.Close())
	h := CheckHealth(ctx, s, BackendSQLite)
	assert.False(t, h.Healthy)
	assert.NotEmpty(t, h.Error)
}

func TestCheckHealth_PoolStats(t *testing.T) {
	s := &pooledStore{
		MemoryStore: NewMemoryStore(),
		health: db.PoolHealth{
			Error:     "ping failed: timeout",
			LatencyMS: 250,
			Conns:     db.PoolConns{Max: 4, Total: 4, Acquired: 4},
		},
	}

	h := CheckHealth(context.Background(), s, BackendPostgres)
	assert.False(t, h.Healthy)
	assert.Equal(t, "ping failed: timeout", h.Error)
	assert.Equal(t, 250.0, h.LatencyMS)
	require.NotNil(t, h.Pool)
	assert.Equal(t, int32(4), h.Pool.Conns.Acquired)
}
