package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
)

// MemoryStore keeps runs in memory. It is used by tests and by runs that
// opt out of persistence.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]byte)}
}

func (m *MemoryStore) Save(ctx context.Context, st *batch.State) error {
	b, err := encode(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.runs[st.RunID] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, runID string) (*batch.State, error) {
	m.mu.RLock()
	b, ok := m.runs[runID]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(runID)
	}
	return decode(runID, b)
}

func (m *MemoryStore) all() ([]*batch.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*batch.State, 0, len(m.runs))
	for id, b := range m.runs {
		st, err := decode(id, b)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].RunID > out[j].RunID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Latest(ctx context.Context) (*batch.State, error) {
	all, err := m.all()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, notFound(LatestRunID)
	}
	return all[0], nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]batch.Summary, error) {
	all, err := m.all()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]batch.Summary, len(all))
	for i, st := range all {
		out[i] = st.Summarize(summaryWindow)
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; !ok {
		return notFound(runID)
	}
	delete(m.runs, runID)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
