package credit

import (
	"context"
	"fmt"
	"sync"

	"minedesk.org/internal/ids"
)

// InMemory is a map-backed Store, used in tests and local runs.
type InMemory struct {
	mu     sync.RWMutex
	scores map[string][]Score // orgID -> snapshots in insert order
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{scores: make(map[string][]Score)}
}

func (m *InMemory) LatestScore(_ context.Context, orgID string) (Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.scores[orgID]
	if len(history) == 0 {
		return Score{}, fmt.Errorf("%w: no score for organization %s", ErrNotFound, orgID)
	}
	latest := history[0]
	for _, s := range history[1:] {
		if s.ComputedAt.After(latest.ComputedAt) {
			latest = s
		}
	}
	return latest, nil
}

func (m *InMemory) InsertScore(_ context.Context, score Score) (Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	score.ID = ids.New()
	m.scores[score.OrganizationID] = append(m.scores[score.OrganizationID], score)
	return score, nil
}

var _ Store = (*InMemory)(nil)
