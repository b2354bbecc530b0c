package sales

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"minedesk.org/internal/ids"
)

// InMemory is a map-backed Store, used in tests and local runs.
type InMemory struct {
	mu  sync.RWMutex
	txs map[string]Transaction
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{txs: make(map[string]Transaction)}
}

func (m *InMemory) CreateTransaction(_ context.Context, tx Transaction) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	tx.ID = ids.New()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	m.txs[tx.ID] = tx
	return tx, nil
}

func (m *InMemory) GetTransaction(_ context.Context, orgID, id string) (Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.txs[id]
	if !ok || tx.OrganizationID != orgID {
		return Transaction{}, fmt.Errorf("%w: sale %s", ErrNotFound, id)
	}
	return tx, nil
}

func (m *InMemory) ListTransactions(_ context.Context, orgID string, limit int) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Transaction, 0, limit)
	for _, tx := range m.txs {
		if tx.OrganizationID == orgID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemory) UpdateTransactionStatus(_ context.Context, orgID, id string, status Status) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[id]
	if !ok || tx.OrganizationID != orgID {
		return Transaction{}, fmt.Errorf("%w: sale %s", ErrNotFound, id)
	}
	tx.Status = status
	tx.UpdatedAt = time.Now().UTC()
	m.txs[id] = tx
	return tx, nil
}

func (m *InMemory) AggregateQualifying(_ context.Context, orgID string) (Aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var agg Aggregate
	for _, tx := range m.txs {
		if tx.OrganizationID != orgID || !tx.Status.QualifiesForScoring() {
			continue
		}
		agg.TotalValue += tx.TotalValue
		agg.Count++
		if tx.OccurredAt.After(agg.LastSale) {
			agg.LastSale = tx.OccurredAt
		}
	}
	return agg, nil
}

var _ Store = (*InMemory)(nil)
