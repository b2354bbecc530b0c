package loan

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
	mu    sync.RWMutex
	loans map[string]Loan
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{loans: make(map[string]Loan)}
}

func (m *InMemory) CreateLoan(_ context.Context, ln Loan) (Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	ln.ID = ids.New()
	ln.CreatedAt = now
	ln.UpdatedAt = now
	m.loans[ln.ID] = ln
	return ln, nil
}

func (m *InMemory) GetLoan(_ context.Context, orgID, id string) (Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ln, ok := m.loans[id]
	if !ok || ln.OrganizationID != orgID {
		return Loan{}, fmt.Errorf("%w: loan %s", ErrNotFound, id)
	}
	return ln, nil
}

func (m *InMemory) ListLoans(_ context.Context, orgID string, limit int) ([]Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Loan, 0, limit)
	for _, ln := range m.loans {
		if ln.OrganizationID == orgID {
			out = append(out, ln)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemory) UpdateLoan(_ context.Context, orgID, id string, update Update) (Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ln, ok := m.loans[id]
	if !ok || ln.OrganizationID != orgID {
		return Loan{}, fmt.Errorf("%w: loan %s", ErrNotFound, id)
	}
	if update.Empty() {
		return Loan{}, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if update.Status != nil {
		ln.Status = *update.Status
	}
	if update.InterestRate != nil {
		ln.InterestRate = *update.InterestRate
	}
	if update.MonthlyPayment != nil {
		ln.MonthlyPayment = *update.MonthlyPayment
	}
	if update.ApprovedAt != nil {
		ln.ApprovedAt = update.ApprovedAt
	}
	ln.UpdatedAt = time.Now().UTC()
	m.loans[id] = ln
	return ln, nil
}

var _ Store = (*InMemory)(nil)
