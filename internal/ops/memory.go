package ops

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
	mu        sync.RWMutex
	shifts    map[string]Shift
	timesheet map[string][]TimesheetEntry   // shiftID -> entries
	materials map[string][]MaterialMovement // shiftID -> movements

	// failTimesheetAfter, when >= 0, makes AddTimesheetEntry fail once
	// that many entries exist for a shift. Tests use it to exercise
	// partial composite writes.
	failTimesheetAfter int
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		shifts:             make(map[string]Shift),
		timesheet:          make(map[string][]TimesheetEntry),
		materials:          make(map[string][]MaterialMovement),
		failTimesheetAfter: -1,
	}
}

func (m *InMemory) CreateShift(_ context.Context, sh Shift) (Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	sh.ID = ids.New()
	sh.CreatedAt = now
	sh.UpdatedAt = now
	m.shifts[sh.ID] = sh
	return sh, nil
}

func (m *InMemory) GetShift(_ context.Context, orgID, id string) (ShiftDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sh, ok := m.shifts[id]
	if !ok || sh.OrganizationID != orgID {
		return ShiftDetail{}, fmt.Errorf("%w: shift %s", ErrNotFound, id)
	}
	return ShiftDetail{
		Shift:     sh,
		Timesheet: append([]TimesheetEntry(nil), m.timesheet[id]...),
		Materials: append([]MaterialMovement(nil), m.materials[id]...),
	}, nil
}

func (m *InMemory) ListShifts(_ context.Context, orgID string, limit int) ([]Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Shift, 0, limit)
	for _, sh := range m.shifts {
		if sh.OrganizationID == orgID {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemory) CloseShift(_ context.Context, orgID, id string, endedAt time.Time) (Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sh, ok := m.shifts[id]
	if !ok || sh.OrganizationID != orgID {
		return Shift{}, fmt.Errorf("%w: shift %s", ErrNotFound, id)
	}
	sh.EndedAt = &endedAt
	sh.UpdatedAt = time.Now().UTC()
	m.shifts[id] = sh
	return sh, nil
}

func (m *InMemory) AddTimesheetEntry(_ context.Context, entry TimesheetEntry) (TimesheetEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shifts[entry.ShiftID]; !ok {
		return TimesheetEntry{}, fmt.Errorf("%w: shift %s", ErrNotFound, entry.ShiftID)
	}
	if m.failTimesheetAfter >= 0 && len(m.timesheet[entry.ShiftID]) >= m.failTimesheetAfter {
		return TimesheetEntry{}, fmt.Errorf("ops: simulated timesheet write failure")
	}
	entry.ID = ids.New()
	entry.CreatedAt = time.Now().UTC()
	m.timesheet[entry.ShiftID] = append(m.timesheet[entry.ShiftID], entry)
	return entry, nil
}

func (m *InMemory) AddMaterialMovement(_ context.Context, mv MaterialMovement) (MaterialMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shifts[mv.ShiftID]; !ok {
		return MaterialMovement{}, fmt.Errorf("%w: shift %s", ErrNotFound, mv.ShiftID)
	}
	mv.ID = ids.New()
	mv.CreatedAt = time.Now().UTC()
	m.materials[mv.ShiftID] = append(m.materials[mv.ShiftID], mv)
	return mv, nil
}

var _ Store = (*InMemory)(nil)
