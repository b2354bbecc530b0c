// Package ops records mining shift operations: the shift itself plus
// the timesheet entries and material movements captured with it.
package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("ops: not found")
	ErrInvalidInput = errors.New("ops: invalid input")
)

// Shift is one work period at a site.
type Shift struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	OpenedBy       string     `json:"opened_by"`
	Site           string     `json:"site"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TimesheetEntry records one worker's hours on a shift.
type TimesheetEntry struct {
	ID        string    `json:"id"`
	ShiftID   string    `json:"shift_id"`
	UserID    string    `json:"user_id"`
	Hours     float64   `json:"hours"`
	RoleOnDay string    `json:"role_on_day,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MaterialMovement records ore or supplies moved during a shift.
// Quantities are grams for ore and whole units otherwise.
type MaterialMovement struct {
	ID        string    `json:"id"`
	ShiftID   string    `json:"shift_id"`
	Material  string    `json:"material"`
	Quantity  int64     `json:"quantity"`
	Direction string    `json:"direction"` // in or out
	CreatedAt time.Time `json:"created_at"`
}

// ShiftDetail is a shift with its attached records.
type ShiftDetail struct {
	Shift     Shift              `json:"shift"`
	Timesheet []TimesheetEntry   `json:"timesheet"`
	Materials []MaterialMovement `json:"materials"`
}

// Store describes persistence operations for shift records.
type Store interface {
	CreateShift(ctx context.Context, sh Shift) (Shift, error)
	GetShift(ctx context.Context, orgID, id string) (ShiftDetail, error)
	ListShifts(ctx context.Context, orgID string, limit int) ([]Shift, error)
	CloseShift(ctx context.Context, orgID, id string, endedAt time.Time) (Shift, error)
	AddTimesheetEntry(ctx context.Context, entry TimesheetEntry) (TimesheetEntry, error)
	AddMaterialMovement(ctx context.Context, mv MaterialMovement) (MaterialMovement, error)
}

// TimesheetInput is one worker line in an OpenShift request.
type TimesheetInput struct {
	UserID    string
	Hours     float64
	RoleOnDay string
}

// MaterialInput is one movement line in an OpenShift request.
type MaterialInput struct {
	Material  string
	Quantity  int64
	Direction string
}

// OpenShiftInput is the composite payload for opening a shift.
type OpenShiftInput struct {
	Site      string
	StartedAt time.Time
	Notes     string
	Timesheet []TimesheetInput
	Materials []MaterialInput
}

// Service validates shift records and delegates persistence to the Store.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ops store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// OpenShift creates the shift, then its timesheet entries, then its
// material movements, sequentially. The writes are not atomic: if a
// child insert fails the shift row survives with the records written
// so far, and the caller gets the error alongside nothing else. Missing
// children can be re-added through the shift detail endpoints.
func (s *Service) OpenShift(ctx context.Context, orgID, userID string, in OpenShiftInput) (ShiftDetail, error) {
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)
	if orgID == "" || userID == "" {
		return ShiftDetail{}, fmt.Errorf("%w: organization and user ids are required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Site) == "" {
		return ShiftDetail{}, fmt.Errorf("%w: site is required", ErrInvalidInput)
	}
	for i, entry := range in.Timesheet {
		if strings.TrimSpace(entry.UserID) == "" {
			return ShiftDetail{}, fmt.Errorf("%w: timesheet entry %d is missing a user id", ErrInvalidInput, i)
		}
		if entry.Hours <= 0 || entry.Hours > 24 {
			return ShiftDetail{}, fmt.Errorf("%w: timesheet entry %d hours must be in (0, 24]", ErrInvalidInput, i)
		}
	}
	for i, mv := range in.Materials {
		if strings.TrimSpace(mv.Material) == "" {
			return ShiftDetail{}, fmt.Errorf("%w: material movement %d is missing a material", ErrInvalidInput, i)
		}
		if mv.Quantity <= 0 {
			return ShiftDetail{}, fmt.Errorf("%w: material movement %d quantity must be > 0", ErrInvalidInput, i)
		}
		if mv.Direction != "in" && mv.Direction != "out" {
			return ShiftDetail{}, fmt.Errorf("%w: material movement %d direction must be in or out", ErrInvalidInput, i)
		}
	}

	started := in.StartedAt
	if started.IsZero() {
		started = s.now().UTC()
	}
	shift, err := s.store.CreateShift(ctx, Shift{
		OrganizationID: orgID,
		OpenedBy:       userID,
		Site:           strings.TrimSpace(in.Site),
		StartedAt:      started,
		Notes:          strings.TrimSpace(in.Notes),
	})
	if err != nil {
		return ShiftDetail{}, err
	}

	detail := ShiftDetail{Shift: shift}
	for _, entry := range in.Timesheet {
		stored, err := s.store.AddTimesheetEntry(ctx, TimesheetEntry{
			ShiftID:   shift.ID,
			UserID:    strings.TrimSpace(entry.UserID),
			Hours:     entry.Hours,
			RoleOnDay: strings.TrimSpace(entry.RoleOnDay),
		})
		if err != nil {
			return ShiftDetail{}, fmt.Errorf("shift %s created but timesheet entry failed: %w", shift.ID, err)
		}
		detail.Timesheet = append(detail.Timesheet, stored)
	}
	for _, mv := range in.Materials {
		stored, err := s.store.AddMaterialMovement(ctx, MaterialMovement{
			ShiftID:   shift.ID,
			Material:  strings.TrimSpace(mv.Material),
			Quantity:  mv.Quantity,
			Direction: mv.Direction,
		})
		if err != nil {
			return ShiftDetail{}, fmt.Errorf("shift %s created but material movement failed: %w", shift.ID, err)
		}
		detail.Materials = append(detail.Materials, stored)
	}
	return detail, nil
}

// Get fetches a shift with its attached records.
func (s *Service) Get(ctx context.Context, orgID, id string) (ShiftDetail, error) {
	if strings.TrimSpace(id) == "" {
		return ShiftDetail{}, fmt.Errorf("%w: shift id is required", ErrInvalidInput)
	}
	return s.store.GetShift(ctx, orgID, id)
}

// List returns the organization's shifts, newest first.
func (s *Service) List(ctx context.Context, orgID string, limit int) ([]Shift, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.ListShifts(ctx, orgID, limit)
}

// Close marks a shift as ended.
func (s *Service) Close(ctx context.Context, orgID, id string) (Shift, error) {
	if strings.TrimSpace(id) == "" {
		return Shift{}, fmt.Errorf("%w: shift id is required", ErrInvalidInput)
	}
	return s.store.CloseShift(ctx, orgID, id, s.now().UTC())
}
