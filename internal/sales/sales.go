// Package sales keeps the per-organization record of ore and mineral sales.
// Qualifying transactions feed the financial-health scorer.
package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("sales: not found")
	ErrInvalidInput = errors.New("sales: invalid input")
)

// Status is the verification state of a recorded sale.
type Status string

const (
	StatusPending    Status = "pending"
	StatusVerified   Status = "verified"
	StatusReconciled Status = "reconciled"
	StatusFlagged    Status = "flagged"
)

// ParseStatus normalizes and validates a sale status string.
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.TrimSpace(strings.ToLower(raw)))
	switch status {
	case StatusPending, StatusVerified, StatusReconciled, StatusFlagged:
		return status, nil
	}
	return "", fmt.Errorf("%w: unknown sale status %q", ErrInvalidInput, raw)
}

// QualifiesForScoring reports whether a sale in this status counts toward the
// financial-health aggregate. Reconciled and flagged sales are excluded.
func (s Status) QualifiesForScoring() bool {
	return s == StatusPending || s == StatusVerified
}

// Transaction is one recorded sale. Amounts are minor units (cents); no floats.
type Transaction struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	RecordedBy     string    `json:"recorded_by"`
	Buyer          string    `json:"buyer,omitempty"`
	TotalValue     int64     `json:"total_value"` // minor units
	OccurredAt     time.Time `json:"occurred_at"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Aggregate summarizes an organization's qualifying sales.
type Aggregate struct {
	TotalValue int64     `json:"total_value"` // minor units
	Count      int       `json:"count"`
	LastSale   time.Time `json:"last_sale,omitempty"`
}

// Store describes persistence operations for sales records.
type Store interface {
	CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, orgID, id string) (Transaction, error)
	ListTransactions(ctx context.Context, orgID string, limit int) ([]Transaction, error)
	UpdateTransactionStatus(ctx context.Context, orgID, id string, status Status) (Transaction, error)
	// AggregateQualifying sums value and count over pending+verified sales
	// and reports the most recent sale date among them.
	AggregateQualifying(ctx context.Context, orgID string) (Aggregate, error)
}

// RecordInput is the caller-supplied part of a new sale.
type RecordInput struct {
	Buyer      string
	TotalValue int64
	OccurredAt time.Time
}

// Service validates inputs and delegates persistence to the Store.
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
		return nil, errors.New("sales store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Record stores a new sale with status pending.
func (s *Service) Record(ctx context.Context, orgID, userID string, in RecordInput) (Transaction, error) {
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)
	if orgID == "" || userID == "" {
		return Transaction{}, fmt.Errorf("%w: organization and user ids are required", ErrInvalidInput)
	}
	if in.TotalValue <= 0 {
		return Transaction{}, fmt.Errorf("%w: total value must be > 0", ErrInvalidInput)
	}
	occurred := in.OccurredAt
	now := s.now().UTC()
	if occurred.IsZero() {
		occurred = now
	}
	if occurred.After(now.Add(24 * time.Hour)) {
		return Transaction{}, fmt.Errorf("%w: sale date is in the future", ErrInvalidInput)
	}
	return s.store.CreateTransaction(ctx, Transaction{
		OrganizationID: orgID,
		RecordedBy:     userID,
		Buyer:          strings.TrimSpace(in.Buyer),
		TotalValue:     in.TotalValue,
		OccurredAt:     occurred,
		Status:         StatusPending,
	})
}

// Get fetches one sale scoped to the organization.
func (s *Service) Get(ctx context.Context, orgID, id string) (Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return Transaction{}, fmt.Errorf("%w: sale id is required", ErrInvalidInput)
	}
	return s.store.GetTransaction(ctx, orgID, id)
}

// List returns the organization's sales, newest first.
func (s *Service) List(ctx context.Context, orgID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.ListTransactions(ctx, orgID, limit)
}

// SetStatus transitions the verification state of a sale.
func (s *Service) SetStatus(ctx context.Context, orgID, id string, status Status) (Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return Transaction{}, fmt.Errorf("%w: sale id is required", ErrInvalidInput)
	}
	parsed, err := ParseStatus(string(status))
	if err != nil {
		return Transaction{}, err
	}
	return s.store.UpdateTransactionStatus(ctx, orgID, id, parsed)
}

// AggregateQualifying exposes the scoring aggregate for an organization.
func (s *Service) AggregateQualifying(ctx context.Context, orgID string) (Aggregate, error) {
	return s.store.AggregateQualifying(ctx, orgID)
}
