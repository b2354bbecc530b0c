// Package loan handles organization loan applications and the
// small-amount auto-approval rule.
package loan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("loan: not found")
	ErrInvalidInput = errors.New("loan: invalid input")
)

// Status is the lifecycle state of a loan.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewing Status = "reviewing"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusActive    Status = "active"
	StatusPaid      Status = "paid"
	StatusDefaulted Status = "defaulted"
)

// ParseStatus normalizes and validates a loan status string.
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.TrimSpace(strings.ToLower(raw)))
	switch status {
	case StatusPending, StatusReviewing, StatusApproved, StatusRejected,
		StatusActive, StatusPaid, StatusDefaulted:
		return status, nil
	}
	return "", fmt.Errorf("%w: unknown loan status %q", ErrInvalidInput, raw)
}

// autoApproveLimit is the strict upper bound for auto-approval, in
// minor units. Applications at or above it stay pending for review.
const autoApproveLimit = 100_000 // $1000.00

// autoApproveRate is the annual interest rate applied to auto-approved
// loans, in percent.
const autoApproveRate = 10.0

// Loan is one application with its decision terms, when granted.
// Amounts are minor units (cents).
type Loan struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	RequestedBy    string     `json:"requested_by"`
	Amount         int64      `json:"amount"` // minor units
	TermMonths     int        `json:"term_months"`
	Purpose        string     `json:"purpose,omitempty"`
	Status         Status     `json:"status"`
	InterestRate   float64    `json:"interest_rate,omitempty"`   // percent, set when approved
	MonthlyPayment int64      `json:"monthly_payment,omitempty"` // minor units, set when approved
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Decision is the outcome of evaluating a new application.
type Decision struct {
	Status         Status
	InterestRate   float64
	MonthlyPayment int64
	ApprovedAt     *time.Time
}

// Decide applies the auto-approval rule. Amounts strictly under the
// limit are approved immediately at the standard rate; everything else
// stays pending with no terms set. The rule looks only at the amount.
func Decide(amount int64, termMonths int, now time.Time) Decision {
	if amount < autoApproveLimit {
		approved := now
		return Decision{
			Status:         StatusApproved,
			InterestRate:   autoApproveRate,
			MonthlyPayment: monthlyPayment(amount, termMonths),
			ApprovedAt:     &approved,
		}
	}
	return Decision{Status: StatusPending}
}

// monthlyPayment is (amount / term) * 1.1 carried out in integer minor
// units with half-up rounding.
func monthlyPayment(amount int64, termMonths int) int64 {
	term := int64(termMonths)
	return (amount*110 + term*50) / (term * 100)
}

// Store describes persistence operations for loans.
type Store interface {
	CreateLoan(ctx context.Context, ln Loan) (Loan, error)
	GetLoan(ctx context.Context, orgID, id string) (Loan, error)
	ListLoans(ctx context.Context, orgID string, limit int) ([]Loan, error)
	UpdateLoan(ctx context.Context, orgID, id string, update Update) (Loan, error)
}

// ApplyInput is the caller-supplied part of an application.
type ApplyInput struct {
	Amount     int64
	TermMonths int
	Purpose    string
}

// Update carries the mutable fields of a loan. Nil means unchanged.
type Update struct {
	Status         *Status
	InterestRate   *float64
	MonthlyPayment *int64
	ApprovedAt     *time.Time
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Status == nil && u.InterestRate == nil && u.MonthlyPayment == nil && u.ApprovedAt == nil
}

// Service validates applications, applies the decision rule and
// delegates persistence to the Store.
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
		return nil, errors.New("loan store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Apply records a new application and runs the auto-approval rule.
func (s *Service) Apply(ctx context.Context, orgID, userID string, in ApplyInput) (Loan, error) {
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)
	if orgID == "" || userID == "" {
		return Loan{}, fmt.Errorf("%w: organization and user ids are required", ErrInvalidInput)
	}
	if in.Amount <= 0 {
		return Loan{}, fmt.Errorf("%w: amount must be > 0", ErrInvalidInput)
	}
	if in.TermMonths <= 0 {
		return Loan{}, fmt.Errorf("%w: term must be at least one month", ErrInvalidInput)
	}

	decision := Decide(in.Amount, in.TermMonths, s.now().UTC())
	return s.store.CreateLoan(ctx, Loan{
		OrganizationID: orgID,
		RequestedBy:    userID,
		Amount:         in.Amount,
		TermMonths:     in.TermMonths,
		Purpose:        strings.TrimSpace(in.Purpose),
		Status:         decision.Status,
		InterestRate:   decision.InterestRate,
		MonthlyPayment: decision.MonthlyPayment,
		ApprovedAt:     decision.ApprovedAt,
	})
}

// Get fetches one loan scoped to the organization.
func (s *Service) Get(ctx context.Context, orgID, id string) (Loan, error) {
	if strings.TrimSpace(id) == "" {
		return Loan{}, fmt.Errorf("%w: loan id is required", ErrInvalidInput)
	}
	return s.store.GetLoan(ctx, orgID, id)
}

// List returns the organization's loans, newest first.
func (s *Service) List(ctx context.Context, orgID string, limit int) ([]Loan, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.ListLoans(ctx, orgID, limit)
}

// Review transitions a loan's status by hand. Approving through here
// sets the standard terms if none were recorded yet.
func (s *Service) Review(ctx context.Context, orgID, id string, status Status) (Loan, error) {
	if strings.TrimSpace(id) == "" {
		return Loan{}, fmt.Errorf("%w: loan id is required", ErrInvalidInput)
	}
	parsed, err := ParseStatus(string(status))
	if err != nil {
		return Loan{}, err
	}

	update := Update{Status: &parsed}
	if parsed == StatusApproved {
		current, err := s.store.GetLoan(ctx, orgID, id)
		if err != nil {
			return Loan{}, err
		}
		if current.ApprovedAt == nil {
			rate := autoApproveRate
			payment := monthlyPayment(current.Amount, current.TermMonths)
			approved := s.now().UTC()
			update.InterestRate = &rate
			update.MonthlyPayment = &payment
			update.ApprovedAt = &approved
		}
	}
	return s.store.UpdateLoan(ctx, orgID, id, update)
}
