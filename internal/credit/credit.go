// Package credit computes and caches financial-health scores for
// organizations from their qualifying sales history.
package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"minedesk.org/internal/obs"
	"minedesk.org/internal/sales"
)

var (
	ErrNotFound     = errors.New("credit: not found")
	ErrInvalidInput = errors.New("credit: invalid input")
)

// ModelVersion tags every snapshot with the scoring algorithm revision.
const ModelVersion = "v1.0"

// snapshotWindow is how long a computed score stays fresh.
const snapshotWindow = 24 * time.Hour

// Factor is one explainable component of a score.
type Factor struct {
	Name        string  `json:"name"`
	Score       int     `json:"score"`  // 0..100 sub-score
	Weight      float64 `json:"weight"` // contribution weight
	Impact      string  `json:"impact"` // positive, neutral, negative
	Explanation string  `json:"explanation"`
}

// Score is a point-in-time financial-health snapshot.
type Score struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Value          int       `json:"value"` // 0..100
	Grade          string    `json:"grade"` // A..D
	Factors        []Factor  `json:"factors"`
	ModelVersion   string    `json:"model_version"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Fresh reports whether the snapshot is still within the cache window.
func (s Score) Fresh(now time.Time) bool {
	return now.Sub(s.ComputedAt) < snapshotWindow
}

// Store persists score snapshots. Snapshots are append-only; the most
// recent one wins.
type Store interface {
	LatestScore(ctx context.Context, orgID string) (Score, error)
	InsertScore(ctx context.Context, score Score) (Score, error)
}

// SalesAggregator supplies the qualifying-sales aggregate for scoring.
type SalesAggregator interface {
	AggregateQualifying(ctx context.Context, orgID string) (sales.Aggregate, error)
}

// Service computes scores on demand and serves cached snapshots.
type Service struct {
	store Store
	sales SalesAggregator
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
func NewService(store Store, aggregator SalesAggregator, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("credit store is required")
	}
	if aggregator == nil {
		return nil, errors.New("sales aggregator is required")
	}
	svc := &Service{store: store, sales: aggregator, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GetOrCompute returns a financial-health score for the organization.
// A snapshot computed within the last 24 hours is returned as-is unless
// force is set, in which case the score is recomputed and a new snapshot
// is stored.
func (s *Service) GetOrCompute(ctx context.Context, orgID string, force bool) (Score, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return Score{}, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	now := s.now().UTC()

	if !force {
		latest, err := s.store.LatestScore(ctx, orgID)
		if err == nil && latest.Fresh(now) {
			obs.CountScore("cached")
			return latest, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Score{}, err
		}
	}

	agg, err := s.sales.AggregateQualifying(ctx, orgID)
	if err != nil {
		return Score{}, fmt.Errorf("aggregate sales for %s: %w", orgID, err)
	}

	score := compute(orgID, agg, now)
	stored, err := s.store.InsertScore(ctx, score)
	if err != nil {
		return Score{}, err
	}
	if force {
		obs.CountScore("forced")
	} else {
		obs.CountScore("computed")
	}
	return stored, nil
}

// Latest returns the most recent snapshot without computing a new one.
func (s *Service) Latest(ctx context.Context, orgID string) (Score, error) {
	return s.store.LatestScore(ctx, orgID)
}

// compute derives the score from the qualifying-sales aggregate.
//
// The value starts at a base of 50, gains up to 30 points for revenue
// volume (one point per $100 of qualifying sales) and up to 20 points
// for transaction frequency (two points per sale), so it always lands
// in [50, 100].
func compute(orgID string, agg sales.Aggregate, now time.Time) Score {
	volumePoints := agg.TotalValue / 10_000
	if volumePoints > 30 {
		volumePoints = 30
	}
	frequencyPoints := int64(agg.Count) * 2
	if frequencyPoints > 20 {
		frequencyPoints = 20
	}
	value := int(50 + volumePoints + frequencyPoints)

	volumeSub := agg.TotalValue * 100 / 300_000
	if volumeSub > 100 {
		volumeSub = 100
	}
	frequencySub := agg.Count * 10
	if frequencySub > 100 {
		frequencySub = 100
	}

	return Score{
		OrganizationID: orgID,
		Value:          value,
		Grade:          gradeFor(value),
		ModelVersion:   ModelVersion,
		ComputedAt:     now,
		Factors: []Factor{
			{
				Name:        "Revenue Volume",
				Score:       int(volumeSub),
				Weight:      0.5,
				Impact:      impactFor(int(volumeSub)),
				Explanation: fmt.Sprintf("Qualifying sales total %d minor units across the recorded history.", agg.TotalValue),
			},
			{
				Name:        "Transaction Frequency",
				Score:       frequencySub,
				Weight:      0.3,
				Impact:      impactFor(frequencySub),
				Explanation: fmt.Sprintf("%d qualifying sales recorded; regular activity improves the grade.", agg.Count),
			},
		},
	}
}

// gradeFor maps a score value to its letter band. The bands are
// authoritative: a freshly-created organization scores 50 and grades D.
func gradeFor(value int) string {
	switch {
	case value >= 90:
		return "A"
	case value >= 70:
		return "B"
	case value >= 60:
		return "C"
	default:
		return "D"
	}
}

func impactFor(sub int) string {
	switch {
	case sub >= 60:
		return "positive"
	case sub >= 30:
		return "neutral"
	default:
		return "negative"
	}
}
