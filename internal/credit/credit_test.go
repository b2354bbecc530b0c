package credit

import (
	"context"
	"testing"
	"time"

	"minedesk.org/internal/sales"
)

type fixedAggregator struct {
	agg sales.Aggregate
}

func (f *fixedAggregator) AggregateQualifying(_ context.Context, _ string) (sales.Aggregate, error) {
	return f.agg, nil
}

func newTestService(t *testing.T, agg sales.Aggregate, now *time.Time) *Service {
	t.Helper()
	svc, err := NewService(NewInMemory(), &fixedAggregator{agg: agg}, WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestZeroSalesScoresFiftyGradeD(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, sales.Aggregate{}, &now)

	score, err := svc.GetOrCompute(context.Background(), "org-1", false)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if score.Value != 50 {
		t.Fatalf("value = %d, want 50", score.Value)
	}
	if score.Grade != "D" {
		t.Fatalf("grade = %s, want D", score.Grade)
	}
	if score.ModelVersion != ModelVersion {
		t.Fatalf("model version = %s, want %s", score.ModelVersion, ModelVersion)
	}
	if len(score.Factors) != 2 {
		t.Fatalf("factors = %d, want 2", len(score.Factors))
	}
}

func TestScoreBoundsAndGradeBands(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	cases := map[string]struct {
		agg   sales.Aggregate
		value int
		grade string
	}{
		"modest volume": {
			agg:   sales.Aggregate{TotalValue: 100_000, Count: 1}, // $1000, 1 sale
			value: 62,                                             // 50 + 10 + 2
			grade: "C",
		},
		"high volume caps at 30": {
			agg:   sales.Aggregate{TotalValue: 10_000_000, Count: 1}, // $100k
			value: 82,                                                // 50 + 30 + 2
			grade: "B",
		},
		"frequency caps at 20": {
			agg:   sales.Aggregate{TotalValue: 5_000, Count: 500},
			value: 70, // 50 + 0 + 20
			grade: "B",
		},
		"both caps reach 100": {
			agg:   sales.Aggregate{TotalValue: 50_000_000, Count: 50},
			value: 100,
			grade: "A",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(t, tc.agg, &now)
			score, err := svc.GetOrCompute(context.Background(), "org-1", true)
			if err != nil {
				t.Fatalf("GetOrCompute: %v", err)
			}
			if score.Value != tc.value {
				t.Fatalf("value = %d, want %d", score.Value, tc.value)
			}
			if score.Grade != tc.grade {
				t.Fatalf("grade = %s, want %s", score.Grade, tc.grade)
			}
			if score.Value < 0 || score.Value > 100 {
				t.Fatalf("value %d out of [0,100]", score.Value)
			}
		})
	}
}

func TestSnapshotCachedWithinWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, sales.Aggregate{TotalValue: 100_000, Count: 3}, &now)
	ctx := context.Background()

	first, err := svc.GetOrCompute(ctx, "org-1", false)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}

	now = now.Add(23 * time.Hour)
	second, err := svc.GetOrCompute(ctx, "org-1", false)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if second.ID != first.ID || !second.ComputedAt.Equal(first.ComputedAt) {
		t.Fatalf("expected cached snapshot, got %+v vs %+v", second, first)
	}
}

func TestSnapshotRecomputedAfterWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, sales.Aggregate{TotalValue: 100_000, Count: 3}, &now)
	ctx := context.Background()

	first, err := svc.GetOrCompute(ctx, "org-1", false)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}

	now = now.Add(25 * time.Hour)
	second, err := svc.GetOrCompute(ctx, "org-1", false)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if !second.ComputedAt.After(first.ComputedAt) {
		t.Fatalf("computed_at = %v, want after %v", second.ComputedAt, first.ComputedAt)
	}
}

func TestForceBypassesCache(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, sales.Aggregate{TotalValue: 100_000, Count: 3}, &now)
	ctx := context.Background()

	first, err := svc.GetOrCompute(ctx, "org-1", false)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}

	now = now.Add(time.Minute)
	forced, err := svc.GetOrCompute(ctx, "org-1", true)
	if err != nil {
		t.Fatalf("GetOrCompute force: %v", err)
	}
	if forced.ID == first.ID {
		t.Fatal("expected a new snapshot when forced")
	}
	if !forced.ComputedAt.After(first.ComputedAt) {
		t.Fatalf("computed_at = %v, want after %v", forced.ComputedAt, first.ComputedAt)
	}
	if forced.Value != first.Value {
		t.Fatalf("forced value = %d, want %d (same aggregate, same algorithm)", forced.Value, first.Value)
	}
}
