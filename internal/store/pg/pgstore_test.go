package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"minedesk.org/internal/credit"
	"minedesk.org/internal/sales"
	"minedesk.org/internal/tenant"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestGetMembership(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"user_id", "organization_id", "role", "status", "created_at", "updated_at"}).
		AddRow("user-1", "org-1", "supervisor", "active", now, now)
	mock.ExpectQuery("select user_id, organization_id, role, status, created_at, updated_at.*from memberships").
		WithArgs("user-1", "org-1").
		WillReturnRows(rows)

	m, err := store.GetMembership(context.Background(), "user-1", "org-1")
	if err != nil {
		t.Fatalf("GetMembership: %v", err)
	}
	if m.Role != tenant.RoleSupervisor || m.Status != tenant.MemberActive {
		t.Fatalf("unexpected membership: %+v", m)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetMembershipNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select user_id, organization_id, role, status, created_at, updated_at.*from memberships").
		WithArgs("user-1", "org-1").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.GetMembership(context.Background(), "user-1", "org-1"); !errors.Is(err, tenant.ErrNotFound) {
		t.Fatalf("err = %v, want tenant.ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAggregateQualifying(t *testing.T) {
	store, mock := newMockStore(t)
	last := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"coalesce", "count", "max"}).AddRow(int64(250_000), 7, last)
	mock.ExpectQuery("select coalesce\\(sum\\(total_value\\), 0\\), count\\(\\*\\), max\\(occurred_at\\).*from sales_transactions").
		WithArgs("org-1").
		WillReturnRows(rows)

	agg, err := store.AggregateQualifying(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("AggregateQualifying: %v", err)
	}
	if agg.TotalValue != 250_000 || agg.Count != 7 || !agg.LastSale.Equal(last) {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAggregateQualifyingEmptyOrganization(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"coalesce", "count", "max"}).AddRow(int64(0), 0, nil)
	mock.ExpectQuery("select coalesce\\(sum\\(total_value\\), 0\\), count\\(\\*\\), max\\(occurred_at\\).*from sales_transactions").
		WithArgs("org-1").
		WillReturnRows(rows)

	agg, err := store.AggregateQualifying(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("AggregateQualifying: %v", err)
	}
	if agg.TotalValue != 0 || agg.Count != 0 || !agg.LastSale.IsZero() {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLatestScoreDecodesFactors(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	factors := []byte(`[{"name":"Revenue Volume","score":40,"weight":0.5,"impact":"neutral","explanation":"x"}]`)
	rows := sqlmock.NewRows([]string{"id", "organization_id", "value", "grade", "factors", "model_version", "computed_at"}).
		AddRow("score-1", "org-1", 71, "B", factors, credit.ModelVersion, now)
	mock.ExpectQuery("select id, organization_id, value, grade, factors, model_version, computed_at.*from credit_scores").
		WithArgs("org-1").
		WillReturnRows(rows)

	score, err := store.LatestScore(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("LatestScore: %v", err)
	}
	if score.Value != 71 || score.Grade != "B" {
		t.Fatalf("unexpected score: %+v", score)
	}
	if len(score.Factors) != 1 || score.Factors[0].Name != "Revenue Volume" {
		t.Fatalf("factors not decoded: %+v", score.Factors)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLatestScoreNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, organization_id, value, grade, factors, model_version, computed_at.*from credit_scores").
		WithArgs("org-1").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.LatestScore(context.Background(), "org-1"); !errors.Is(err, credit.ErrNotFound) {
		t.Fatalf("err = %v, want credit.ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListTransactions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "organization_id", "recorded_by", "buyer", "total_value", "occurred_at", "status", "created_at", "updated_at"}).
		AddRow("tx-2", "org-1", "user-1", "Astana Refinery", int64(200_00), now, "verified", now, now).
		AddRow("tx-1", "org-1", "user-1", "", int64(100_00), now.Add(-time.Hour), "pending", now, now)
	mock.ExpectQuery("select id, organization_id, recorded_by, coalesce\\(buyer, ''\\).*from sales_transactions").
		WithArgs("org-1", 50).
		WillReturnRows(rows)

	txs, err := store.ListTransactions(context.Background(), "org-1", 50)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len = %d, want 2", len(txs))
	}
	if txs[0].Status != sales.StatusVerified || txs[1].Buyer != "" {
		t.Fatalf("unexpected rows: %+v", txs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
