package pg

import (
	"context"
	"database/sql"
	"errors"

	"minedesk.org/internal/ids"
	"minedesk.org/internal/sales"
)

var _ sales.Store = (*Store)(nil)

func (s *Store) CreateTransaction(ctx context.Context, tx sales.Transaction) (sales.Transaction, error) {
	if s.db == nil {
		return sales.Transaction{}, errors.New("database connection unavailable")
	}
	id := ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into sales_transactions (id, organization_id, recorded_by, buyer, total_value, occurred_at, status)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, organization_id, recorded_by, coalesce(buyer, ''), total_value, occurred_at, status, created_at, updated_at
	`, id, tx.OrganizationID, tx.RecordedBy, nullIfEmpty(tx.Buyer), tx.TotalValue, tx.OccurredAt, string(tx.Status))
	var out sales.Transaction
	if err := row.Scan(&out.ID, &out.OrganizationID, &out.RecordedBy, &out.Buyer, &out.TotalValue, &out.OccurredAt, &out.Status, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return sales.Transaction{}, sales.ErrNotFound
		}
		return sales.Transaction{}, err
	}
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, orgID, id string) (sales.Transaction, error) {
	if s.db == nil {
		return sales.Transaction{}, errors.New("database connection unavailable")
	}
	var tx sales.Transaction
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, recorded_by, coalesce(buyer, ''), total_value, occurred_at, status, created_at, updated_at
		from sales_transactions
		where id = $1 and organization_id = $2
	`, id, orgID).Scan(&tx.ID, &tx.OrganizationID, &tx.RecordedBy, &tx.Buyer, &tx.TotalValue, &tx.OccurredAt, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sales.Transaction{}, sales.ErrNotFound
	}
	if err != nil {
		return sales.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, orgID string, limit int) ([]sales.Transaction, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, recorded_by, coalesce(buyer, ''), total_value, occurred_at, status, created_at, updated_at
		from sales_transactions
		where organization_id = $1
		order by occurred_at desc, id desc
		limit $2
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []sales.Transaction
	for rows.Next() {
		var tx sales.Transaction
		if err := rows.Scan(&tx.ID, &tx.OrganizationID, &tx.RecordedBy, &tx.Buyer, &tx.TotalValue, &tx.OccurredAt, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, orgID, id string, status sales.Status) (sales.Transaction, error) {
	if s.db == nil {
		return sales.Transaction{}, errors.New("database connection unavailable")
	}
	var tx sales.Transaction
	err := s.db.QueryRowContext(ctx, `
		update sales_transactions
		set status = $3, updated_at = now()
		where id = $1 and organization_id = $2
		returning id, organization_id, recorded_by, coalesce(buyer, ''), total_value, occurred_at, status, created_at, updated_at
	`, id, orgID, string(status)).Scan(&tx.ID, &tx.OrganizationID, &tx.RecordedBy, &tx.Buyer, &tx.TotalValue, &tx.OccurredAt, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sales.Transaction{}, sales.ErrNotFound
	}
	if err != nil {
		return sales.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) AggregateQualifying(ctx context.Context, orgID string) (sales.Aggregate, error) {
	if s.db == nil {
		return sales.Aggregate{}, errors.New("database connection unavailable")
	}
	var (
		agg  sales.Aggregate
		last sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select coalesce(sum(total_value), 0), count(*), max(occurred_at)
		from sales_transactions
		where organization_id = $1 and status in ('pending', 'verified')
	`, orgID).Scan(&agg.TotalValue, &agg.Count, &last)
	if err != nil {
		return sales.Aggregate{}, err
	}
	if last.Valid {
		agg.LastSale = last.Time
	}
	return agg, nil
}
