package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"minedesk.org/internal/ids"
	"minedesk.org/internal/loan"
)

var _ loan.Store = (*Store)(nil)

const loanColumns = `id, organization_id, requested_by, amount, term_months, coalesce(purpose, ''), status,
	coalesce(interest_rate, 0), coalesce(monthly_payment, 0), approved_at, created_at, updated_at`

func scanLoan(row interface{ Scan(...any) error }) (loan.Loan, error) {
	var (
		ln       loan.Loan
		approved sql.NullTime
	)
	err := row.Scan(&ln.ID, &ln.OrganizationID, &ln.RequestedBy, &ln.Amount, &ln.TermMonths, &ln.Purpose,
		&ln.Status, &ln.InterestRate, &ln.MonthlyPayment, &approved, &ln.CreatedAt, &ln.UpdatedAt)
	if err != nil {
		return loan.Loan{}, err
	}
	if approved.Valid {
		t := approved.Time
		ln.ApprovedAt = &t
	}
	return ln, nil
}

func (s *Store) CreateLoan(ctx context.Context, ln loan.Loan) (loan.Loan, error) {
	if s.db == nil {
		return loan.Loan{}, errors.New("database connection unavailable")
	}
	id := ids.New()
	var rate, payment any
	if ln.ApprovedAt != nil {
		rate, payment = ln.InterestRate, ln.MonthlyPayment
	}
	row := s.db.QueryRowContext(ctx, `
		insert into loans (id, organization_id, requested_by, amount, term_months, purpose, status, interest_rate, monthly_payment, approved_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning `+loanColumns,
		id, ln.OrganizationID, ln.RequestedBy, ln.Amount, ln.TermMonths, nullIfEmpty(ln.Purpose),
		string(ln.Status), rate, payment, ln.ApprovedAt)
	out, err := scanLoan(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return loan.Loan{}, loan.ErrNotFound
		}
		return loan.Loan{}, err
	}
	return out, nil
}

func (s *Store) GetLoan(ctx context.Context, orgID, id string) (loan.Loan, error) {
	if s.db == nil {
		return loan.Loan{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+loanColumns+`
		from loans
		where id = $1 and organization_id = $2
	`, id, orgID)
	ln, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return loan.Loan{}, loan.ErrNotFound
	}
	if err != nil {
		return loan.Loan{}, err
	}
	return ln, nil
}

func (s *Store) ListLoans(ctx context.Context, orgID string, limit int) ([]loan.Loan, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+loanColumns+`
		from loans
		where organization_id = $1
		order by created_at desc, id desc
		limit $2
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []loan.Loan
	for rows.Next() {
		ln, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ln)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateLoan(ctx context.Context, orgID, id string, upd loan.Update) (loan.Loan, error) {
	if s.db == nil {
		return loan.Loan{}, errors.New("database connection unavailable")
	}
	if upd.Empty() {
		return loan.Loan{}, fmt.Errorf("%w: no fields to update", loan.ErrInvalidInput)
	}

	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(*upd.Status))
		idx++
	}
	if upd.InterestRate != nil {
		setClauses = append(setClauses, fmt.Sprintf("interest_rate = $%d", idx))
		args = append(args, *upd.InterestRate)
		idx++
	}
	if upd.MonthlyPayment != nil {
		setClauses = append(setClauses, fmt.Sprintf("monthly_payment = $%d", idx))
		args = append(args, *upd.MonthlyPayment)
		idx++
	}
	if upd.ApprovedAt != nil {
		setClauses = append(setClauses, fmt.Sprintf("approved_at = $%d", idx))
		args = append(args, *upd.ApprovedAt)
		idx++
	}
	setClauses = append(setClauses, "updated_at = now()")
	query := fmt.Sprintf(`
		update loans set %s
		where id = $%d and organization_id = $%d
		returning %s
	`, strings.Join(setClauses, ", "), idx, idx+1, loanColumns)
	args = append(args, id, orgID)

	ln, err := scanLoan(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return loan.Loan{}, loan.ErrNotFound
	}
	if err != nil {
		return loan.Loan{}, err
	}
	return ln, nil
}
