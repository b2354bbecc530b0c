package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"minedesk.org/internal/ids"
	"minedesk.org/internal/tenant"
)

var _ tenant.Store = (*Store)(nil)

func (s *Store) CreateOrganization(ctx context.Context, name string, metadata map[string]any) (tenant.Organization, error) {
	if s.db == nil {
		return tenant.Organization{}, errors.New("database connection unavailable")
	}

	id := ids.New()
	metaJSON := []byte("{}")
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return tenant.Organization{}, fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = raw
	}

	var (
		org    tenant.Organization
		rawMet []byte
	)
	row := s.db.QueryRowContext(ctx, `
		insert into organizations (id, name, metadata)
		values ($1, $2, $3)
		returning id, name, metadata, created_at, updated_at
	`, id, name, metaJSON)
	if err := row.Scan(&org.ID, &org.Name, &rawMet, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return tenant.Organization{}, tenant.ErrConflict
		}
		return tenant.Organization{}, err
	}
	org.Metadata = map[string]any{}
	if len(rawMet) > 0 {
		if err := json.Unmarshal(rawMet, &org.Metadata); err != nil {
			return tenant.Organization{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return org, nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (tenant.Organization, error) {
	if s.db == nil {
		return tenant.Organization{}, errors.New("database connection unavailable")
	}
	var (
		org    tenant.Organization
		rawMet []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, metadata, created_at, updated_at
		from organizations
		where id = $1
	`, id).Scan(&org.ID, &org.Name, &rawMet, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.Organization{}, tenant.ErrNotFound
	}
	if err != nil {
		return tenant.Organization{}, err
	}
	org.Metadata = map[string]any{}
	if len(rawMet) > 0 {
		if err := json.Unmarshal(rawMet, &org.Metadata); err != nil {
			return tenant.Organization{}, err
		}
	}
	return org, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]tenant.Organization, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, metadata, created_at, updated_at
		from organizations
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []tenant.Organization
	for rows.Next() {
		var (
			org    tenant.Organization
			rawMet []byte
		)
		if err := rows.Scan(&org.ID, &org.Name, &rawMet, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		org.Metadata = map[string]any{}
		if len(rawMet) > 0 {
			if err := json.Unmarshal(rawMet, &org.Metadata); err != nil {
				return nil, err
			}
		}
		result = append(result, org)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateMembership(ctx context.Context, m tenant.Membership) (tenant.Membership, error) {
	if s.db == nil {
		return tenant.Membership{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		insert into memberships (user_id, organization_id, role, status)
		values ($1, $2, $3, $4)
		returning user_id, organization_id, role, status, created_at, updated_at
	`, m.UserID, m.OrganizationID, string(m.Role), string(m.Status))
	var out tenant.Membership
	if err := row.Scan(&out.UserID, &out.OrganizationID, &out.Role, &out.Status, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return tenant.Membership{}, tenant.ErrConflict
			case pgErrForeignKeyViolation:
				return tenant.Membership{}, tenant.ErrNotFound
			}
		}
		return tenant.Membership{}, err
	}
	return out, nil
}

func (s *Store) GetMembership(ctx context.Context, userID, orgID string) (tenant.Membership, error) {
	if s.db == nil {
		return tenant.Membership{}, errors.New("database connection unavailable")
	}
	var m tenant.Membership
	err := s.db.QueryRowContext(ctx, `
		select user_id, organization_id, role, status, created_at, updated_at
		from memberships
		where user_id = $1 and organization_id = $2
	`, userID, orgID).Scan(&m.UserID, &m.OrganizationID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.Membership{}, tenant.ErrNotFound
	}
	if err != nil {
		return tenant.Membership{}, err
	}
	return m, nil
}

func (s *Store) ListMemberships(ctx context.Context, orgID string) ([]tenant.Membership, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select user_id, organization_id, role, status, created_at, updated_at
		from memberships
		where organization_id = $1
		order by user_id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []tenant.Membership
	for rows.Next() {
		var m tenant.Membership
		if err := rows.Scan(&m.UserID, &m.OrganizationID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateMembership(ctx context.Context, userID, orgID string, upd tenant.MembershipUpdate) (tenant.Membership, error) {
	if s.db == nil {
		return tenant.Membership{}, errors.New("database connection unavailable")
	}

	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Role != nil {
		setClauses = append(setClauses, fmt.Sprintf("role = $%d", idx))
		args = append(args, string(*upd.Role))
		idx++
	}
	if upd.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(*upd.Status))
		idx++
	}
	if len(setClauses) == 0 {
		return tenant.Membership{}, fmt.Errorf("%w: no fields to update", tenant.ErrInvalidInput)
	}
	setClauses = append(setClauses, "updated_at = now()")
	query := fmt.Sprintf(`
		update memberships set %s
		where user_id = $%d and organization_id = $%d
		returning user_id, organization_id, role, status, created_at, updated_at
	`, strings.Join(setClauses, ", "), idx, idx+1)
	args = append(args, userID, orgID)

	var m tenant.Membership
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&m.UserID, &m.OrganizationID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.Membership{}, tenant.ErrNotFound
	}
	if err != nil {
		return tenant.Membership{}, err
	}
	return m, nil
}
