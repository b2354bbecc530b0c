package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"minedesk.org/internal/ids"
	"minedesk.org/internal/ops"
)

var _ ops.Store = (*Store)(nil)

func (s *Store) CreateShift(ctx context.Context, sh ops.Shift) (ops.Shift, error) {
	if s.db == nil {
		return ops.Shift{}, errors.New("database connection unavailable")
	}
	id := ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into shifts (id, organization_id, opened_by, site, started_at, notes)
		values ($1, $2, $3, $4, $5, $6)
		returning id, organization_id, opened_by, site, started_at, coalesce(notes, ''), created_at, updated_at
	`, id, sh.OrganizationID, sh.OpenedBy, sh.Site, sh.StartedAt, nullIfEmpty(sh.Notes))
	var out ops.Shift
	if err := row.Scan(&out.ID, &out.OrganizationID, &out.OpenedBy, &out.Site, &out.StartedAt, &out.Notes, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return ops.Shift{}, ops.ErrNotFound
		}
		return ops.Shift{}, err
	}
	return out, nil
}

func (s *Store) GetShift(ctx context.Context, orgID, id string) (ops.ShiftDetail, error) {
	if s.db == nil {
		return ops.ShiftDetail{}, errors.New("database connection unavailable")
	}
	var (
		sh    ops.Shift
		ended sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, opened_by, site, started_at, ended_at, coalesce(notes, ''), created_at, updated_at
		from shifts
		where id = $1 and organization_id = $2
	`, id, orgID).Scan(&sh.ID, &sh.OrganizationID, &sh.OpenedBy, &sh.Site, &sh.StartedAt, &ended, &sh.Notes, &sh.CreatedAt, &sh.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ops.ShiftDetail{}, ops.ErrNotFound
	}
	if err != nil {
		return ops.ShiftDetail{}, err
	}
	if ended.Valid {
		t := ended.Time
		sh.EndedAt = &t
	}

	detail := ops.ShiftDetail{Shift: sh}

	rows, err := s.db.QueryContext(ctx, `
		select id, shift_id, user_id, hours, coalesce(role_on_day, ''), created_at
		from timesheet_entries
		where shift_id = $1
		order by created_at
	`, id)
	if err != nil {
		return ops.ShiftDetail{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry ops.TimesheetEntry
		if err := rows.Scan(&entry.ID, &entry.ShiftID, &entry.UserID, &entry.Hours, &entry.RoleOnDay, &entry.CreatedAt); err != nil {
			return ops.ShiftDetail{}, err
		}
		detail.Timesheet = append(detail.Timesheet, entry)
	}
	if err := rows.Err(); err != nil {
		return ops.ShiftDetail{}, err
	}

	mvRows, err := s.db.QueryContext(ctx, `
		select id, shift_id, material, quantity, direction, created_at
		from material_movements
		where shift_id = $1
		order by created_at
	`, id)
	if err != nil {
		return ops.ShiftDetail{}, err
	}
	defer mvRows.Close()
	for mvRows.Next() {
		var mv ops.MaterialMovement
		if err := mvRows.Scan(&mv.ID, &mv.ShiftID, &mv.Material, &mv.Quantity, &mv.Direction, &mv.CreatedAt); err != nil {
			return ops.ShiftDetail{}, err
		}
		detail.Materials = append(detail.Materials, mv)
	}
	if err := mvRows.Err(); err != nil {
		return ops.ShiftDetail{}, err
	}
	return detail, nil
}

func (s *Store) ListShifts(ctx context.Context, orgID string, limit int) ([]ops.Shift, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, opened_by, site, started_at, ended_at, coalesce(notes, ''), created_at, updated_at
		from shifts
		where organization_id = $1
		order by started_at desc, id desc
		limit $2
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ops.Shift
	for rows.Next() {
		var (
			sh    ops.Shift
			ended sql.NullTime
		)
		if err := rows.Scan(&sh.ID, &sh.OrganizationID, &sh.OpenedBy, &sh.Site, &sh.StartedAt, &ended, &sh.Notes, &sh.CreatedAt, &sh.UpdatedAt); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			sh.EndedAt = &t
		}
		result = append(result, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CloseShift(ctx context.Context, orgID, id string, endedAt time.Time) (ops.Shift, error) {
	if s.db == nil {
		return ops.Shift{}, errors.New("database connection unavailable")
	}
	var (
		sh    ops.Shift
		ended sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		update shifts
		set ended_at = $3, updated_at = now()
		where id = $1 and organization_id = $2
		returning id, organization_id, opened_by, site, started_at, ended_at, coalesce(notes, ''), created_at, updated_at
	`, id, orgID, endedAt).Scan(&sh.ID, &sh.OrganizationID, &sh.OpenedBy, &sh.Site, &sh.StartedAt, &ended, &sh.Notes, &sh.CreatedAt, &sh.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ops.Shift{}, ops.ErrNotFound
	}
	if err != nil {
		return ops.Shift{}, err
	}
	if ended.Valid {
		t := ended.Time
		sh.EndedAt = &t
	}
	return sh, nil
}

func (s *Store) AddTimesheetEntry(ctx context.Context, entry ops.TimesheetEntry) (ops.TimesheetEntry, error) {
	if s.db == nil {
		return ops.TimesheetEntry{}, errors.New("database connection unavailable")
	}
	id := ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into timesheet_entries (id, shift_id, user_id, hours, role_on_day)
		values ($1, $2, $3, $4, $5)
		returning id, shift_id, user_id, hours, coalesce(role_on_day, ''), created_at
	`, id, entry.ShiftID, entry.UserID, entry.Hours, nullIfEmpty(entry.RoleOnDay))
	var out ops.TimesheetEntry
	if err := row.Scan(&out.ID, &out.ShiftID, &out.UserID, &out.Hours, &out.RoleOnDay, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return ops.TimesheetEntry{}, ops.ErrNotFound
		}
		return ops.TimesheetEntry{}, err
	}
	return out, nil
}

func (s *Store) AddMaterialMovement(ctx context.Context, mv ops.MaterialMovement) (ops.MaterialMovement, error) {
	if s.db == nil {
		return ops.MaterialMovement{}, errors.New("database connection unavailable")
	}
	id := ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into material_movements (id, shift_id, material, quantity, direction)
		values ($1, $2, $3, $4, $5)
		returning id, shift_id, material, quantity, direction, created_at
	`, id, mv.ShiftID, mv.Material, mv.Quantity, mv.Direction)
	var out ops.MaterialMovement
	if err := row.Scan(&out.ID, &out.ShiftID, &out.Material, &out.Quantity, &out.Direction, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return ops.MaterialMovement{}, ops.ErrNotFound
		}
		return ops.MaterialMovement{}, err
	}
	return out, nil
}
