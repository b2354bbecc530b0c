package httpapi

import (
	"net/http"
	"strings"
	"time"

	"minedesk.org/internal/auth"
	"minedesk.org/internal/ops"
	"minedesk.org/internal/stream"
	"minedesk.org/internal/tenant"
)

type timesheetEntryRequest struct {
	UserID    string  `json:"user_id"`
	Hours     float64 `json:"hours"`
	RoleOnDay string  `json:"role_on_day"`
}

type materialMovementRequest struct {
	Material  string `json:"material"`
	Quantity  int64  `json:"quantity"`
	Direction string `json:"direction"`
}

type openShiftRequest struct {
	Site      string                    `json:"site"`
	StartedAt time.Time                 `json:"started_at"`
	Notes     string                    `json:"notes"`
	Timesheet []timesheetEntryRequest   `json:"timesheet"`
	Materials []materialMovementRequest `json:"materials"`
}

func (a *API) handleShifts(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	membership, _ := tenant.MembershipFromContext(r.Context())

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			items, err := a.ops.List(r.Context(), orgID, limit)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
		case http.MethodPost:
			if !membership.HasRole(tenant.RoleOwner, tenant.RoleAdmin, tenant.RoleSupervisor) {
				handleDomainError(w, r, tenant.ErrInsufficientPermissions)
				return
			}
			a.openShift(w, r, orgID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	shiftID := rest[0]
	switch {
	case len(rest) == 1 && r.Method == http.MethodGet:
		detail, err := a.ops.Get(r.Context(), orgID, shiftID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case len(rest) == 2 && rest[1] == "close":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		detail, err := a.ops.Get(r.Context(), orgID, shiftID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		// The shift's creator may close it regardless of role.
		if !membership.HasRole(tenant.RoleOwner, tenant.RoleAdmin, tenant.RoleSupervisor) &&
			!membership.CanActOn(detail.Shift.OpenedBy) {
			handleDomainError(w, r, tenant.ErrInsufficientPermissions)
			return
		}
		sh, err := a.ops.Close(r.Context(), orgID, shiftID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "ops.shift.close", "shift", sh.ID, map[string]string{
			"organization": orgID,
		})
		writeJSON(w, http.StatusOK, sh)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) openShift(w http.ResponseWriter, r *http.Request, orgID string) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req openShiftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	in := ops.OpenShiftInput{
		Site:      req.Site,
		StartedAt: req.StartedAt,
		Notes:     req.Notes,
	}
	for _, entry := range req.Timesheet {
		in.Timesheet = append(in.Timesheet, ops.TimesheetInput{
			UserID:    entry.UserID,
			Hours:     entry.Hours,
			RoleOnDay: entry.RoleOnDay,
		})
	}
	for _, mv := range req.Materials {
		in.Materials = append(in.Materials, ops.MaterialInput{
			Material:  mv.Material,
			Quantity:  mv.Quantity,
			Direction: mv.Direction,
		})
	}

	detail, err := a.ops.OpenShift(r.Context(), orgID, userID, in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "ops.shift.open", "shift", detail.Shift.ID, map[string]string{
		"organization": orgID,
		"site":         detail.Shift.Site,
	})
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Type:           stream.EventShiftOpened,
			OrganizationID: orgID,
			ResourceID:     detail.Shift.ID,
			Detail:         detail.Shift.Site,
		})
	}

	w.Header().Set("Location", strings.Join([]string{"/v1/organizations", orgID, "shifts", detail.Shift.ID}, "/"))
	writeJSON(w, http.StatusCreated, detail)
}
