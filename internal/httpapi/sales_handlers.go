package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"minedesk.org/internal/auth"
	"minedesk.org/internal/sales"
	"minedesk.org/internal/stream"
	"minedesk.org/internal/tenant"
)

type recordSaleRequest struct {
	Buyer      string    `json:"buyer"`
	TotalValue int64     `json:"total_value"`
	OccurredAt time.Time `json:"occurred_at"`
}

type updateSaleStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	membership, _ := tenant.MembershipFromContext(r.Context())

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			a.listSales(w, r, orgID)
		case http.MethodPost:
			// viewers cannot write records
			if !membership.HasRole(tenant.RoleOwner, tenant.RoleAdmin, tenant.RoleSupervisor, tenant.RoleMiner) {
				handleDomainError(w, r, tenant.ErrInsufficientPermissions)
				return
			}
			a.recordSale(w, r, orgID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	saleID := rest[0]
	switch {
	case len(rest) == 1 && r.Method == http.MethodGet:
		tx, err := a.sales.Get(r.Context(), orgID, saleID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	case len(rest) == 2 && rest[1] == "status":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		if !membership.HasRole(tenant.RoleOwner, tenant.RoleAdmin, tenant.RoleSupervisor) {
			handleDomainError(w, r, tenant.ErrInsufficientPermissions)
			return
		}
		var req updateSaleStatusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		tx, err := a.sales.SetStatus(r.Context(), orgID, saleID, sales.Status(req.Status))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "sales.transaction.status", "sale", tx.ID, map[string]string{
			"organization": orgID,
			"status":       string(tx.Status),
		})
		writeJSON(w, http.StatusOK, tx)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listSales(w http.ResponseWriter, r *http.Request, orgID string) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.sales.List(r.Context(), orgID, limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) recordSale(w http.ResponseWriter, r *http.Request, orgID string) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req recordSaleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := a.sales.Record(r.Context(), orgID, userID, sales.RecordInput{
		Buyer:      req.Buyer,
		TotalValue: req.TotalValue,
		OccurredAt: req.OccurredAt,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "sales.transaction.record", "sale", tx.ID, map[string]string{
		"organization": orgID,
		"total_value":  strconv.FormatInt(tx.TotalValue, 10),
		"buyer":        tx.Buyer,
	})
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Type:           stream.EventSaleRecorded,
			OrganizationID: orgID,
			ResourceID:     tx.ID,
			Amount:         tx.TotalValue,
			Detail:         tx.Buyer,
		})
	}

	w.Header().Set("Location", strings.Join([]string{"/v1/organizations", orgID, "sales", tx.ID}, "/"))
	writeJSON(w, http.StatusCreated, tx)
}
