package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"minedesk.org/internal/auth"
	"minedesk.org/internal/loan"
	"minedesk.org/internal/stream"
	"minedesk.org/internal/tenant"
)

type applyLoanRequest struct {
	Amount     int64  `json:"amount"`
	TermMonths int    `json:"term_months"`
	Purpose    string `json:"purpose"`
}

type reviewLoanRequest struct {
	Status string `json:"status"`
}

func (a *API) handleLoans(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	membership, _ := tenant.MembershipFromContext(r.Context())

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			items, err := a.loans.List(r.Context(), orgID, limit)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"items": items,
				"as_of": time.Now().UTC(),
			})
		case http.MethodPost:
			if !membership.HasRole(tenant.RoleOwner, tenant.RoleAdmin) {
				handleDomainError(w, r, tenant.ErrInsufficientPermissions)
				return
			}
			a.applyLoan(w, r, orgID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	loanID := rest[0]
	switch {
	case len(rest) == 1 && r.Method == http.MethodGet:
		ln, err := a.loans.Get(r.Context(), orgID, loanID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ln)
	case len(rest) == 2 && rest[1] == "review":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if !membership.HasRole(tenant.RoleOwner, tenant.RoleAdmin) {
			handleDomainError(w, r, tenant.ErrInsufficientPermissions)
			return
		}
		var req reviewLoanRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ln, err := a.loans.Review(r.Context(), orgID, loanID, loan.Status(req.Status))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "loan.review", "loan", ln.ID, map[string]string{
			"organization": orgID,
			"status":       string(ln.Status),
		})
		writeJSON(w, http.StatusOK, ln)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) applyLoan(w http.ResponseWriter, r *http.Request, orgID string) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req applyLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ln, err := a.loans.Apply(r.Context(), orgID, userID, loan.ApplyInput{
		Amount:     req.Amount,
		TermMonths: req.TermMonths,
		Purpose:    req.Purpose,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "loan.apply", "loan", ln.ID, map[string]string{
		"organization": orgID,
		"amount":       strconv.FormatInt(ln.Amount, 10),
		"term_months":  strconv.Itoa(ln.TermMonths),
		"status":       string(ln.Status),
	})
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Type:           stream.EventLoanDecided,
			OrganizationID: orgID,
			ResourceID:     ln.ID,
			Amount:         ln.Amount,
			Detail:         string(ln.Status),
		})
	}

	w.Header().Set("Location", strings.Join([]string{"/v1/organizations", orgID, "loans", ln.ID}, "/"))
	writeJSON(w, http.StatusCreated, ln)
}
