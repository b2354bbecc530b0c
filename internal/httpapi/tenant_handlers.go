package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"minedesk.org/internal/auth"
	"minedesk.org/internal/stream"
	"minedesk.org/internal/tenant"
)

type createOrganizationRequest struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

type createOrganizationResponse struct {
	Organization tenant.Organization `json:"organization"`
	Membership   tenant.Membership   `json:"membership"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

type updateMemberRequest struct {
	Role   string `json:"role"`
	Status string `json:"status"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		items, err := a.tenants.ListOrganizations(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	case http.MethodPost:
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}

	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	org, membership, err := a.tenants.CreateOrganization(r.Context(), req.Name, userID, req.Metadata)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "tenant.organization.create", "organization", org.ID, map[string]string{
		"name": org.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/organizations/%s", org.ID))
	writeJSON(w, http.StatusCreated, createOrganizationResponse{
		Organization: org,
		Membership:   membership,
	})
}

// handleOrganizationScoped authorizes the caller's membership once and
// dispatches to the org-scoped resources.
func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/organizations/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	orgID := parts[0]

	membership, err := a.tenants.Authorize(r.Context(), userID, orgID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	r = r.WithContext(tenant.ContextWithMembership(r.Context(), membership))

	if len(parts) == 1 {
		a.getOrganization(w, r, orgID)
		return
	}
	switch parts[1] {
	case "members":
		a.handleMembers(w, r, orgID, parts[2:])
	case "sales":
		a.handleSales(w, r, orgID, parts[2:])
	case "financial-health":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleFinancialHealth(w, r, orgID)
	case "credit-score":
		if len(parts) != 3 || parts[2] != "calculate" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleRecalculateScore(w, r, orgID)
	case "loans":
		a.handleLoans(w, r, orgID, parts[2:])
	case "shifts":
		a.handleShifts(w, r, orgID, parts[2:])
	case "stream":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.Stream(w, r, orgID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	org, err := a.tenants.GetOrganization(r.Context(), orgID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) handleMembers(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	membership, _ := tenant.MembershipFromContext(r.Context())

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			members, err := a.tenants.ListMembers(r.Context(), orgID)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": members})
		case http.MethodPost:
			if !membership.HasRole(tenant.RoleOwner, tenant.RoleAdmin) {
				handleDomainError(w, r, tenant.ErrInsufficientPermissions)
				return
			}
			var req addMemberRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			added, err := a.tenants.AddMember(r.Context(), orgID, req.UserID,
				tenant.Role(strings.ToLower(strings.TrimSpace(req.Role))),
				tenant.MemberStatus(strings.ToLower(strings.TrimSpace(req.Status))))
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			a.audit(r.Context(), "tenant.member.add", "membership", added.UserID, map[string]string{
				"organization": orgID,
				"role":         string(added.Role),
				"status":       string(added.Status),
			})
			if a.stream != nil {
				a.stream.Publish(stream.Event{
					Type:           stream.EventMemberAdded,
					OrganizationID: orgID,
					ResourceID:     added.UserID,
					Detail:         string(added.Role),
				})
			}
			writeJSON(w, http.StatusCreated, added)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	if len(rest) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	memberUserID := rest[0]

	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	if !membership.HasRole(tenant.RoleOwner, tenant.RoleAdmin) {
		handleDomainError(w, r, tenant.ErrInsufficientPermissions)
		return
	}
	var req updateMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var upd tenant.MembershipUpdate
	if strings.TrimSpace(req.Role) != "" {
		role := tenant.Role(strings.ToLower(strings.TrimSpace(req.Role)))
		upd.Role = &role
	}
	if strings.TrimSpace(req.Status) != "" {
		status := tenant.MemberStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		upd.Status = &status
	}
	updated, err := a.tenants.UpdateMember(r.Context(), orgID, memberUserID, upd)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "tenant.member.update", "membership", memberUserID, map[string]string{
		"organization": orgID,
		"role":         string(updated.Role),
		"status":       string(updated.Status),
	})
	writeJSON(w, http.StatusOK, updated)
}
