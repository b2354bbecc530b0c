package httpapi

import (
	"net/http"
	"strconv"

	"minedesk.org/internal/stream"
)

// handleFinancialHealth serves the cached score; force=true recomputes.
func (a *API) handleFinancialHealth(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = v
	}

	score, err := a.credit.GetOrCompute(r.Context(), orgID, force)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	if a.stream != nil && force {
		a.stream.Publish(stream.Event{
			Type:           stream.EventScoreComputed,
			OrganizationID: orgID,
			ResourceID:     score.ID,
			Detail:         score.Grade,
		})
	}
	writeJSON(w, http.StatusOK, score)
}

// handleRecalculateScore always bypasses the snapshot cache. Same algorithm as
// the financial-health read, just forced.
func (a *API) handleRecalculateScore(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	score, err := a.credit.GetOrCompute(r.Context(), orgID, true)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Type:           stream.EventScoreComputed,
			OrganizationID: orgID,
			ResourceID:     score.ID,
			Detail:         score.Grade,
		})
	}
	writeJSON(w, http.StatusCreated, score)
}
