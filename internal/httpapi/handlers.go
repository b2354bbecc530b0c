package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"minedesk.org/internal/audit"
	"minedesk.org/internal/credit"
	"minedesk.org/internal/loan"
	"minedesk.org/internal/obs"
	"minedesk.org/internal/ops"
	"minedesk.org/internal/sales"
	"minedesk.org/internal/stream"
	"minedesk.org/internal/tenant"
)

// ReadyProbe is a simple readiness check (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps wires the domain services into the HTTP layer.
type Deps struct {
	Tenants *tenant.Service
	Sales   *sales.Service
	Credit  *credit.Service
	Loans   *loan.Service
	Ops     *ops.Service
	Stream  *stream.Stream
	Ready   ReadyProbe
	Version string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	tenants    *tenant.Service
	sales      *sales.Service
	credit     *credit.Service
	loans      *loan.Service
	ops        *ops.Service
	stream     *stream.Stream
	readyProbe ReadyProbe
	version    string
	rateBurst  int
	ratePerSec int
}

func New(deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		tenants:    deps.Tenants,
		sales:      deps.Sales,
		credit:     deps.Credit,
		loans:      deps.Loans,
		ops:        deps.Ops,
		stream:     deps.Stream,
		readyProbe: deps.Ready,
		version:    deps.Version,
		rateBurst:  50,
		ratePerSec: 25,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// organizations and everything scoped under them, including the
	// per-organization activity feed
	a.mux.HandleFunc("/v1/organizations", a.handleOrganizations)
	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizationScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "minedesk-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "minedesk-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// audit records a mutation on the audit trail; failures only surface in logs.
func (a *API) audit(ctx context.Context, event, resourceType, resourceID string, meta map[string]string) {
	fields := map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
	}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
