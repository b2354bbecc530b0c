package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"minedesk.org/internal/auth"
	"minedesk.org/internal/credit"
	"minedesk.org/internal/loan"
	"minedesk.org/internal/ops"
	"minedesk.org/internal/sales"
	"minedesk.org/internal/stream"
	"minedesk.org/internal/tenant"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("MINEDESK_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	tenants, err := tenant.NewService(tenant.NewInMemory())
	if err != nil {
		t.Fatalf("tenant service: %v", err)
	}
	salesStore := sales.NewInMemory()
	salesSvc, err := sales.NewService(salesStore)
	if err != nil {
		t.Fatalf("sales service: %v", err)
	}
	creditSvc, err := credit.NewService(credit.NewInMemory(), salesStore)
	if err != nil {
		t.Fatalf("credit service: %v", err)
	}
	loanSvc, err := loan.NewService(loan.NewInMemory())
	if err != nil {
		t.Fatalf("loan service: %v", err)
	}
	opsSvc, err := ops.NewService(ops.NewInMemory())
	if err != nil {
		t.Fatalf("ops service: %v", err)
	}

	api := New(Deps{
		Tenants: tenants,
		Sales:   salesSvc,
		Credit:  creditSvc,
		Loans:   loanSvc,
		Ops:     opsSvc,
		Stream:  stream.New(),
		Version: "test",
	})
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) patch(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPatch, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(user string) map[string]string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{"user": user}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return map[string]string{"Authorization": "Bearer " + payload.Token}
}

// createOrg provisions an organization owned by the given user and
// returns its id.
func (c *apiClient) createOrg(owner map[string]string, name string) string {
	c.t.Helper()
	resp := c.post("/v1/organizations", map[string]any{"name": name}, owner)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("create organization status: %d", resp.StatusCode)
	}
	created := decode[createOrganizationResponse](c.t, resp)
	if created.Organization.ID == "" {
		c.t.Fatal("organization id missing")
	}
	return created.Organization.ID
}

// addActiveMember joins a user to the organization with the given role.
func (c *apiClient) addActiveMember(owner map[string]string, orgID, userID, role string) {
	c.t.Helper()
	resp := c.post("/v1/organizations/"+orgID+"/members", map[string]any{
		"user_id": userID,
		"role":    role,
		"status":  "active",
	}, owner)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("add member status: %d", resp.StatusCode)
	}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthEndpointsArePublic(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := api.get(path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/organizations", map[string]any{"name": "Mine"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestOrganizationLifecycle(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")

	orgID := api.createOrg(owner, "Karatau Gold")

	resp := api.get("/v1/organizations/"+orgID, nil, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get organization status: %d", resp.StatusCode)
	}
	org := decode[tenant.Organization](t, resp)
	if org.Name != "Karatau Gold" {
		t.Fatalf("name = %q", org.Name)
	}

	resp = api.get("/v1/organizations/"+orgID+"/members", nil, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list members status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestNonMemberCannotReadOrganizationData(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")
	stranger := api.obtainToken("stranger")

	orgID := api.createOrg(owner, "Karatau Gold")

	for _, path := range []string{
		"/v1/organizations/" + orgID,
		"/v1/organizations/" + orgID + "/sales",
		"/v1/organizations/" + orgID + "/financial-health",
		"/v1/organizations/" + orgID + "/loans",
	} {
		resp := api.get(path, nil, stranger)
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("%s status = %d, want 403", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestViewerCannotWriteRecords(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")
	viewer := api.obtainToken("auditor")

	orgID := api.createOrg(owner, "Karatau Gold")
	api.addActiveMember(owner, orgID, "auditor", "viewer")

	resp := api.post("/v1/organizations/"+orgID+"/sales", map[string]any{
		"total_value": 100_00,
	}, viewer)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("record sale as viewer status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	// reads still work
	resp = api.get("/v1/organizations/"+orgID+"/sales", nil, viewer)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list sales as viewer status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestInvitedMemberIsDeniedUntilActivated(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")
	miner := api.obtainToken("miner-1")

	orgID := api.createOrg(owner, "Karatau Gold")

	resp := api.post("/v1/organizations/"+orgID+"/members", map[string]any{
		"user_id": "miner-1",
		"role":    "miner",
	}, owner)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add member status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/organizations/"+orgID+"/sales", nil, miner)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("invited member status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.patch("/v1/organizations/"+orgID+"/members/miner-1", map[string]any{
		"status": "active",
	}, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate member status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/organizations/"+orgID+"/sales", nil, miner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("active member status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSalesFeedFinancialHealth(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")

	orgID := api.createOrg(owner, "Karatau Gold")

	for i := 0; i < 3; i++ {
		resp := api.post("/v1/organizations/"+orgID+"/sales", map[string]any{
			"buyer":       "Astana Refinery",
			"total_value": 500_00,
		}, owner)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("record sale status: %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := api.get("/v1/organizations/"+orgID+"/financial-health", nil, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("financial health status: %d", resp.StatusCode)
	}
	score := decode[credit.Score](t, resp)
	// 50 base + 15 volume points ($1500) + 6 frequency points
	if score.Value != 71 {
		t.Fatalf("score = %d, want 71", score.Value)
	}
	if score.Grade != "B" {
		t.Fatalf("grade = %s, want B", score.Grade)
	}
	if len(score.Factors) != 2 {
		t.Fatalf("factors = %d, want 2", len(score.Factors))
	}

	// second read inside the cache window returns the same snapshot
	resp = api.get("/v1/organizations/"+orgID+"/financial-health", nil, owner)
	cached := decode[credit.Score](t, resp)
	if cached.ID != score.ID {
		t.Fatalf("expected cached snapshot, got %s vs %s", cached.ID, score.ID)
	}

	// force recompute creates a fresh snapshot
	resp = api.get("/v1/organizations/"+orgID+"/financial-health", url.Values{"force": {"true"}}, owner)
	forced := decode[credit.Score](t, resp)
	if forced.ID == score.ID {
		t.Fatal("expected force=true to produce a new snapshot")
	}
	if forced.Value != score.Value {
		t.Fatalf("forced value = %d, want %d", forced.Value, score.Value)
	}

	// the explicit recalculate endpoint also bypasses the cache
	resp = api.post("/v1/organizations/"+orgID+"/credit-score/calculate", nil, owner)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("recalculate status: %d", resp.StatusCode)
	}
	recalced := decode[credit.Score](t, resp)
	if recalced.ID == forced.ID {
		t.Fatal("expected recalculate to produce a new snapshot")
	}
	if recalced.Value != score.Value {
		t.Fatalf("recalculated value = %d, want %d", recalced.Value, score.Value)
	}
}

func TestLoanAutoApprovalOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")

	orgID := api.createOrg(owner, "Karatau Gold")

	resp := api.post("/v1/organizations/"+orgID+"/loans", map[string]any{
		"amount":      99_999,
		"term_months": 12,
		"purpose":     "Drill bits",
	}, owner)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("apply loan status: %d", resp.StatusCode)
	}
	small := decode[loan.Loan](t, resp)
	if small.Status != loan.StatusApproved {
		t.Fatalf("status = %s, want approved", small.Status)
	}
	if small.MonthlyPayment != 9_167 || small.InterestRate != 10.0 {
		t.Fatalf("terms = %d @ %v", small.MonthlyPayment, small.InterestRate)
	}

	resp = api.post("/v1/organizations/"+orgID+"/loans", map[string]any{
		"amount":      100_000,
		"term_months": 12,
	}, owner)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("apply loan status: %d", resp.StatusCode)
	}
	boundary := decode[loan.Loan](t, resp)
	if boundary.Status != loan.StatusPending {
		t.Fatalf("status = %s, want pending", boundary.Status)
	}
	if boundary.ApprovedAt != nil {
		t.Fatal("pending loan must not carry approval terms")
	}
}

func TestShiftCompositeOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")

	orgID := api.createOrg(owner, "Karatau Gold")

	resp := api.post("/v1/organizations/"+orgID+"/shifts", map[string]any{
		"site": "North Pit",
		"timesheet": []map[string]any{
			{"user_id": "miner-1", "hours": 8},
		},
		"materials": []map[string]any{
			{"material": "gold ore", "quantity": 1200, "direction": "out"},
		},
	}, owner)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open shift status: %d", resp.StatusCode)
	}
	detail := decode[ops.ShiftDetail](t, resp)
	if len(detail.Timesheet) != 1 || len(detail.Materials) != 1 {
		t.Fatalf("children = %d/%d, want 1/1", len(detail.Timesheet), len(detail.Materials))
	}

	resp = api.post("/v1/organizations/"+orgID+"/shifts/"+detail.Shift.ID+"/close", nil, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close shift status: %d", resp.StatusCode)
	}
	closed := decode[ops.Shift](t, resp)
	if closed.EndedAt == nil {
		t.Fatal("expected ended_at to be set")
	}
}

func TestShiftCreatorCanCloseAfterDowngrade(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")
	super := api.obtainToken("super-1")

	orgID := api.createOrg(owner, "Karatau Gold")
	api.addActiveMember(owner, orgID, "super-1", "supervisor")

	resp := api.post("/v1/organizations/"+orgID+"/shifts", map[string]any{
		"site": "South Pit",
	}, super)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open shift status: %d", resp.StatusCode)
	}
	detail := decode[ops.ShiftDetail](t, resp)

	resp = api.patch("/v1/organizations/"+orgID+"/members/super-1", map[string]any{
		"role": "miner",
	}, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("downgrade status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// A miner cannot normally close shifts, but the creator still can.
	resp = api.post("/v1/organizations/"+orgID+"/shifts/"+detail.Shift.ID+"/close", nil, super)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close as creator status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSaleStatusUpdateRequiresSupervisor(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")
	miner := api.obtainToken("miner-1")

	orgID := api.createOrg(owner, "Karatau Gold")
	api.addActiveMember(owner, orgID, "miner-1", "miner")

	resp := api.post("/v1/organizations/"+orgID+"/sales", map[string]any{
		"total_value": 100_00,
	}, miner)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record sale status: %d", resp.StatusCode)
	}
	tx := decode[sales.Transaction](t, resp)

	resp = api.patch("/v1/organizations/"+orgID+"/sales/"+tx.ID+"/status", map[string]any{
		"status": "verified",
	}, miner)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("verify as miner status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.patch("/v1/organizations/"+orgID+"/sales/"+tx.ID+"/status", map[string]any{
		"status": "verified",
	}, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify as owner status = %d, want 200", resp.StatusCode)
	}
	verified := decode[sales.Transaction](t, resp)
	if verified.Status != sales.StatusVerified {
		t.Fatalf("status = %s, want verified", verified.Status)
	}
}

func TestOrganizationDirectoryListing(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")

	orgID := api.createOrg(owner, "Karatau Gold")

	resp := api.get("/v1/organizations", nil, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list organizations status: %d", resp.StatusCode)
	}
	payload := decode[struct {
		Items []tenant.Organization `json:"items"`
	}](t, resp)
	found := false
	for _, org := range payload.Items {
		if org.ID == orgID {
			found = true
		}
	}
	if !found {
		t.Fatalf("organization %s missing from directory", orgID)
	}
}

func TestActivityStreamDeliversEventsThroughMiddleware(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")

	orgID := api.createOrg(owner, "Karatau Gold")

	resp := api.get("/v1/organizations/"+orgID+"/stream", nil, owner)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("subscribe status = %d, want 200", resp.StatusCode)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	// The subscription is registered once the response headers arrive, so
	// events from this point on must be delivered.
	sale := api.post("/v1/organizations/"+orgID+"/sales", map[string]any{
		"buyer":       "Astana Refinery",
		"total_value": 250_00,
	}, owner)
	if sale.StatusCode != http.StatusCreated {
		t.Fatalf("record sale status: %d", sale.StatusCode)
	}
	sale.Body.Close()

	events := make(chan stream.Event, 1)
	errs := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				errs <- err
				return
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var evt stream.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
				errs <- err
				return
			}
			events <- evt
			return
		}
	}()

	select {
	case evt := <-events:
		if evt.Type != stream.EventSaleRecorded {
			t.Fatalf("event type = %s, want %s", evt.Type, stream.EventSaleRecorded)
		}
		if evt.OrganizationID != orgID {
			t.Fatalf("event organization = %s, want %s", evt.OrganizationID, orgID)
		}
	case err := <-errs:
		t.Fatalf("read stream: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("no event received on the activity stream")
	}
}

func TestActivityStreamIsMembershipGated(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("owner-1")
	ownerB := api.obtainToken("owner-2")
	outsider := api.obtainToken("outsider-1")

	orgA := api.createOrg(owner, "Karatau Gold")
	orgB := api.createOrg(ownerB, "Altai Copper")

	resp := api.get("/v1/organizations/"+orgA+"/stream", nil, outsider)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider subscribe status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	// A member of one organization must not see another tenant's events.
	resp = api.get("/v1/organizations/"+orgB+"/stream", nil, ownerB)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("subscribe status = %d, want 200", resp.StatusCode)
	}
	defer resp.Body.Close()

	sale := api.post("/v1/organizations/"+orgA+"/sales", map[string]any{
		"total_value": 100_00,
	}, owner)
	if sale.StatusCode != http.StatusCreated {
		t.Fatalf("record sale status: %d", sale.StatusCode)
	}
	sale.Body.Close()

	frames := make(chan string, 1)
	go func() {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				frames <- line
				return
			}
		}
	}()

	select {
	case line := <-frames:
		t.Fatalf("foreign-tenant event delivered: %s", line)
	case <-time.After(500 * time.Millisecond):
	}
}
