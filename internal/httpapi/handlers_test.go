package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"amanat.org/internal/auth"
	"amanat.org/internal/escrow"
	"amanat.org/internal/store/memory"
	"amanat.org/internal/stream"
)

const testGrace = 14 * 24 * time.Hour

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type apiClient struct {
	baseURL string
	client  *http.Client
	clock   *testClock
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	authority, err := auth.New("test-secret")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	clock := &testClock{now: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	engine := escrow.NewEngine(
		memory.New(memory.WithGracePeriod(testGrace)),
		escrow.WithClock(clock),
		escrow.WithAdministrators("admin"),
	)

	api := New(engine, Options{
		Version:    "test",
		Auth:       authority,
		Stream:     stream.New(16),
		DevTokens:  true,
		RateBurst:  1000,
		RatePerSec: 1000,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		clock:   clock,
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
	req.Header.Set("Content-Type", "application/json")
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
	c.t.Helper()
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, nil)
}

func (c *apiClient) obtainToken(identity string) map[string]string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{"identity": identity}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	payload := decode[tokenResponse](c.t, resp)
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return map[string]string{"Authorization": "Bearer " + payload.Token}
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

func expectStatus(t *testing.T, resp *http.Response, want int) map[string]any {
	t.Helper()
	body := decode[map[string]any](t, resp)
	if resp.StatusCode != want {
		t.Fatalf("expected %d, got %d: %v", want, resp.StatusCode, body)
	}
	return body
}

func TestAPICampaignRefundFlow(t *testing.T) {
	api := newTestAPI(t)
	creator := api.obtainToken("creator")
	donor := api.obtainToken("donor")

	org := expectStatus(t, api.post("/v1/organizations", map[string]any{
		"name":        "Water Wells",
		"description": escrow.Hash{1}.String(),
	}, creator), http.StatusCreated)
	orgID := org["id"].(string)
	if org["creator"] != "creator" {
		t.Fatalf("unexpected creator: %v", org["creator"])
	}

	deadline := api.clock.Now().Add(time.Hour).Unix()
	campaign := expectStatus(t, api.post("/v1/organizations/"+orgID+"/campaigns", map[string]any{
		"name":          "Village A",
		"description":   escrow.Hash{2}.String(),
		"target_amount": 100,
		"timeline":      deadline,
	}, creator), http.StatusCreated)
	campaignID := campaign["id"].(string)
	base := "/v1/organizations/" + orgID + "/campaigns/" + campaignID

	contribution := expectStatus(t, api.post(base+"/contributions", map[string]any{"amount": 60}, donor), http.StatusCreated)
	if contribution["outstanding"].(float64) != 60 || contribution["just_completed"] != false {
		t.Fatalf("unexpected contribution: %v", contribution)
	}

	status := expectStatus(t, api.get(base, nil), http.StatusOK)
	if status["state"] != "open" || status["pool"].(float64) != 60 {
		t.Fatalf("unexpected campaign status: %v", status)
	}

	// Payout is blocked while the campaign is running.
	expectStatus(t, api.post(base+"/withdrawal", nil, creator), http.StatusConflict)
	// Refunds are blocked until the grace period elapses.
	expectStatus(t, api.post(base+"/refund", nil, donor), http.StatusConflict)

	api.clock.Advance(time.Hour + testGrace)

	status = expectStatus(t, api.get(base, nil), http.StatusOK)
	if status["state"] != "grace_expired" {
		t.Fatalf("unexpected state after grace: %v", status["state"])
	}

	refund := expectStatus(t, api.post(base+"/refund", nil, donor), http.StatusOK)
	if refund["amount"].(float64) != 60 || refund["recipient"] != "donor" {
		t.Fatalf("unexpected refund: %v", refund)
	}
	expectStatus(t, api.post(base+"/refund", nil, donor), http.StatusUnprocessableEntity)

	balance := expectStatus(t, api.get("/v1/accounts/donor/balance", nil), http.StatusOK)
	if balance["balance"].(float64) != 60 {
		t.Fatalf("unexpected balance: %v", balance)
	}
	donation := expectStatus(t, api.get("/v1/campaigns/"+campaignID+"/donations/donor", nil), http.StatusOK)
	if donation["amount"].(float64) != 0 {
		t.Fatalf("donation not cleared: %v", donation)
	}
}

func TestAPICompletedCampaignPayout(t *testing.T) {
	api := newTestAPI(t)
	creator := api.obtainToken("creator")
	donor := api.obtainToken("donor")

	org := expectStatus(t, api.post("/v1/organizations", map[string]any{"name": "Schools"}, creator), http.StatusCreated)
	orgID := org["id"].(string)
	campaign := expectStatus(t, api.post("/v1/organizations/"+orgID+"/campaigns", map[string]any{
		"name":          "Books",
		"target_amount": 50,
		"timeline":      api.clock.Now().Add(24 * time.Hour).Unix(),
	}, creator), http.StatusCreated)
	base := "/v1/organizations/" + orgID + "/campaigns/" + campaign["id"].(string)

	res := expectStatus(t, api.post(base+"/contributions", map[string]any{"amount": 50}, donor), http.StatusCreated)
	if res["just_completed"] != true {
		t.Fatalf("expected completion: %v", res)
	}

	// Only the creator may take the payout.
	expectStatus(t, api.post(base+"/withdrawal", nil, donor), http.StatusForbidden)
	payout := expectStatus(t, api.post(base+"/withdrawal", nil, creator), http.StatusOK)
	if payout["amount"].(float64) != 50 || payout["recipient"] != "creator" {
		t.Fatalf("unexpected payout: %v", payout)
	}
	expectStatus(t, api.post(base+"/refund", nil, donor), http.StatusUnprocessableEntity)

	list := expectStatus(t, api.get("/v1/organizations/"+orgID+"/campaigns", nil), http.StatusOK)
	items := list["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["state"] != "completed" {
		t.Fatalf("unexpected campaigns: %v", list)
	}

	creatorCheck := expectStatus(t, api.get("/v1/organizations/"+orgID+"/creators/creator", nil), http.StatusOK)
	if creatorCheck["is_creator"] != true {
		t.Fatalf("expected creator ownership: %v", creatorCheck)
	}
}

func TestAPIAdministration(t *testing.T) {
	api := newTestAPI(t)
	creator := api.obtainToken("creator")
	admin := api.obtainToken("admin")

	org := expectStatus(t, api.post("/v1/organizations", map[string]any{"name": "Clinic"}, creator), http.StatusCreated)
	orgID := org["id"].(string)

	expectStatus(t, api.do(http.MethodPut, "/v1/organizations/"+orgID+"/trust-score", map[string]any{"score": 10}, creator), http.StatusForbidden)
	updated := expectStatus(t, api.do(http.MethodPut, "/v1/organizations/"+orgID+"/trust-score", map[string]any{"score": 10}, admin), http.StatusOK)
	if updated["trust_score"].(float64) != 10 {
		t.Fatalf("unexpected trust score: %v", updated)
	}

	verified := expectStatus(t, api.post("/v1/organizations/"+orgID+"/verification", map[string]any{"base_score": 70}, admin), http.StatusOK)
	if verified["verified"] != true {
		t.Fatalf("expected verified organization: %v", verified)
	}

	grace := expectStatus(t, api.do(http.MethodPut, "/v1/grace-period", map[string]any{"seconds": 3600}, admin), http.StatusOK)
	if grace["seconds"].(float64) != 3600 {
		t.Fatalf("unexpected grace: %v", grace)
	}
	grace = expectStatus(t, api.get("/v1/grace-period", nil), http.StatusOK)
	if grace["seconds"].(float64) != 3600 {
		t.Fatalf("grace not persisted: %v", grace)
	}

	list := expectStatus(t, api.get("/v1/organizations", url.Values{"limit": []string{"1"}}), http.StatusOK)
	if len(list["items"].([]any)) != 1 || list["next_from"].(float64) != 1 {
		t.Fatalf("unexpected page: %v", list)
	}
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	body := expectStatus(t, api.post("/v1/organizations", map[string]any{"name": "anon"}, nil), http.StatusUnauthorized)
	if body["error"] == "" || body["request_id"] == "" {
		t.Fatalf("expected error body with request id: %v", body)
	}

	expectStatus(t, api.post("/v1/organizations", map[string]any{"name": "x"},
		map[string]string{"Authorization": "Bearer not-a-token"}), http.StatusUnauthorized)
}

func TestAPIRejectsBadInput(t *testing.T) {
	api := newTestAPI(t)
	creator := api.obtainToken("creator")

	expectStatus(t, api.get("/v1/organizations/not-an-id", nil), http.StatusBadRequest)
	expectStatus(t, api.get("/v1/organizations/"+escrow.ID{9}.String(), nil), http.StatusNotFound)
	expectStatus(t, api.post("/v1/organizations", map[string]any{"name": "   "}, creator), http.StatusBadRequest)
	expectStatus(t, api.post("/v1/organizations", map[string]any{"name": "a", "extra": 1}, creator), http.StatusBadRequest)

	expectStatus(t, api.post("/v1/organizations", map[string]any{"name": "dup"}, creator), http.StatusCreated)
	expectStatus(t, api.post("/v1/organizations", map[string]any{"name": "dup"}, creator), http.StatusConflict)
}

func TestAPIRejectsDirectTransfers(t *testing.T) {
	api := newTestAPI(t)
	donor := api.obtainToken("donor")

	body := expectStatus(t, api.post("/v1/transfers", map[string]any{"amount": 5}, donor), http.StatusMethodNotAllowed)
	if body["error"] != escrow.ErrDirectTransferRejected.Error() {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestTokenEndpointValidation(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/token", map[string]any{"identity": ""}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStatusForClasses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{escrow.ErrUnauthenticated, http.StatusUnauthorized},
		{escrow.ErrNotFound, http.StatusNotFound},
		{escrow.ErrCreatorAlreadyOwnsOrganization, http.StatusConflict},
		{escrow.ErrNotAdministrator, http.StatusForbidden},
		{escrow.ErrCampaignOngoing, http.StatusConflict},
		{escrow.ErrZeroAmount, http.StatusBadRequest},
		{escrow.ErrOverflow, http.StatusUnprocessableEntity},
		{escrow.ErrDirectTransferRejected, http.StatusMethodNotAllowed},
		{bytes.ErrTooLarge, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)
	expectStatus(t, api.get("/healthz", nil), http.StatusOK)
	expectStatus(t, api.get("/readyz", nil), http.StatusOK)
	info := expectStatus(t, api.get("/v1/info", nil), http.StatusOK)
	if info["name"] != serviceName || info["version"] != "test" {
		t.Fatalf("unexpected info: %v", info)
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	s := stream.New(8)
	api := New(escrow.NewEngine(memory.New()), Options{Stream: s})
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	s.Emit(context.Background(), escrow.Event{ID: "01A", Type: escrow.EventOrganizationCreated, Name: "org"})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/events/stream", nil)
	req.Header.Set("Last-Event-ID", "0")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	buf := make([]byte, 0, 512)
	chunk := make([]byte, 256)
	deadline := time.After(2 * time.Second)
	for !bytes.Contains(buf, []byte("event: OrganizationCreated")) {
		select {
		case <-deadline:
			t.Fatalf("no event received: %q", buf)
		default:
		}
		n, err := resp.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	if !bytes.Contains(buf, []byte("id: 01A")) {
		t.Fatalf("missing event id: %q", buf)
	}
}
