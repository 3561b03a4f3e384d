package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/benchwire/hotlist/internal/analytics"
	"github.com/benchwire/hotlist/internal/campaign"
	"github.com/benchwire/hotlist/internal/config"
	"github.com/benchwire/hotlist/internal/content"
	"github.com/benchwire/hotlist/internal/db"
	"github.com/benchwire/hotlist/internal/dispatch"
	"github.com/benchwire/hotlist/internal/lock"
	"github.com/benchwire/hotlist/internal/mailer"
	"github.com/benchwire/hotlist/internal/metrics"
	"github.com/benchwire/hotlist/internal/outbox"
	"github.com/benchwire/hotlist/internal/repository"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	database, err := db.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	ledger, err := outbox.Open(filepath.Join(dir, "outbox.db"))
	if err != nil {
		t.Fatalf("outbox.Open() error = %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	campaigns := repository.NewCampaignRepository(database)
	candidates := repository.NewCandidateRepository(database)
	events := repository.NewAnalyticsRepository(database)
	directory := repository.NewDirectoryRepository(database)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	locks := lock.NewManager(logger)
	recorder := analytics.NewRecorder(events, candidates, m, logger)

	cfg := config.Default()
	cfg.Mailer.BaseURL = "http://mail.invalid"
	cfg.Mailer.FromEmail = "hotlist@example.com"
	cfg.Metrics.Enabled = true

	engine := dispatch.NewEngine(campaigns, candidates, ledger, directory, content.NewEngine(),
		recorder, mailer.NewClient(&cfg.Mailer), locks, m, dispatch.Config{}, logger)

	service := campaign.NewService(campaigns, candidates, directory, locks, m, logger)

	srv := New(cfg, Deps{
		Campaigns: service,
		Engine:    engine,
		Recorder:  recorder,
		Directory: directory,
		Metrics:   m,
	}, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "tester")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	decoded := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && err != io.EOF {
			t.Fatalf("Decode() error = %v", err)
		}
	}
	return resp, decoded
}

func createCampaignViaAPI(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/campaigns", map[string]any{
		"name":       "API test batch",
		"batch_size": 3,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create campaign status = %d, body = %v", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("create campaign returned no id: %v", body)
	}
	return id
}

func seedDirectory(t *testing.T, ts *httptest.Server, refs ...string) {
	t.Helper()
	for _, ref := range refs {
		resp, body := doJSON(t, ts, http.MethodPut, "/api/v1/candidates/"+ref, map[string]any{
			"first_name": "Test",
			"last_name":  ref,
			"email":      ref + "@example.com",
			"title":      "Engineer",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("seed %s status = %d, body = %v", ref, resp.StatusCode, body)
		}
	}
}

func TestCampaignCRUD(t *testing.T) {
	ts := testServer(t)
	id := createCampaignViaAPI(t, ts)

	resp, body := doJSON(t, ts, http.MethodGet, "/api/v1/campaigns/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	c := body["campaign"].(map[string]any)
	if c["status"] != "draft" {
		t.Errorf("status = %v, want draft", c["status"])
	}

	resp, body = doJSON(t, ts, http.MethodPatch, "/api/v1/campaigns/"+id, map[string]any{
		"description": "updated",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, body = %v", resp.StatusCode, body)
	}
	if body["description"] != "updated" {
		t.Errorf("description = %v", body["description"])
	}

	resp, body = doJSON(t, ts, http.MethodGet, "/api/v1/campaigns", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if body["total"].(float64) != 1 {
		t.Errorf("total = %v, want 1", body["total"])
	}

	resp, _ = doJSON(t, ts, http.MethodDelete, "/api/v1/campaigns/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, ts, http.MethodGet, "/api/v1/campaigns/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestCampaignValidationErrors(t *testing.T) {
	ts := testServer(t)

	// missing name
	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/campaigns", map[string]any{"batch_size": 3})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body["field"] != "name" {
		t.Errorf("field = %v, want name", body["field"])
	}

	// bad batch size
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/campaigns", map[string]any{"name": "x", "batch_size": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	// malformed body
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/campaigns", bytes.NewReader([]byte("{nope")))
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp2.StatusCode)
	}
}

func TestCandidateSelection(t *testing.T) {
	ts := testServer(t)
	id := createCampaignViaAPI(t, ts)
	seedDirectory(t, ts, "cand-a", "cand-b")

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/candidates", map[string]any{
		"candidates": []map[string]any{
			{"ref": "cand-a", "vendor_email": "vendor-a@example.com"},
			{"ref": "cand-b", "vendor_email": "vendor-b@example.com"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("select status = %d, body = %v", resp.StatusCode, body)
	}
	rows := body["candidates"].([]any)
	if len(rows) != 2 {
		t.Fatalf("selected %d candidates, want 2", len(rows))
	}

	// a ref missing from the directory is a validation error
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/candidates", map[string]any{
		"candidates": []map[string]any{{"ref": "cand-ghost"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("ghost candidate status = %d, want 400", resp.StatusCode)
	}

	// remove and verify
	resp, _ = doJSON(t, ts, http.MethodDelete, "/api/v1/campaigns/"+id+"/candidates/cand-a", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove status = %d", resp.StatusCode)
	}
	resp, body = doJSON(t, ts, http.MethodGet, "/api/v1/campaigns/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if got := len(body["candidates"].([]any)); got != 1 {
		t.Errorf("candidates after remove = %d, want 1", got)
	}

	// work auth toggle
	resp, _ = doJSON(t, ts, http.MethodPatch, "/api/v1/campaigns/"+id+"/candidates/cand-b/work-authorization", map[string]any{
		"include_work_authorization": true,
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("work auth status = %d", resp.StatusCode)
	}
}

func TestScheduleAndLockConflict(t *testing.T) {
	ts := testServer(t)
	id := createCampaignViaAPI(t, ts)
	seedDirectory(t, ts, "cand-a")

	// auto-lock on so scheduling freezes the campaign
	resp, _ := doJSON(t, ts, http.MethodPatch, "/api/v1/campaigns/"+id, map[string]any{
		"auto_lock_enabled": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}

	// cannot schedule an empty campaign
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/schedule", map[string]any{
		"schedule_type": "immediate",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty schedule status = %d, want 400", resp.StatusCode)
	}

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/candidates", map[string]any{
		"candidates": []map[string]any{{"ref": "cand-a", "vendor_email": "v@example.com"}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("select status = %d, body = %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/schedule", map[string]any{
		"schedule_type": "daily",
		"schedule":      map[string]any{"time": "09:00", "timezone": "UTC"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schedule status = %d, body = %v", resp.StatusCode, body)
	}
	if body["status"] != "scheduled" {
		t.Errorf("status = %v, want scheduled", body["status"])
	}
	if body["locked_by"] != "tester" {
		t.Errorf("locked_by = %v, want tester", body["locked_by"])
	}

	// locked scheduled campaigns reject edits with 409
	resp, _ = doJSON(t, ts, http.MethodPatch, "/api/v1/campaigns/"+id, map[string]any{"description": "nope"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("locked edit status = %d, want 409", resp.StatusCode)
	}

	// admin unlock frees it
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/unlock", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unlock status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, ts, http.MethodPatch, "/api/v1/campaigns/"+id, map[string]any{"description": "edited"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("edit after unlock status = %d, want 200", resp.StatusCode)
	}
}

func TestScheduleBadConfig(t *testing.T) {
	ts := testServer(t)
	id := createCampaignViaAPI(t, ts)
	seedDirectory(t, ts, "cand-a")
	doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/candidates", map[string]any{
		"candidates": []map[string]any{{"ref": "cand-a"}},
	})

	// daily without a time of day is a scheduling error -> 400
	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/schedule", map[string]any{
		"schedule_type": "daily",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body = %v", resp.StatusCode, body)
	}
}

func TestCancelCampaign(t *testing.T) {
	ts := testServer(t)
	id := createCampaignViaAPI(t, ts)

	resp, body := doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d", resp.StatusCode)
	}
	if body["status"] != "cancelled" {
		t.Errorf("status = %v, want cancelled", body["status"])
	}

	// cancelling twice fails
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/cancel", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("double cancel status = %d, want 400", resp.StatusCode)
	}

	// dispatching a cancelled campaign fails
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/dispatch", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("dispatch cancelled status = %d, want 400", resp.StatusCode)
	}
}

func TestMetricsAndEventsEndpoints(t *testing.T) {
	ts := testServer(t)
	id := createCampaignViaAPI(t, ts)

	resp, body := doJSON(t, ts, http.MethodGet, "/api/v1/campaigns/"+id+"/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if body["sent"].(float64) != 0 {
		t.Errorf("sent = %v, want 0", body["sent"])
	}
	if body["open_rate"].(float64) != 0 {
		t.Errorf("open_rate = %v, want 0 on empty campaign", body["open_rate"])
	}

	resp, body = doJSON(t, ts, http.MethodGet, "/api/v1/campaigns/"+id+"/events", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events status = %d", resp.StatusCode)
	}
	if got := len(body["events"].([]any)); got != 0 {
		t.Errorf("events = %d, want 0", got)
	}

	// recording an event for a missing candidate is a 400
	resp, _ = doJSON(t, ts, http.MethodPost, "/api/v1/campaigns/"+id+"/events", map[string]any{
		"event_type": "email_opened",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("event without candidate status = %d, want 400", resp.StatusCode)
	}

	// metrics for a missing campaign is a 404
	resp, _ = doJSON(t, ts, http.MethodGet, "/api/v1/campaigns/nonexistent/metrics", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing campaign metrics status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthAndPrometheus(t *testing.T) {
	ts := testServer(t)

	resp, body := doJSON(t, ts, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("health body = %v", body)
	}

	promResp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer promResp.Body.Close()
	if promResp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", promResp.StatusCode)
	}
	data, _ := io.ReadAll(promResp.Body)
	if !bytes.Contains(data, []byte("hotlist_")) {
		t.Errorf("/metrics output missing hotlist_ metrics: %s", truncate(data))
	}
}

func truncate(data []byte) string {
	if len(data) > 200 {
		data = data[:200]
	}
	return fmt.Sprintf("%s...", data)
}
