package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/collectionpulse/engine/internal/config"
	"github.com/collectionpulse/engine/internal/engine"
	"github.com/collectionpulse/engine/internal/ingest"
	"github.com/collectionpulse/engine/internal/model"
	"github.com/collectionpulse/engine/internal/store"
)

type fakePipeline struct {
	intakes   int
	refreshes int
}

func (f *fakePipeline) ProcessIntake(ctx context.Context, payloads []ingest.IntakePayload) (engine.IntakeSummary, error) {
	f.intakes += len(payloads)
	return engine.IntakeSummary{CollectionsUpdated: len(payloads)}, nil
}

func (f *fakePipeline) RefreshAll(ctx context.Context) (engine.CycleStats, error) {
	f.refreshes++
	return engine.CycleStats{Collections: 2, Refreshed: 2}, nil
}

type fakeCleaner struct{ sweeps int }

func (f *fakeCleaner) Sweep(ctx context.Context, retention time.Duration, batchSize int) (map[string]int, error) {
	f.sweeps++
	return map[string]int{"market_events": 5}, nil
}

func newTestServer(t *testing.T, mem *store.Memory, token string) (*Server, *fakePipeline, *fakeCleaner) {
	t.Helper()
	p := &fakePipeline{}
	c := &fakeCleaner{}
	s := New(config.ServerConfig{Port: 0, AdminToken: token}, mem, p, c, 720*time.Hour, 1000, nil)
	return s, p, c
}

func seedAlert(t *testing.T, mem *store.Memory, id, collection string, typ model.AlertType, at time.Time) {
	t.Helper()
	err := mem.CreateAlert(context.Background(), model.Alert{
		ID:           id,
		CollectionID: collection,
		Type:         typ,
		Severity:     model.SeverityWarning,
		Message:      "test",
		TriggeredAt:  at,
	})
	if err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	mem := store.NewMemory()
	seedAlert(t, mem, "a-1", "col-1", model.AlertPriceDrop, time.Now())

	s, _, _ := newTestServer(t, mem, "")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Counts store.TableCounts `json:"counts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "healthy" || body.Counts.Alerts != 1 {
		t.Errorf("body = %+v, want healthy with 1 alert counted", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	for _, w := range model.AllWindows {
		err := mem.UpsertMetric(ctx, model.ComputedMetric{
			CollectionID: "col-1",
			Window:       w,
			Timestamp:    time.Now(),
		})
		if err != nil {
			t.Fatalf("UpsertMetric failed: %v", err)
		}
	}
	s, _, _ := newTestServer(t, mem, "")
	h := s.Handler()

	tests := []struct {
		name       string
		url        string
		wantStatus int
	}{
		{"missing collection", "/api/metrics", http.StatusBadRequest},
		{"all windows", "/api/metrics?collection=col-1", http.StatusOK},
		{"one window", "/api/metrics?collection=col-1&window=24h", http.StatusOK},
		{"bad window", "/api/metrics?collection=col-1&window=13h", http.StatusBadRequest},
		{"unknown collection", "/api/metrics?collection=nope", http.StatusNotFound},
		{"unknown collection window", "/api/metrics?collection=nope&window=24h", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics?collection=col-1", nil))

	var body struct {
		Metrics []model.ComputedMetric `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Metrics) != len(model.AllWindows) {
		t.Errorf("metrics = %d rows, want %d", len(body.Metrics), len(model.AllWindows))
	}
}

func TestAlertsEndpoint(t *testing.T) {
	mem := store.NewMemory()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedAlert(t, mem, "a-1", "col-1", model.AlertPriceDrop, base)
	seedAlert(t, mem, "a-2", "col-1", model.AlertVolumeSpike, base.Add(time.Hour))
	seedAlert(t, mem, "a-3", "col-2", model.AlertPriceDrop, base.Add(2*time.Hour))

	s, _, _ := newTestServer(t, mem, "")
	h := s.Handler()

	get := func(t *testing.T, url string) (alerts []model.Alert, total int) {
		t.Helper()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body struct {
			Alerts []model.Alert `json:"alerts"`
			Total  int           `json:"total"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return body.Alerts, body.Total
	}

	alerts, total := get(t, "/api/alerts")
	if total != 3 || len(alerts) != 3 {
		t.Errorf("total = %d, len = %d, want 3/3", total, len(alerts))
	}
	// Newest first by default.
	if alerts[0].ID != "a-3" {
		t.Errorf("first = %s, want a-3 (newest)", alerts[0].ID)
	}

	alerts, _ = get(t, "/api/alerts?sort=asc")
	if alerts[0].ID != "a-1" {
		t.Errorf("first = %s, want a-1 with asc sort", alerts[0].ID)
	}

	alerts, total = get(t, "/api/alerts?collection=col-1&type=price_drop")
	if total != 1 || alerts[0].ID != "a-1" {
		t.Errorf("filtered = %d/%v, want only a-1", total, alerts)
	}

	alerts, total = get(t, "/api/alerts?limit=1&offset=1")
	if total != 3 || len(alerts) != 1 || alerts[0].ID != "a-2" {
		t.Errorf("page = %d total, %v, want total 3 and a-2", total, alerts)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts?resolved=sideways", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for bad resolved value", rec.Code)
	}
}

func TestResolveAlertEndpoint(t *testing.T) {
	mem := store.NewMemory()
	seedAlert(t, mem, "a-1", "col-1", model.AlertPriceDrop, time.Now())

	s, _, _ := newTestServer(t, mem, "")
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/alerts/resolve?id=a-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var a model.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !a.Resolved || a.ResolvedAt == nil {
		t.Errorf("alert = %+v, want resolved with timestamp", a)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/alerts/resolve?id=nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown alert", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts/resolve?id=a-1", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405 for GET", rec.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	s, p, c := newTestServer(t, store.NewMemory(), "sekrit")
	h := s.Handler()

	post := func(url, token string) int {
		req := httptest.NewRequest(http.MethodPost, url, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := post("/admin/refresh", ""); code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", code)
	}
	if code := post("/admin/refresh", "wrong"); code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", code)
	}
	if code := post("/admin/refresh", "sekrit"); code != http.StatusOK {
		t.Errorf("good token: status = %d, want 200", code)
	}
	if p.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", p.refreshes)
	}

	if code := post("/admin/sweep", "sekrit"); code != http.StatusOK {
		t.Errorf("sweep: status = %d, want 200", code)
	}
	if c.sweeps != 1 {
		t.Errorf("sweeps = %d, want 1", c.sweeps)
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	s, _, _ := newTestServer(t, store.NewMemory(), "")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/refresh", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 when no admin token configured", rec.Code)
	}
}

func TestIntakeEndpoint(t *testing.T) {
	s, p, _ := newTestServer(t, store.NewMemory(), "sekrit")
	h := s.Handler()

	body := `[{"collection_id": "col-1"}, {"collection_id": "col-2"}]`
	req := httptest.NewRequest(http.MethodPost, "/admin/intake", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer sekrit")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if p.intakes != 2 {
		t.Errorf("intakes = %d, want 2", p.intakes)
	}

	var sum engine.IntakeSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if sum.CollectionsUpdated != 2 {
		t.Errorf("summary = %+v, want 2 collections", sum)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/intake", strings.NewReader("not json"))
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed body", rec.Code)
	}
}
