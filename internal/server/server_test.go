package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/metrics"
	"github.com/axescan/axescan/internal/model"
	"github.com/axescan/axescan/internal/ratelimit"
	"github.com/axescan/axescan/internal/scanner"
	"github.com/axescan/axescan/internal/server"
	"github.com/axescan/axescan/internal/store"
)

type stubSession struct{}

func (stubSession) Context() context.Context { return context.Background() }
func (stubSession) Close()                   {}

type stubNavigator struct{}

func (stubNavigator) Navigate(context.Context, string) error { return nil }

type stubRunner struct{}

func (stubRunner) Run(context.Context, string) (*model.Findings, error) {
	return &model.Findings{
		Violations: []model.Violation{{
			RuleID: "image-alt",
			Impact: model.ImpactCritical,
			Nodes:  []model.Node{{Target: "img"}},
		}},
		Passes: []model.Pass{{RuleID: "document-title"}},
	}, nil
}

type testServer struct {
	*server.Server
	store store.Store
}

func newTestServer(t *testing.T, limiter ratelimit.Store) *testServer {
	t.Helper()

	st := store.NewMemoryStore()
	reg := prometheus.NewRegistry()
	orch := scanner.New(scanner.DefaultConfig(), st,
		scanner.SessionFactoryFunc(func(context.Context) (scanner.Session, error) {
			return stubSession{}, nil
		}),
		stubNavigator{}, stubRunner{}, nil,
		metrics.New(reg), logging.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	t.Cleanup(func() {
		orch.Stop()
		cancel()
	})

	s := server.New(server.Config{ListenAddr: ":0"}, orch, limiter, reg, logging.NopLogger{})
	return &testServer{Server: s, store: st}
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func waitTerminal(t *testing.T, s http.Handler, scanID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, s, "GET", "/scans/"+scanID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET scan: %d: %s", rec.Code, rec.Body.String())
		}
		var scan map[string]any
		decodeJSON(t, rec, &scan)
		if status, _ := scan["status"].(string); status == "completed" || status == "failed" {
			return scan
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("scan %s never reached a terminal state", scanID)
	return nil
}

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "GET", "/scans", "")
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_InitiateScan(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "POST", "/scans", `{"url":"https://example.com"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var res map[string]any
	decodeJSON(t, rec, &res)
	scanID, _ := res["scan_id"].(string)
	if scanID == "" {
		t.Fatal("response missing scan_id")
	}
	if res["status"] != "pending" {
		t.Errorf("status = %v, want pending", res["status"])
	}

	scan := waitTerminal(t, s, scanID)
	if scan["status"] != "completed" {
		t.Fatalf("scan did not complete: %v", scan)
	}
	if _, ok := scan["score"].(float64); !ok {
		t.Errorf("completed scan missing score: %v", scan)
	}
}

func TestServer_InitiateScan_CachedReturns200(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "POST", "/scans", `{"url":"https://example.com/cached"}`)
	var first map[string]any
	decodeJSON(t, rec, &first)
	waitTerminal(t, s, first["scan_id"].(string))

	rec = doJSON(t, s, "POST", "/scans", `{"url":"https://example.com/cached"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for cached scan, got %d", rec.Code)
	}
	var second map[string]any
	decodeJSON(t, rec, &second)
	if second["cached"] != true {
		t.Errorf("cached = %v, want true", second["cached"])
	}
	if second["scan_id"] != first["scan_id"] {
		t.Errorf("cached scan_id = %v, want %v", second["scan_id"], first["scan_id"])
	}
}

func TestServer_InitiateScan_BadRequests(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	for name, body := range map[string]string{
		"invalid JSON": `{not json`,
		"bad scheme":   `{"url":"ftp://example.com"}`,
		"missing host": `{"url":"https://"}`,
		"empty":        `{}`,
	} {
		rec := doJSON(t, s, "POST", "/scans", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", name, rec.Code, rec.Body.String())
		}
	}
}

func TestServer_GetScan_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "GET", "/scans/no-such-scan", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_ListScans(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	for _, u := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		rec := doJSON(t, s, "POST", "/scans", `{"url":"`+u+`"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("POST /scans: %d", rec.Code)
		}
	}

	rec := doJSON(t, s, "GET", "/scans?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var scans []map[string]any
	decodeJSON(t, rec, &scans)
	if len(scans) != 2 {
		t.Errorf("got %d scans, want 2", len(scans))
	}

	rec = doJSON(t, s, "GET", "/scans?limit=nope", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", rec.Code)
	}
}

func TestServer_RateLimit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, ratelimit.NewMemoryStore(ratelimit.Config{RequestsPerMinute: 1, Burst: 1}))

	rec := doJSON(t, s, "POST", "/scans", `{"url":"https://example.com/1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first request: expected 202, got %d", rec.Code)
	}
	rec = doJSON(t, s, "POST", "/scans", `{"url":"https://example.com/2"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", rec.Code)
	}
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "GET", "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	doJSON(t, s, "POST", "/scans", `{"url":"https://example.com/metrics-target"}`)

	rec := doJSON(t, s, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "axescan_scans_initiated_total") {
		t.Error("metrics exposition missing scan counters")
	}
}
