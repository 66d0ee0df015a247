package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sentra-hq/bastion/pkg/config"
	"sentra-hq/bastion/pkg/waf"
	"sentra-hq/bastion/pkg/waf/engine"
	"sentra-hq/bastion/pkg/waf/engine/source"
)

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		ListenAddress:   "127.0.0.1:0",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: time.Second,
	}
}

func emptyEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(nil, nil, engine.Options{})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func sourcedEngine(t *testing.T, src *source.MemorySource) *engine.Engine {
	t.Helper()
	eng, err := engine.New(nil, src, engine.Options{})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealthzReportsPolicyState(t *testing.T) {
	eng := emptyEngine(t)
	srv := NewServer(testServerConfig(), eng, nil)
	routes := srv.setupRoutes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without policy = %d, want 503", rec.Code)
	}
	if got := decodeBody(t, rec)["status"]; got != "no active policy" {
		t.Errorf("status field = %v", got)
	}

	policy, err := waf.Compile(&waf.Document{Version: "v1"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	eng.SetPolicy(policy)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status with policy = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestPolicyEndpoint(t *testing.T) {
	eng := emptyEngine(t)
	srv := NewServer(testServerConfig(), eng, nil)
	routes := srv.setupRoutes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/policy", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without policy = %d, want 503", rec.Code)
	}

	policy, err := waf.Compile(&waf.Document{
		Version: "2026-01-01.1",
		CustomRules: []waf.CustomRule{
			{
				Name:     "r1",
				Priority: 10,
				RuleType: waf.RuleTypeMatch,
				Action:   waf.ActionBlock,
				MatchConditions: []waf.MatchCondition{
					{
						Variable: waf.VarQueryArgs,
						Operator: waf.OpContains,
						Values:   []string{"x"},
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	eng.SetPolicy(policy)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/policy", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["version"] != "2026-01-01.1" {
		t.Errorf("version = %v", body["version"])
	}
	if body["mode"] != string(waf.ModePrevention) {
		t.Errorf("mode = %v", body["mode"])
	}
	if body["match_rules"] != float64(1) {
		t.Errorf("match_rules = %v", body["match_rules"])
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/policy", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /policy status = %d, want 405", rec.Code)
	}
}

func TestReloadEndpoint(t *testing.T) {
	src := source.NewMemorySource(&waf.Document{Version: "v1"})
	eng := sourcedEngine(t, src)
	srv := NewServer(testServerConfig(), eng, nil)
	routes := srv.setupRoutes()

	src.Update(&waf.Document{Version: "v2"})

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/policy/reload", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["version"] != "v2" {
		t.Errorf("version = %v, want v2", body["version"])
	}
	if got := eng.ActivePolicy().Version; got != "v2" {
		t.Errorf("active policy version = %q, want v2", got)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/policy/reload", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}

func TestReloadFailureKeepsPolicy(t *testing.T) {
	src := source.NewMemorySource(&waf.Document{Version: "v1"})
	eng := sourcedEngine(t, src)
	srv := NewServer(testServerConfig(), eng, nil)
	routes := srv.setupRoutes()

	src.Update(&waf.Document{}) // unversioned, fails compilation

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/policy/reload", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
	if got := eng.ActivePolicy().Version; got != "v1" {
		t.Errorf("active policy version = %q, want v1", got)
	}
}

func TestMetricsRoutePresence(t *testing.T) {
	eng := emptyEngine(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})

	withMetrics := NewServer(testServerConfig(), eng, handler).setupRoutes()
	rec := httptest.NewRecorder()
	withMetrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
		t.Errorf("metrics route: status = %d body = %q", rec.Code, rec.Body.String())
	}

	withoutMetrics := NewServer(testServerConfig(), eng, nil).setupRoutes()
	rec = httptest.NewRecorder()
	withoutMetrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics route without handler: status = %d, want 404", rec.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	eng := emptyEngine(t)
	srv := NewServer(testServerConfig(), eng, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return after context cancellation")
	}
}
