package httpx_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ghuser/bookreader/pkg/httpx"
)

type stubChecker struct{ err error }

func (s *stubChecker) Ping(_ context.Context) error { return s.err }

// slowChecker blocks until the probe deadline.
type slowChecker struct{}

func (slowChecker) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type healthBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func probe(t *testing.T, h http.Handler) (*httptest.ResponseRecorder, healthBody) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", http.NoBody))
	var body healthBody
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rr, body
}

func TestHealthHandler(t *testing.T) {
	down := errors.New("conn refused")
	tests := []struct {
		name       string
		db, redis  error
		broker     error
		wantStatus int
		wantDown   []string
	}{
		{"all healthy", nil, nil, nil, http.StatusOK, nil},
		{"database down", down, nil, nil, http.StatusServiceUnavailable, []string{"database"}},
		{"redis down", nil, down, nil, http.StatusServiceUnavailable, []string{"redis"}},
		{"broker down", nil, nil, down, http.StatusServiceUnavailable, []string{"broker"}},
		{"all down", down, down, down, http.StatusServiceUnavailable, []string{"database", "redis", "broker"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := httpx.HealthHandler(
				httpx.Check{Name: "database", Checker: &stubChecker{err: tt.db}},
				httpx.Check{Name: "redis", Checker: &stubChecker{err: tt.redis}},
				httpx.Check{Name: "broker", Checker: &stubChecker{err: tt.broker}},
			)
			rr, body := probe(t, h)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if len(body.Checks) != 3 {
				t.Fatalf("expected 3 checks, got %v", body.Checks)
			}
			for _, name := range tt.wantDown {
				if body.Checks[name] != "unreachable" {
					t.Errorf("%s: got %q, want unreachable", name, body.Checks[name])
				}
			}
			wantStatus := "ok"
			if len(tt.wantDown) > 0 {
				wantStatus = "degraded"
			}
			if body.Status != wantStatus {
				t.Errorf("status: got %q, want %q", body.Status, wantStatus)
			}
		})
	}
}

func TestHealthHandler_ProbesRunConcurrently(t *testing.T) {
	h := httpx.HealthHandler(
		httpx.Check{Name: "database", Checker: slowChecker{}},
		httpx.Check{Name: "broker", Checker: slowChecker{}},
	)
	start := time.Now()
	rr, body := probe(t, h)
	if rr.Code != http.StatusServiceUnavailable || body.Checks["broker"] != "unreachable" {
		t.Fatalf("unexpected result: %d %+v", rr.Code, body)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("probes must share one deadline, took %s", elapsed)
	}
}

func TestLivenessHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	httpx.LivenessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("unexpected Content-Type: %q", ct)
	}
}
