package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/InboxRelay/internal/telemetry"
)

type fakeShutdown struct{ down bool }

func (f *fakeShutdown) IsShuttingDown() bool { return f.down }

type fakeBroker struct{ connected bool }

func (f *fakeBroker) IsConnected() bool { return f.connected }

type fakeRelay struct{ running bool }

func (f *fakeRelay) Running() bool { return f.running }

func newTestMux(shutdown ShutdownState, broker BrokerState, relay RelayState) *http.ServeMux {
	h := NewHandler(Config{
		Shutdown: shutdown,
		Broker:   broker,
		Relay:    relay,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		down       bool
		connected  bool
		running    bool
		wantCode   int
		wantStatus string
	}{
		{"healthy", false, true, true, http.StatusOK, statusOK},
		{"broker disconnected", false, false, true, http.StatusServiceUnavailable, statusDisconnected},
		{"relay stopped", false, true, false, http.StatusServiceUnavailable, statusRelayStopped},
		{"shutting down", true, true, true, http.StatusServiceUnavailable, statusShuttingDown},
		{"shutting down wins", true, false, false, http.StatusServiceUnavailable, statusShuttingDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(&fakeShutdown{down: tt.down}, &fakeBroker{connected: tt.connected}, &fakeRelay{running: tt.running})

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}

			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, resp.Status)
			}
		})
	}
}

func TestHealthz_WithoutBroker(t *testing.T) {
	mux := newTestMux(&fakeShutdown{}, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	mux := newTestMux(&fakeShutdown{}, &fakeBroker{connected: true}, &fakeRelay{running: true})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected default Go collector metrics")
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != ErrCodeInternalError {
		t.Errorf("expected INTERNAL_ERROR, got %s", resp.Error.Code)
	}
}

func TestLogging_CapturesStatus(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	counter := telemetry.HTTPRequestsTotal.WithLabelValues("/healthz", "503")
	before := testutil.ToFloat64(counter)

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var entry map[string]any
	if err := json.Unmarshal([]byte(buf.String()), &entry); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if entry["status"] != float64(http.StatusServiceUnavailable) {
		t.Errorf("expected status 503 in log, got %v", entry["status"])
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected request counted once, got %v", got)
	}
}

func TestLogging_HealthyHealthzIsDebug(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if buf.Len() != 0 {
		t.Errorf("healthy healthz must not be logged at INFO, got %q", buf.String())
	}
}

func TestJSON_SetsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusAccepted, map[string]string{"status": "ok"})

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected no-store, got %q", cc)
	}
}
