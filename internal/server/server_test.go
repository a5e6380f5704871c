package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/oho/pdfbench/internal/bench"
	"github.com/oho/pdfbench/internal/config"
	"github.com/oho/pdfbench/internal/storage"
)

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Test regular request
	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS origin header missing")
	}
	if w.Header().Get("Access-Control-Allow-Methods") != "*" {
		t.Error("CORS methods header missing")
	}
	if w.Header().Get("Access-Control-Allow-Headers") != "*" {
		t.Error("CORS headers header missing")
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestCORSPreflightOptions(t *testing.T) {
	called := false
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("OPTIONS", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if called {
		t.Error("OPTIONS request should not reach inner handler")
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for OPTIONS, got %d", w.Code)
	}
}

func TestNewRouter(t *testing.T) {
	r := NewRouter()
	if r == nil {
		t.Fatal("NewRouter returned nil")
	}

	// Add a test route and verify it works
	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected 'ok', got %q", w.Body.String())
	}
}

func TestHealthHandlerWithoutDB(t *testing.T) {
	cfg := config.DefaultConfig()
	h := HealthHandler(cfg, nil, []string{"mineru"})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("GET", "/health", nil))

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.DB != "unavailable" || resp.Port != cfg.Port {
		t.Errorf("unexpected health %+v", resp)
	}
	if len(resp.Backends) != 1 || resp.Backends[0] != "mineru" {
		t.Errorf("unexpected backends %v", resp.Backends)
	}
}

func TestHealthHandlerCountsRuns(t *testing.T) {
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.Initialize(); err != nil {
		t.Fatal(err)
	}
	report := bench.Report{RunID: "r1", Backend: "baseline", StartedAt: time.Now()}
	if err := db.SaveReport(report, ""); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	HealthHandler(config.DefaultConfig(), db, nil)(w, httptest.NewRequest("GET", "/health", nil))

	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.DB != "connected" || resp.RunCount != 1 || resp.Backends == nil {
		t.Errorf("unexpected health %+v", resp)
	}
}
