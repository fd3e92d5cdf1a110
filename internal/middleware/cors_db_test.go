package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/taskdeck/taskdeck/internal/models"
)

type fakeCORSConfigStore struct {
	mu  sync.Mutex
	cfg *models.CorsConfig
	err error
}

func (s *fakeCORSConfigStore) Get(ctx context.Context) (*models.CorsConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.err
}

func (s *fakeCORSConfigStore) set(cfg *models.CorsConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

var _ CORSConfigStore = (*fakeCORSConfigStore)(nil)

func corsProbe(t *testing.T, reloader *CORSReloader, origin string) *http.Response {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := reloader.Middleware()(handler)

	req := httptest.NewRequest("GET", "/api/v1/tasks", nil)
	req.Header.Set("Origin", origin)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	return w.Result()
}

func TestCORSReloaderUsesStoredConfig(t *testing.T) {
	t.Parallel()

	store := &fakeCORSConfigStore{
		cfg: &models.CorsConfig{
			ConfigKey:        "default",
			AllowedOrigins:   "https://app.taskdeck.io",
			AllowCredentials: true,
			MaxAge:           3600,
		},
	}
	reloader := NewCORSReloader(store, "http://localhost:3000", zap.NewNop(), 0)

	resp := corsProbe(t, reloader, "https://app.taskdeck.io")
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.taskdeck.io" {
		t.Errorf("Access-Control-Allow-Origin = %q, want stored origin", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want true", got)
	}
}

func TestCORSReloaderRejectsUnknownOrigin(t *testing.T) {
	t.Parallel()

	store := &fakeCORSConfigStore{
		cfg: &models.CorsConfig{
			ConfigKey:      "default",
			AllowedOrigins: "https://app.taskdeck.io",
			MaxAge:         3600,
		},
	}
	reloader := NewCORSReloader(store, "", zap.NewNop(), 0)

	resp := corsProbe(t, reloader, "https://evil.example.com")
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty for unknown origin", got)
	}
	// The request itself still passes through; the browser enforces CORS
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCORSReloaderFallsBackWhenStoreFails(t *testing.T) {
	t.Parallel()

	store := &fakeCORSConfigStore{err: errors.New("connection refused")}
	reloader := NewCORSReloader(store, "https://fallback.taskdeck.io", zap.NewNop(), 0)

	resp := corsProbe(t, reloader, "https://fallback.taskdeck.io")
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://fallback.taskdeck.io" {
		t.Errorf("Access-Control-Allow-Origin = %q, want fallback origin", got)
	}
}

func TestCORSReloaderPreflight(t *testing.T) {
	t.Parallel()

	store := &fakeCORSConfigStore{
		cfg: &models.CorsConfig{
			ConfigKey:      "default",
			AllowedOrigins: "https://app.taskdeck.io",
			MaxAge:         600,
		},
	}
	reloader := NewCORSReloader(store, "", zap.NewNop(), 0)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight should not reach the handler")
	})
	wrapped := reloader.Middleware()(handler)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
	req.Header.Set("Origin", "https://app.taskdeck.io")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.taskdeck.io" {
		t.Errorf("Access-Control-Allow-Origin = %q, want allowed origin", got)
	}
	if got := resp.Header.Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("Access-Control-Max-Age = %q, want 600", got)
	}
}

func TestCORSReloaderStartReloads(t *testing.T) {
	t.Parallel()

	store := &fakeCORSConfigStore{
		cfg: &models.CorsConfig{
			ConfigKey:      "default",
			AllowedOrigins: "https://old.taskdeck.io",
			MaxAge:         600,
		},
	}
	reloader := NewCORSReloader(store, "", zap.NewNop(), 10*time.Millisecond)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := reloader.Middleware()(handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reloader.Start(ctx)

	store.set(&models.CorsConfig{
		ConfigKey:      "default",
		AllowedOrigins: "https://new.taskdeck.io",
		MaxAge:         600,
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest("GET", "/api/v1/tasks", nil)
		req.Header.Set("Origin", "https://new.taskdeck.io")
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
		if w.Result().Header.Get("Access-Control-Allow-Origin") == "https://new.taskdeck.io" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("reloader never picked up the new origin")
}
