package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskdeck/taskdeck/internal/models"
	"github.com/taskdeck/taskdeck/internal/request"
)

func TestActivityTracker(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Email: "active@example.com"}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	serve := func(wrapped http.Handler, withUser bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/v1/tasks", nil)
		if withUser {
			req = req.WithContext(request.WithUser(req.Context(), user))
		}
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
		return w
	}

	t.Run("touches authenticated user once per interval", func(t *testing.T) {
		t.Parallel()

		store := newFakeUserStore(user)
		tracker := NewActivityTracker(store, zap.NewNop(), time.Hour)
		wrapped := tracker.Middleware()(handler)

		for i := 0; i < 5; i++ {
			serve(wrapped, true)
		}

		if len(store.touched) != 1 {
			t.Errorf("TouchLastActive called %d times, want 1", len(store.touched))
		}
		if len(store.touched) > 0 && store.touched[0] != user.ID {
			t.Errorf("touched user %s, want %s", store.touched[0], user.ID)
		}
	})

	t.Run("touches again after the interval passes", func(t *testing.T) {
		t.Parallel()

		store := newFakeUserStore(user)
		tracker := NewActivityTracker(store, zap.NewNop(), 10*time.Millisecond)
		wrapped := tracker.Middleware()(handler)

		serve(wrapped, true)
		time.Sleep(20 * time.Millisecond)
		serve(wrapped, true)

		if len(store.touched) != 2 {
			t.Errorf("TouchLastActive called %d times, want 2", len(store.touched))
		}
	})

	t.Run("ignores anonymous requests", func(t *testing.T) {
		t.Parallel()

		store := newFakeUserStore(user)
		tracker := NewActivityTracker(store, zap.NewNop(), time.Hour)
		wrapped := tracker.Middleware()(handler)

		serve(wrapped, false)

		if len(store.touched) != 0 {
			t.Errorf("TouchLastActive called %d times for anonymous request, want 0", len(store.touched))
		}
	})

	t.Run("store failure does not fail the request", func(t *testing.T) {
		t.Parallel()

		store := newFakeUserStore(user)
		store.touchErr = errors.New("connection refused")
		tracker := NewActivityTracker(store, zap.NewNop(), time.Hour)
		wrapped := tracker.Middleware()(handler)

		w := serve(wrapped, true)
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200 despite tracking failure", w.Result().StatusCode)
		}
	})
}
