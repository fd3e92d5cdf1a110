package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/taskdeck/taskdeck/internal/models"
)

func newDashboardRouter(tasks *fakeTaskStore, threads *fakeThreadStore, messages *fakeMessageStore) *mux.Router {
	h := NewDashboardHandler(tasks, threads, messages)
	r := mux.NewRouter()
	h.RegisterRoutes(r.PathPrefix("/dashboard").Subrouter())
	return r
}

func TestDashboardSummary(t *testing.T) {
	t.Parallel()

	user := testUser()
	tasks := newFakeTaskStore()
	threads := newFakeThreadStore()
	messages := newFakeMessageStore()

	seedTask(t, tasks, user.ID, nil)
	seedTask(t, tasks, user.ID, func(task *models.Task) {
		task.Status = models.TaskStatusInProgress
	})
	seedTask(t, tasks, user.ID, func(task *models.Task) {
		task.Status = models.TaskStatusCompleted
	})
	seedTask(t, tasks, testUser().ID, nil)

	thread := seedThread(t, threads, user.ID, nil)
	seedMessage(t, messages, thread.ID, user.ID, models.MessageRoleUser, "hello")
	seedMessage(t, messages, thread.ID, user.ID, models.MessageRoleAssistant, "hi")

	router := newDashboardRouter(tasks, threads, messages)

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/dashboard/summary", nil), user)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var summary DashboardSummary
	decodeData(t, w, &summary)
	if summary.Tasks != 3 {
		t.Errorf("expected 3 tasks, got %d", summary.Tasks)
	}
	if summary.Threads != 1 {
		t.Errorf("expected 1 thread, got %d", summary.Threads)
	}
	if summary.Messages != 2 {
		t.Errorf("expected 2 messages, got %d", summary.Messages)
	}
	if summary.TaskStatus == nil || summary.TaskStatus.Pending != 1 || summary.TaskStatus.InProgress != 1 || summary.TaskStatus.Completed != 1 {
		t.Errorf("unexpected status breakdown: %+v", summary.TaskStatus)
	}
}

func TestDashboardRecentTasks(t *testing.T) {
	t.Parallel()

	user := testUser()
	tasks := newFakeTaskStore()
	for i := 0; i < DefaultRecentTasks+5; i++ {
		seedTask(t, tasks, user.ID, func(task *models.Task) {
			task.Title = fmt.Sprintf("task %d", i)
			task.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		})
	}
	router := newDashboardRouter(tasks, newFakeThreadStore(), newFakeMessageStore())

	t.Run("defaults the limit", func(t *testing.T) {
		t.Parallel()

		req := authedRequest(httptest.NewRequest(http.MethodGet, "/dashboard/recent", nil), user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var got []*models.Task
		decodeData(t, w, &got)
		if len(got) != DefaultRecentTasks {
			t.Errorf("expected %d tasks, got %d", DefaultRecentTasks, len(got))
		}
		if got[0].Title != fmt.Sprintf("task %d", DefaultRecentTasks+4) {
			t.Errorf("expected newest first, got %q", got[0].Title)
		}
	})

	t.Run("honors an explicit limit", func(t *testing.T) {
		t.Parallel()

		req := authedRequest(httptest.NewRequest(http.MethodGet, "/dashboard/recent?limit=3", nil), user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var got []*models.Task
		decodeData(t, w, &got)
		if len(got) != 3 {
			t.Errorf("expected 3 tasks, got %d", len(got))
		}
	})

	t.Run("caps an oversized limit", func(t *testing.T) {
		t.Parallel()

		req := authedRequest(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/dashboard/recent?limit=%d", MaxPageSize*10), nil), user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var got []*models.Task
		decodeData(t, w, &got)
		if len(got) > MaxPageSize {
			t.Errorf("limit was not capped, got %d tasks", len(got))
		}
	})

	t.Run("ignores a malformed limit", func(t *testing.T) {
		t.Parallel()

		req := authedRequest(httptest.NewRequest(http.MethodGet, "/dashboard/recent?limit=banana", nil), user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var got []*models.Task
		decodeData(t, w, &got)
		if len(got) != DefaultRecentTasks {
			t.Errorf("expected default %d tasks, got %d", DefaultRecentTasks, len(got))
		}
	})
}

func TestDashboardStats(t *testing.T) {
	t.Parallel()

	user := testUser()
	tasks := newFakeTaskStore()
	seedTask(t, tasks, user.ID, func(task *models.Task) {
		task.Status = models.TaskStatusCompleted
	})
	router := newDashboardRouter(tasks, newFakeThreadStore(), newFakeMessageStore())

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/dashboard/stats", nil), user)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var counts models.TaskStatusCounts
	decodeData(t, w, &counts)
	if counts.Completed != 1 || counts.Pending != 0 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestDashboardRequiresAuth(t *testing.T) {
	t.Parallel()

	router := newDashboardRouter(newFakeTaskStore(), newFakeThreadStore(), newFakeMessageStore())

	for _, path := range []string{"/dashboard/summary", "/dashboard/recent", "/dashboard/stats"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s = %d, want 401", path, w.Code)
		}
	}
}
