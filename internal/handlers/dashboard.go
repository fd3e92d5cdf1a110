package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/taskdeck/taskdeck/internal/database"
	"github.com/taskdeck/taskdeck/internal/models"
	"github.com/taskdeck/taskdeck/internal/request"
)

// DefaultRecentTasks is how many tasks the recent endpoint returns when
// the caller does not say
const DefaultRecentTasks = 10

// DashboardHandler serves read-only cross-entity summaries for the
// authenticated user. Reads only, so nothing here is rate limited.
type DashboardHandler struct {
	taskRepo    database.TaskStore
	threadRepo  database.ThreadStore
	messageRepo database.MessageStore
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(taskRepo database.TaskStore, threadRepo database.ThreadStore, messageRepo database.MessageStore) *DashboardHandler {
	return &DashboardHandler{
		taskRepo:    taskRepo,
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
	}
}

// RegisterRoutes registers dashboard routes on the given router.
// The router should already have the /dashboard prefix.
func (h *DashboardHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/summary", h.Summary).Methods("GET")
	r.HandleFunc("/recent", h.RecentTasks).Methods("GET")
	r.HandleFunc("/stats", h.TaskStats).Methods("GET")
}

// DashboardSummary holds per-entity counts plus the task status breakdown
type DashboardSummary struct {
	Tasks      int                      `json:"tasks"`
	Threads    int                      `json:"threads"`
	Messages   int                      `json:"messages"`
	TaskStatus *models.TaskStatusCounts `json:"task_status"`
}

// Summary returns entity counts for the authenticated user
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	ctx := r.Context()

	taskCounts, err := h.taskRepo.CountByStatus(ctx, user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to count tasks")
		return
	}

	threads, err := h.threadRepo.CountByUser(ctx, user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to count threads")
		return
	}

	messages, err := h.messageRepo.CountByUser(ctx, user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to count messages")
		return
	}

	respondJSON(w, http.StatusOK, DashboardSummary{
		Tasks:      taskCounts.Total(),
		Threads:    threads,
		Messages:   messages,
		TaskStatus: taskCounts,
	})
}

// RecentTasks returns the user's most recently created tasks
func (h *DashboardHandler) RecentTasks(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	limit := DefaultRecentTasks
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			if parsed > MaxPageSize {
				limit = MaxPageSize
			} else {
				limit = parsed
			}
		}
	}

	tasks, err := h.taskRepo.ListRecentByUser(r.Context(), user.ID, limit)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve recent tasks")
		return
	}

	respondJSON(w, http.StatusOK, tasks)
}

// TaskStats returns the task status breakdown alone
func (h *DashboardHandler) TaskStats(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	counts, err := h.taskRepo.CountByStatus(r.Context(), user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve task stats")
		return
	}

	respondJSON(w, http.StatusOK, counts)
}
