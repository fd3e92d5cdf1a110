package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/taskdeck/taskdeck/internal/database"
	"github.com/taskdeck/taskdeck/internal/models"
	"github.com/taskdeck/taskdeck/internal/queue"
	"github.com/taskdeck/taskdeck/internal/ratelimit"
	"github.com/taskdeck/taskdeck/internal/request"
	"github.com/taskdeck/taskdeck/internal/services/ai"
	"github.com/taskdeck/taskdeck/internal/validation"
)

const (
	// MaxThreadsPerUser is the maximum number of threads a user may hold
	MaxThreadsPerUser = 50
	// MaxMessageLength is the maximum message content length in characters
	MaxMessageLength = 10000
	// MaxMessagesPerThread is the maximum number of messages in one thread
	MaxMessagesPerThread = 1000
	// MaxContextMessages is how many prior messages are replayed to the
	// assistant as conversation history
	MaxContextMessages = 10
	// assistantReplyTimeout bounds one assistant call. The provider's
	// HTTP client enforces the same bound on its side.
	assistantReplyTimeout = 60 * time.Second
)

// ThreadHandler handles conversation thread requests
type ThreadHandler struct {
	threadRepo  database.ThreadStore
	messageRepo database.MessageStore
	taskRepo    database.TaskStore
	aiProvider  ai.AIProvider
	limiter     RateLimiter
	jobQueue    queue.JobQueue
	logger      *zap.Logger
}

// NewThreadHandler creates a new thread handler. jobQueue may be nil, in
// which case untitled threads are left for the periodic sweeper to pick
// up. aiProvider may be nil, in which case sending messages answers 501
// while thread management keeps working.
func NewThreadHandler(
	threadRepo database.ThreadStore,
	messageRepo database.MessageStore,
	taskRepo database.TaskStore,
	aiProvider ai.AIProvider,
	limiter RateLimiter,
	jobQueue queue.JobQueue,
	logger *zap.Logger,
) *ThreadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadHandler{
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		taskRepo:    taskRepo,
		aiProvider:  aiProvider,
		limiter:     limiter,
		jobQueue:    jobQueue,
		logger:      logger,
	}
}

// RegisterRoutes registers thread routes on the given router.
// The router should already have the /threads prefix.
func (h *ThreadHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListThreads).Methods("GET")
	r.HandleFunc("", h.CreateThread).Methods("POST")
	r.HandleFunc("/{id}", h.GetThread).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateThread).Methods("PATCH")
	r.HandleFunc("/{id}", h.DeleteThread).Methods("DELETE")
	r.HandleFunc("/{id}/messages", h.SendMessage).Methods("POST")
}

// CreateThreadRequest represents a create thread request
type CreateThreadRequest struct {
	Title *string `json:"title,omitempty"`
}

// UpdateThreadRequest represents an update thread request
type UpdateThreadRequest struct {
	Title  *string              `json:"title,omitempty"`
	Status *models.ThreadStatus `json:"status,omitempty"`
}

// SendMessageRequest represents a send message request
type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// SendMessageResponse carries both halves of a completed exchange
type SendMessageResponse struct {
	UserMessageID      uuid.UUID `json:"user_message_id"`
	AssistantMessageID uuid.UUID `json:"assistant_message_id"`
	Response           string    `json:"response"`
}

// ThreadDetailResponse is a thread with its messages in chronological order
type ThreadDetailResponse struct {
	Thread   *models.Thread    `json:"thread"`
	Messages []*models.Message `json:"messages"`
}

// DeleteThreadResponse reports how many messages the cascade removed
type DeleteThreadResponse struct {
	DeletedMessages int64 `json:"deleted_messages"`
}

// ListThreads lists threads for the authenticated user, optionally
// filtered by status
func (h *ThreadHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var status *models.ThreadStatus
	if s := r.URL.Query().Get("status"); s != "" {
		if err := validation.ValidateThreadStatus(s); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		sEnum := models.ThreadStatus(s)
		status = &sEnum
	}

	threads, err := h.threadRepo.ListByUser(r.Context(), user.ID, status)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve threads")
		return
	}

	respondJSON(w, http.StatusOK, threads)
}

// CreateThread creates a new conversation thread
func (h *ThreadHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	if !h.allowRate(w, r, ratelimit.BucketCreateThread, user.ID.String()) {
		return
	}

	var req CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	// An empty or whitespace title means the thread starts untitled and
	// the background titler names it after the first exchange.
	var title *string
	if req.Title != nil {
		sanitized := validation.Sanitize(*req.Title)
		if validation.Length(sanitized) > models.MaxThreadTitleLength {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Title exceeds maximum length of %d characters", models.MaxThreadTitleLength))
			return
		}
		if sanitized != "" {
			title = &sanitized
		}
	}

	ctx := r.Context()
	count, err := h.threadRepo.CountByUser(ctx, user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to check thread quota")
		return
	}
	if count >= MaxThreadsPerUser {
		respondJSONError(w, http.StatusForbidden, "Quota Exceeded", fmt.Sprintf("Thread limit of %d reached", MaxThreadsPerUser))
		return
	}

	thread := &models.Thread{
		ID:     uuid.New(),
		UserID: user.ID,
		Title:  title,
		Status: models.ThreadStatusActive,
	}

	if err := h.threadRepo.Create(ctx, thread); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create thread")
		return
	}

	respondJSON(w, http.StatusCreated, thread)
}

// GetThread retrieves a thread with its messages in chronological order
func (h *ThreadHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	vars := mux.Vars(r)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid thread ID")
		return
	}

	ctx := r.Context()
	thread, err := h.threadRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Thread not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve thread")
		return
	}

	if thread.UserID != user.ID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Thread does not belong to user")
		return
	}

	messages, err := h.messageRepo.ListByThread(ctx, id)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve messages")
		return
	}

	respondJSON(w, http.StatusOK, ThreadDetailResponse{
		Thread:   thread,
		Messages: messages,
	})
}

// UpdateThread renames or archives a thread
func (h *ThreadHandler) UpdateThread(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	vars := mux.Vars(r)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid thread ID")
		return
	}

	var req UpdateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	var title string
	if req.Title != nil {
		title = validation.Sanitize(*req.Title)
		if title == "" {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Title cannot be empty after sanitization")
			return
		}
		if validation.Length(title) > models.MaxThreadTitleLength {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Title exceeds maximum length of %d characters", models.MaxThreadTitleLength))
			return
		}
	}
	if req.Status != nil {
		if err := validation.ValidateThreadStatus(string(*req.Status)); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
	}

	ctx := r.Context()
	thread, err := h.threadRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Thread not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve thread")
		return
	}

	if thread.UserID != user.ID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Thread does not belong to user")
		return
	}

	if req.Title != nil {
		thread.Title = &title
	}
	if req.Status != nil {
		thread.Status = *req.Status
	}

	if err := h.threadRepo.Update(ctx, thread); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update thread")
		return
	}

	respondJSON(w, http.StatusOK, thread)
}

// DeleteThread deletes a thread and all of its messages. Messages go
// first; if the thread delete then fails the messages stay gone, which
// is an accepted partial outcome.
func (h *ThreadHandler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	vars := mux.Vars(r)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid thread ID")
		return
	}

	ctx := r.Context()
	thread, err := h.threadRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Thread not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve thread")
		return
	}

	if thread.UserID != user.ID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Thread does not belong to user")
		return
	}

	deleted, err := h.messageRepo.DeleteByThread(ctx, id)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete messages")
		return
	}

	if err := h.threadRepo.Delete(ctx, id); err != nil {
		h.logger.Error("thread_delete_failed_after_message_cascade",
			zap.String("thread_id", id.String()),
			zap.Int64("deleted_messages", deleted),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete thread")
		return
	}

	respondJSON(w, http.StatusOK, DeleteThreadResponse{DeletedMessages: deleted})
}

// SendMessage appends a user message to a thread and returns the
// assistant's reply. The user message is persisted before the assistant
// is called, so a provider failure leaves a one-sided exchange rather
// than losing the user's words.
func (h *ThreadHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	// An unconfigured assistant is permanent, so fail before persisting
	// anything. A configured assistant that errors is handled below,
	// after the user message is saved.
	if h.aiProvider == nil {
		respondJSONError(w, http.StatusNotImplemented, "Not Implemented", "Assistant is not configured")
		return
	}

	if !h.allowRate(w, r, ratelimit.BucketSendMessage, user.ID.String()) {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	if err := validation.Validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", validationErrors[0].Error()))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return
	}

	req.Content = validation.Sanitize(req.Content)
	if req.Content == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Content is required and cannot be empty after sanitization")
		return
	}
	if validation.Length(req.Content) > MaxMessageLength {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Content exceeds maximum length of %d characters", MaxMessageLength))
		return
	}

	vars := mux.Vars(r)
	threadID, err := uuid.Parse(vars["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid thread ID")
		return
	}

	ctx := r.Context()
	thread, err := h.threadRepo.GetByID(ctx, threadID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Thread not found")
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve thread")
		return
	}

	if thread.UserID != user.ID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Thread does not belong to user")
		return
	}

	count, err := h.messageRepo.CountByThread(ctx, threadID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to check message quota")
		return
	}
	if count >= MaxMessagesPerThread {
		respondJSONError(w, http.StatusForbidden, "Quota Exceeded", fmt.Sprintf("Message limit of %d reached for this thread", MaxMessagesPerThread))
		return
	}

	userMsg := &models.Message{
		ID:       uuid.New(),
		ThreadID: threadID,
		UserID:   user.ID,
		Role:     models.MessageRoleUser,
		Content:  req.Content,
	}
	if err := h.messageRepo.Create(ctx, userMsg); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save message")
		return
	}

	tasks, err := h.taskRepo.ListAllByUser(ctx, user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load task context")
		return
	}
	taskContext := ai.BuildTaskContext(tasks)

	turns, err := h.conversationHistory(r, threadID, userMsg.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load conversation history")
		return
	}
	turns = append(turns, ai.Turn{Role: ai.RoleUser, Content: req.Content})

	replyCtx, cancel := context.WithTimeout(ctx, assistantReplyTimeout)
	defer cancel()

	reply, err := h.aiProvider.Reply(replyCtx, taskContext, turns)
	if err != nil {
		h.logger.Warn("assistant_reply_failed",
			zap.String("thread_id", threadID.String()),
			zap.String("user_message_id", userMsg.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Assistant is unavailable, your message was saved")
		return
	}

	assistantMsg := &models.Message{
		ID:       uuid.New(),
		ThreadID: threadID,
		UserID:   user.ID,
		Role:     models.MessageRoleAssistant,
		Content:  reply,
	}
	if err := h.messageRepo.Create(ctx, assistantMsg); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save assistant reply")
		return
	}

	if thread.Title == nil {
		h.enqueueTitleJob(ctx, user.ID, threadID)
	}

	respondJSON(w, http.StatusCreated, SendMessageResponse{
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
		Response:           reply,
	})
}

// conversationHistory loads the most recent prior messages of a thread
// as chronological turns, excluding the just-inserted message.
func (h *ThreadHandler) conversationHistory(r *http.Request, threadID, excludeID uuid.UUID) ([]ai.Turn, error) {
	recent, err := h.messageRepo.ListRecentByThread(r.Context(), threadID, MaxContextMessages, excludeID)
	if err != nil {
		return nil, err
	}

	// Storage hands these back newest-first.
	turns := make([]ai.Turn, 0, len(recent)+1)
	for i := len(recent) - 1; i >= 0; i-- {
		turns = append(turns, ai.Turn{
			Role:    string(recent[i].Role),
			Content: recent[i].Content,
		})
	}
	return turns, nil
}

// enqueueTitleJob asks the background worker to name an untitled thread.
// Best effort: a queue failure is logged and never surfaced to the
// caller.
func (h *ThreadHandler) enqueueTitleJob(ctx context.Context, userID, threadID uuid.UUID) {
	if h.jobQueue == nil {
		return
	}
	job := queue.NewJob(queue.JobTypeThreadTitle, userID, &threadID)
	if err := h.jobQueue.Enqueue(ctx, job); err != nil {
		h.logger.Warn("failed_to_enqueue_title_job",
			zap.String("thread_id", threadID.String()),
			zap.Error(err),
		)
		return
	}
	h.logger.Debug("enqueued_title_job",
		zap.String("thread_id", threadID.String()),
	)
}

func (h *ThreadHandler) allowRate(w http.ResponseWriter, r *http.Request, bucket, key string) bool {
	return allowRate(w, r, h.limiter, h.logger, bucket, key)
}
