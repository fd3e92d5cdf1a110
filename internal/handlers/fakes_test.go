package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskdeck/taskdeck/internal/database"
	"github.com/taskdeck/taskdeck/internal/models"
	"github.com/taskdeck/taskdeck/internal/queue"
	"github.com/taskdeck/taskdeck/internal/ratelimit"
	"github.com/taskdeck/taskdeck/internal/request"
	"github.com/taskdeck/taskdeck/internal/services/ai"
)

// In-memory fakes behind the store interfaces. Each carries optional
// error overrides so tests can force failure paths.

type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task

	createErr error
	getErr    error
	listErr   error
	countErr  error
	updateErr error
	deleteErr error
}

var _ database.TaskStore = (*fakeTaskStore)(nil)

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*models.Task)}
}

func (f *fakeTaskStore) Create(_ context.Context, task *models.Task) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskStore) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task: %w", database.ErrNotFound)
	}
	copied := *task
	return &copied, nil
}

func (f *fakeTaskStore) byUser(userID uuid.UUID) []*models.Task {
	var out []*models.Task
	for _, task := range f.tasks {
		if task.UserID == userID {
			copied := *task
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (f *fakeTaskStore) ListByUser(_ context.Context, userID uuid.UUID, status *models.TaskStatus, page, pageSize int) ([]*models.Task, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.byUser(userID)
	if status != nil {
		filtered := all[:0]
		for _, task := range all {
			if task.Status == *status {
				filtered = append(filtered, task)
			}
		}
		all = filtered
	}
	total := len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return []*models.Task{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (f *fakeTaskStore) ListAllByUser(_ context.Context, userID uuid.UUID) ([]*models.Task, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byUser(userID), nil
}

func (f *fakeTaskStore) ListRecentByUser(_ context.Context, userID uuid.UUID, limit int) ([]*models.Task, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.byUser(userID)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeTaskStore) ListUpcoming(_ context.Context, userID uuid.UUID) ([]*models.Task, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Task
	for _, task := range f.byUser(userID) {
		if task.Status != models.TaskStatusCompleted && task.DueDate != nil && !task.DueDate.Before(time.Now()) {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	return out, nil
}

func (f *fakeTaskStore) ListOverdue(_ context.Context, userID uuid.UUID) ([]*models.Task, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Task
	for _, task := range f.byUser(userID) {
		if task.Status != models.TaskStatusCompleted && task.DueDate != nil && task.DueDate.Before(time.Now()) {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	return out, nil
}

func (f *fakeTaskStore) CountByUser(_ context.Context, userID uuid.UUID) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byUser(userID)), nil
}

func (f *fakeTaskStore) CountByStatus(_ context.Context, userID uuid.UUID) (*models.TaskStatusCounts, error) {
	if f.countErr != nil {
		return nil, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := &models.TaskStatusCounts{}
	for _, task := range f.byUser(userID) {
		switch task.Status {
		case models.TaskStatusPending:
			counts.Pending++
		case models.TaskStatusInProgress:
			counts.InProgress++
		case models.TaskStatusCompleted:
			counts.Completed++
		}
	}
	return counts, nil
}

func (f *fakeTaskStore) Update(_ context.Context, task *models.Task) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; !ok {
		return fmt.Errorf("task: %w", database.ErrNotFound)
	}
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskStore) Delete(_ context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return fmt.Errorf("task: %w", database.ErrNotFound)
	}
	delete(f.tasks, id)
	return nil
}

type fakeThreadStore struct {
	mu      sync.Mutex
	threads map[uuid.UUID]*models.Thread

	createErr error
	getErr    error
	listErr   error
	countErr  error
	updateErr error
	deleteErr error
}

var _ database.ThreadStore = (*fakeThreadStore)(nil)

func newFakeThreadStore() *fakeThreadStore {
	return &fakeThreadStore{threads: make(map[uuid.UUID]*models.Thread)}
}

func (f *fakeThreadStore) Create(_ context.Context, thread *models.Thread) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *thread
	f.threads[thread.ID] = &copied
	return nil
}

func (f *fakeThreadStore) GetByID(_ context.Context, id uuid.UUID) (*models.Thread, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	thread, ok := f.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread: %w", database.ErrNotFound)
	}
	copied := *thread
	return &copied, nil
}

func (f *fakeThreadStore) ListByUser(_ context.Context, userID uuid.UUID, status *models.ThreadStatus) ([]*models.Thread, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Thread
	for _, thread := range f.threads {
		if thread.UserID != userID {
			continue
		}
		if status != nil && thread.Status != *status {
			continue
		}
		copied := *thread
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeThreadStore) ListUntitled(_ context.Context, limit int) ([]*models.Thread, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Thread
	for _, thread := range f.threads {
		if thread.Title == nil && len(out) < limit {
			copied := *thread
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeThreadStore) CountByUser(_ context.Context, userID uuid.UUID) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, thread := range f.threads {
		if thread.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeThreadStore) Update(_ context.Context, thread *models.Thread) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.threads[thread.ID]; !ok {
		return fmt.Errorf("thread: %w", database.ErrNotFound)
	}
	copied := *thread
	f.threads[thread.ID] = &copied
	return nil
}

func (f *fakeThreadStore) Delete(_ context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.threads[id]; !ok {
		return fmt.Errorf("thread: %w", database.ErrNotFound)
	}
	delete(f.threads, id)
	return nil
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages []*models.Message

	createErr error
	listErr   error
	countErr  error
	deleteErr error
}

var _ database.MessageStore = (*fakeMessageStore)(nil)

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{}
}

func (f *fakeMessageStore) Create(_ context.Context, message *models.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *message
	// Insertion order stands in for created_at ordering.
	f.messages = append(f.messages, &copied)
	return nil
}

func (f *fakeMessageStore) ListByThread(_ context.Context, threadID uuid.UUID) ([]*models.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Message
	for _, msg := range f.messages {
		if msg.ThreadID == threadID {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) ListRecentByThread(_ context.Context, threadID uuid.UUID, limit int, excludeID uuid.UUID) ([]*models.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		msg := f.messages[i]
		if msg.ThreadID == threadID && msg.ID != excludeID {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) CountByThread(_ context.Context, threadID uuid.UUID) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, msg := range f.messages {
		if msg.ThreadID == threadID {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageStore) CountByUser(_ context.Context, userID uuid.UUID) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, msg := range f.messages {
		if msg.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageStore) DeleteByThread(_ context.Context, threadID uuid.UUID) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*models.Message
	var deleted int64
	for _, msg := range f.messages {
		if msg.ThreadID == threadID {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	f.messages = kept
	return deleted, nil
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User

	createErr error
	getErr    error
}

var _ database.UserStore = (*fakeUserStore)(nil)

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUserStore) Create(_ context.Context, user *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", database.ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user: %w", database.ErrNotFound)
}

func (f *fakeUserStore) GetByProviderID(_ context.Context, providerID string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.ProviderID != nil && *user.ProviderID == providerID {
			copied := *user
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user: %w", database.ErrNotFound)
}

func (f *fakeUserStore) TouchLastActive(_ context.Context, _ uuid.UUID) error {
	return nil
}

type fakeAIProvider struct {
	mu          sync.Mutex
	replyFunc   func(ctx context.Context, taskContext string, turns []ai.Turn) (string, error)
	replyCalls  int
	lastContext string
	lastTurns   []ai.Turn
}

var _ ai.AIProvider = (*fakeAIProvider)(nil)

func (f *fakeAIProvider) Reply(ctx context.Context, taskContext string, turns []ai.Turn) (string, error) {
	f.mu.Lock()
	f.replyCalls++
	f.lastContext = taskContext
	f.lastTurns = append([]ai.Turn(nil), turns...)
	fn := f.replyFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, taskContext, turns)
	}
	return "Happy to help with that.", nil
}

func (f *fakeAIProvider) TitleThread(_ context.Context, _ []ai.Turn) (string, error) {
	return "Test Thread", nil
}

type fakeJobQueue struct {
	mu         sync.Mutex
	enqueued   []*queue.Job
	enqueueErr error
	healthErr  error
}

var _ queue.JobQueue = (*fakeJobQueue)(nil)

func (f *fakeJobQueue) Enqueue(_ context.Context, job *queue.Job) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, job)
	return nil
}

func (f *fakeJobQueue) Consume(_ context.Context, _ int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, fmt.Errorf("not implemented")
}

func (f *fakeJobQueue) Close() error { return nil }

func (f *fakeJobQueue) HealthCheck(_ context.Context) error { return f.healthErr }

// fakeLimiter records Allow calls and answers with a fixed verdict.
type fakeLimiter struct {
	mu         sync.Mutex
	denied     bool
	retryAfter time.Duration
	err        error
	calls      []string
}

var _ RateLimiter = (*fakeLimiter)(nil)

func (f *fakeLimiter) Allow(_ context.Context, bucket, key string) (*ratelimit.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, bucket+":"+key)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.denied {
		return &ratelimit.Result{Allowed: false, RetryAfter: f.retryAfter}, nil
	}
	return &ratelimit.Result{Allowed: true, Remaining: 1}, nil
}

// authedRequest builds a request with the given user already resolved,
// as the auth middleware would leave it.
func authedRequest(r *http.Request, user *models.User) *http.Request {
	if user == nil {
		return r
	}
	return r.WithContext(request.WithUser(r.Context(), user))
}

func testUser() *models.User {
	return &models.User{
		ID:    uuid.New(),
		Email: "test@example.com",
	}
}
