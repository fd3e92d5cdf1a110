package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck/internal/models"
)

// Narrow store interfaces over the concrete repositories. Handlers and
// workers depend on these so tests can substitute in-memory fakes.

// UserStore defines the user persistence operations used by the API
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
	TouchLastActive(ctx context.Context, id uuid.UUID) error
}

// TaskStore defines the task persistence operations used by the API
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status *models.TaskStatus, page, pageSize int) ([]*models.Task, int, error)
	ListAllByUser(ctx context.Context, userID uuid.UUID) ([]*models.Task, error)
	ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Task, error)
	ListUpcoming(ctx context.Context, userID uuid.UUID) ([]*models.Task, error)
	ListOverdue(ctx context.Context, userID uuid.UUID) ([]*models.Task, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
	CountByStatus(ctx context.Context, userID uuid.UUID) (*models.TaskStatusCounts, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ThreadStore defines the thread persistence operations used by the API and
// the background titler
type ThreadStore interface {
	Create(ctx context.Context, thread *models.Thread) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Thread, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status *models.ThreadStatus) ([]*models.Thread, error)
	ListUntitled(ctx context.Context, limit int) ([]*models.Thread, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
	Update(ctx context.Context, thread *models.Thread) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MessageStore defines the message persistence operations used by the API
type MessageStore interface {
	Create(ctx context.Context, message *models.Message) error
	ListByThread(ctx context.Context, threadID uuid.UUID) ([]*models.Message, error)
	ListRecentByThread(ctx context.Context, threadID uuid.UUID, limit int, excludeID uuid.UUID) ([]*models.Message, error)
	CountByThread(ctx context.Context, threadID uuid.UUID) (int, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteByThread(ctx context.Context, threadID uuid.UUID) (int64, error)
}

// Ensure concrete types implement the interfaces
var (
	_ UserStore    = (*UserRepository)(nil)
	_ TaskStore    = (*TaskRepository)(nil)
	_ ThreadStore  = (*ThreadRepository)(nil)
	_ MessageStore = (*MessageRepository)(nil)
)
