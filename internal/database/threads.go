package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck/internal/models"
)

// ThreadRepository handles conversation thread database operations
type ThreadRepository struct {
	db *DB
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(db *DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

// Create creates a new thread
func (r *ThreadRepository) Create(ctx context.Context, thread *models.Thread) error {
	query := `
		INSERT INTO threads (id, user_id, title, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		thread.ID,
		thread.UserID,
		thread.Title,
		thread.Status,
		now,
		now,
	).Scan(&thread.CreatedAt, &thread.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}

	return nil
}

// GetByID retrieves a thread by ID
func (r *ThreadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	thread := &models.Thread{}
	query := `
		SELECT id, user_id, title, status, created_at, updated_at
		FROM threads
		WHERE id = $1
	`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&thread.ID,
		&thread.UserID,
		&thread.Title,
		&thread.Status,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("thread: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	return thread, nil
}

// ListByUser retrieves all threads for a user, newest first, optionally
// filtered by status
func (r *ThreadRepository) ListByUser(ctx context.Context, userID uuid.UUID, status *models.ThreadStatus) ([]*models.Thread, error) {
	query := `
		SELECT id, user_id, title, status, created_at, updated_at
		FROM threads
		WHERE user_id = $1
	`
	args := []any{userID}

	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}

	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		thread := &models.Thread{}
		err := rows.Scan(
			&thread.ID,
			&thread.UserID,
			&thread.Title,
			&thread.Status,
			&thread.CreatedAt,
			&thread.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, thread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}

	return threads, nil
}

// ListUntitled retrieves threads that still have no title but already hold a
// full exchange, oldest first. Used by the background titler sweep.
func (r *ThreadRepository) ListUntitled(ctx context.Context, limit int) ([]*models.Thread, error) {
	query := `
		SELECT t.id, t.user_id, t.title, t.status, t.created_at, t.updated_at
		FROM threads t
		WHERE t.title IS NULL
		  AND (SELECT COUNT(*) FROM messages m WHERE m.thread_id = t.id) >= 2
		ORDER BY t.created_at ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query untitled threads: %w", err)
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		thread := &models.Thread{}
		err := rows.Scan(
			&thread.ID,
			&thread.UserID,
			&thread.Title,
			&thread.Status,
			&thread.CreatedAt,
			&thread.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, thread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating untitled threads: %w", err)
	}

	return threads, nil
}

// CountByUser counts all threads owned by a user
func (r *ThreadRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count threads: %w", err)
	}
	return count, nil
}

// Update updates an existing thread
func (r *ThreadRepository) Update(ctx context.Context, thread *models.Thread) error {
	query := `
		UPDATE threads
		SET title = $2, status = $3, updated_at = $4
		WHERE id = $1
		RETURNING updated_at
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		thread.ID,
		thread.Title,
		thread.Status,
		now,
	).Scan(&thread.UpdatedAt)

	if err == sql.ErrNoRows {
		return fmt.Errorf("thread: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}

	return nil
}

// Delete deletes a thread by ID. Messages are deleted separately first; the
// cascade order is owned by the orchestration layer.
func (r *ThreadRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM threads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("thread: %w", ErrNotFound)
	}

	return nil
}
