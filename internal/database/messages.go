package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck/internal/models"
)

// MessageRepository handles conversation message database operations
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create creates a new message
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (id, thread_id, user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		message.ID,
		message.ThreadID,
		message.UserID,
		message.Role,
		message.Content,
		time.Now(),
	).Scan(&message.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// ListByThread retrieves every message in a thread in chronological order
func (r *MessageRepository) ListByThread(ctx context.Context, threadID uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT id, thread_id, user_id, role, content, created_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.queryMessages(ctx, query, threadID)
}

// ListRecentByThread retrieves up to limit messages in a thread, newest
// first, excluding excludeID. Callers needing chronological order reverse
// the result.
func (r *MessageRepository) ListRecentByThread(ctx context.Context, threadID uuid.UUID, limit int, excludeID uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT id, thread_id, user_id, role, content, created_at
		FROM messages
		WHERE thread_id = $1 AND id <> $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	return r.queryMessages(ctx, query, threadID, excludeID, limit)
}

// CountByThread counts the messages in a thread
func (r *MessageRepository) CountByThread(ctx context.Context, threadID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE thread_id = $1`, threadID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// CountByUser counts all messages authored under a user's threads
func (r *MessageRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// DeleteByThread deletes every message in a thread and returns how many were
// removed
func (r *MessageRepository) DeleteByThread(ctx context.Context, threadID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = $1`, threadID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

func (r *MessageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		message := &models.Message{}
		err := rows.Scan(
			&message.ID,
			&message.ThreadID,
			&message.UserID,
			&message.Role,
			&message.Content,
			&message.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}
