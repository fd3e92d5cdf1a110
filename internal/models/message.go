package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies which side of the conversation authored a message
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message represents one turn in a conversation thread. Messages are
// immutable after creation; they are only ever bulk-deleted with their
// parent thread.
type Message struct {
	ID        uuid.UUID   `json:"id"`
	ThreadID  uuid.UUID   `json:"thread_id"`
	UserID    uuid.UUID   `json:"user_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}
