package models

import (
	"time"

	"github.com/google/uuid"
)

// ThreadStatus represents the status of a conversation thread
type ThreadStatus string

const (
	ThreadStatusActive   ThreadStatus = "active"
	ThreadStatusArchived ThreadStatus = "archived"
)

// MaxThreadTitleLength is the maximum thread title length in characters,
// enforced for both user-supplied and generated titles.
const MaxThreadTitleLength = 100

// Thread represents one assistant conversation owned by a user
type Thread struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"user_id"`
	Title     *string      `json:"title,omitempty"`
	Status    ThreadStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
