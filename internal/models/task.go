package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// TaskPriority represents the priority of a task
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// taskTransitions maps each status to the set of statuses it may move to.
// Self-transitions are always permitted; a completed task can only be
// reopened to pending, never moved straight back to in_progress.
var taskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskStatusPending: {
		TaskStatusPending:    true,
		TaskStatusInProgress: true,
		TaskStatusCompleted:  true,
	},
	TaskStatusInProgress: {
		TaskStatusInProgress: true,
		TaskStatusCompleted:  true,
		TaskStatusPending:    true,
	},
	TaskStatusCompleted: {
		TaskStatusCompleted: true,
		TaskStatusPending:   true,
	},
}

// CanTransitionTo reports whether a task in status s may move to next.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	allowed, ok := taskTransitions[s]
	if !ok {
		return false
	}
	return allowed[next]
}

// Task represents a user-owned to-do item
type Task struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user_id"`
	Title       string        `json:"title"`
	Description *string       `json:"description,omitempty"`
	Status      TaskStatus    `json:"status"`
	Priority    *TaskPriority `json:"priority,omitempty"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// TaskStatusCounts holds the per-status task breakdown for one user
type TaskStatusCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// Total returns the number of tasks across all statuses.
func (c TaskStatusCounts) Total() int {
	return c.Pending + c.InProgress + c.Completed
}
