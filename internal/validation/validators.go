package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/taskdeck/taskdeck/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("task_status", validateTaskStatus); err != nil {
		panic(fmt.Sprintf("failed to register task_status validator: %v", err))
	}
	if err := Validate.RegisterValidation("task_priority", validateTaskPriority); err != nil {
		panic(fmt.Sprintf("failed to register task_priority validator: %v", err))
	}
	if err := Validate.RegisterValidation("thread_status", validateThreadStatus); err != nil {
		panic(fmt.Sprintf("failed to register thread_status validator: %v", err))
	}
}

// validateTaskStatus validates that a string is a valid TaskStatus enum value
func validateTaskStatus(fl validator.FieldLevel) bool {
	return ValidateTaskStatus(fl.Field().String()) == nil
}

// validateTaskPriority validates that a string is a valid TaskPriority enum value
func validateTaskPriority(fl validator.FieldLevel) bool {
	return ValidateTaskPriority(fl.Field().String()) == nil
}

// validateThreadStatus validates that a string is a valid ThreadStatus enum value
func validateThreadStatus(fl validator.FieldLevel) bool {
	return ValidateThreadStatus(fl.Field().String()) == nil
}

// Sanitize normalizes free-text input: leading/trailing whitespace is
// trimmed and every internal run of whitespace (spaces, tabs, newlines,
// control characters) collapses to a single space. Idempotent.
func Sanitize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Length returns the length of s in characters, not bytes.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate cuts s to at most n characters. Counting is by rune so a
// multi-byte character is never split.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// ValidateTaskStatus validates a TaskStatus string value
func ValidateTaskStatus(value string) error {
	switch models.TaskStatus(value) {
	case models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusCompleted:
		return nil
	default:
		return fmt.Errorf("invalid status: %s (must be 'pending', 'in_progress', or 'completed')", value)
	}
}

// ValidateTaskPriority validates a TaskPriority string value
func ValidateTaskPriority(value string) error {
	switch models.TaskPriority(value) {
	case models.TaskPriorityLow, models.TaskPriorityMedium, models.TaskPriorityHigh:
		return nil
	default:
		return fmt.Errorf("invalid priority: %s (must be 'low', 'medium', or 'high')", value)
	}
}

// ValidateThreadStatus validates a ThreadStatus string value
func ValidateThreadStatus(value string) error {
	switch models.ThreadStatus(value) {
	case models.ThreadStatusActive, models.ThreadStatusArchived:
		return nil
	default:
		return fmt.Errorf("invalid status: %s (must be 'active' or 'archived')", value)
	}
}

// ValidateStatusTransition checks the task status transition table. The only
// move the table forbids outright is completed back to in_progress; a
// completed task must be reopened to pending first.
func ValidateStatusTransition(from, to models.TaskStatus) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	return fmt.Errorf("invalid status transition: %s -> %s", from, to)
}
