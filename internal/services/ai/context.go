package ai

import (
	"fmt"
	"strings"

	"github.com/taskdeck/taskdeck/internal/models"
)

// MaxContextTasks caps how many tasks are rendered into the assistant's
// system prompt.
const MaxContextTasks = 100

// NoTasksContext is the summary used when the user has no tasks yet.
const NoTasksContext = "The user has no tasks yet."

// BuildTaskContext renders a user's tasks as a compact summary for the
// assistant's system prompt.
func BuildTaskContext(tasks []*models.Task) string {
	if len(tasks) == 0 {
		return NoTasksContext
	}

	shown := tasks
	if len(shown) > MaxContextTasks {
		shown = shown[:MaxContextTasks]
	}

	var b strings.Builder
	for _, task := range shown {
		b.WriteString("- ")
		b.WriteString(task.Title)
		b.WriteString(" [")
		b.WriteString(string(task.Status))
		if task.Priority != nil {
			fmt.Fprintf(&b, ", priority %s", *task.Priority)
		}
		if task.DueDate != nil {
			fmt.Fprintf(&b, ", due %s", task.DueDate.Format("2006-01-02"))
		}
		b.WriteString("]\n")
	}
	if len(tasks) > MaxContextTasks {
		fmt.Fprintf(&b, "(and %d more tasks)\n", len(tasks)-MaxContextTasks)
	}

	return strings.TrimRight(b.String(), "\n")
}
