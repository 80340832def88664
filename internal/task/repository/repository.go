package repository

import (
	"errors"
	"time"

	"taskpilot-backend/internal/task/domain"
)

// ErrQuotaExceeded is returned by CreateAllWithQuota when the organization
// monthly quota leaves no room for the new tasks.
var ErrQuotaExceeded = errors.New("organization monthly task quota exceeded")

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// CreateAllWithQuota creates the given tasks and increments the
	// organization usage counter in one transaction. The quota check and
	// the increment happen under a row lock on the organization so
	// concurrent messages for the same org cannot overrun the quota.
	CreateAllWithQuota(tasks []*domain.Task, organizationID string) error

	// FindByID finds a task by its ID. Returns (nil, nil) when absent.
	FindByID(id string) (*domain.Task, error)

	// FindBySourceMessageID finds the task created from the given channel
	// message identifier.
	FindBySourceMessageID(messageID string) (*domain.Task, error)

	// FindByThreadRefs finds a task whose source message id matches any of
	// the given thread references (In-Reply-To / References).
	FindByThreadRefs(refs []string) (*domain.Task, error)

	// FindRecentDuplicate finds a task with the same title and sender
	// created since the given time.
	FindRecentDuplicate(organizationID, title, senderEmail string, since time.Time) (*domain.Task, error)

	// FindByOrganization lists tasks for an organization with an optional
	// status filter.
	FindByOrganization(organizationID string, status *domain.TaskStatus, limit, offset int) ([]*domain.Task, int64, error)

	// Update updates an existing task
	Update(task *domain.Task) error

	// AppendActivity appends an activity record to a task's history.
	AppendActivity(activity *domain.TaskActivity) error

	// ListActivity returns the activity history of a task, oldest first.
	ListActivity(taskID string) ([]*domain.TaskActivity, error)

	// FindPendingReminders finds tasks where reminder_at <= now, the
	// reminder has not been sent and the task is not done.
	FindPendingReminders(now time.Time) ([]*domain.Task, error)

	// MarkReminderSent marks a task's reminder as sent
	MarkReminderSent(id string) error
}
