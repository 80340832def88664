package domain

import "time"

// Priority represents task priority level
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// TaskType captures the requester's relationship to the task.
type TaskType string

const (
	TaskTypeSelf       TaskType = "self"
	TaskTypeDelegation TaskType = "delegation"
	TaskTypeTracking   TaskType = "tracking"
	TaskTypeAssigned   TaskType = "assigned"
)

// UserRole is the inbox owner's role relative to the task.
type UserRole string

const (
	UserRoleExecutor  UserRole = "executor"
	UserRoleDelegator UserRole = "delegator"
	UserRoleObserver  UserRole = "observer"
)

// Reminder is one entry of the escalation schedule derived by the planner.
type Reminder struct {
	At   time.Time `json:"at"`
	Tier string    `json:"tier"` // "t-3d", "t-1d", "t-4h"
}

// Analysis is the opaque analysis blob persisted alongside a task. Stored
// as JSON; the pipeline writes it, nothing else interprets it.
type Analysis struct {
	PriorityScore  int        `json:"priority_score"`            // 0..100
	EffortEstimate string     `json:"effort_estimate,omitempty"` // "minutes", "hours", "days"
	Tags           []string   `json:"tags,omitempty"`
	Urgency        string     `json:"urgency,omitempty"` // low|medium|high|critical
	DueConfidence  float64    `json:"due_confidence,omitempty"`
	DueReasoning   string     `json:"due_reasoning,omitempty"`
	ThreadRefs     []string   `json:"thread_refs,omitempty"`
	Reminders      []Reminder `json:"reminders,omitempty"`
	TaskIndex      int        `json:"task_index,omitempty"` // 1-based, for multi-task messages
	TaskTotal      int        `json:"task_total,omitempty"`
}

// Task represents an actionable item extracted from an inbound message
type Task struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	OrganizationID string     `json:"organization_id" gorm:"index;not null"`
	Title          string     `json:"title" gorm:"index;not null"`
	Description    string     `json:"description,omitempty"`
	Priority       Priority   `json:"priority" gorm:"default:medium"`
	Status         TaskStatus `json:"status" gorm:"default:pending"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	ReminderAt     *time.Time `json:"reminder_at,omitempty"`
	ReminderSent   bool       `json:"reminder_sent" gorm:"default:false"`

	// Creation channel and sender, used for duplicate collapsing.
	Channel     string `json:"channel"`
	SenderEmail string `json:"sender_email" gorm:"index"`

	// Relationship fields produced by the resolver.
	AssignedByEmail string   `json:"assigned_by_email"`
	AssignedToEmail string   `json:"assigned_to_email"`
	TaskType        TaskType `json:"task_type" gorm:"default:self"`
	UserRole        UserRole `json:"user_role" gorm:"default:executor"`

	// SourceMessageID links the task back to the channel message that
	// created it; replies are matched against it.
	SourceMessageID string `json:"source_message_id" gorm:"index"`

	Analysis Analysis `json:"analysis" gorm:"serializer:json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskActivity is an append-only record of something happening to a task:
// its creation, a reply-driven mutation, a reminder dispatch.
type TaskActivity struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	TaskID     string    `json:"task_id" gorm:"index;not null"`
	Kind       string    `json:"kind"` // "created", "reply_update", "reminder"
	Detail     string    `json:"detail"`
	ActorEmail string    `json:"actor_email"`
	CreatedAt  time.Time `json:"created_at"`
}
