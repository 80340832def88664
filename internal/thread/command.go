package thread

import (
	"strings"
	"time"

	"taskpilot-backend/internal/dateparse"
	taskdomain "taskpilot-backend/internal/task/domain"
)

// CommandKind is the closed set of commands a reply can carry. A reply
// holds exactly one command; the first rule that matches wins.
type CommandKind string

const (
	CommandNone           CommandKind = "none"
	CommandStatusChange   CommandKind = "status_change"
	CommandPriorityChange CommandKind = "priority_change"
	CommandDueDateChange  CommandKind = "due_date_change"
	CommandReminderSet    CommandKind = "reminder_set"
)

// Command is the tagged variant produced by ParseCommand. Only the field
// matching Kind is meaningful.
type Command struct {
	Kind     CommandKind
	Status   taskdomain.TaskStatus
	Priority taskdomain.Priority
	DueDate  time.Time
	RemindAt time.Time
}

var doneKeywords = []string{
	"done", "completed", "finished", "resolved", "all set", "taken care of",
}

var inProgressKeywords = []string{
	"in progress", "working on", "started on", "on it", "picking this up",
}

var reopenKeywords = []string{
	"reopen", "not done", "still open",
}

var highPriorityKeywords = []string{
	"high priority", "urgent", "critical", "asap", "top priority",
}

var lowPriorityKeywords = []string{
	"low priority", "no rush", "whenever", "not urgent",
}

// ParseCommand extracts the single embedded command from a reply body.
// Status beats priority beats due date beats reminder, so "done, and no
// rush on the rest" closes the task rather than downgrading it.
func ParseCommand(text string, now time.Time) Command {
	lowered := strings.ToLower(text)

	for _, kw := range doneKeywords {
		if strings.Contains(lowered, kw) {
			return Command{Kind: CommandStatusChange, Status: taskdomain.TaskStatusDone}
		}
	}
	for _, kw := range inProgressKeywords {
		if strings.Contains(lowered, kw) {
			return Command{Kind: CommandStatusChange, Status: taskdomain.TaskStatusInProgress}
		}
	}
	for _, kw := range reopenKeywords {
		if strings.Contains(lowered, kw) {
			return Command{Kind: CommandStatusChange, Status: taskdomain.TaskStatusPending}
		}
	}

	for _, kw := range highPriorityKeywords {
		if strings.Contains(lowered, kw) {
			return Command{Kind: CommandPriorityChange, Priority: taskdomain.PriorityHigh}
		}
	}
	for _, kw := range lowPriorityKeywords {
		if strings.Contains(lowered, kw) {
			return Command{Kind: CommandPriorityChange, Priority: taskdomain.PriorityLow}
		}
	}

	if strings.Contains(lowered, "remind") {
		if at, _, ok := dateparse.Resolve(lowered, now); ok {
			return Command{Kind: CommandReminderSet, RemindAt: at}
		}
	}

	if strings.Contains(lowered, "due") || strings.Contains(lowered, "postpone") ||
		strings.Contains(lowered, "move to") || strings.Contains(lowered, "deadline") {
		if due, _, ok := dateparse.Resolve(lowered, now); ok {
			return Command{Kind: CommandDueDateChange, DueDate: due}
		}
	}

	return Command{Kind: CommandNone}
}
