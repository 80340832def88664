package thread

import (
	"testing"
	"time"

	taskdomain "taskpilot-backend/internal/task/domain"
)

var parseNow = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func TestParseCommandStatus(t *testing.T) {
	tests := []struct {
		text string
		want taskdomain.TaskStatus
	}{
		{"this is done, thanks!", taskdomain.TaskStatusDone},
		{"All set on my end", taskdomain.TaskStatusDone},
		{"I'm working on it now", taskdomain.TaskStatusInProgress},
		{"please reopen this one", taskdomain.TaskStatusPending},
	}
	for _, tt := range tests {
		cmd := ParseCommand(tt.text, parseNow)
		if cmd.Kind != CommandStatusChange {
			t.Errorf("ParseCommand(%q).Kind = %s, want %s", tt.text, cmd.Kind, CommandStatusChange)
			continue
		}
		if cmd.Status != tt.want {
			t.Errorf("ParseCommand(%q).Status = %s, want %s", tt.text, cmd.Status, tt.want)
		}
	}
}

func TestParseCommandPriority(t *testing.T) {
	cmd := ParseCommand("this just became urgent", parseNow)
	if cmd.Kind != CommandPriorityChange || cmd.Priority != taskdomain.PriorityHigh {
		t.Fatalf("ParseCommand = %+v, want high priority change", cmd)
	}

	cmd = ParseCommand("no rush on this", parseNow)
	if cmd.Kind != CommandPriorityChange || cmd.Priority != taskdomain.PriorityLow {
		t.Fatalf("ParseCommand = %+v, want low priority change", cmd)
	}
}

func TestParseCommandDueDate(t *testing.T) {
	cmd := ParseCommand("let's postpone this to friday", parseNow)
	if cmd.Kind != CommandDueDateChange {
		t.Fatalf("Kind = %s, want %s", cmd.Kind, CommandDueDateChange)
	}
	if cmd.DueDate.Weekday() != time.Friday {
		t.Fatalf("DueDate weekday = %v, want Friday", cmd.DueDate.Weekday())
	}
}

func TestParseCommandReminder(t *testing.T) {
	cmd := ParseCommand("remind me tomorrow", parseNow)
	if cmd.Kind != CommandReminderSet {
		t.Fatalf("Kind = %s, want %s", cmd.Kind, CommandReminderSet)
	}
	if cmd.RemindAt.Day() != 5 {
		t.Fatalf("RemindAt day = %d, want 5", cmd.RemindAt.Day())
	}
}

func TestParseCommandStatusBeatsPriority(t *testing.T) {
	cmd := ParseCommand("done, and no rush on the rest", parseNow)
	if cmd.Kind != CommandStatusChange || cmd.Status != taskdomain.TaskStatusDone {
		t.Fatalf("ParseCommand = %+v, want done status change", cmd)
	}
}

func TestParseCommandNone(t *testing.T) {
	cmd := ParseCommand("thanks for the update", parseNow)
	if cmd.Kind != CommandNone {
		t.Fatalf("Kind = %s, want %s", cmd.Kind, CommandNone)
	}
}
