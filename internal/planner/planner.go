// Package planner turns a message plus its sender history into a due-date
// suggestion and an escalation-tiered reminder schedule. It never decides
// task content; that belongs to extraction.
package planner

import (
	"fmt"
	"strings"
	"time"

	"taskpilot-backend/internal/dateparse"
	inteldomain "taskpilot-backend/internal/intel/domain"
	msgdomain "taskpilot-backend/internal/message/domain"
	taskdomain "taskpilot-backend/internal/task/domain"
)

// Urgency classification levels.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// DueDateSuggestion is the planner's due-date inference with provenance.
type DueDateSuggestion struct {
	Date       *time.Time
	Confidence float64
	Reasoning  string
}

// Plan is the full planner output for one task candidate.
type Plan struct {
	Urgency   Urgency
	Due       DueDateSuggestion
	Reminders []taskdomain.Reminder
}

var criticalKeywords = []string{
	"urgent", "asap", "immediately", "critical", "emergency", "right away", "khẩn cấp",
}

var highKeywords = []string{
	"important", "priority", "eod", "end of day", "by tomorrow", "deadline",
}

// Planner derives plans; stateless except for the injected clock.
type Planner struct {
	now func() time.Time
}

func NewPlanner() *Planner {
	return &Planner{now: time.Now}
}

// BuildPlan derives urgency, a due date and a reminder schedule.
// explicitDue is a date already decided upstream (an extraction result or
// a reply command) and always wins over the planner's own inference. Due
// dates that land in the past are clamped to tomorrow, never dropped.
func (p *Planner) BuildPlan(msg *msgdomain.InboundMessage, intel *inteldomain.SenderIntelligence, explicitDue *time.Time) Plan {
	now := p.now()
	urgency := p.classifyUrgency(msg, intel)

	due := p.suggestDue(msg, explicitDue, now)
	if due.Date != nil && due.Date.Before(now) {
		tomorrow := tomorrowAt(now, 9)
		due = DueDateSuggestion{
			Date:       &tomorrow,
			Confidence: due.Confidence,
			Reasoning:  due.Reasoning + " (past date clamped to tomorrow)",
		}
	}

	return Plan{
		Urgency:   urgency,
		Due:       due,
		Reminders: p.schedule(urgency, due.Date, now),
	}
}

// ClampDue applies the same never-in-the-past rule to a standalone date.
func (p *Planner) ClampDue(due time.Time) time.Time {
	now := p.now()
	if due.Before(now) {
		return tomorrowAt(now, 9)
	}
	return due
}

func (p *Planner) classifyUrgency(msg *msgdomain.InboundMessage, intel *inteldomain.SenderIntelligence) Urgency {
	text := strings.ToLower(msg.Subject + " " + msg.Body)

	urgency := UrgencyMedium
	for _, kw := range criticalKeywords {
		if strings.Contains(text, kw) {
			urgency = UrgencyCritical
			break
		}
	}
	if urgency == UrgencyMedium {
		for _, kw := range highKeywords {
			if strings.Contains(text, kw) {
				urgency = UrgencyHigh
				break
			}
		}
	}
	if urgency == UrgencyMedium && len(msg.Body) < 80 && !strings.Contains(text, "?") {
		// Short direct requests with no question tend to be FYI notes.
		urgency = UrgencyLow
	}

	// A sender who normally answers within the hour writing again is a
	// weak escalation signal; only ever bumps by one level.
	if intel != nil && intel.MessagesSeen >= 3 && intel.AvgResponseSeconds > 0 && intel.AvgResponseSeconds < 3600 {
		switch urgency {
		case UrgencyLow:
			urgency = UrgencyMedium
		case UrgencyMedium:
			urgency = UrgencyHigh
		}
	}

	return urgency
}

func (p *Planner) suggestDue(msg *msgdomain.InboundMessage, explicitDue *time.Time, now time.Time) DueDateSuggestion {
	if explicitDue != nil {
		return DueDateSuggestion{
			Date:       explicitDue,
			Confidence: 1.0,
			Reasoning:  "explicit due date from extraction or command",
		}
	}

	if due, phrase, ok := dateparse.Resolve(msg.Subject+" "+msg.Body, now); ok {
		return DueDateSuggestion{
			Date:       &due,
			Confidence: 0.6,
			Reasoning:  fmt.Sprintf("matched deadline phrase %q", phrase),
		}
	}

	return DueDateSuggestion{Confidence: 0, Reasoning: "no deadline signal in message"}
}

// Escalation tiers per urgency, as offsets before the due date. Reminder
// density scales with urgency; low urgency gets at most one reminder.
var tierOffsets = map[Urgency][]struct {
	offset time.Duration
	tier   string
}{
	UrgencyCritical: {{72 * time.Hour, "t-3d"}, {24 * time.Hour, "t-1d"}, {4 * time.Hour, "t-4h"}},
	UrgencyHigh:     {{24 * time.Hour, "t-1d"}, {4 * time.Hour, "t-4h"}},
	UrgencyMedium:   {{24 * time.Hour, "t-1d"}},
	UrgencyLow:      {{24 * time.Hour, "t-1d"}},
}

func (p *Planner) schedule(urgency Urgency, due *time.Time, now time.Time) []taskdomain.Reminder {
	if due == nil {
		return nil
	}

	var reminders []taskdomain.Reminder
	for _, t := range tierOffsets[urgency] {
		at := due.Add(-t.offset)
		if at.After(now) {
			reminders = append(reminders, taskdomain.Reminder{At: at, Tier: t.tier})
		}
	}
	return reminders
}

func tomorrowAt(now time.Time, hour int) time.Time {
	t := now.AddDate(0, 0, 1)
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}
