// Package thread decides how an inbound message relates to the tasks we
// already know about: a brand new request, a reply continuing an existing
// task's conversation, or a duplicate delivery to be collapsed.
package thread

import (
	"strings"
	"time"

	msgdomain "taskpilot-backend/internal/message/domain"
	taskdomain "taskpilot-backend/internal/task/domain"
)

// State is the classification result.
type State string

const (
	StateNew       State = "new"
	StateReply     State = "reply_to_known_task"
	StateDuplicate State = "duplicate"
)

// Disposition couples a state with the existing task it refers to
// (nil for StateNew).
type Disposition struct {
	State State
	Task  *taskdomain.Task
}

// TaskLookup is the read surface the classifier needs; satisfied by the
// task repository.
type TaskLookup interface {
	FindBySourceMessageID(messageID string) (*taskdomain.Task, error)
	FindByThreadRefs(refs []string) (*taskdomain.Task, error)
	FindRecentDuplicate(organizationID, title, senderEmail string, since time.Time) (*taskdomain.Task, error)
}

// Classifier runs the thread/reply state machine.
type Classifier struct {
	tasks           TaskLookup
	duplicateWindow time.Duration
	now             func() time.Time
}

// NewClassifier creates a classifier with the given duplicate-collapse
// window (how far back "same title, same sender" duplicates are matched).
func NewClassifier(tasks TaskLookup, duplicateWindow time.Duration) *Classifier {
	return &Classifier{
		tasks:           tasks,
		duplicateWindow: duplicateWindow,
		now:             time.Now,
	}
}

// Classify applies the checks in pinned order: reply detection first
// (unless the subject marks a forward, which always starts a new task),
// then the two duplicate suppressions. Exact redeliveries of a message id
// normally never reach this point - the ledger screens them - so the
// message-id duplicate check here only catches earlier runs that created
// a task but failed before finishing their ledger entry.
func (c *Classifier) Classify(organizationID string, msg *msgdomain.InboundMessage) (Disposition, error) {
	forwarded := IsForwardSubject(msg.Subject)

	if !forwarded {
		if refs := msg.ThreadRefs(); len(refs) > 0 {
			task, err := c.tasks.FindByThreadRefs(refs)
			if err != nil {
				return Disposition{}, err
			}
			if task != nil && task.OrganizationID == organizationID {
				return Disposition{State: StateReply, Task: task}, nil
			}
		}
	}

	if msg.MessageID != "" {
		task, err := c.tasks.FindBySourceMessageID(msg.MessageID)
		if err != nil {
			return Disposition{}, err
		}
		if task != nil {
			return Disposition{State: StateDuplicate, Task: task}, nil
		}
	}

	title := NormalizeSubject(msg.Subject)
	if title != "" {
		since := c.now().Add(-c.duplicateWindow)
		task, err := c.tasks.FindRecentDuplicate(organizationID, title, msg.Sender, since)
		if err != nil {
			return Disposition{}, err
		}
		if task != nil {
			return Disposition{State: StateDuplicate, Task: task}, nil
		}
	}

	return Disposition{State: StateNew}, nil
}

var forwardPrefixes = []string{"fwd:", "fw:", "forward:", "tr:", "wg:"}
var replyPrefixes = []string{"re:", "aw:", "sv:"}

// IsForwardSubject reports whether the subject marks the message as a
// forward. A forward always starts a new task, even when the underlying
// message technically carries reply headers.
func IsForwardSubject(subject string) bool {
	lowered := strings.ToLower(strings.TrimSpace(subject))
	for _, prefix := range forwardPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}

// NormalizeSubject strips forward/reply prefixes and whitespace so subject
// comparisons survive mail clients stacking "Re: Fwd: Re:".
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		lowered := strings.ToLower(s)
		stripped := false
		for _, prefix := range append(append([]string{}, forwardPrefixes...), replyPrefixes...) {
			if strings.HasPrefix(lowered, prefix) {
				s = strings.TrimSpace(s[len(prefix):])
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}
