// Package authz decides whether a sender may create tasks for an
// organization. Rejection is terminal for the message: it is logged and
// ledgered but never retried.
package authz

import (
	msgdomain "taskpilot-backend/internal/message/domain"
	orgdomain "taskpilot-backend/internal/org/domain"
	taskdomain "taskpilot-backend/internal/task/domain"
	"taskpilot-backend/internal/thread"
)

// Decision reasons, stable strings used in audit logs and ledger results.
const (
	ReasonOrganizationMember   = "organization_member"
	ReasonAllowListed          = "allow_listed"
	ReasonReplyToAllowedThread = "reply_to_allowed_thread"
	ReasonSenderNotAuthorized  = "sender_not_authorized"
)

// Decision is the guard's verdict with the rule that produced it.
type Decision struct {
	Allowed bool
	Reason  string
}

// ThreadLookup finds the task a reply thread belongs to. Satisfied by the
// task repository.
type ThreadLookup interface {
	FindByThreadRefs(refs []string) (*taskdomain.Task, error)
}

// Guard evaluates the authorization rules in order: member, allow-list,
// reply-to-allowed-thread, reject.
type Guard struct {
	threads ThreadLookup
}

// NewGuard creates a Guard backed by the given thread lookup.
func NewGuard(threads ThreadLookup) *Guard {
	return &Guard{threads: threads}
}

// Authorize decides whether the message's sender may create tasks for the
// organization. A thread reference only authorizes when it points at a
// task we created, because a task existing proves the original message of
// the thread was allowed.
func (g *Guard) Authorize(org *orgdomain.Organization, msg *msgdomain.InboundMessage) (Decision, error) {
	if org.HasMember(msg.Sender) {
		return Decision{Allowed: true, Reason: ReasonOrganizationMember}, nil
	}
	if org.IsAllowListed(msg.Sender) {
		return Decision{Allowed: true, Reason: ReasonAllowListed}, nil
	}

	// A forward-marked subject is handled as a new request downstream,
	// so thread references on it must not grant reply authorization. An
	// outsider could otherwise mint tasks by pasting a real message id
	// into In-Reply-To under a "Fwd:" subject.
	if refs := msg.ThreadRefs(); len(refs) > 0 && !thread.IsForwardSubject(msg.Subject) {
		task, err := g.threads.FindByThreadRefs(refs)
		if err != nil {
			return Decision{}, err
		}
		if task != nil && task.OrganizationID == org.ID {
			return Decision{Allowed: true, Reason: ReasonReplyToAllowedThread}, nil
		}
	}

	return Decision{Allowed: false, Reason: ReasonSenderNotAuthorized}, nil
}
