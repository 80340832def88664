package domain

import "time"

// Channel identifies the transport a message arrived through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
)

// InboundMessage is the canonical, channel-agnostic shape every adapter
// normalizes its payload into. It is created once per adapter invocation,
// treated as immutable and never persisted directly - only its derived
// effects (tasks, ledger records, intelligence aggregates) are stored.
type InboundMessage struct {
	// Sender is the address or resolved email of whoever wrote the message.
	Sender string

	// Recipient is the inbox-owner address the message was directed at.
	Recipient string

	// RoutingKey identifies the organization the message belongs to.
	RoutingKey string

	Subject string
	Body    string

	ReceivedAt time.Time
	Channel    Channel

	// MessageID is the channel-level message identifier. It is the
	// idempotency key for the whole pipeline.
	MessageID string

	// Thread linkage, present for email replies.
	InReplyTo  string
	References []string

	// Metadata carries raw channel-specific fields. The pipeline never
	// interprets it; it is passed through into audit logs only.
	Metadata map[string]string
}

// ThreadRefs returns every identifier that could link this message to an
// existing conversation, most specific first.
func (m *InboundMessage) ThreadRefs() []string {
	refs := make([]string, 0, len(m.References)+1)
	if m.InReplyTo != "" {
		refs = append(refs, m.InReplyTo)
	}
	for _, r := range m.References {
		if r != "" && r != m.InReplyTo {
			refs = append(refs, r)
		}
	}
	return refs
}

// OutcomeKind enumerates the terminal states of a pipeline invocation.
type OutcomeKind string

const (
	OutcomeCreated   OutcomeKind = "created"
	OutcomeUpdated   OutcomeKind = "updated"
	OutcomeDuplicate OutcomeKind = "duplicate"
	OutcomeRejected  OutcomeKind = "rejected"
	OutcomeError     OutcomeKind = "error"
)

// Outcome is what the pipeline returns to every adapter. Adapters translate
// it into channel-appropriate acknowledgment (webhook JSON, a chat reply,
// an auto-response email, or silent logging).
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	TaskIDs []string    `json:"task_ids,omitempty"`
	Changes []string    `json:"changes,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

func Created(taskIDs ...string) Outcome {
	return Outcome{Kind: OutcomeCreated, TaskIDs: taskIDs}
}

func Updated(taskID string, changes []string) Outcome {
	return Outcome{Kind: OutcomeUpdated, TaskIDs: []string{taskID}, Changes: changes}
}

func Duplicate(taskID string) Outcome {
	o := Outcome{Kind: OutcomeDuplicate}
	if taskID != "" {
		o.TaskIDs = []string{taskID}
	}
	return o
}

func Rejected(reason string) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: reason}
}

func Errored(reason string) Outcome {
	return Outcome{Kind: OutcomeError, Reason: reason}
}

// TaskID returns the first task id of the outcome, if any.
func (o Outcome) TaskID() string {
	if len(o.TaskIDs) > 0 {
		return o.TaskIDs[0]
	}
	return ""
}
