// Package email is the inbound email webhook adapter: it normalizes a
// mail gateway's POST into the canonical message shape and translates
// the pipeline outcome back into webhook JSON.
package email

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	msgdomain "taskpilot-backend/internal/message/domain"
)

// Processor is the pipeline surface the adapter needs.
type Processor interface {
	Process(ctx context.Context, msg *msgdomain.InboundMessage) (msgdomain.Outcome, error)
}

// Responder optionally sends an acknowledgment email back to the sender.
type Responder interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Handler handles inbound email webhook requests
type Handler struct {
	processor Processor
	responder Responder // nil disables auto-responses
}

func NewHandler(processor Processor, responder Responder) *Handler {
	return &Handler{processor: processor, responder: responder}
}

// WebhookRequest is the gateway's inbound-mail POST body.
type WebhookRequest struct {
	MessageID  string            `json:"message_id" binding:"required"`
	From       string            `json:"from" binding:"required"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject"`
	BodyPlain  string            `json:"body_plain"`
	BodyHTML   string            `json:"body_html"`
	InReplyTo  string            `json:"in_reply_to"`
	References string            `json:"references"`
	Timestamp  int64             `json:"timestamp"`
	Headers    map[string]string `json:"headers"`
}

// HandleInbound processes an inbound email webhook
// POST /api/webhooks/email
func (h *Handler) HandleInbound(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recipient := RecoverRecipient(req.Recipient, req.Headers)
	if recipient == "" {
		log.Printf("[EmailWebhook] no recipient recoverable for message %s", req.MessageID)
		c.JSON(http.StatusOK, msgdomain.Rejected("no_recipient"))
		return
	}

	msg := h.toMessage(&req, recipient)
	outcome, err := h.processor.Process(c.Request.Context(), msg)
	if err != nil {
		log.Printf("[EmailWebhook] message %s: %v", req.MessageID, err)
	}

	h.maybeRespond(c.Request.Context(), msg, outcome)

	// Always 200: the gateway retries non-2xx, and every outcome here is
	// terminal. The body tells the operator what happened.
	c.JSON(http.StatusOK, outcome)
}

func (h *Handler) toMessage(req *WebhookRequest, recipient string) *msgdomain.InboundMessage {
	body := req.BodyPlain
	if body == "" {
		body = req.BodyHTML
	}

	receivedAt := time.Now()
	if req.Timestamp > 0 {
		receivedAt = time.Unix(req.Timestamp, 0)
	}

	return &msgdomain.InboundMessage{
		Sender:     cleanAddress(req.From),
		Recipient:  recipient,
		RoutingKey: RoutingKeyFromAddress(recipient),
		Subject:    req.Subject,
		Body:       body,
		ReceivedAt: receivedAt,
		Channel:    msgdomain.ChannelEmail,
		MessageID:  req.MessageID,
		InReplyTo:  req.InReplyTo,
		References: splitReferences(req.References),
		Metadata:   req.Headers,
	}
}

func (h *Handler) maybeRespond(ctx context.Context, msg *msgdomain.InboundMessage, outcome msgdomain.Outcome) {
	if h.responder == nil {
		return
	}

	var body string
	switch outcome.Kind {
	case msgdomain.OutcomeCreated:
		body = "Your message was turned into a task."
		if len(outcome.TaskIDs) > 1 {
			body = "Your message was turned into multiple tasks."
		}
	case msgdomain.OutcomeUpdated:
		body = "Your reply updated the task (" + strings.Join(outcome.Changes, ", ") + ")."
	case msgdomain.OutcomeRejected:
		if outcome.Reason == "quota_exceeded" {
			// The pipeline already mailed a quota notice.
			return
		}
		return
	default:
		return
	}

	if err := h.responder.Send(ctx, msg.Sender, "Re: "+msg.Subject, body); err != nil {
		log.Printf("[EmailWebhook] auto-response failed: %v", err)
	}
}

func splitReferences(refs string) []string {
	if refs == "" {
		return nil
	}
	fields := strings.Fields(refs)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
