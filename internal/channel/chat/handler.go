// Package chat is the mention-event adapter for the chat relay bot: a
// member mentions the bot in a channel, the relay forwards the event
// here and we answer with a short reply line.
package chat

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taskpilot-backend/internal/dedup"
	msgdomain "taskpilot-backend/internal/message/domain"
	orgdomain "taskpilot-backend/internal/org/domain"
)

// Processor is the pipeline surface the adapter needs.
type Processor interface {
	Process(ctx context.Context, msg *msgdomain.InboundMessage) (msgdomain.Outcome, error)
}

// MemberDirectory resolves a chat user id to an organization member.
type MemberDirectory interface {
	FindMemberByChatID(chatUserID string) (*orgdomain.Member, *orgdomain.Organization, error)
}

// Handler handles mention events forwarded by the chat relay
type Handler struct {
	processor Processor
	members   MemberDirectory
	botUserID string
	cooldown  *dedup.Cooldown
}

func NewHandler(processor Processor, members MemberDirectory, botUserID string, cooldown *dedup.Cooldown) *Handler {
	return &Handler{
		processor: processor,
		members:   members,
		botUserID: botUserID,
		cooldown:  cooldown,
	}
}

// MentionEvent is the relay's webhook payload for one chat message.
type MentionEvent struct {
	MessageID   string   `json:"message_id" binding:"required"`
	ChannelID   string   `json:"channel_id"`
	GuildID     string   `json:"guild_id"`
	AuthorID    string   `json:"author_id" binding:"required"`
	AuthorIsBot bool     `json:"author_is_bot"`
	Content     string   `json:"content"`
	Mentions    []string `json:"mentions"`
	Timestamp   int64    `json:"timestamp"`
}

// HandleMention processes a mention event
// POST /api/webhooks/chat
func (h *Handler) HandleMention(c *gin.Context) {
	var ev MentionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Never respond to bots, including ourselves. Replying to a bot is
	// how two bots end up in a conversation loop.
	if ev.AuthorIsBot || ev.AuthorID == h.botUserID {
		c.JSON(http.StatusOK, gin.H{"ignored": "bot_author"})
		return
	}
	if !h.mentioned(&ev) {
		c.JSON(http.StatusOK, gin.H{"ignored": "not_mentioned"})
		return
	}

	content := h.stripMentions(ev.Content)
	if content == "" {
		// Bare mention with no request. Rate-limit the help reply per
		// channel so a chatty channel doesn't get spammed.
		if h.cooldown != nil && !h.cooldown.Allow("help:"+ev.ChannelID) {
			c.JSON(http.StatusOK, gin.H{"ignored": "cooldown"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reply": "Tell me what needs doing and I'll file it as a task."})
		return
	}

	member, org, err := h.members.FindMemberByChatID(ev.AuthorID)
	if err != nil {
		log.Printf("[ChatWebhook] member lookup failed: %v", err)
		c.JSON(http.StatusOK, gin.H{"reply": "Something went wrong, try again in a moment."})
		return
	}
	if member == nil {
		c.JSON(http.StatusOK, gin.H{"reply": "I don't know you yet. Ask an admin to link your chat account."})
		return
	}

	receivedAt := time.Now()
	if ev.Timestamp > 0 {
		receivedAt = time.Unix(ev.Timestamp, 0)
	}

	msg := &msgdomain.InboundMessage{
		Sender:     member.Email,
		Recipient:  member.Email,
		RoutingKey: org.RoutingKey,
		Body:       content,
		ReceivedAt: receivedAt,
		Channel:    msgdomain.ChannelChat,
		MessageID:  "chat:" + ev.MessageID,
		Metadata: map[string]string{
			"chat_channel_id": ev.ChannelID,
			"chat_guild_id":   ev.GuildID,
			"chat_author_id":  ev.AuthorID,
		},
	}

	outcome, err := h.processor.Process(c.Request.Context(), msg)
	if err != nil {
		log.Printf("[ChatWebhook] message %s: %v", ev.MessageID, err)
	}

	c.JSON(http.StatusOK, gin.H{"reply": replyFor(outcome), "outcome": outcome})
}

func (h *Handler) mentioned(ev *MentionEvent) bool {
	for _, m := range ev.Mentions {
		if m == h.botUserID {
			return true
		}
	}
	return false
}

// stripMentions removes <@id> and <@!id> mention tokens so the pipeline
// sees the request text only.
func (h *Handler) stripMentions(content string) string {
	var sb strings.Builder
	for i := 0; i < len(content); i++ {
		if content[i] == '<' && i+1 < len(content) && content[i+1] == '@' {
			if end := strings.IndexByte(content[i:], '>'); end > 0 {
				i += end
				continue
			}
		}
		sb.WriteByte(content[i])
	}
	return strings.TrimSpace(sb.String())
}

func replyFor(outcome msgdomain.Outcome) string {
	switch outcome.Kind {
	case msgdomain.OutcomeCreated:
		if len(outcome.TaskIDs) > 1 {
			return fmt.Sprintf("Filed %d tasks.", len(outcome.TaskIDs))
		}
		return "Filed it as a task."
	case msgdomain.OutcomeUpdated:
		return "Updated the task (" + strings.Join(outcome.Changes, ", ") + ")."
	case msgdomain.OutcomeDuplicate:
		return "Already tracked, nothing new filed."
	case msgdomain.OutcomeRejected:
		if outcome.Reason == "quota_exceeded" {
			return "Your organization hit its monthly task quota."
		}
		return "I can't file that: " + outcome.Reason
	default:
		return "Something went wrong, try again in a moment."
	}
}
