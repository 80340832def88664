package ai

import (
	"fmt"
	"strings"
)

// maxPromptBody keeps single messages from blowing the context window.
const maxPromptBody = 6000

// buildExtractionPrompt renders the structured extraction prompt shared
// by every provider, so switching providers never changes semantics.
func buildExtractionPrompt(req ExtractionRequest) string {
	var sb strings.Builder

	sb.WriteString(`You are a task extraction assistant. Read the message below and extract every actionable task.

RULES:
- Respond with ONLY a JSON array, no prose, no markdown fences.
- Each element: {"title": string, "description": string, "priority": "low"|"medium"|"high", "priority_score": 0-100, "due_date": "YYYY-MM-DD" or "", "effort_estimate": "minutes"|"hours"|"days", "tags": [string]}
- Title: short imperative phrase, max 80 characters.
- Description: enough context that the task makes sense without the original message.
- If the message contains no actionable task, return a single element describing a review task for the message.
`)

	if len(req.ThreadContext) > 0 {
		sb.WriteString("\nSIMILAR EARLIER TASKS (for context only, do not repeat them):\n")
		for _, title := range req.ThreadContext {
			fmt.Fprintf(&sb, "- %s\n", title)
		}
	}
	if req.PrioritySignal != "" {
		fmt.Fprintf(&sb, "\nSENDER SIGNAL: %s\n", req.PrioritySignal)
	}

	fmt.Fprintf(&sb, "\nFROM: %s\nTO: %s\nSUBJECT: %s\n\nMESSAGE:\n%s\n\nJSON:",
		req.Sender, req.Recipient, req.Subject, truncate(req.Body, maxPromptBody))
	return sb.String()
}

// buildRelationshipPrompt renders the narrower relationship contract.
func buildRelationshipPrompt(req ExtractionRequest) string {
	return fmt.Sprintf(`You are analyzing who requested a task and who should do it.

The inbox owner is %q. The message sender is %q.

Respond with ONLY one JSON object, no prose:
{"assigned_by_email": string, "assigned_to_email": string, "task_type": "self"|"delegation"|"tracking"|"assigned", "user_role": "executor"|"delegator"|"observer"}

- task_type "self": owner forwarded their own todo to themselves.
- task_type "delegation": owner is handing work to someone else.
- task_type "tracking": owner only wants to follow the item.
- task_type "assigned": someone else is asking the owner to do it.
- user_role is the inbox owner's role.

SUBJECT: %s

MESSAGE:
%s

JSON:`, req.Recipient, req.Sender, req.Subject, truncate(req.Body, 2000))
}

// truncate cuts on a rune boundary so multibyte text never ends mid-rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
