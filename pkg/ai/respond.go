package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse marks provider output that did not contain the
// structured payload the prompt asked for. Callers treat it exactly like
// a transport failure: fall back, never surface.
var ErrMalformedResponse = errors.New("malformed extraction response")

// extractJSON pulls the first balanced JSON array or object out of a
// model response. Providers wrap their JSON in prose or markdown fences
// often enough that parsing the raw response directly is hopeless.
func extractJSON(text string) (string, error) {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '[' || text[i] == '{' {
			start = i
			open = text[i]
			if open == '[' {
				close = ']'
			} else {
				close = '}'
			}
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON found", ErrMalformedResponse)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced JSON", ErrMalformedResponse)
}

// rawCandidate is the wire shape providers are prompted to emit. Dates
// come back as loose strings and are normalized separately.
type rawCandidate struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Priority       string   `json:"priority"`
	PriorityScore  *int     `json:"priority_score"`
	DueDate        string   `json:"due_date"`
	EffortEstimate string   `json:"effort_estimate"`
	Tags           []string `json:"tags"`
}

// decodeCandidates accepts either a single JSON object or an array of
// objects and validates the result into well-formed candidates.
func decodeCandidates(payload string) ([]TaskCandidate, error) {
	extracted, err := extractJSON(payload)
	if err != nil {
		return nil, err
	}

	var raws []rawCandidate
	trimmed := strings.TrimSpace(extracted)
	if strings.HasPrefix(trimmed, "{") {
		var one rawCandidate
		if err := json.Unmarshal([]byte(trimmed), &one); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		raws = []rawCandidate{one}
	} else {
		if err := json.Unmarshal([]byte(trimmed), &raws); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	candidates := make([]TaskCandidate, 0, len(raws))
	for _, raw := range raws {
		if strings.TrimSpace(raw.Title) == "" {
			continue
		}
		c := TaskCandidate{
			Title:          strings.TrimSpace(raw.Title),
			Description:    strings.TrimSpace(raw.Description),
			Priority:       normalizePriority(raw.Priority),
			EffortEstimate: raw.EffortEstimate,
			Tags:           raw.Tags,
		}
		if raw.PriorityScore != nil {
			c.PriorityScore = clampScore(*raw.PriorityScore)
		} else {
			c.PriorityScore = defaultScore(c.Priority)
		}
		if due, ok := parseDueDate(raw.DueDate); ok {
			c.DueDate = &due
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no usable candidates", ErrMalformedResponse)
	}
	return candidates, nil
}

// decodeRelationship validates the narrow relationship payload.
func decodeRelationship(payload string) (*Relationship, error) {
	extracted, err := extractJSON(payload)
	if err != nil {
		return nil, err
	}

	var rel Relationship
	if err := json.Unmarshal([]byte(extracted), &rel); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch rel.TaskType {
	case "self", "delegation", "tracking", "assigned":
	default:
		return nil, fmt.Errorf("%w: unknown task_type %q", ErrMalformedResponse, rel.TaskType)
	}
	switch rel.UserRole {
	case "executor", "delegator", "observer":
	default:
		return nil, fmt.Errorf("%w: unknown user_role %q", ErrMalformedResponse, rel.UserRole)
	}
	return &rel, nil
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high", "critical", "urgent":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func defaultScore(priority string) int {
	switch priority {
	case "high":
		return 75
	case "low":
		return 25
	default:
		return 50
	}
}
