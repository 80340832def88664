package ai

import (
	"context"
	"strings"
	"time"
	"unicode"

	"taskpilot-backend/internal/dateparse"
)

// HeuristicExtractor is the deterministic extractor of last resort. It
// never returns an error and always yields at least one candidate, so a
// dead LLM provider degrades the pipeline instead of stopping it.
type HeuristicExtractor struct {
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewHeuristicExtractor creates the deterministic extractor
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{Now: time.Now}
}

const (
	maxHeuristicTitle = 80
	maxHeuristicDesc  = 500
)

var urgentSubjectWords = []string{
	"urgent", "asap", "immediately", "critical", "emergency", "khẩn cấp",
}

// ExtractTasks implements ExtractorService. The error return is always nil.
func (h *HeuristicExtractor) ExtractTasks(_ context.Context, req ExtractionRequest) ([]TaskCandidate, error) {
	title := strings.TrimSpace(stripReplyPrefixes(req.Subject))
	if title == "" {
		title = firstLine(req.Body)
	}
	if title == "" {
		title = "Review message from " + req.Sender
	}
	title = truncate(title, maxHeuristicTitle-3)

	priority := PriorityMedium
	score := 50
	lower := strings.ToLower(req.Subject + " " + req.Body)
	for _, w := range urgentSubjectWords {
		if strings.Contains(lower, w) {
			priority = PriorityHigh
			score = 75
			break
		}
	}

	cand := TaskCandidate{
		Title:          title,
		Description:    truncate(strings.TrimSpace(req.Body), maxHeuristicDesc),
		Priority:       priority,
		PriorityScore:  score,
		EffortEstimate: "hours",
		Tags:           []string{"auto-extracted"},
	}

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	if due, _, ok := dateparse.Resolve(req.Body, now); ok {
		cand.DueDate = &due
	}

	return []TaskCandidate{cand}, nil
}

// ResolveRelationship implements ExtractorService with the fail-safe
// default: the sender asked, the inbox owner executes.
func (h *HeuristicExtractor) ResolveRelationship(_ context.Context, req ExtractionRequest) (*Relationship, error) {
	rel := &Relationship{
		AssignedByEmail: req.Sender,
		AssignedToEmail: req.Recipient,
		TaskType:        TaskTypeSelf,
		UserRole:        RoleExecutor,
	}
	if !strings.EqualFold(req.Sender, req.Recipient) {
		rel.TaskType = TaskTypeAssigned
	}
	return rel, nil
}

func stripReplyPrefixes(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		lower := strings.ToLower(s)
		stripped := false
		for _, p := range []string{"re:", "fwd:", "fw:", "aw:", "sv:", "tr:", "wg:", "forward:"} {
			if strings.HasPrefix(lower, p) {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}

func firstLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimFunc(line, func(r rune) bool {
			return unicode.IsSpace(r) || r == '>' || r == '-' || r == '*'
		})
		if line != "" {
			return line
		}
	}
	return ""
}
