package domain

import "time"

// SenderIntelligence is a per (organization, sender) aggregate built up as
// messages flow through the pipeline. It is a signal for extraction and
// urgency classification, never authoritative for any decision.
type SenderIntelligence struct {
	ID                 uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	OrganizationKey    string    `json:"organization_key" gorm:"uniqueIndex:ux_intel_org_sender;not null"`
	SenderEmail        string    `json:"sender_email" gorm:"uniqueIndex:ux_intel_org_sender;not null"`
	MessagesSeen       int       `json:"messages_seen"`
	TasksCreated       int       `json:"tasks_created"`
	AvgResponseSeconds float64   `json:"avg_response_seconds"`
	CompletionRate     float64   `json:"completion_rate"`
	LastSeenAt         time.Time `json:"last_seen_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RecordMessage folds one processed message into the aggregate. The
// rolling response-time average only moves when a positive gap is known.
func (s *SenderIntelligence) RecordMessage(tasksCreated int, seenAt time.Time) {
	if !s.LastSeenAt.IsZero() && seenAt.After(s.LastSeenAt) {
		gap := seenAt.Sub(s.LastSeenAt).Seconds()
		if s.AvgResponseSeconds == 0 {
			s.AvgResponseSeconds = gap
		} else {
			// Exponential moving average, biased toward history.
			s.AvgResponseSeconds = s.AvgResponseSeconds*0.8 + gap*0.2
		}
	}
	s.MessagesSeen++
	s.TasksCreated += tasksCreated
	s.LastSeenAt = seenAt
	if s.MessagesSeen > 0 {
		s.CompletionRate = float64(s.TasksCreated) / float64(s.MessagesSeen)
	}
}
