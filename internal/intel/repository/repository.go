package repository

import (
	"time"

	"taskpilot-backend/internal/intel/domain"
)

// IntelRepository stores per (organization, sender) aggregates.
type IntelRepository interface {
	// Find returns the aggregate for a sender, or (nil, nil) when the
	// sender has never been seen.
	Find(organizationKey, senderEmail string) (*domain.SenderIntelligence, error)

	// RecordMessage upserts the aggregate for one processed message.
	RecordMessage(organizationKey, senderEmail string, tasksCreated int, seenAt time.Time) error
}
