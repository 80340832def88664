package domain

import "time"

// RecordStatus is the processing state of a ledger entry.
type RecordStatus string

const (
	StatusProcessing RecordStatus = "processing"
	StatusDone       RecordStatus = "done"
	StatusError      RecordStatus = "error"
)

// Result is the outcome metadata stored when a record is finished.
type Result struct {
	TaskTitles []string `json:"task_titles,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// ProcessingRecord is one entry of the idempotency ledger: the durable
// proof that a channel message identifier has been handled. The unique
// index on MessageID is what makes concurrent duplicate delivery safe.
type ProcessingRecord struct {
	ID              string       `json:"id" gorm:"primaryKey"`
	MessageID       string       `json:"message_id" gorm:"uniqueIndex;not null"`
	OrganizationKey string       `json:"organization_key" gorm:"index"`
	Channel         string       `json:"channel"`
	Status          RecordStatus `json:"status" gorm:"default:processing"`
	Result          Result       `json:"result" gorm:"serializer:json"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
