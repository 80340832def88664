package repository

import "taskpilot-backend/internal/ledger/domain"

// LedgerRepository is the idempotency ledger contract. TryBegin must be
// safe under concurrent delivery of the same message identifier: exactly
// one caller gets accepted=true, every other caller gets accepted=false.
type LedgerRepository interface {
	// TryBegin atomically claims a message identifier. A unique-constraint
	// conflict means some caller already claimed it and is reported as
	// accepted=false, never as an error. A record left in error status by
	// a failed prior attempt is reclaimed, so retrying the same message
	// after a persistence failure is accepted again.
	TryBegin(messageID, organizationKey, channel string) (accepted bool, err error)

	// Finish records the terminal status and result metadata for a claim.
	Finish(messageID string, status domain.RecordStatus, result domain.Result) error

	// FindByMessageID returns the record for a message id, or (nil, nil).
	FindByMessageID(messageID string) (*domain.ProcessingRecord, error)
}
