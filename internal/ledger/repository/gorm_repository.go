package repository

import (
	"time"

	"taskpilot-backend/internal/ledger/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormLedgerRepository implements LedgerRepository using GORM
type gormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GORM-based LedgerRepository
func NewGormLedgerRepository(db *gorm.DB) LedgerRepository {
	return &gormLedgerRepository{db: db}
}

func (r *gormLedgerRepository) TryBegin(messageID, organizationKey, channel string) (bool, error) {
	record := domain.ProcessingRecord{
		ID:              uuid.New().String(),
		MessageID:       messageID,
		OrganizationKey: organizationKey,
		Channel:         channel,
		Status:          domain.StatusProcessing,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	// Insert-if-absent: a conflict on message_id means another delivery of
	// the same message already claimed it.
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoNothing: true,
	}).Create(&record)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	// The existing record may be a prior attempt that ended in error.
	// Reclaiming it lets the gateway retry the message instead of having
	// it collapsed as a duplicate forever. The conditional update keeps
	// the takeover atomic under concurrent retries.
	reclaim := r.db.Model(&domain.ProcessingRecord{}).
		Where("message_id = ? AND status = ?", messageID, domain.StatusError).
		Updates(map[string]interface{}{
			"status":     domain.StatusProcessing,
			"updated_at": time.Now(),
		})
	if reclaim.Error != nil {
		return false, reclaim.Error
	}
	return reclaim.RowsAffected == 1, nil
}

func (r *gormLedgerRepository) Finish(messageID string, status domain.RecordStatus, result domain.Result) error {
	// Struct-based Updates so the JSON serializer applies to Result.
	return r.db.Model(&domain.ProcessingRecord{}).
		Where("message_id = ?", messageID).
		Select("Status", "Result", "UpdatedAt").
		Updates(domain.ProcessingRecord{
			Status:    status,
			Result:    result,
			UpdatedAt: time.Now(),
		}).Error
}

func (r *gormLedgerRepository) FindByMessageID(messageID string) (*domain.ProcessingRecord, error) {
	var record domain.ProcessingRecord
	err := r.db.Where("message_id = ?", messageID).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
