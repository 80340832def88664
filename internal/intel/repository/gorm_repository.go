package repository

import (
	"time"

	"taskpilot-backend/internal/intel/domain"

	"gorm.io/gorm"
)

// gormIntelRepository implements IntelRepository using GORM
type gormIntelRepository struct {
	db *gorm.DB
}

// NewGormIntelRepository creates a new GORM-based IntelRepository
func NewGormIntelRepository(db *gorm.DB) IntelRepository {
	return &gormIntelRepository{db: db}
}

func (r *gormIntelRepository) Find(organizationKey, senderEmail string) (*domain.SenderIntelligence, error) {
	var intel domain.SenderIntelligence
	err := r.db.Where("organization_key = ? AND sender_email = ?", organizationKey, senderEmail).
		First(&intel).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &intel, nil
}

func (r *gormIntelRepository) RecordMessage(organizationKey, senderEmail string, tasksCreated int, seenAt time.Time) error {
	// Read-modify-write inside a transaction; contention on a single
	// sender row is rare enough that a lock-free upsert is not worth it.
	return r.db.Transaction(func(tx *gorm.DB) error {
		var intel domain.SenderIntelligence
		err := tx.Where("organization_key = ? AND sender_email = ?", organizationKey, senderEmail).
			First(&intel).Error
		if err != nil {
			if err != gorm.ErrRecordNotFound {
				return err
			}
			intel = domain.SenderIntelligence{
				OrganizationKey: organizationKey,
				SenderEmail:     senderEmail,
				CreatedAt:       time.Now(),
			}
		}

		intel.RecordMessage(tasksCreated, seenAt)
		intel.UpdatedAt = time.Now()
		return tx.Save(&intel).Error
	})
}
