package repository

import (
	"taskpilot-backend/internal/org/domain"

	"gorm.io/gorm"
)

// gormOrganizationRepository implements OrganizationRepository using GORM
type gormOrganizationRepository struct {
	db *gorm.DB
}

// NewGormOrganizationRepository creates a new GORM-based OrganizationRepository
func NewGormOrganizationRepository(db *gorm.DB) OrganizationRepository {
	return &gormOrganizationRepository{db: db}
}

func (r *gormOrganizationRepository) FindByRoutingKey(key string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.Preload("Members").Preload("AllowedSenders").
		Where("routing_key = ?", key).First(&org).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *gormOrganizationRepository) FindMemberByChatID(chatUserID string) (*domain.Member, *domain.Organization, error) {
	var member domain.Member
	err := r.db.Where("chat_user_id = ?", chatUserID).First(&member).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var org domain.Organization
	err = r.db.Preload("Members").Preload("AllowedSenders").
		Where("id = ?", member.OrganizationID).First(&org).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &member, nil, nil
		}
		return nil, nil, err
	}
	return &member, &org, nil
}
