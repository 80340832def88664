package repository

import "taskpilot-backend/internal/org/domain"

// OrganizationRepository defines the read surface the pipeline needs from
// the organization store. Organization CRUD itself lives outside the
// pipeline and is not part of this interface.
type OrganizationRepository interface {
	// FindByRoutingKey loads an organization with its members and
	// allow-list preloaded. Returns (nil, nil) when unknown.
	FindByRoutingKey(key string) (*domain.Organization, error)

	// FindMemberByChatID resolves an external chat identity to a member
	// and its organization. Returns (nil, nil, nil) when unmapped.
	FindMemberByChatID(chatUserID string) (*domain.Member, *domain.Organization, error)
}
