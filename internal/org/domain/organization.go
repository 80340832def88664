package domain

import (
	"strings"
	"time"
)

// Organization owns a routing key (the per-org ingest address prefix), an
// allow-list of external senders and a monthly task quota.
type Organization struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"not null"`
	RoutingKey   string    `json:"routing_key" gorm:"uniqueIndex;not null"`
	MonthlyQuota int       `json:"monthly_quota" gorm:"default:0"` // 0 = unlimited
	TasksCreated int       `json:"tasks_created" gorm:"default:0"` // usage counter for the current month
	QuotaResetAt time.Time `json:"quota_reset_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Members        []Member        `json:"members,omitempty" gorm:"foreignKey:OrganizationID"`
	AllowedSenders []AllowedSender `json:"allowed_senders,omitempty" gorm:"foreignKey:OrganizationID"`
}

// Member is an organization member reachable by email and, optionally,
// mapped to an external chat identity.
type Member struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	OrganizationID string    `json:"organization_id" gorm:"index;not null"`
	Email          string    `json:"email" gorm:"index;not null"`
	Name           string    `json:"name"`
	ChatUserID     string    `json:"chat_user_id,omitempty" gorm:"index"` // external chat-platform user id
	CreatedAt      time.Time `json:"created_at"`
}

// AllowedSender is an allow-list entry: an external address permitted to
// create tasks for the organization without being a member.
type AllowedSender struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	OrganizationID string    `json:"organization_id" gorm:"index;not null"`
	Email          string    `json:"email" gorm:"index;not null"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasMember reports whether the address belongs to an organization member.
func (o *Organization) HasMember(email string) bool {
	return o.FindMember(email) != nil
}

// FindMember returns the member with the given email, or nil.
func (o *Organization) FindMember(email string) *Member {
	needle := normalizeEmail(email)
	for i := range o.Members {
		if normalizeEmail(o.Members[i].Email) == needle {
			return &o.Members[i]
		}
	}
	return nil
}

// IsAllowListed reports whether the address is on the org allow-list.
func (o *Organization) IsAllowListed(email string) bool {
	needle := normalizeEmail(email)
	for i := range o.AllowedSenders {
		if normalizeEmail(o.AllowedSenders[i].Email) == needle {
			return true
		}
	}
	return false
}

// QuotaExhausted reports whether the monthly quota leaves no room for
// another n tasks. A zero quota means unlimited.
func (o *Organization) QuotaExhausted(n int) bool {
	if o.MonthlyQuota <= 0 {
		return false
	}
	return o.TasksCreated+n > o.MonthlyQuota
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
