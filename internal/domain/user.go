package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserStatus lifecycle status of a user account.
type UserStatus string

const (
	UserStatusPending    UserStatus = "pending"
	UserStatusActive     UserStatus = "active"
	UserStatusAnonymized UserStatus = "anonymized"
)

// User represents a platform user. Payment-provider and messaging-platform
// identities are kept here so subscription side effects can be routed
// without extra lookups.
type User struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	PreferredLanguage string     `json:"preferred_language"`
	Status            UserStatus `json:"status"`
	StripeCustomerID  string     `json:"stripe_customer_id,omitempty"`
	TelegramUserID    int64      `json:"telegram_user_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
