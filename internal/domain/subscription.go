package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus status of a subscription. CANCELLED and EXPIRED are
// terminal; a renewal is always a new row.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// UpgradeOrigin records where an upgraded subscription came from. Refund
// handling walks this chain one step at a time.
type UpgradeOrigin struct {
	PreviousPackID         uuid.UUID `json:"previous_pack_id"`
	PreviousSubscriptionID uuid.UUID `json:"previous_subscription_id"`
}

// Subscription is the core mutable entity of the platform. Only paid packs
// produce subscription rows; free-pack access is derived from Pack.IsFree.
type Subscription struct {
	ID                   uuid.UUID          `json:"id"`
	UserID               uuid.UUID          `json:"user_id"`
	PackID               uuid.UUID          `json:"pack_id"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodStart   time.Time          `json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
	CancelledAt          *time.Time         `json:"cancelled_at,omitempty"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	StripeSubscriptionID string             `json:"stripe_subscription_id,omitempty"`
	Upgrade              *UpgradeOrigin     `json:"upgrade,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// IsLiveAt reports whether the subscription grants access at the given
// instant. The period-end check is deliberately independent of the expiry
// sweep so a missed cron tick never leaks paid content.
func (s Subscription) IsLiveAt(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.CurrentPeriodEnd.After(now)
}

// IsUpgrade reports whether this subscription superseded a cheaper one.
func (s Subscription) IsUpgrade() bool {
	return s.Upgrade != nil
}

// AddCalendarMonth returns t plus one calendar month with month-end
// clamping: Jan 31 maps to Feb 28 (Feb 29 in leap years), never to Mar 2/3.
func AddCalendarMonth(t time.Time) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := daysIn(first.Year(), first.Month())
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
