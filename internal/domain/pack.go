package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pack is a purchasable subscription tier. Free packs are never purchased;
// their categories are granted to every user. Price and currency are
// immutable once a subscription references the pack.
type Pack struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	PriceMonthly float64   `json:"price_monthly"`
	Currency     string    `json:"currency"`
	IsFree       bool      `json:"is_free"`
	DisplayOrder int       `json:"display_order"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Category is a bucket of content items with its own notification and
// display settings.
type Category struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	StandardBet           float64   `json:"standard_bet"`
	TelegramNotifications bool      `json:"telegram_notifications"`
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// PackHierarchyEdge is a directed inclusion edge: a subscriber to PackID
// automatically gains everything reachable from IncludesPackID. The edge set
// must stay acyclic; insertion rejects any edge that would close a cycle.
type PackHierarchyEdge struct {
	PackID         uuid.UUID `json:"pack_id"`
	IncludesPackID uuid.UUID `json:"includes_pack_id"`
}

// PackCategory links a pack to one of its categories.
type PackCategory struct {
	PackID     uuid.UUID `json:"pack_id"`
	CategoryID uuid.UUID `json:"category_id"`
}
