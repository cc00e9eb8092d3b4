package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomRecord maps an entity to its chat-network room. At most one record
// exists per (tenant, entity type, entity slug).
//
// The record is a cache: the chat network, not this row, is authoritative
// for whether the room still exists, so lifecycle code revalidates against
// the network before trusting RoomID.
type RoomRecord struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	EntityType     EntityType `json:"entity_type"`
	EntitySlug     string     `json:"entity_slug"`
	RoomID         string     `json:"room_id"`         // opaque, assigned by the chat network
	CanonicalAlias string     `json:"canonical_alias"` // derived, human-readable
	CreatedAt      time.Time  `json:"created_at"`
	LastVerifiedAt time.Time  `json:"last_verified_at"`
}
