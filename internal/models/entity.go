package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityType distinguishes the two kinds of chat-room-backed entities.
type EntityType string

const (
	EntityTypeEvent EntityType = "event"
	EntityTypeGroup EntityType = "group"
)

// ParseEntityType validates a string as an EntityType.
func ParseEntityType(s string) (EntityType, bool) {
	switch EntityType(s) {
	case EntityTypeEvent, EntityTypeGroup:
		return EntityType(s), true
	}
	return "", false
}

// Entity is an event or group owned by a tenant. Its slug is unique per
// (tenant, type) and is part of the entity's chat-room alias, so renaming
// the slug repoints the alias.
type Entity struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Type        EntityType `json:"type"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartsAt    *time.Time `json:"starts_at,omitempty"` // events only
	CreatedBy   uuid.UUID  `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
