package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomRole is a participant's role within one entity's chat room. The five
// values form a hierarchy (owner highest), but who may change whose role is
// governed by an explicit rule table, not by level comparison alone.
type RoomRole string

const (
	RoomRoleOwner     RoomRole = "owner"
	RoomRoleAdmin     RoomRole = "admin"
	RoomRoleModerator RoomRole = "moderator"
	RoomRoleMember    RoomRole = "member"
	RoomRoleGuest     RoomRole = "guest"
)

// roomRoleLevels orders the five roles for comparisons that genuinely are
// hierarchical (e.g. detecting a promotion).
var roomRoleLevels = map[RoomRole]int{
	RoomRoleGuest:     0,
	RoomRoleMember:    1,
	RoomRoleModerator: 2,
	RoomRoleAdmin:     3,
	RoomRoleOwner:     4,
}

// Valid reports whether r is one of the five recognized roles.
func (r RoomRole) Valid() bool {
	_, ok := roomRoleLevels[r]
	return ok
}

// Level returns the role's position in the hierarchy, guest lowest. Unknown
// roles sort below guest.
func (r RoomRole) Level() int {
	if level, ok := roomRoleLevels[r]; ok {
		return level
	}
	return -1
}

// Member is a user's membership in one entity, carrying their room role.
type Member struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	EntityID  uuid.UUID `json:"entity_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      RoomRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
