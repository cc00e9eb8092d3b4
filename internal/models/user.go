package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformRole is a user's role on the platform itself, distinct from the
// per-room roles in RoomRole.
type PlatformRole string

const (
	PlatformRoleAdmin PlatformRole = "admin"
	PlatformRoleStaff PlatformRole = "staff"
	PlatformRoleUser  PlatformRole = "user"
)

// User represents a platform user.
type User struct {
	ID        uuid.UUID    `json:"id"`
	Email     string       `json:"email"`
	Password  string       `json:"-"`
	FullName  string       `json:"full_name"`
	ChatSlug  string       `json:"chat_slug"` // localpart stem of the user's chat-network identity
	Role      PlatformRole `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID        uuid.UUID    `json:"id"`
	Email     string       `json:"email"`
	FullName  string       `json:"full_name"`
	ChatSlug  string       `json:"chat_slug"`
	Role      PlatformRole `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		ChatSlug:  u.ChatSlug,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
