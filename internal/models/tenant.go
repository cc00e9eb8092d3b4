package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents one customer workspace. Every entity, member, and chat
// room is scoped to exactly one tenant.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantUserRole is the role of a user within a tenant (workspace access,
// not room membership).
const (
	TenantRoleOwner   = "owner"
	TenantRoleManager = "manager"
	TenantRoleMember  = "member"
)

// TenantUser links a user to a tenant with a workspace role.
type TenantUser struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
