package members

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convene-hq/backend/internal/models"
)

// Repository handles per-entity membership roles. This is the local record
// of who holds which room role; the chat network only models presence, so
// role-only changes live here alone.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a members repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns a user's membership in an entity, or nil when they are not a
// member.
func (r *Repository) Get(ctx context.Context, entityID, userID uuid.UUID) (*models.Member, error) {
	const q = `SELECT id, tenant_id, entity_id, user_id, role, created_at, updated_at
		FROM entity_members WHERE entity_id = $1 AND user_id = $2`
	var m models.Member
	err := r.pool.QueryRow(ctx, q, entityID, userID).
		Scan(&m.ID, &m.TenantID, &m.EntityID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert adds a member or updates their role.
func (r *Repository) Upsert(ctx context.Context, tenantID, entityID, userID uuid.UUID, role models.RoomRole) error {
	const q = `INSERT INTO entity_members (id, tenant_id, entity_id, user_id, role)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		ON CONFLICT (entity_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, tenantID, entityID, userID, string(role))
	return err
}

// Delete removes a member from an entity.
func (r *Repository) Delete(ctx context.Context, entityID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM entity_members WHERE entity_id = $1 AND user_id = $2`, entityID, userID)
	return err
}

// MemberListing is a member joined with user details for API responses.
type MemberListing struct {
	UserID   uuid.UUID       `json:"user_id"`
	Email    string          `json:"email"`
	FullName string          `json:"full_name"`
	ChatSlug string          `json:"chat_slug"`
	Role     models.RoomRole `json:"role"`
}

// List returns an entity's members ordered by join time.
func (r *Repository) List(ctx context.Context, entityID uuid.UUID) ([]MemberListing, error) {
	const q = `SELECT em.user_id, u.email, COALESCE(u.full_name, ''), u.chat_slug, em.role
		FROM entity_members em
		INNER JOIN users u ON u.id = em.user_id
		WHERE em.entity_id = $1
		ORDER BY em.created_at ASC`
	rows, err := r.pool.Query(ctx, q, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []MemberListing
	for rows.Next() {
		var m MemberListing
		if err := rows.Scan(&m.UserID, &m.Email, &m.FullName, &m.ChatSlug, &m.Role); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
