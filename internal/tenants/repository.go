package tenants

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convene-hq/backend/internal/models"
)

// Repository handles tenant and tenant_user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tenants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create creates a tenant.
func (r *Repository) Create(ctx context.Context, t *models.Tenant) error {
	const q = `INSERT INTO tenants (id, name, slug)
		VALUES (gen_random_uuid(), $1, $2)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, t.Name, t.Slug).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// GetByID returns a tenant by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	const q = `SELECT id, name, slug, created_at, updated_at FROM tenants WHERE id = $1`
	var t models.Tenant
	err := r.pool.QueryRow(ctx, q, id).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetBySlug returns a tenant by slug, or nil when absent.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	const q = `SELECT id, name, slug, created_at, updated_at FROM tenants WHERE slug = $1`
	var t models.Tenant
	err := r.pool.QueryRow(ctx, q, slug).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AddUser adds a user to a tenant with a workspace role.
func (r *Repository) AddUser(ctx context.Context, tenantID, userID uuid.UUID, role string) error {
	const q = `INSERT INTO tenant_users (id, tenant_id, user_id, role)
		VALUES (gen_random_uuid(), $1, $2, $3)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, tenantID, userID, role)
	return err
}

// GetUserRole returns the user's workspace role in the tenant, or empty if
// not a member.
func (r *Repository) GetUserRole(ctx context.Context, tenantID, userID uuid.UUID) (string, error) {
	const q = `SELECT role FROM tenant_users WHERE tenant_id = $1 AND user_id = $2`
	var role string
	err := r.pool.QueryRow(ctx, q, tenantID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// UserHasAccess returns true if the user belongs to the tenant.
func (r *Repository) UserHasAccess(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	role, err := r.GetUserRole(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

// ListForUser returns tenants the user is a member of.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Tenant, error) {
	const q = `SELECT t.id, t.name, t.slug, t.created_at, t.updated_at
		FROM tenants t
		INNER JOIN tenant_users tu ON tu.tenant_id = t.id
		WHERE tu.user_id = $1
		ORDER BY t.name`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// Member is a tenant member with user details.
type Member struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	AddedAt  time.Time `json:"added_at"`
}

// ListMembers returns members of a tenant.
func (r *Repository) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]Member, error) {
	const q = `SELECT tu.id, tu.user_id, u.email, COALESCE(u.full_name, ''), tu.role, tu.created_at
		FROM tenant_users tu
		INNER JOIN users u ON u.id = tu.user_id
		WHERE tu.tenant_id = $1
		ORDER BY tu.created_at ASC`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.UserID, &m.Email, &m.FullName, &m.Role, &m.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
