package entities

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convene-hq/backend/internal/models"
)

// Repository handles event and group persistence. Both kinds share one
// table distinguished by entity_type, mirroring how their chat rooms are
// addressed.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an entities repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts an entity.
func (r *Repository) Create(ctx context.Context, e *models.Entity) error {
	const q = `INSERT INTO entities (id, tenant_id, entity_type, slug, title, description, starts_at, created_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, e.TenantID, string(e.Type), e.Slug, e.Title, e.Description, e.StartsAt, e.CreatedBy).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// GetBySlug returns an entity by its (tenant, type, slug) identity, or nil
// when absent.
func (r *Repository) GetBySlug(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, slug string) (*models.Entity, error) {
	const q = `SELECT id, tenant_id, entity_type, slug, title, description, starts_at, created_by, created_at, updated_at
		FROM entities WHERE tenant_id = $1 AND entity_type = $2 AND slug = $3`
	var e models.Entity
	err := r.pool.QueryRow(ctx, q, tenantID, string(entityType), slug).
		Scan(&e.ID, &e.TenantID, &e.Type, &e.Slug, &e.Title, &e.Description, &e.StartsAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Exists reports whether the entity currently exists. Satisfies the chat
// core's entity-existence check.
func (r *Repository) Exists(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, slug string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM entities WHERE tenant_id = $1 AND entity_type = $2 AND slug = $3)`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, tenantID, string(entityType), slug).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// RenameSlug changes an entity's slug. Returns false when no entity matched
// the old slug.
func (r *Repository) RenameSlug(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, oldSlug, newSlug string) (bool, error) {
	const q = `UPDATE entities SET slug = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND entity_type = $2 AND slug = $3`
	tag, err := r.pool.Exec(ctx, q, tenantID, string(entityType), oldSlug, newSlug)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// List returns a tenant's entities of one type, newest first.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType) ([]models.Entity, error) {
	const q = `SELECT id, tenant_id, entity_type, slug, title, description, starts_at, created_by, created_at, updated_at
		FROM entities WHERE tenant_id = $1 AND entity_type = $2 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, tenantID, string(entityType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Entity
	for rows.Next() {
		var e models.Entity
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Type, &e.Slug, &e.Title, &e.Description, &e.StartsAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Delete removes an entity. Returns false when nothing matched.
func (r *Repository) Delete(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, slug string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM entities WHERE tenant_id = $1 AND entity_type = $2 AND slug = $3`,
		tenantID, string(entityType), slug)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Touch bumps updated_at, used when room state changes on the entity's
// behalf.
func (r *Repository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE entities SET updated_at = $2 WHERE id = $1`, id, at)
	return err
}
