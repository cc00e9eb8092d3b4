package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convene-hq/backend/internal/models"
)

// RecordStore is the persisted (tenant, entity type, entity slug) → room
// mapping. Absence is a cache miss, not an error.
type RecordStore interface {
	Get(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, entitySlug string) (*models.RoomRecord, error)
	Save(ctx context.Context, rec *models.RoomRecord) error
	Rename(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, oldSlug, newSlug, canonicalAlias string) error
	Delete(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, entitySlug string) error
}

// Store is the pgx-backed RecordStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a room record store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the record for an entity, or nil on cache miss.
func (s *Store) Get(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, entitySlug string) (*models.RoomRecord, error) {
	const q = `SELECT id, tenant_id, entity_type, entity_slug, room_id, canonical_alias, created_at, last_verified_at
		FROM room_records WHERE tenant_id = $1 AND entity_type = $2 AND entity_slug = $3`
	var rec models.RoomRecord
	err := s.pool.QueryRow(ctx, q, tenantID, string(entityType), entitySlug).
		Scan(&rec.ID, &rec.TenantID, &rec.EntityType, &rec.EntitySlug, &rec.RoomID, &rec.CanonicalAlias, &rec.CreatedAt, &rec.LastVerifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save upserts the record for its (tenant, type, slug) key. The unique
// constraint keeps concurrent writers at at-most-one row; last writer wins
// on room ID, which is safe because all writers adopt the network's answer.
func (s *Store) Save(ctx context.Context, rec *models.RoomRecord) error {
	const q = `INSERT INTO room_records (id, tenant_id, entity_type, entity_slug, room_id, canonical_alias, last_verified_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, entity_type, entity_slug)
		DO UPDATE SET room_id = EXCLUDED.room_id, canonical_alias = EXCLUDED.canonical_alias, last_verified_at = EXCLUDED.last_verified_at
		RETURNING id, created_at`
	if rec.LastVerifiedAt.IsZero() {
		rec.LastVerifiedAt = time.Now().UTC()
	}
	return s.pool.QueryRow(ctx, q, rec.TenantID, string(rec.EntityType), rec.EntitySlug, rec.RoomID, rec.CanonicalAlias, rec.LastVerifiedAt).
		Scan(&rec.ID, &rec.CreatedAt)
}

// Rename updates the record in place when an entity's slug changes: same
// logical room, new display identity.
func (s *Store) Rename(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, oldSlug, newSlug, canonicalAlias string) error {
	const q = `UPDATE room_records SET entity_slug = $4, canonical_alias = $5, last_verified_at = NOW()
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_slug = $3`
	_, err := s.pool.Exec(ctx, q, tenantID, string(entityType), oldSlug, newSlug, canonicalAlias)
	return err
}

// Delete removes the record when its entity is deleted.
func (s *Store) Delete(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, entitySlug string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM room_records WHERE tenant_id = $1 AND entity_type = $2 AND entity_slug = $3`,
		tenantID, string(entityType), entitySlug)
	return err
}
