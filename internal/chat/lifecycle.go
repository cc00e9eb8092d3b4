package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/convene-hq/backend/internal/models"
	"github.com/convene-hq/backend/pkg/matrix"
)

// NetworkClient is the chat-network surface the core depends on,
// implemented by *matrix.Client.
type NetworkClient interface {
	ResolveAlias(ctx context.Context, alias string) (string, error)
	CreateRoom(ctx context.Context, req matrix.CreateRoomRequest) (string, error)
	CreateRoomAlias(ctx context.Context, alias, roomID string) error
	SetCanonicalAlias(ctx context.Context, roomID, alias string, altAliases []string) error
	Invite(ctx context.Context, roomID, userID string) error
	Kick(ctx context.Context, roomID, userID, reason string) error
	PowerLevels(ctx context.Context, roomID string) (*matrix.PowerLevels, error)
	SetPowerLevels(ctx context.Context, roomID string, levels *matrix.PowerLevels) error
}

// EntityChecker answers whether an entity currently exists, from the
// events/groups subsystem.
type EntityChecker interface {
	Exists(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, entitySlug string) (bool, error)
}

// EnsureResult is the outcome of Ensure.
type EnsureResult struct {
	RoomID    string `json:"room_id"`
	Alias     string `json:"alias"`
	Recreated bool   `json:"recreated"`
}

// LifecycleManager makes "a room exists for this entity and its ID is
// known" true, idempotently, for the first caller and the hundredth
// concurrent one alike.
//
// No lock is held across callers: the chat network is re-queried on every
// call and its own idempotency (alias-in-use on duplicate create) is what
// makes concurrent Ensure calls converge on a single room.
type LifecycleManager struct {
	identity   *Identity
	records    RecordStore
	entities   EntityChecker
	network    NetworkClient
	botUserID  string
	adminLevel int // power level new rooms grant the bot
	logger     *zap.Logger
}

// NewLifecycleManager wires the lifecycle manager.
func NewLifecycleManager(identity *Identity, records RecordStore, entities EntityChecker, network NetworkClient, botUserID string, adminLevel int, logger *zap.Logger) *LifecycleManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if adminLevel <= 0 {
		adminLevel = 100
	}
	return &LifecycleManager{
		identity:   identity,
		records:    records,
		entities:   entities,
		network:    network,
		botUserID:  botUserID,
		adminLevel: adminLevel,
		logger:     logger,
	}
}

// Ensure resolves or creates the room for an entity.
//
// The local record is only a cache; the network may have lost the room
// independently of us, so existence is always re-checked against the
// network. Recreated is true iff this call issued the createRoom that
// produced the room.
func (m *LifecycleManager) Ensure(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, entitySlug string) (*EnsureResult, error) {
	const op = "ensure"
	alias := m.identity.BuildAlias(tenantID, entityType, entitySlug)

	rec, err := m.records.Get(ctx, tenantID, entityType, entitySlug)
	if err != nil {
		return nil, transient(op, err, "load room record for %s", alias)
	}

	roomID, err := m.network.ResolveAlias(ctx, alias)
	switch {
	case err == nil:
		// Authoritative hit: adopt whatever the network says, even if it
		// disagrees with the cached record.
		if err := m.adopt(ctx, rec, tenantID, entityType, entitySlug, roomID, alias); err != nil {
			return nil, err
		}
		return &EnsureResult{RoomID: roomID, Alias: alias, Recreated: false}, nil

	case matrix.IsNotFound(err):
		return m.create(ctx, tenantID, entityType, entitySlug, alias)

	default:
		return nil, classify(op, err)
	}
}

func (m *LifecycleManager) create(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, entitySlug, alias string) (*EnsureResult, error) {
	const op = "ensure"

	// Never create rooms for deleted or never-existed entities. This is
	// also what stops a forged tenant suffix inside a slug: the combined
	// identity never matches a real entity row.
	exists, err := m.entities.Exists(ctx, tenantID, entityType, entitySlug)
	if err != nil {
		return nil, transient(op, err, "check entity %s/%s", entityType, entitySlug)
	}
	if !exists {
		return nil, notFoundf(op, "%s %q does not exist in tenant %s", entityType, entitySlug, tenantID)
	}

	req := matrix.CreateRoomRequest{
		Name:          entitySlug,
		RoomAliasName: m.identity.AliasLocalpart(tenantID, entityType, entitySlug),
		Preset:        "private_chat",
		PowerLevelContentOverride: &matrix.PowerLevels{
			Users: map[string]int{m.botUserID: m.adminLevel},
		},
	}

	recreated := true
	roomID, err := m.network.CreateRoom(ctx, req)
	if matrix.IsRoomInUse(err) {
		// Lost a creation race: someone else made the room between our
		// resolve and create. Adopt theirs.
		recreated = false
		roomID, err = m.network.ResolveAlias(ctx, alias)
	}
	if err != nil {
		return nil, classify(op, err)
	}

	if err := m.adopt(ctx, nil, tenantID, entityType, entitySlug, roomID, alias); err != nil {
		return nil, err
	}
	m.logger.Info("chat room ensured",
		zap.String("alias", alias),
		zap.String("room_id", roomID),
		zap.Bool("recreated", recreated),
	)
	return &EnsureResult{RoomID: roomID, Alias: alias, Recreated: recreated}, nil
}

// adopt persists the network's answer for this entity, refreshing an
// existing record or creating one.
func (m *LifecycleManager) adopt(ctx context.Context, rec *models.RoomRecord, tenantID uuid.UUID, entityType models.EntityType, entitySlug, roomID, alias string) error {
	if rec == nil {
		rec = &models.RoomRecord{
			TenantID:   tenantID,
			EntityType: entityType,
			EntitySlug: entitySlug,
		}
	}
	rec.RoomID = roomID
	rec.CanonicalAlias = alias
	rec.LastVerifiedAt = time.Now().UTC()
	if err := m.records.Save(ctx, rec); err != nil {
		return transient("ensure", err, "persist room record for %s", alias)
	}
	return nil
}

// RepointAlias handles an entity slug change: same logical room, new
// canonical alias, old alias retained as a non-canonical alt-alias so
// in-flight references keep resolving.
func (m *LifecycleManager) RepointAlias(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, oldSlug, newSlug string) (*EnsureResult, error) {
	const op = "repoint-alias"
	oldAlias := m.identity.BuildAlias(tenantID, entityType, oldSlug)
	newAlias := m.identity.BuildAlias(tenantID, entityType, newSlug)

	// Find the room, network first, record as fallback for rooms whose
	// old alias was already dropped externally.
	roomID, err := m.network.ResolveAlias(ctx, oldAlias)
	if err != nil {
		if !matrix.IsNotFound(err) {
			return nil, classify(op, err)
		}
		rec, recErr := m.records.Get(ctx, tenantID, entityType, oldSlug)
		if recErr != nil {
			return nil, transient(op, recErr, "load room record for %s", oldAlias)
		}
		if rec == nil {
			return nil, notFoundf(op, "no room found for %s %q", entityType, oldSlug)
		}
		roomID = rec.RoomID
	}

	if err := m.network.CreateRoomAlias(ctx, newAlias, roomID); err != nil && !matrix.IsRoomInUse(err) {
		return nil, classify(op, err)
	}
	if err := m.network.SetCanonicalAlias(ctx, roomID, newAlias, []string{oldAlias}); err != nil {
		return nil, classify(op, err)
	}
	if err := m.records.Rename(ctx, tenantID, entityType, oldSlug, newSlug, newAlias); err != nil {
		return nil, transient(op, err, "rename room record %s -> %s", oldSlug, newSlug)
	}
	m.logger.Info("room alias repointed",
		zap.String("room_id", roomID),
		zap.String("old_alias", oldAlias),
		zap.String("new_alias", newAlias),
	)
	return &EnsureResult{RoomID: roomID, Alias: newAlias, Recreated: false}, nil
}

// Forget drops the room record when its entity is deleted. The room itself
// is left to the chat network; the mapping is what this system owns.
func (m *LifecycleManager) Forget(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, entitySlug string) error {
	if err := m.records.Delete(ctx, tenantID, entityType, entitySlug); err != nil {
		return transient("forget", err, "delete room record for %s/%s", entityType, entitySlug)
	}
	return nil
}
