package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/convene-hq/backend/internal/models"
	"github.com/convene-hq/backend/pkg/matrix"
)

// Intent is one requested membership change, built by a local operation and
// discarded after the synchronization call. DesiredRole "" means removal.
type Intent struct {
	TenantID   uuid.UUID         `json:"tenant_id"`
	EntityType models.EntityType `json:"entity_type"`
	EntitySlug string            `json:"entity_slug"`

	ActorID   uuid.UUID       `json:"actor_id"`
	ActorSlug string          `json:"actor_slug"`
	ActorRole models.RoomRole `json:"actor_role"`

	TargetUserID      uuid.UUID       `json:"target_user_id"`
	TargetUserSlug    string          `json:"target_user_slug"`
	TargetCurrentRole models.RoomRole `json:"target_current_role"`
	TargetPresent     bool            `json:"target_present"` // target already a member of the entity

	DesiredRole models.RoomRole `json:"desired_role"`
}

// Remove reports whether the intent removes the target from the room.
func (in Intent) Remove() bool { return in.DesiredRole == "" }

// Applied actions, for callers and logs.
const (
	ActionInvited     = "invited"
	ActionKicked      = "kicked"
	ActionRoleUpdated = "role-updated" // recorded locally; the chat network does not model our roles
	ActionNone        = "none"
)

// ApplyResult is the outcome of a successful Apply.
type ApplyResult struct {
	RoomID string `json:"room_id"`
	Alias  string `json:"alias"`
	Action string `json:"action"`
}

// Synchronizer is the single choke point through which every membership and
// role change reaches the chat network. Steps run strictly in order
// (policy, ensure, diagnose, mutate) because each depends on the previous
// one succeeding, and overall success requires every required step to have
// succeeded or been a no-op.
type Synchronizer struct {
	lifecycle *LifecycleManager
	perms     *PermissionService
	network   NetworkClient
	identity  *Identity
	logger    *zap.Logger
}

// NewSynchronizer wires the membership synchronizer.
func NewSynchronizer(lifecycle *LifecycleManager, perms *PermissionService, network NetworkClient, identity *Identity, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		lifecycle: lifecycle,
		perms:     perms,
		network:   network,
		identity:  identity,
		logger:    logger,
	}
}

// Apply enforces the role hierarchy, ensures the room exists, verifies (and
// if needed heals) the bot's authority, then performs the external
// membership operation.
func (s *Synchronizer) Apply(ctx context.Context, intent Intent) (*ApplyResult, error) {
	const op = "apply"

	if err := s.authorize(intent); err != nil {
		return nil, err
	}

	// The room may not exist yet: this can be the first member ever.
	res, err := s.lifecycle.Ensure(ctx, intent.TenantID, intent.EntityType, intent.EntitySlug)
	if err != nil {
		return nil, err
	}

	actorChatID := s.identity.BuildUserID(intent.TenantID, intent.ActorSlug)
	snap := s.perms.Diagnose(ctx, res.RoomID, actorChatID)
	if intent.Remove() && !snap.CanKick {
		return nil, permissionUnavailable(op, "bot cannot remove members from room %s and self-heal failed", res.RoomID)
	}
	if !intent.Remove() && !snap.CanInvite {
		return nil, permissionUnavailable(op, "bot cannot invite members to room %s and self-heal failed", res.RoomID)
	}

	targetChatID := s.identity.BuildUserID(intent.TenantID, intent.TargetUserSlug)
	action, err := s.mutate(ctx, intent, res.RoomID, targetChatID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("membership synchronized",
		zap.String("room_id", res.RoomID),
		zap.String("target", targetChatID),
		zap.String("action", action),
	)
	return &ApplyResult{RoomID: res.RoomID, Alias: res.Alias, Action: action}, nil
}

// authorize evaluates the role hierarchy for the intent. Denials carry the
// violated rule so the caller can render a precise message.
func (s *Synchronizer) authorize(intent Intent) error {
	const op = "authorize"

	if intent.Remove() {
		if ok, rule := CanRemove(intent.ActorRole, intent.TargetCurrentRole); !ok {
			return forbidden(op, rule, denialMessage(rule, intent))
		}
		return nil
	}

	if intent.DesiredRole == intent.TargetCurrentRole && intent.TargetPresent {
		// No role change requested; nothing to authorize.
		return nil
	}
	// A target not yet in the entity has no role; grant rules are
	// evaluated against the lowest rung.
	targetRole := intent.TargetCurrentRole
	if !intent.TargetPresent && targetRole == "" {
		targetRole = models.RoomRoleGuest
	}
	if intent.ActorID == intent.TargetUserID && intent.DesiredRole.Level() > targetRole.Level() {
		return forbidden(op, RuleNoSelfPromotion, "you cannot raise your own role")
	}
	if ok, rule := CanChangeRole(intent.ActorRole, targetRole, intent.DesiredRole); !ok {
		return forbidden(op, rule, denialMessage(rule, intent))
	}
	return nil
}

func denialMessage(rule string, intent Intent) string {
	switch rule {
	case RuleUnknownRole:
		return "one of the roles involved is not a recognized role"
	case RuleOwnerOnlyTarget:
		return "only an owner may change or remove another owner"
	case RuleOwnerOnlyGrant:
		return "only an owner may grant the owner role"
	case RuleModeratorScope:
		return "moderators may only act on members and guests"
	case RuleModeratorGrant:
		return "moderators may only assign the member or guest role"
	case RuleNoAuthority:
		return "members and guests may not change roles"
	default:
		return fmt.Sprintf("role change from %s to %s denied", intent.TargetCurrentRole, intent.DesiredRole)
	}
}

// mutate performs the external operation: kick for removals, invite for new
// members, and a local-only no-op for pure role changes, which the chat
// network does not model. "Already a member" and "already gone" responses
// are successes: the network's state is what we were converging to.
func (s *Synchronizer) mutate(ctx context.Context, intent Intent, roomID, targetChatID string) (string, error) {
	switch {
	case intent.Remove():
		if err := s.network.Kick(ctx, roomID, targetChatID, "removed by "+string(intent.ActorRole)); err != nil {
			if matrix.IsNotInRoom(err) {
				return ActionNone, nil
			}
			return "", classify("kick", err)
		}
		return ActionKicked, nil

	case !intent.TargetPresent:
		if err := s.network.Invite(ctx, roomID, targetChatID); err != nil {
			if matrix.IsAlreadyMember(err) {
				return ActionNone, nil
			}
			return "", classify("invite", err)
		}
		return ActionInvited, nil

	default:
		return ActionRoleUpdated, nil
	}
}
