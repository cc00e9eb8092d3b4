package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/convene-hq/backend/pkg/matrix"
)

// Snapshot is a point-in-time diagnosis of the bot's authority in a room.
// It is always recomputed, never cached: another room admin can change
// power levels the instant after it is taken.
type Snapshot struct {
	RoomID               string    `json:"room_id"`
	BotUserID            string    `json:"bot_user_id"`
	PowerLevel           int       `json:"power_level"`
	CanInvite            bool      `json:"can_invite"`
	CanKick              bool      `json:"can_kick"`
	CanModifyPowerLevels bool      `json:"can_modify_power_levels"`
	FixAttempted         bool      `json:"fix_attempted"`
	FixSucceeded         bool      `json:"fix_succeeded"`
	Errors               []string  `json:"errors,omitempty"`
	CheckedAt            time.Time `json:"checked_at"`
}

func (s *Snapshot) record(step string, err error) {
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", step, err))
}

// PermissionService guarantees the bot can actually administer a room it is
// supposed to own, self-healing when it cannot.
//
// Diagnose is a diagnose → heal → reverify loop rather than a one-shot
// check: the bot's privileges can silently decay (room admins change, room
// recreated with different defaults) and the service must recover without
// manual intervention. Each probe is individually fallible; failures are
// collected in the snapshot, never thrown, so one failed probe does not
// hide the others' outcomes.
type PermissionService struct {
	network        NetworkClient
	identity       *Identity
	botUserID      string
	adminLevel     int
	modifyLevel    int
	kickProbeLocal string // localpart stem of the guaranteed non-member used by the kick probe
	logger         *zap.Logger
}

// NewPermissionService wires the permission service.
func NewPermissionService(network NetworkClient, identity *Identity, botUserID string, adminLevel, modifyLevel int, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if adminLevel <= 0 {
		adminLevel = 100
	}
	if modifyLevel <= 0 {
		modifyLevel = 50
	}
	return &PermissionService{
		network:        network,
		identity:       identity,
		botUserID:      botUserID,
		adminLevel:     adminLevel,
		modifyLevel:    modifyLevel,
		kickProbeLocal: "kick-probe-nonmember",
		logger:         logger,
	}
}

// Diagnose probes the bot's invite and kick authority in a room, elevating
// the bot's power level and re-verifying when a probe fails.
//
// probeUserID must be a known-safe invite target that already has access to
// the room (typically the requesting user), so a successful invite probe
// has no visible side effect.
func (s *PermissionService) Diagnose(ctx context.Context, roomID, probeUserID string) *Snapshot {
	snap := &Snapshot{
		RoomID:    roomID,
		BotUserID: s.botUserID,
		CheckedAt: time.Now().UTC(),
	}

	levels, err := s.network.PowerLevels(ctx, roomID)
	if err != nil {
		snap.record("read power levels", err)
	} else {
		snap.PowerLevel = levels.UserLevel(s.botUserID)
	}

	snap.CanInvite = s.probeInvite(ctx, snap, roomID, probeUserID)
	snap.CanKick = s.probeKick(ctx, snap, roomID)

	if !snap.CanInvite || !snap.CanKick {
		snap.FixAttempted = true
		s.heal(ctx, snap, roomID, levels, probeUserID)
	}

	// Read back the resulting level; after a heal this is also the proof
	// the elevation actually landed.
	levels, err = s.network.PowerLevels(ctx, roomID)
	if err != nil {
		snap.record("read back power levels", err)
	} else {
		snap.PowerLevel = levels.UserLevel(s.botUserID)
		snap.CanModifyPowerLevels = snap.PowerLevel >= s.modifyLevel
		if snap.FixSucceeded && snap.PowerLevel >= levels.KickLevel() {
			snap.CanKick = true
		}
	}

	if len(snap.Errors) > 0 {
		s.logger.Warn("bot permission diagnosis found problems",
			zap.String("room_id", roomID),
			zap.Bool("can_invite", snap.CanInvite),
			zap.Bool("can_kick", snap.CanKick),
			zap.Bool("fix_attempted", snap.FixAttempted),
			zap.Bool("fix_succeeded", snap.FixSucceeded),
			zap.Strings("errors", snap.Errors),
		)
	}
	return snap
}

// probeInvite tests invite authority against a target that already has
// access: a fresh invite or an "already in the room" rejection both prove
// the capability.
func (s *PermissionService) probeInvite(ctx context.Context, snap *Snapshot, roomID, probeUserID string) bool {
	err := s.network.Invite(ctx, roomID, probeUserID)
	if err == nil || matrix.IsAlreadyMember(err) {
		return true
	}
	snap.record("invite probe", err)
	return false
}

// probeKick tests kick authority by removing a user who is guaranteed not
// to be a member: a "not in the room" rejection proves the authority with
// no side effect, anything else means the bot cannot kick.
func (s *PermissionService) probeKick(ctx context.Context, snap *Snapshot, roomID string) bool {
	nonMember := fmt.Sprintf("@%s:%s", s.kickProbeLocal, s.identity.Domain())
	err := s.network.Kick(ctx, roomID, nonMember, "permission probe")
	if err == nil || matrix.IsNotInRoom(err) {
		return true
	}
	snap.record("kick probe", err)
	return false
}

// heal elevates the bot to the administrative level and re-runs the invite
// probe (the cheapest re-check) to decide whether the fix took.
func (s *PermissionService) heal(ctx context.Context, snap *Snapshot, roomID string, levels *matrix.PowerLevels, probeUserID string) {
	if levels == nil {
		// First read failed; retry so the write doesn't clobber levels we
		// never saw.
		var err error
		levels, err = s.network.PowerLevels(ctx, roomID)
		if err != nil {
			snap.record("re-read power levels before fix", err)
			return
		}
	}
	levels.SetUserLevel(s.botUserID, s.adminLevel)
	if err := s.network.SetPowerLevels(ctx, roomID, levels); err != nil {
		snap.record("elevate bot power level", err)
		return
	}

	if s.probeInvite(ctx, snap, roomID, probeUserID) {
		snap.FixSucceeded = true
		snap.CanInvite = true
	}
}
