package chat

import (
	"github.com/convene-hq/backend/internal/models"
)

// Hierarchy rule identifiers, returned with Forbidden errors so callers can
// tell the user exactly which rule denied the change.
const (
	RuleUnknownRole     = "unknown-role"
	RuleOwnerOnlyTarget = "owner-only-target" // only an owner may act on an owner
	RuleOwnerOnlyGrant  = "owner-only-grant"  // only an owner may grant owner
	RuleModeratorScope  = "moderator-scope"   // moderators act only on members and guests
	RuleModeratorGrant  = "moderator-grant"   // moderators grant only member or guest
	RuleNoAuthority     = "no-authority"      // members and guests change no roles
	RuleNoSelfPromotion = "no-self-promotion"
)

// CanChangeRole decides whether an actor with actorRole may move a target
// from targetRole to desiredRole. It returns the violated rule identifier
// when denied, "" when allowed.
//
// The table is deliberately asymmetric and is evaluated as explicit rules,
// not a numeric level comparison: admins may reshuffle other admins (a
// lateral move strict-greater-than logic would wrongly exclude), yet may
// never touch owners, and moderators may never touch admins.
func CanChangeRole(actorRole, targetRole, desiredRole models.RoomRole) (bool, string) {
	if !actorRole.Valid() || !targetRole.Valid() || !desiredRole.Valid() {
		return false, RuleUnknownRole
	}
	if actorRole == models.RoomRoleOwner {
		return true, ""
	}
	if targetRole == models.RoomRoleOwner {
		return false, RuleOwnerOnlyTarget
	}
	if desiredRole == models.RoomRoleOwner {
		return false, RuleOwnerOnlyGrant
	}
	switch actorRole {
	case models.RoomRoleAdmin:
		// Target is admin or lower (owner handled above) and the desired
		// role is at most admin (owner handled above): allowed, including
		// the lateral admin-on-admin case.
		return true, ""
	case models.RoomRoleModerator:
		if targetRole != models.RoomRoleMember && targetRole != models.RoomRoleGuest {
			return false, RuleModeratorScope
		}
		if desiredRole != models.RoomRoleMember && desiredRole != models.RoomRoleGuest {
			return false, RuleModeratorGrant
		}
		return true, ""
	default:
		return false, RuleNoAuthority
	}
}

// CanRemove decides whether an actor may remove a target from the room
// entirely. Removal follows the same scoping rules as role changes, minus
// the desired-role constraints.
func CanRemove(actorRole, targetRole models.RoomRole) (bool, string) {
	if !actorRole.Valid() || !targetRole.Valid() {
		return false, RuleUnknownRole
	}
	if actorRole == models.RoomRoleOwner {
		return true, ""
	}
	if targetRole == models.RoomRoleOwner {
		return false, RuleOwnerOnlyTarget
	}
	switch actorRole {
	case models.RoomRoleAdmin:
		return true, ""
	case models.RoomRoleModerator:
		if targetRole != models.RoomRoleMember && targetRole != models.RoomRoleGuest {
			return false, RuleModeratorScope
		}
		return true, ""
	default:
		return false, RuleNoAuthority
	}
}
