package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/convene-hq/backend/internal/models"
)

func TestCanChangeRole(t *testing.T) {
	owner := models.RoomRoleOwner
	admin := models.RoomRoleAdmin
	moderator := models.RoomRoleModerator
	member := models.RoomRoleMember
	guest := models.RoomRoleGuest

	tests := []struct {
		name    string
		actor   models.RoomRole
		target  models.RoomRole
		desired models.RoomRole
		allowed bool
		rule    string
	}{
		{"owner demotes owner", owner, owner, member, true, ""},
		{"owner grants owner", owner, member, owner, true, ""},
		{"owner demotes admin", owner, admin, guest, true, ""},

		{"admin promotes member to admin", admin, member, admin, true, ""},
		{"admin reshuffles another admin", admin, admin, moderator, true, ""},
		{"admin keeps admin lateral", admin, admin, admin, true, ""},
		{"admin touches owner", admin, owner, member, false, RuleOwnerOnlyTarget},
		{"admin grants owner", admin, member, owner, false, RuleOwnerOnlyGrant},

		{"moderator promotes guest to member", moderator, guest, member, true, ""},
		{"moderator demotes member to guest", moderator, member, guest, true, ""},
		{"moderator touches admin", moderator, admin, member, false, RuleModeratorScope},
		{"moderator touches moderator", moderator, moderator, member, false, RuleModeratorScope},
		{"moderator touches owner", moderator, owner, member, false, RuleOwnerOnlyTarget},
		{"moderator grants moderator", moderator, member, moderator, false, RuleModeratorGrant},
		{"moderator grants admin", moderator, guest, admin, false, RuleModeratorGrant},

		{"member changes roles", member, guest, member, false, RuleNoAuthority},
		{"guest changes roles", guest, guest, member, false, RuleNoAuthority},

		{"unknown actor role", models.RoomRole("superuser"), member, guest, false, RuleUnknownRole},
		{"unknown target role", admin, models.RoomRole("vip"), member, false, RuleUnknownRole},
		{"unknown desired role", admin, member, models.RoomRole("vip"), false, RuleUnknownRole},
		{"empty actor role", models.RoomRole(""), member, guest, false, RuleUnknownRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, rule := CanChangeRole(tt.actor, tt.target, tt.desired)
			assert.Equal(t, tt.allowed, allowed)
			assert.Equal(t, tt.rule, rule)
		})
	}
}

func TestCanRemove(t *testing.T) {
	tests := []struct {
		name    string
		actor   models.RoomRole
		target  models.RoomRole
		allowed bool
		rule    string
	}{
		{"owner removes owner", models.RoomRoleOwner, models.RoomRoleOwner, true, ""},
		{"owner removes guest", models.RoomRoleOwner, models.RoomRoleGuest, true, ""},
		{"admin removes admin", models.RoomRoleAdmin, models.RoomRoleAdmin, true, ""},
		{"admin removes owner", models.RoomRoleAdmin, models.RoomRoleOwner, false, RuleOwnerOnlyTarget},
		{"moderator removes member", models.RoomRoleModerator, models.RoomRoleMember, true, ""},
		{"moderator removes guest", models.RoomRoleModerator, models.RoomRoleGuest, true, ""},
		{"moderator removes admin", models.RoomRoleModerator, models.RoomRoleAdmin, false, RuleModeratorScope},
		{"member removes guest", models.RoomRoleMember, models.RoomRoleGuest, false, RuleNoAuthority},
		{"guest removes member", models.RoomRoleGuest, models.RoomRoleMember, false, RuleNoAuthority},
		{"unknown target", models.RoomRoleOwner, models.RoomRole("vip"), false, RuleUnknownRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, rule := CanRemove(tt.actor, tt.target)
			assert.Equal(t, tt.allowed, allowed)
			assert.Equal(t, tt.rule, rule)
		})
	}
}
