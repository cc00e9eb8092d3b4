package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convene-hq/backend/internal/models"
)

type syncFixture struct {
	network  *fakeNetwork
	records  *fakeRecords
	entities *fakeEntities
	identity *Identity
	sync     *Synchronizer
	tenantID uuid.UUID
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	network := newFakeNetwork()
	records := newFakeRecords()
	entities := newFakeEntities()
	identity := NewIdentity(testDomain)
	lifecycle := NewLifecycleManager(identity, records, entities, network, testBot, 100, nil)
	perms := NewPermissionService(network, identity, testBot, 100, 50, nil)

	f := &syncFixture{
		network:  network,
		records:  records,
		entities: entities,
		identity: identity,
		sync:     NewSynchronizer(lifecycle, perms, network, identity, nil),
		tenantID: uuid.New(),
	}
	entities.add(f.tenantID, models.EntityTypeEvent, "standup")
	return f
}

func (f *syncFixture) intent() Intent {
	return Intent{
		TenantID:       f.tenantID,
		EntityType:     models.EntityTypeEvent,
		EntitySlug:     "standup",
		ActorID:        uuid.New(),
		ActorSlug:      "alice",
		ActorRole:      models.RoomRoleOwner,
		TargetUserID:   uuid.New(),
		TargetUserSlug: "bob",
		DesiredRole:    models.RoomRoleMember,
	}
}

func TestApplyInvitesNewMember(t *testing.T) {
	f := newSyncFixture(t)
	intent := f.intent()

	res, err := f.sync.Apply(context.Background(), intent)
	require.NoError(t, err)

	assert.Equal(t, ActionInvited, res.Action)
	assert.NotEmpty(t, res.RoomID)
	assert.Equal(t, f.identity.BuildAlias(f.tenantID, models.EntityTypeEvent, "standup"), res.Alias)

	targetChatID := f.identity.BuildUserID(f.tenantID, "bob")
	assert.True(t, f.network.memberOf[res.RoomID][targetChatID], "target invited into the room")
}

func TestApplyCreatesRoomOnFirstMember(t *testing.T) {
	f := newSyncFixture(t)

	_, err := f.sync.Apply(context.Background(), f.intent())
	require.NoError(t, err)
	assert.Equal(t, 1, f.network.createCalls, "first membership change creates the room")

	second := f.intent()
	second.TargetUserSlug = "carol"
	_, err = f.sync.Apply(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, 1, f.network.createCalls, "the room is reused afterward")
}

func TestApplyAlreadyMemberIsNoop(t *testing.T) {
	f := newSyncFixture(t)
	intent := f.intent()

	first, err := f.sync.Apply(context.Background(), intent)
	require.NoError(t, err)
	require.Equal(t, ActionInvited, first.Action)

	// Same invite again: the network says already-in-room, which is the
	// state we were converging to.
	again, err := f.sync.Apply(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, again.Action)
}

func TestApplyKicksRemovedMember(t *testing.T) {
	f := newSyncFixture(t)
	add := f.intent()

	res, err := f.sync.Apply(context.Background(), add)
	require.NoError(t, err)

	remove := add
	remove.DesiredRole = ""
	remove.TargetCurrentRole = models.RoomRoleMember
	remove.TargetPresent = true

	removed, err := f.sync.Apply(context.Background(), remove)
	require.NoError(t, err)
	assert.Equal(t, ActionKicked, removed.Action)

	targetChatID := f.identity.BuildUserID(f.tenantID, "bob")
	assert.False(t, f.network.memberOf[res.RoomID][targetChatID], "target kicked from the room")

	// Removing an already-gone member converges silently.
	again, err := f.sync.Apply(context.Background(), remove)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, again.Action)
}

func TestApplyRoleOnlyChangeSkipsNetwork(t *testing.T) {
	f := newSyncFixture(t)
	add := f.intent()
	_, err := f.sync.Apply(context.Background(), add)
	require.NoError(t, err)

	promote := add
	promote.TargetCurrentRole = models.RoomRoleMember
	promote.TargetPresent = true
	promote.DesiredRole = models.RoomRoleModerator

	res, err := f.sync.Apply(context.Background(), promote)
	require.NoError(t, err)
	assert.Equal(t, ActionRoleUpdated, res.Action)

	targetChatID := f.identity.BuildUserID(f.tenantID, "bob")
	assert.True(t, f.network.memberOf[res.RoomID][targetChatID], "role changes leave presence untouched")
}

func TestApplyDeniesByHierarchy(t *testing.T) {
	tests := []struct {
		name  string
		setup func(in *Intent)
		rule  string
	}{
		{
			"moderator promotes to admin",
			func(in *Intent) {
				in.ActorRole = models.RoomRoleModerator
				in.TargetCurrentRole = models.RoomRoleMember
				in.TargetPresent = true
				in.DesiredRole = models.RoomRoleAdmin
			},
			RuleModeratorGrant,
		},
		{
			"admin removes owner",
			func(in *Intent) {
				in.ActorRole = models.RoomRoleAdmin
				in.TargetCurrentRole = models.RoomRoleOwner
				in.TargetPresent = true
				in.DesiredRole = ""
			},
			RuleOwnerOnlyTarget,
		},
		{
			"member invites",
			func(in *Intent) {
				in.ActorRole = models.RoomRoleMember
			},
			RuleNoAuthority,
		},
		{
			"unknown actor role",
			func(in *Intent) {
				in.ActorRole = models.RoomRole("vip")
			},
			RuleUnknownRole,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture(t)
			intent := f.intent()
			tt.setup(&intent)

			_, err := f.sync.Apply(context.Background(), intent)
			require.Error(t, err)
			assert.Equal(t, KindForbidden, KindOf(err))
			assert.Equal(t, tt.rule, RuleOf(err))
			assert.Zero(t, f.network.createCalls, "denied intents never reach the network")
		})
	}
}

func TestApplyDeniesSelfPromotion(t *testing.T) {
	f := newSyncFixture(t)
	intent := f.intent()
	intent.ActorRole = models.RoomRoleAdmin
	intent.TargetUserID = intent.ActorID
	intent.TargetUserSlug = intent.ActorSlug
	intent.TargetCurrentRole = models.RoomRoleAdmin
	intent.TargetPresent = true
	intent.DesiredRole = models.RoomRoleOwner

	_, err := f.sync.Apply(context.Background(), intent)
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, RuleNoSelfPromotion, RuleOf(err))
}

func TestApplyAllowsSelfDemotion(t *testing.T) {
	f := newSyncFixture(t)
	add := f.intent()
	_, err := f.sync.Apply(context.Background(), add)
	require.NoError(t, err)

	demote := add
	demote.ActorRole = models.RoomRoleAdmin
	demote.TargetUserID = demote.ActorID
	demote.TargetUserSlug = demote.ActorSlug
	demote.TargetCurrentRole = models.RoomRoleAdmin
	demote.TargetPresent = true
	demote.DesiredRole = models.RoomRoleMember

	res, err := f.sync.Apply(context.Background(), demote)
	require.NoError(t, err)
	assert.Equal(t, ActionRoleUpdated, res.Action)
}

func TestApplyGatesOnBotAuthority(t *testing.T) {
	f := newSyncFixture(t)

	// Seed the room, then strip the bot's authority and make elevation
	// impossible, so diagnose cannot heal. The membership change must be
	// refused rather than half-applied.
	first, err := f.sync.Apply(context.Background(), f.intent())
	require.NoError(t, err)

	f.network.levels[first.RoomID].Users[testBot] = 0
	f.network.enforceFor = testBot
	f.network.inviteMinLevel = 50
	f.network.writePLErr = forbiddenErr("you do not have permission to change power levels")

	next := f.intent()
	next.TargetUserSlug = "carol"
	_, err = f.sync.Apply(context.Background(), next)
	require.Error(t, err)
	assert.Equal(t, KindPermissionUnavailable, KindOf(err))

	carolChatID := f.identity.BuildUserID(f.tenantID, "carol")
	assert.False(t, f.network.memberOf[first.RoomID][carolChatID], "gated intents never mutate membership")
}
