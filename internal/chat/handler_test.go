package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convene-hq/backend/internal/middleware"
	"github.com/convene-hq/backend/internal/models"
)

type fakeEntityStore struct {
	entity *models.Entity
}

func (f *fakeEntityStore) GetBySlug(_ context.Context, tenantID uuid.UUID, entityType models.EntityType, slug string) (*models.Entity, error) {
	if f.entity != nil && f.entity.TenantID == tenantID && f.entity.Type == entityType && f.entity.Slug == slug {
		return f.entity, nil
	}
	return nil, nil
}

type fakeMemberStore struct {
	rows map[string]*models.Member
}

func newFakeMemberStore() *fakeMemberStore {
	return &fakeMemberStore{rows: map[string]*models.Member{}}
}

func memberKey(entityID, userID uuid.UUID) string {
	return entityID.String() + "/" + userID.String()
}

func (f *fakeMemberStore) Get(_ context.Context, entityID, userID uuid.UUID) (*models.Member, error) {
	return f.rows[memberKey(entityID, userID)], nil
}

func (f *fakeMemberStore) Upsert(_ context.Context, tenantID, entityID, userID uuid.UUID, role models.RoomRole) error {
	f.rows[memberKey(entityID, userID)] = &models.Member{
		TenantID: tenantID, EntityID: entityID, UserID: userID, Role: role,
	}
	return nil
}

func (f *fakeMemberStore) Delete(_ context.Context, entityID, userID uuid.UUID) error {
	delete(f.rows, memberKey(entityID, userID))
	return nil
}

type fakeUsers struct {
	byID   map[uuid.UUID]*models.User
	bySlug map[string]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[uuid.UUID]*models.User{}, bySlug: map[string]*models.User{}}
}

func (f *fakeUsers) add(slug string) *models.User {
	u := &models.User{ID: uuid.New(), ChatSlug: slug}
	f.byID[u.ID] = u
	f.bySlug[slug] = u
	return u
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return f.byID[id], nil
}

func (f *fakeUsers) GetByChatSlug(_ context.Context, chatSlug string) (*models.User, error) {
	return f.bySlug[chatSlug], nil
}

type fakeRetryQueue struct {
	enqueued []Intent
	err      error
}

func (f *fakeRetryQueue) EnqueueMembershipSync(_ context.Context, intent Intent) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, intent)
	return nil
}

type handlerFixture struct {
	*syncFixture
	entity  *models.Entity
	store   *fakeMemberStore
	users   *fakeUsers
	retries *fakeRetryQueue
	actor   *models.User
	router  *gin.Engine
}

// newHandlerFixture wires a Handler over the in-memory network with an
// "standup" event, an owner actor named alice, and a target user bob.
func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sf := newSyncFixture(t)

	f := &handlerFixture{
		syncFixture: sf,
		entity: &models.Entity{
			ID:       uuid.New(),
			TenantID: sf.tenantID,
			Type:     models.EntityTypeEvent,
			Slug:     "standup",
		},
		store:   newFakeMemberStore(),
		users:   newFakeUsers(),
		retries: &fakeRetryQueue{},
	}
	f.actor = f.users.add("alice")
	f.users.add("bob")
	f.store.rows[memberKey(f.entity.ID, f.actor.ID)] = &models.Member{
		TenantID: sf.tenantID, EntityID: f.entity.ID, UserID: f.actor.ID, Role: models.RoomRoleOwner,
	}

	lifecycle := NewLifecycleManager(sf.identity, sf.records, sf.entities, sf.network, testBot, 100, nil)
	perms := NewPermissionService(sf.network, sf.identity, testBot, 100, 50, nil)
	h := NewHandler(sf.sync, lifecycle, perms, sf.identity, &fakeEntityStore{entity: f.entity}, f.store, f.users, f.retries, nil)

	f.router = gin.New()
	f.router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextTenantID, sf.tenantID)
		c.Set(middleware.ContextUserID, f.actor.ID)
		c.Set(middleware.ContextUserChatSlug, f.actor.ChatSlug)
		c.Set(middleware.ContextUserRole, string(models.PlatformRoleUser))
	})
	f.router.POST("/tenants/:tenantID/:entityType/:slug/members", h.AddMember)
	f.router.PATCH("/tenants/:tenantID/:entityType/:slug/members/:userID", h.ChangeRole)
	f.router.DELETE("/tenants/:tenantID/:entityType/:slug/members/:userID", h.RemoveMember)
	return f
}

func (f *handlerFixture) addMember(t *testing.T, body gin.H) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/tenants/"+f.tenantID.String()+"/event/standup/members", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAddMemberWritesLocalRecordOnSuccess(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.addMember(t, gin.H{"chat_slug": "bob", "role": "member"})
	assert.Equal(t, http.StatusOK, w.Code)

	bob := f.users.bySlug["bob"]
	member := f.store.rows[memberKey(f.entity.ID, bob.ID)]
	require.NotNil(t, member, "local member row written after the network accepted")
	assert.Equal(t, models.RoomRoleMember, member.Role)
	assert.Empty(t, f.retries.enqueued)
}

func TestAddMemberQueuesIntentOnNetworkFault(t *testing.T) {
	f := newHandlerFixture(t)
	bob := f.users.bySlug["bob"]
	bobChatID := f.identity.BuildUserID(f.tenantID, "bob")
	f.network.inviteErr[bobChatID] = serverErr()

	w := f.addMember(t, gin.H{"chat_slug": "bob", "role": "member"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Queued bool `json:"queued"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.True(t, body.Data.Queued)

	require.Len(t, f.retries.enqueued, 1)
	assert.Equal(t, bob.ID, f.retries.enqueued[0].TargetUserID)
	assert.Equal(t, models.RoomRoleMember, f.retries.enqueued[0].DesiredRole)
	assert.Nil(t, f.store.rows[memberKey(f.entity.ID, bob.ID)], "local row waits for the replay to succeed")
}

func TestAddMemberReportsUnavailableWhenQueueIsDown(t *testing.T) {
	f := newHandlerFixture(t)
	bobChatID := f.identity.BuildUserID(f.tenantID, "bob")
	f.network.inviteErr[bobChatID] = serverErr()
	f.retries.err = errors.New("redis: connection refused")

	w := f.addMember(t, gin.H{"chat_slug": "bob", "role": "member"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAddMemberPolicyDenialIsNeverQueued(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.rows[memberKey(f.entity.ID, f.actor.ID)].Role = models.RoomRoleMember

	w := f.addMember(t, gin.H{"chat_slug": "bob", "role": "member"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, f.retries.enqueued)

	var body struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, string(KindForbidden), body.Code)

	bobChatID := f.identity.BuildUserID(f.tenantID, "bob")
	assert.NotContains(t, f.network.inviteCalls, bobChatID)
}
