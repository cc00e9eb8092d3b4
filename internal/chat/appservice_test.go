package chat

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convene-hq/backend/internal/middleware"
	"github.com/convene-hq/backend/internal/models"
)

const hsToken = "hs-secret"

func newAppserviceRouter(t *testing.T) (*gin.Engine, *syncFixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newSyncFixture(t)

	lifecycle := NewLifecycleManager(f.identity, f.records, f.entities, f.network, testBot, 100, nil)
	handler := NewAppserviceHandler(f.identity, lifecycle, nil)

	router := gin.New()
	group := router.Group("/_matrix/app/v1")
	group.Use(middleware.HomeserverToken(hsToken))
	group.GET("/rooms/:alias", handler.QueryRoom)
	group.GET("/users/:userID", handler.QueryUser)
	return router, f
}

func queryRoom(router *gin.Engine, alias, token string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/_matrix/app/v1/rooms/"+url.PathEscape(alias), nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	router.ServeHTTP(rec, req)
	return rec
}

func TestQueryRoomCreatesOnDemand(t *testing.T) {
	router, f := newAppserviceRouter(t)
	alias := f.identity.BuildAlias(f.tenantID, models.EntityTypeEvent, "standup")

	rec := queryRoom(router, alias, hsToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
	assert.Equal(t, 1, f.network.createCalls, "alias resolution triggered room creation")

	// Asking again hits the existing room.
	rec = queryRoom(router, alias, hsToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.network.createCalls)
}

func TestQueryRoomUnknownEntity(t *testing.T) {
	router, f := newAppserviceRouter(t)
	alias := f.identity.BuildAlias(f.tenantID, models.EntityTypeGroup, "no-such-group")

	rec := queryRoom(router, alias, hsToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Room not found"}`, rec.Body.String())
	assert.Zero(t, f.network.createCalls)
}

func TestQueryRoomMalformedAlias(t *testing.T) {
	router, f := newAppserviceRouter(t)

	for _, alias := range []string{
		"#garbage:" + testDomain,
		"#event-standup-deadbeef:" + testDomain,
		"#event-standup:elsewhere.example",
		"totally-not-an-alias",
	} {
		rec := queryRoom(router, alias, hsToken)
		assert.Equal(t, http.StatusNotFound, rec.Code, "alias %q", alias)
		assert.JSONEq(t, `{"error":"Room not found"}`, rec.Body.String())
	}
	assert.Zero(t, f.network.createCalls, "malformed aliases never reach the network")
}

func TestQueryRoomRequiresToken(t *testing.T) {
	router, f := newAppserviceRouter(t)
	alias := f.identity.BuildAlias(f.tenantID, models.EntityTypeEvent, "standup")

	rec := queryRoom(router, alias, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = queryRoom(router, alias, "wrong-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, f.network.createCalls)
}

func TestQueryUser(t *testing.T) {
	router, f := newAppserviceRouter(t)

	known := f.identity.BuildUserID(uuid.New(), "alice")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/_matrix/app/v1/users/"+url.PathEscape(known), nil)
	req.Header.Set("Authorization", "Bearer "+hsToken)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/_matrix/app/v1/users/"+url.PathEscape("@foreign:elsewhere.example"), nil)
	req.Header.Set("Authorization", "Bearer "+hsToken)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())
}
