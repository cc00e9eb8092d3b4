package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AppserviceHandler answers the homeserver's existence queries. These
// endpoints speak the raw appservice wire format, not the API envelope:
// the homeserver is the client here.
//
// Room queries are the second creation trigger: when a user's client
// resolves an alias the homeserver has never seen, the homeserver asks us,
// and answering 200 after a successful ensure lets the resolution proceed.
type AppserviceHandler struct {
	identity  *Identity
	lifecycle *LifecycleManager
	logger    *zap.Logger
}

// NewAppserviceHandler creates the appservice query handler.
func NewAppserviceHandler(identity *Identity, lifecycle *LifecycleManager, logger *zap.Logger) *AppserviceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppserviceHandler{identity: identity, lifecycle: lifecycle, logger: logger}
}

// QueryRoom handles GET /_matrix/app/v1/rooms/:alias. Any alias that does
// not parse, names an unknown tenant, or names an entity that does not
// exist gets a plain 404. Parsing failures are never distinguished from
// missing entities: the caller learns nothing about which part was wrong.
func (h *AppserviceHandler) QueryRoom(c *gin.Context) {
	ref, err := h.identity.ParseAlias(c.Param("alias"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	result, err := h.lifecycle.Ensure(c.Request.Context(), ref.TenantID, ref.EntityType, ref.EntitySlug)
	if err != nil {
		h.logger.Warn("room query ensure failed",
			zap.String("alias", c.Param("alias")),
			zap.Error(err),
		)
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	h.logger.Debug("room query answered",
		zap.String("alias", result.Alias),
		zap.String("room_id", result.RoomID),
		zap.Bool("recreated", result.Recreated),
	)
	c.JSON(http.StatusOK, gin.H{})
}

// QueryUser handles GET /_matrix/app/v1/users/:userID. Every well-formed
// user ID inside our namespace exists as far as the homeserver is
// concerned; membership is controlled per room, not per identity.
func (h *AppserviceHandler) QueryUser(c *gin.Context) {
	if _, err := h.identity.ParseUserID(c.Param("userID")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
