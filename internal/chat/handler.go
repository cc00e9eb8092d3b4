package chat

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/convene-hq/backend/internal/middleware"
	"github.com/convene-hq/backend/internal/models"
	"github.com/convene-hq/backend/pkg/response"
)

// UserDirectory looks up platform users. Declared here so the handler does
// not depend on the auth package, which itself depends on this one.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByChatSlug(ctx context.Context, chatSlug string) (*models.User, error)
}

// RetryQueue accepts intents whose first synchronization attempt failed
// with a transient network error.
type RetryQueue interface {
	EnqueueMembershipSync(ctx context.Context, intent Intent) error
}

// EntityStore resolves entities by their room-addressing triple.
type EntityStore interface {
	GetBySlug(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, slug string) (*models.Entity, error)
}

// MemberStore reads and writes the local membership record.
type MemberStore interface {
	Get(ctx context.Context, entityID, userID uuid.UUID) (*models.Member, error)
	Upsert(ctx context.Context, tenantID, entityID, userID uuid.UUID, role models.RoomRole) error
	Delete(ctx context.Context, entityID, userID uuid.UUID) error
}

// Handler exposes room and membership endpoints. Every membership change
// goes through the Synchronizer; the local member row is written only after
// the external operation succeeds or is queued for retry.
type Handler struct {
	sync      *Synchronizer
	lifecycle *LifecycleManager
	perms     *PermissionService
	identity  *Identity
	entities  EntityStore
	members   MemberStore
	users     UserDirectory
	retries   RetryQueue
	logger    *zap.Logger
}

// NewHandler creates the chat handler.
func NewHandler(sync *Synchronizer, lifecycle *LifecycleManager, perms *PermissionService, identity *Identity, entityStore EntityStore, memberStore MemberStore, users UserDirectory, retries RetryQueue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sync:      sync,
		lifecycle: lifecycle,
		perms:     perms,
		identity:  identity,
		entities:  entityStore,
		members:   memberStore,
		users:     users,
		retries:   retries,
		logger:    logger,
	}
}

// AddMemberRequest is the body for POST .../members.
type AddMemberRequest struct {
	ChatSlug string `json:"chat_slug" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// ChangeRoleRequest is the body for PATCH .../members/:userID.
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// entityRef resolves the tenant/type/slug triple from the route. Returns
// nil after writing the response when the route or entity is invalid.
func (h *Handler) entityRef(c *gin.Context) (*models.Entity, models.EntityType) {
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)
	entityType, ok := models.ParseEntityType(c.Param("entityType"))
	if !ok {
		response.BadRequest(c, "entity type must be event or group")
		return nil, ""
	}
	slug := strings.ToLower(c.Param("slug"))
	if !models.ValidSlug(slug) {
		response.BadRequest(c, "invalid entity slug")
		return nil, ""
	}
	entity, err := h.entities.GetBySlug(c.Request.Context(), tenantID, entityType, slug)
	if err != nil {
		response.Internal(c, "failed to load entity")
		return nil, ""
	}
	if entity == nil {
		response.NotFound(c, "Entity not found")
		return nil, ""
	}
	return entity, entityType
}

// actorRole resolves the current user's room role for the entity. Platform
// admins act as owners everywhere.
func (h *Handler) actorRole(c *gin.Context, entityID uuid.UUID) (models.RoomRole, bool) {
	if role, _ := c.Get(middleware.ContextUserRole); role == string(models.PlatformRoleAdmin) {
		return models.RoomRoleOwner, true
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	member, err := h.members.Get(c.Request.Context(), entityID, userID)
	if err != nil {
		response.Internal(c, "failed to load your membership")
		return "", false
	}
	if member == nil {
		response.Forbidden(c, "you are not a member of this entity")
		return "", false
	}
	return member.Role, true
}

// AddMember handles POST /tenants/:tenantID/:entityType/:slug/members.
func (h *Handler) AddMember(c *gin.Context) {
	entity, entityType := h.entityRef(c)
	if entity == nil {
		return
	}
	var body AddMemberRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "chat_slug and role required")
		return
	}
	role := models.RoomRole(strings.ToLower(body.Role))
	if !role.Valid() {
		response.BadRequest(c, "unknown role: "+body.Role)
		return
	}
	target, err := h.users.GetByChatSlug(c.Request.Context(), strings.ToLower(body.ChatSlug))
	if err != nil {
		response.Internal(c, "failed to look up user")
		return
	}
	if target == nil {
		response.NotFound(c, "User not found")
		return
	}
	h.apply(c, entity, entityType, target.ID, target.ChatSlug, role)
}

// ChangeRole handles PATCH /tenants/:tenantID/:entityType/:slug/members/:userID.
func (h *Handler) ChangeRole(c *gin.Context) {
	entity, entityType := h.entityRef(c)
	if entity == nil {
		return
	}
	var body ChangeRoleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "role required")
		return
	}
	role := models.RoomRole(strings.ToLower(body.Role))
	if !role.Valid() {
		response.BadRequest(c, "unknown role: "+body.Role)
		return
	}
	target, ok := h.pathTarget(c)
	if !ok {
		return
	}
	h.apply(c, entity, entityType, target.ID, target.ChatSlug, role)
}

// RemoveMember handles DELETE /tenants/:tenantID/:entityType/:slug/members/:userID.
func (h *Handler) RemoveMember(c *gin.Context) {
	entity, entityType := h.entityRef(c)
	if entity == nil {
		return
	}
	target, ok := h.pathTarget(c)
	if !ok {
		return
	}
	h.apply(c, entity, entityType, target.ID, target.ChatSlug, "")
}

func (h *Handler) pathTarget(c *gin.Context) (*models.User, bool) {
	targetID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return nil, false
	}
	target, err := h.users.GetByID(c.Request.Context(), targetID)
	if err != nil {
		response.Internal(c, "failed to look up user")
		return nil, false
	}
	if target == nil {
		response.NotFound(c, "User not found")
		return nil, false
	}
	return target, true
}

// apply builds the intent, runs it through the synchronizer and mirrors the
// outcome locally. desiredRole "" means removal.
func (h *Handler) apply(c *gin.Context, entity *models.Entity, entityType models.EntityType, targetID uuid.UUID, targetSlug string, desiredRole models.RoomRole) {
	ctx := c.Request.Context()

	actorRole, ok := h.actorRole(c, entity.ID)
	if !ok {
		return
	}
	member, err := h.members.Get(ctx, entity.ID, targetID)
	if err != nil {
		response.Internal(c, "failed to load membership")
		return
	}
	if desiredRole == "" && member == nil {
		response.NotFound(c, "User is not a member of this entity")
		return
	}

	intent := Intent{
		TenantID:       entity.TenantID,
		EntityType:     entityType,
		EntitySlug:     entity.Slug,
		ActorID:        c.MustGet(middleware.ContextUserID).(uuid.UUID),
		ActorSlug:      c.MustGet(middleware.ContextUserChatSlug).(string),
		ActorRole:      actorRole,
		TargetUserID:   targetID,
		TargetUserSlug: targetSlug,
		DesiredRole:    desiredRole,
	}
	if member != nil {
		intent.TargetCurrentRole = member.Role
		intent.TargetPresent = true
	}

	result, err := h.sync.Apply(ctx, intent)
	if err != nil {
		if IsKind(err, KindTransient) {
			// The authoritative operation failed on a network fault.
			// Queue the intent; the worker replays it until the
			// network answers.
			if qErr := h.retries.EnqueueMembershipSync(ctx, intent); qErr != nil {
				h.logger.Error("retry enqueue failed", zap.Error(qErr))
				response.ServiceUnavailable(c, "chat network unavailable; please retry")
				return
			}
			c.JSON(http.StatusAccepted, gin.H{
				"success": true,
				"data":    gin.H{"queued": true},
			})
			return
		}
		h.writeChatError(c, err)
		return
	}

	if intent.Remove() {
		if err := h.members.Delete(ctx, entity.ID, targetID); err != nil {
			response.Internal(c, "member removed from room but local cleanup failed")
			return
		}
		response.NoContent(c)
		return
	}
	if err := h.members.Upsert(ctx, entity.TenantID, entity.ID, targetID, desiredRole); err != nil {
		response.Internal(c, "member synchronized but local record failed")
		return
	}
	response.OK(c, gin.H{
		"room_id": result.RoomID,
		"alias":   result.Alias,
		"action":  result.Action,
		"role":    desiredRole,
	})
}

// GetRoom handles GET /tenants/:tenantID/:entityType/:slug/room. It runs
// the full ensure pass, so a missing or orphaned room is repaired here too.
func (h *Handler) GetRoom(c *gin.Context) {
	entity, entityType := h.entityRef(c)
	if entity == nil {
		return
	}
	result, err := h.lifecycle.Ensure(c.Request.Context(), entity.TenantID, entityType, entity.Slug)
	if err != nil {
		h.writeChatError(c, err)
		return
	}
	response.OK(c, result)
}

// GetRoomPermissions handles GET /tenants/:tenantID/:entityType/:slug/room/permissions.
// A diagnostics view: what the bot can currently do in the room, and what
// the diagnose pass attempted.
func (h *Handler) GetRoomPermissions(c *gin.Context) {
	entity, entityType := h.entityRef(c)
	if entity == nil {
		return
	}
	result, err := h.lifecycle.Ensure(c.Request.Context(), entity.TenantID, entityType, entity.Slug)
	if err != nil {
		h.writeChatError(c, err)
		return
	}
	probe := h.identity.BuildUserID(entity.TenantID, c.MustGet(middleware.ContextUserChatSlug).(string))
	snap := h.perms.Diagnose(c.Request.Context(), result.RoomID, probe)
	response.OK(c, snap)
}

// writeChatError maps the error taxonomy onto HTTP responses. The kind
// travels in the envelope's code field so clients can branch on it.
func (h *Handler) writeChatError(c *gin.Context, err error) {
	kind := KindOf(err)
	switch kind {
	case KindNotFound:
		response.ErrorWithCode(c, http.StatusNotFound, string(kind), err.Error())
	case KindForbidden:
		response.ErrorWithCode(c, http.StatusForbidden, string(kind), err.Error())
	case KindPermissionUnavailable:
		response.ErrorWithCode(c, http.StatusServiceUnavailable, string(kind), "the chat service cannot perform this change right now; an operator may need to restore the service account's room permissions")
	case KindTransient:
		response.ErrorWithCode(c, http.StatusServiceUnavailable, string(kind), "chat network temporarily unavailable; please retry")
	default:
		h.logger.Error("chat operation failed", zap.Error(err))
		response.Internal(c, "chat operation failed")
	}
}
