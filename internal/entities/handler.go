package entities

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/convene-hq/backend/internal/chat"
	"github.com/convene-hq/backend/internal/members"
	"github.com/convene-hq/backend/internal/middleware"
	"github.com/convene-hq/backend/internal/models"
	"github.com/convene-hq/backend/pkg/response"
)

// Handler handles event and group HTTP endpoints.
type Handler struct {
	repo      *Repository
	members   *members.Repository
	lifecycle *chat.LifecycleManager
	logger    *zap.Logger
}

// NewHandler creates an entities handler.
func NewHandler(repo *Repository, memberRepo *members.Repository, lifecycle *chat.LifecycleManager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, members: memberRepo, lifecycle: lifecycle, logger: logger}
}

// CreateEntityRequest is the body for POST /tenants/:tenantID/:entityType.
type CreateEntityRequest struct {
	Slug        string     `json:"slug" binding:"required"`
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	StartsAt    *time.Time `json:"starts_at"`
}

// RenameEntityRequest is the body for POST .../:slug/rename.
type RenameEntityRequest struct {
	NewSlug string `json:"new_slug" binding:"required"`
}

func entityTypeParam(c *gin.Context) (models.EntityType, bool) {
	entityType, ok := models.ParseEntityType(c.Param("entityType"))
	if !ok {
		response.BadRequest(c, "entity type must be event or group")
		return "", false
	}
	return entityType, true
}

// Create handles POST /tenants/:tenantID/:entityType. The creator becomes
// the entity's owner. No room is created yet; rooms appear on first use.
func (h *Handler) Create(c *gin.Context) {
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	var body CreateEntityRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "slug and title required")
		return
	}
	slug := strings.ToLower(strings.TrimSpace(body.Slug))
	if !models.ValidSlug(slug) {
		response.BadRequest(c, "slug must be lowercase letters, numbers, hyphens only")
		return
	}
	title := strings.TrimSpace(body.Title)
	if len(title) < 1 || len(title) > 255 {
		response.BadRequest(c, "title must be 1-255 characters")
		return
	}
	entity := &models.Entity{
		TenantID:    tenantID,
		Type:        entityType,
		Slug:        slug,
		Title:       title,
		Description: strings.TrimSpace(body.Description),
		StartsAt:    body.StartsAt,
		CreatedBy:   userID,
	}
	if err := h.repo.Create(c.Request.Context(), entity); err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique") {
			response.Conflict(c, "An entity with this slug already exists in this tenant")
			return
		}
		response.Internal(c, "failed to create entity")
		return
	}
	if err := h.members.Upsert(c.Request.Context(), tenantID, entity.ID, userID, models.RoomRoleOwner); err != nil {
		response.Internal(c, "entity created but owner membership failed")
		return
	}
	response.Created(c, entity)
}

// List handles GET /tenants/:tenantID/:entityType.
func (h *Handler) List(c *gin.Context) {
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)
	entityType, ok := entityTypeParam(c)
	if !ok {
		return
	}
	list, err := h.repo.List(c.Request.Context(), tenantID, entityType)
	if err != nil {
		response.Internal(c, "failed to load entities")
		return
	}
	response.OK(c, list)
}

// Get handles GET /tenants/:tenantID/:entityType/:slug.
func (h *Handler) Get(c *gin.Context) {
	entity, _, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, entity)
}

// ListMembers handles GET /tenants/:tenantID/:entityType/:slug/members.
func (h *Handler) ListMembers(c *gin.Context) {
	entity, _, ok := h.load(c)
	if !ok {
		return
	}
	list, err := h.members.List(c.Request.Context(), entity.ID)
	if err != nil {
		response.Internal(c, "failed to load members")
		return
	}
	response.OK(c, list)
}

// Rename handles POST /tenants/:tenantID/:entityType/:slug/rename. The
// local record changes first, then the room's alias is repointed so both
// addresses keep resolving to the same room.
func (h *Handler) Rename(c *gin.Context) {
	entity, entityType, ok := h.load(c)
	if !ok {
		return
	}
	if !h.requireOwner(c, entity.ID) {
		return
	}
	var body RenameEntityRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "new_slug required")
		return
	}
	newSlug := strings.ToLower(strings.TrimSpace(body.NewSlug))
	if !models.ValidSlug(newSlug) {
		response.BadRequest(c, "new_slug must be lowercase letters, numbers, hyphens only")
		return
	}
	if newSlug == entity.Slug {
		response.OK(c, entity)
		return
	}
	renamed, err := h.repo.RenameSlug(c.Request.Context(), entity.TenantID, entityType, entity.Slug, newSlug)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique") {
			response.Conflict(c, "An entity with this slug already exists in this tenant")
			return
		}
		response.Internal(c, "failed to rename entity")
		return
	}
	if !renamed {
		response.NotFound(c, "Entity not found")
		return
	}
	result, err := h.lifecycle.RepointAlias(c.Request.Context(), entity.TenantID, entityType, entity.Slug, newSlug)
	if err != nil {
		// The record is renamed; the alias repoint is retried by the
		// next ensure pass against the new slug.
		h.logger.Warn("alias repoint failed after rename",
			zap.String("old_slug", entity.Slug),
			zap.String("new_slug", newSlug),
			zap.Error(err),
		)
		entity.Slug = newSlug
		response.OK(c, gin.H{"entity": entity, "alias": nil})
		return
	}
	entity.Slug = newSlug
	response.OK(c, gin.H{"entity": entity, "alias": result.Alias, "room_id": result.RoomID})
}

// Delete handles DELETE /tenants/:tenantID/:entityType/:slug. The room
// record is dropped with the entity; the room itself is left behind on the
// chat network, unreachable through us.
func (h *Handler) Delete(c *gin.Context) {
	entity, entityType, ok := h.load(c)
	if !ok {
		return
	}
	if !h.requireOwner(c, entity.ID) {
		return
	}
	if err := h.lifecycle.Forget(c.Request.Context(), entity.TenantID, entityType, entity.Slug); err != nil {
		response.Internal(c, "failed to release room record")
		return
	}
	deleted, err := h.repo.Delete(c.Request.Context(), entity.TenantID, entityType, entity.Slug)
	if err != nil {
		response.Internal(c, "failed to delete entity")
		return
	}
	if !deleted {
		response.NotFound(c, "Entity not found")
		return
	}
	response.NoContent(c)
}

func (h *Handler) load(c *gin.Context) (*models.Entity, models.EntityType, bool) {
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)
	entityType, ok := entityTypeParam(c)
	if !ok {
		return nil, "", false
	}
	slug := strings.ToLower(c.Param("slug"))
	if !models.ValidSlug(slug) {
		response.BadRequest(c, "invalid entity slug")
		return nil, "", false
	}
	entity, err := h.repo.GetBySlug(c.Request.Context(), tenantID, entityType, slug)
	if err != nil {
		response.Internal(c, "failed to load entity")
		return nil, "", false
	}
	if entity == nil {
		response.NotFound(c, "Entity not found")
		return nil, "", false
	}
	return entity, entityType, true
}

// requireOwner allows the entity's owners and platform admins through.
func (h *Handler) requireOwner(c *gin.Context, entityID uuid.UUID) bool {
	if role, _ := c.Get(middleware.ContextUserRole); role == string(models.PlatformRoleAdmin) {
		return true
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	member, err := h.members.Get(c.Request.Context(), entityID, userID)
	if err != nil {
		response.Internal(c, "failed to load your membership")
		return false
	}
	if member == nil || member.Role != models.RoomRoleOwner {
		response.Forbidden(c, "only an owner may do this")
		return false
	}
	return true
}
