package tenants

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/convene-hq/backend/internal/middleware"
	"github.com/convene-hq/backend/internal/models"
	"github.com/convene-hq/backend/pkg/response"
)

// Handler handles tenant HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a tenants handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// CreateTenantRequest is the body for POST /tenants.
type CreateTenantRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug" binding:"required"`
}

// JoinTenantRequest is the body for POST /tenants/join.
type JoinTenantRequest struct {
	Slug string `json:"slug" binding:"required"`
}

// Create handles POST /tenants. Creates the tenant and adds the current
// user as owner.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body CreateTenantRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name and slug required")
		return
	}
	body.Slug = strings.ToLower(strings.TrimSpace(body.Slug))
	if !models.ValidSlug(body.Slug) {
		response.BadRequest(c, "slug must be lowercase letters, numbers, hyphens only")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.BadRequest(c, "name must be 1-255 characters")
		return
	}
	tenant := &models.Tenant{Name: body.Name, Slug: body.Slug}
	if err := h.repo.Create(c.Request.Context(), tenant); err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique") {
			response.Conflict(c, "A tenant with this slug already exists")
			return
		}
		response.Internal(c, "failed to create tenant")
		return
	}
	if err := h.repo.AddUser(c.Request.Context(), tenant.ID, userID, models.TenantRoleOwner); err != nil {
		response.Internal(c, "failed to add you as owner")
		return
	}
	response.Created(c, tenant)
}

// Join handles POST /tenants/join. Adds the current user to a tenant by
// slug as a regular member.
func (h *Handler) Join(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body JoinTenantRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "slug required")
		return
	}
	slug := strings.ToLower(strings.TrimSpace(body.Slug))
	tenant, err := h.repo.GetBySlug(c.Request.Context(), slug)
	if err != nil || tenant == nil {
		response.NotFound(c, "Tenant not found")
		return
	}
	if err := h.repo.AddUser(c.Request.Context(), tenant.ID, userID, models.TenantRoleMember); err != nil {
		response.Internal(c, "failed to join tenant")
		return
	}
	response.OK(c, tenant)
}

// ListMine handles GET /tenants. Returns tenants the current user belongs to.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load tenants")
		return
	}
	response.OK(c, list)
}

// ListMembers handles GET /tenants/:tenantID/members.
func (h *Handler) ListMembers(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("tenantID"))
	if err != nil {
		response.BadRequest(c, "invalid tenant id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ok, err := h.repo.UserHasAccess(c.Request.Context(), tenantID, userID)
	if err != nil || !ok {
		response.Forbidden(c, "not authorized for this tenant")
		return
	}
	list, err := h.repo.ListMembers(c.Request.Context(), tenantID)
	if err != nil {
		response.Internal(c, "failed to load members")
		return
	}
	response.OK(c, list)
}

// RequireTenantAccess validates that the authenticated user belongs to the
// tenant named in the route. Tenant ID is always explicit in the path,
// never inferred from session state.
func RequireTenantAccess(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := uuid.Parse(c.Param("tenantID"))
		if err != nil {
			response.BadRequest(c, "invalid tenant id")
			c.Abort()
			return
		}
		userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
		ok, err := repo.UserHasAccess(c.Request.Context(), tenantID, userID)
		if err != nil || !ok {
			response.Forbidden(c, "not authorized for this tenant")
			c.Abort()
			return
		}
		c.Set(middleware.ContextTenantID, tenantID)
		c.Next()
	}
}
