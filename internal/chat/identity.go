package chat

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/convene-hq/backend/internal/models"
)

// Identity is the bidirectional mapping between tenant-scoped entities and
// the chat network's alias and user-ID string formats. It is the only place
// tenant context is recovered from inbound federation callbacks, so parsing
// fails closed: any string that does not match the exact shape is rejected,
// never guessed at.
//
// Alias shape:   #{entityType}-{entitySlug}-{tenantHex}:{domain}
// User-ID shape: @{userSlug}-{tenantHex}:{domain}
//
// The tenant ID is encoded as 32 lowercase hex chars (UUID without hyphens)
// and anchored on the LAST hyphen-separated segment. Slugs may themselves
// contain hyphens; an attacker-controlled slug therefore cannot forge a
// different tenant's alias, because whatever it embeds is consumed by the
// slug portion and the true tenant segment stays the anchor.
type Identity struct {
	domain string
}

// NewIdentity creates the identity codec for a fixed server domain.
func NewIdentity(domain string) *Identity {
	return &Identity{domain: domain}
}

// Domain returns the server domain every managed alias and user ID ends in.
func (i *Identity) Domain() string { return i.domain }

// AliasRef is the parsed form of a managed room alias.
type AliasRef struct {
	TenantID   uuid.UUID
	EntityType models.EntityType
	EntitySlug string
}

// UserRef is the parsed form of a managed user ID.
type UserRef struct {
	TenantID uuid.UUID
	UserSlug string
}

var tenantHexRegex = regexp.MustCompile(`^[0-9a-f]{32}$`)

// BuildAlias returns the deterministic room alias for an entity.
func (i *Identity) BuildAlias(tenantID uuid.UUID, entityType models.EntityType, entitySlug string) string {
	return fmt.Sprintf("#%s-%s-%s:%s", entityType, entitySlug, tenantHex(tenantID), i.domain)
}

// AliasLocalpart returns the alias without the leading # and domain, the
// form the chat network expects at room-creation time.
func (i *Identity) AliasLocalpart(tenantID uuid.UUID, entityType models.EntityType, entitySlug string) string {
	return fmt.Sprintf("%s-%s-%s", entityType, entitySlug, tenantHex(tenantID))
}

// ParseAlias recovers the tenant and entity from a room alias. Returns a
// NotFound error for anything that is not a well-formed managed alias.
func (i *Identity) ParseAlias(alias string) (AliasRef, error) {
	localpart, ok := i.splitLocalpart(alias, '#')
	if !ok {
		return AliasRef{}, notFoundf("parse-alias", "alias %q is not in this server's namespace", alias)
	}

	typePart, rest, ok := strings.Cut(localpart, "-")
	if !ok {
		return AliasRef{}, notFoundf("parse-alias", "alias %q has no entity type", alias)
	}
	entityType, ok := models.ParseEntityType(typePart)
	if !ok {
		return AliasRef{}, notFoundf("parse-alias", "alias %q has unknown entity type", alias)
	}

	// Tenant anchors on the last hyphen-separated segment; everything
	// between type and tenant is the slug (which may contain hyphens).
	cut := strings.LastIndex(rest, "-")
	if cut <= 0 {
		return AliasRef{}, notFoundf("parse-alias", "alias %q has no tenant segment", alias)
	}
	slug, tenantPart := rest[:cut], rest[cut+1:]
	tenantID, ok := parseTenantHex(tenantPart)
	if !ok {
		return AliasRef{}, notFoundf("parse-alias", "alias %q has malformed tenant segment", alias)
	}
	if !models.ValidSlug(slug) {
		return AliasRef{}, notFoundf("parse-alias", "alias %q has malformed entity slug", alias)
	}
	return AliasRef{TenantID: tenantID, EntityType: entityType, EntitySlug: slug}, nil
}

// BuildUserID returns the deterministic chat user ID for a tenant user.
func (i *Identity) BuildUserID(tenantID uuid.UUID, userSlug string) string {
	return fmt.Sprintf("@%s-%s:%s", userSlug, tenantHex(tenantID), i.domain)
}

// ParseUserID recovers the tenant and user slug from a chat user ID, with
// the same fail-closed contract as ParseAlias.
func (i *Identity) ParseUserID(userID string) (UserRef, error) {
	localpart, ok := i.splitLocalpart(userID, '@')
	if !ok {
		return UserRef{}, notFoundf("parse-user", "user ID %q is not in this server's namespace", userID)
	}
	cut := strings.LastIndex(localpart, "-")
	if cut <= 0 {
		return UserRef{}, notFoundf("parse-user", "user ID %q has no tenant segment", userID)
	}
	slug, tenantPart := localpart[:cut], localpart[cut+1:]
	tenantID, ok := parseTenantHex(tenantPart)
	if !ok {
		return UserRef{}, notFoundf("parse-user", "user ID %q has malformed tenant segment", userID)
	}
	if !models.ValidSlug(slug) {
		return UserRef{}, notFoundf("parse-user", "user ID %q has malformed user slug", userID)
	}
	return UserRef{TenantID: tenantID, UserSlug: slug}, nil
}

// splitLocalpart checks the sigil and domain and returns the localpart
// between them. The domain must match exactly; anything else is foreign.
func (i *Identity) splitLocalpart(id string, sigil byte) (string, bool) {
	if len(id) < 2 || id[0] != sigil {
		return "", false
	}
	localpart, domain, ok := strings.Cut(id[1:], ":")
	if !ok || domain != i.domain || localpart == "" {
		return "", false
	}
	return localpart, true
}

func tenantHex(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}

func parseTenantHex(s string) (uuid.UUID, bool) {
	if !tenantHexRegex.MatchString(s) {
		return uuid.Nil, false
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.FromBytes(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
