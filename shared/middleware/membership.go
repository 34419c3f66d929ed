package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/adboardhq/platform/shared/authz"
	"github.com/adboardhq/platform/shared/models"
	"github.com/adboardhq/platform/shared/utils"
)

// CtxMembership is the context key carrying the caller's *models.Membership
// in the resolved tenant.
const CtxMembership = "membership"

// MembershipGuard authorizes the authenticated user against the resolved
// tenant. Platform staff bypass membership checks.
type MembershipGuard struct {
	authority *authz.Authority
}

// NewMembershipGuard creates a guard over the given authority.
func NewMembershipGuard(authority *authz.Authority) *MembershipGuard {
	return &MembershipGuard{authority: authority}
}

// RequireMember admits users holding an active membership in the resolved
// tenant. Must run after the tenant resolver.
func (g *MembershipGuard) RequireMember() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsPlatformAdmin(c) {
			c.Next()
			return
		}
		if _, ok := g.loadMembership(c); !ok {
			return
		}
		c.Next()
	}
}

// RequireManager admits members whose role carries management rights
// (owner, admin or manager).
func (g *MembershipGuard) RequireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsPlatformAdmin(c) {
			c.Next()
			return
		}
		m, ok := g.loadMembership(c)
		if !ok {
			return
		}
		if !m.CanManage() {
			utils.ForbiddenResponse(c, "Management rights required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// loadMembership resolves the caller's active membership in the resolved
// tenant and binds it into the context. Aborts the request on failure.
func (g *MembershipGuard) loadMembership(c *gin.Context) (*models.Membership, bool) {
	tenant, ok := GetTenantFromContext(c)
	if !ok {
		utils.InternalServerErrorResponse(c, "Tenant not resolved")
		c.Abort()
		return nil, false
	}

	userID := c.GetString(CtxUserID)
	m, err := g.authority.RequireActiveMembership(userID, tenant.ID)
	if err != nil {
		if errors.Is(err, models.ErrMembershipNotFound) || errors.Is(err, models.ErrMembershipInactive) {
			utils.ForbiddenResponse(c, "No active membership in this tenant")
		} else {
			utils.InternalServerErrorResponse(c, "Failed to check membership")
		}
		c.Abort()
		return nil, false
	}

	c.Set(CtxMembership, m)
	return m, true
}

// GetMembershipFromContext extracts the caller's membership in the resolved
// tenant. Nil for platform staff acting without a membership.
func GetMembershipFromContext(c *gin.Context) (*models.Membership, bool) {
	val, exists := c.Get(CtxMembership)
	if !exists {
		return nil, false
	}
	m, ok := val.(*models.Membership)
	return m, ok
}
