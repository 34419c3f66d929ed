package main

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adboardhq/platform/shared/authz"
	"github.com/adboardhq/platform/shared/middleware"
	"github.com/adboardhq/platform/shared/models"
	"github.com/adboardhq/platform/shared/utils"
)

const trialDays = 14

// CreateTenantRequest represents the signup request (platform admin only).
type CreateTenantRequest struct {
	Name          string `json:"name" binding:"required"`
	Slug          string `json:"slug" binding:"required"`
	Subdomain     string `json:"subdomain"`
	Domain        string `json:"domain"`
	BillingPlanID string `json:"billing_plan_id" binding:"required"`
	OwnerEmail    string `json:"owner_email" binding:"required,email"`
}

// UpdateTenantRequest represents the update tenant request
type UpdateTenantRequest struct {
	Name      *string `json:"name"`
	Subdomain *string `json:"subdomain"`
	Domain    *string `json:"domain"`
}

// handleCreateTenant handles tenant signup: the tenant row, a trial
// subscription on the chosen plan, and the owner invitation.
func handleCreateTenant(db *gorm.DB, authority *authz.Authority) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		planID, err := uuid.Parse(req.BillingPlanID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid billing plan id")
			return
		}

		var plan models.BillingPlan
		if err := db.Where("id = ?", planID).First(&plan).Error; err != nil {
			utils.BadRequestResponse(c, "Billing plan not found")
			return
		}
		if err := models.ValidatePlan(&plan); err != nil {
			utils.InternalServerErrorResponse(c, "Billing plan is misconfigured")
			return
		}

		// Each resolution key must be unique among live tenants
		var existing models.Tenant
		if err := db.Where("slug = ?", req.Slug).First(&existing).Error; err == nil {
			utils.BadRequestResponse(c, "Slug already exists")
			return
		}
		if req.Subdomain != "" {
			if err := db.Where("subdomain = ?", req.Subdomain).First(&existing).Error; err == nil {
				utils.BadRequestResponse(c, "Subdomain already exists")
				return
			}
		}
		if req.Domain != "" {
			if err := db.Where("domain = ?", req.Domain).First(&existing).Error; err == nil {
				utils.BadRequestResponse(c, "Domain already exists")
				return
			}
		}

		now := time.Now()
		trialEnd := now.AddDate(0, 0, trialDays)

		tenant := models.Tenant{
			ID:               uuid.New(),
			Name:             req.Name,
			Slug:             req.Slug,
			Subdomain:        req.Subdomain,
			Domain:           req.Domain,
			IsActive:         true,
			FeatureFlags:     models.FlagsForPlan(&plan),
			SubscriptionTier: plan.Name,
		}

		subscription := models.TenantSubscription{
			ID:                 uuid.New(),
			TenantID:           tenant.ID,
			BillingPlanID:      plan.ID,
			Status:             models.SubscriptionTrial,
			IsCurrent:          true,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   trialEnd,
			TrialEndsAt:        &trialEnd,
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&tenant).Error; err != nil {
				return err
			}
			return tx.Create(&subscription).Error
		})
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to create tenant")
			return
		}

		actorID, _, _ := middleware.GetUserFromContext(c)
		invitation, err := authority.Invite(tenant.ID, req.OwnerEmail, models.RoleOwner, actorID)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Tenant created but owner invitation failed")
			return
		}

		utils.CreatedResponse(c, "Tenant created successfully", gin.H{
			"tenant":           tenant,
			"subscription":     subscription,
			"owner_invitation": gin.H{"token": invitation.InvitationToken, "email": invitation.Email},
		})
	}
}

// handleGetTenants handles getting all tenants (platform admin only)
func handleGetTenants(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tenants []models.Tenant
		if err := db.Find(&tenants).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch tenants")
			return
		}

		utils.OKResponse(c, "Tenants retrieved successfully", tenants)
	}
}

// handleGetTenant returns the resolved tenant.
func handleGetTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, _ := middleware.GetTenantFromContext(c)
		utils.OKResponse(c, "Tenant retrieved successfully", tenant)
	}
}

// handleUpdateTenant handles updating a tenant's identity fields. Activity
// and feature flags are owned by enforcement, not by this endpoint.
func handleUpdateTenant(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, _ := middleware.GetTenantFromContext(c)

		var req UpdateTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		if req.Name != nil {
			tenant.Name = *req.Name
		}
		if req.Subdomain != nil {
			var existing models.Tenant
			if err := db.Where("subdomain = ? AND id != ?", *req.Subdomain, tenant.ID).First(&existing).Error; err == nil {
				utils.BadRequestResponse(c, "Subdomain already exists")
				return
			}
			tenant.Subdomain = *req.Subdomain
		}
		if req.Domain != nil {
			var existing models.Tenant
			if err := db.Where("domain = ? AND id != ?", *req.Domain, tenant.ID).First(&existing).Error; err == nil {
				utils.BadRequestResponse(c, "Domain already exists")
				return
			}
			tenant.Domain = *req.Domain
		}

		if err := db.Save(tenant).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to update tenant")
			return
		}

		utils.OKResponse(c, "Tenant updated successfully", tenant)
	}
}

// handleRetireTenant soft-retires a tenant (platform admin only). Tenant
// rows are never physically deleted.
func handleRetireTenant(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, _ := middleware.GetTenantFromContext(c)

		tenant.IsActive = false
		if err := db.Save(tenant).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to retire tenant")
			return
		}
		if err := db.Delete(tenant).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to retire tenant")
			return
		}

		utils.OKResponse(c, "Tenant retired", nil)
	}
}

// InviteMemberRequest represents a membership invitation.
type InviteMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

// handleGetMembers lists a tenant's memberships.
func handleGetMembers(authority *authz.Authority) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, _ := middleware.GetTenantFromContext(c)

		members, err := authority.TenantMembers(tenant.ID)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch members")
			return
		}

		utils.OKResponse(c, "Members retrieved successfully", members)
	}
}

// handleInviteMember creates a pending membership with a single-use token.
// The invite email itself is sent by the notification subsystem.
func handleInviteMember(authority *authz.Authority) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, _ := middleware.GetTenantFromContext(c)

		var req InviteMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		role := models.MembershipRole(req.Role)
		if !models.IsValidRole(role) {
			utils.BadRequestResponse(c, "Unknown role")
			return
		}

		// The inviter must outrank the role being granted
		if actor, ok := middleware.GetMembershipFromContext(c); ok && actor != nil {
			if !actor.CanManageRole(role) {
				utils.ForbiddenResponse(c, "Cannot invite at or above your own role level")
				return
			}
		}

		actorID, _, _ := middleware.GetUserFromContext(c)
		invitation, err := authority.Invite(tenant.ID, req.Email, role, actorID)
		if err != nil {
			utils.BadRequestResponse(c, err.Error())
			return
		}

		utils.CreatedResponse(c, "Invitation created", invitation)
	}
}

// AcceptInvitationRequest redeems an invitation token.
type AcceptInvitationRequest struct {
	Token string `json:"token" binding:"required"`
}

// handleAcceptInvitation transitions a pending membership to active. Only
// the invited identity may redeem, exactly once.
func handleAcceptInvitation(authority *authz.Authority) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AcceptInvitationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		userID, email, _ := middleware.GetUserFromContext(c)
		membership, err := authority.AcceptInvitation(req.Token, userID, email)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrInvitationAlreadyUsed):
				utils.ErrorResponse(c, 409, "Invitation has already been used")
			case errors.Is(err, models.ErrInvitationInvalidOrExpired):
				utils.BadRequestResponse(c, "Invitation is invalid or expired")
			default:
				utils.InternalServerErrorResponse(c, "Failed to accept invitation")
			}
			return
		}

		utils.OKResponse(c, "Invitation accepted", membership)
	}
}

// ChangeRoleRequest updates a member's role.
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// handleChangeMemberRole changes a member's role, enforcing the role
// hierarchy and the last-owner guard.
func handleChangeMemberRole(db *gorm.DB, authority *authz.Authority) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, ok := loadTargetMembership(c, db)
		if !ok {
			return
		}

		var req ChangeRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		actor, ok := requireActor(c)
		if !ok {
			return
		}

		if err := authority.ChangeRole(actor, target, models.MembershipRole(req.Role)); err != nil {
			respondAuthorityError(c, err)
			return
		}

		utils.OKResponse(c, "Role updated", target)
	}
}

// handleRemoveMember marks a membership inactive.
func handleRemoveMember(db *gorm.DB, authority *authz.Authority) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, ok := loadTargetMembership(c, db)
		if !ok {
			return
		}

		actor, ok := requireActor(c)
		if !ok {
			return
		}

		if err := authority.RemoveMember(actor, target); err != nil {
			respondAuthorityError(c, err)
			return
		}

		utils.OKResponse(c, "Member removed", nil)
	}
}

// PermissionRequest grants or revokes one explicit permission.
type PermissionRequest struct {
	Permission string `json:"permission" binding:"required"`
}

// handleGrantPermission adds an explicit permission grant to a membership.
func handleGrantPermission(db *gorm.DB, authority *authz.Authority) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, ok := loadTargetMembership(c, db)
		if !ok {
			return
		}

		var req PermissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		actor, ok := requireActor(c)
		if !ok {
			return
		}

		if err := authority.GrantPermission(actor, target, req.Permission); err != nil {
			respondAuthorityError(c, err)
			return
		}

		utils.OKResponse(c, "Permission granted", target)
	}
}

// handleRevokePermission removes an explicit permission grant.
func handleRevokePermission(db *gorm.DB, authority *authz.Authority) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, ok := loadTargetMembership(c, db)
		if !ok {
			return
		}

		var req PermissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		actor, ok := requireActor(c)
		if !ok {
			return
		}

		if err := authority.RevokePermission(actor, target, req.Permission); err != nil {
			respondAuthorityError(c, err)
			return
		}

		utils.OKResponse(c, "Permission revoked", target)
	}
}

// loadTargetMembership fetches the membership addressed by :member_id,
// scoped to the resolved tenant.
func loadTargetMembership(c *gin.Context, db *gorm.DB) (*models.Membership, bool) {
	tenant, _ := middleware.GetTenantFromContext(c)

	memberID, err := uuid.Parse(c.Param("member_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid member id")
		return nil, false
	}

	var target models.Membership
	if err := db.Where("id = ? AND tenant_id = ?", memberID, tenant.ID).First(&target).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFoundResponse(c, "Membership not found")
		} else {
			utils.InternalServerErrorResponse(c, "Failed to fetch membership")
		}
		return nil, false
	}
	return &target, true
}

// requireActor returns the caller's membership. Platform staff have no
// membership row and act with owner-level standing.
func requireActor(c *gin.Context) (*models.Membership, bool) {
	if actor, ok := middleware.GetMembershipFromContext(c); ok && actor != nil {
		return actor, true
	}
	if middleware.IsPlatformAdmin(c) {
		tenant, _ := middleware.GetTenantFromContext(c)
		userID, email, _ := middleware.GetUserFromContext(c)
		return &models.Membership{
			UserID:   userID,
			TenantID: tenant.ID,
			Email:    email,
			Role:     models.RoleOwner,
			Status:   models.MembershipActive,
		}, true
	}
	utils.ForbiddenResponse(c, "No membership in this tenant")
	return nil, false
}

// respondAuthorityError maps authority errors to HTTP responses.
func respondAuthorityError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInsufficientRoleLevel):
		utils.ForbiddenResponse(c, "Insufficient role level for this change")
	case errors.Is(err, models.ErrLastOwner):
		utils.ErrorResponse(c, 409, "Tenant must keep at least one active owner")
	default:
		utils.InternalServerErrorResponse(c, "Failed to update membership")
	}
}
