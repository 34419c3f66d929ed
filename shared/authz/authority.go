// Package authz owns the User-Tenant relationship: membership lookup, the
// invitation lifecycle, role changes and the guards around them.
package authz

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adboardhq/platform/shared/models"
)

const defaultInvitationTTLHours = 168 // 7 days

// Directory is the membership persistence surface the authority runs on.
// Lookup methods return models.ErrMembershipNotFound for missing rows.
type Directory interface {
	MembershipFor(userID string, tenantID uuid.UUID) (*models.Membership, error)
	MembershipByEmail(tenantID uuid.UUID, email string) (*models.Membership, error)
	MembershipByToken(token string) (*models.Membership, error)
	TenantMembers(tenantID uuid.UUID) ([]models.Membership, error)
	CreateMembership(m *models.Membership) error
	SaveMembership(m *models.Membership) error
	// CountOtherActiveOwners counts active owner rows in the tenant besides
	// the given membership.
	CountOtherActiveOwners(tenantID, excludeID uuid.UUID) (int64, error)
}

// Authority is the membership authority for all tenants.
type Authority struct {
	dir           Directory
	invitationTTL time.Duration
	nowFn         func() time.Time
}

// NewAuthority creates a membership authority. Invitation lifetime comes
// from INVITATION_TTL_HOURS (default 168).
func NewAuthority(dir Directory) *Authority {
	ttlHours := defaultInvitationTTLHours
	if v := os.Getenv("INVITATION_TTL_HOURS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			ttlHours = parsed
		}
	}
	return &Authority{
		dir:           dir,
		invitationTTL: time.Duration(ttlHours) * time.Hour,
		nowFn:         time.Now,
	}
}

// MembershipFor returns the membership tying a user to a tenant, or
// ErrMembershipNotFound. A (user, tenant) pair has at most one row.
func (a *Authority) MembershipFor(userID string, tenantID uuid.UUID) (*models.Membership, error) {
	return a.dir.MembershipFor(userID, tenantID)
}

// RequireActiveMembership returns the membership only if it grants access.
func (a *Authority) RequireActiveMembership(userID string, tenantID uuid.UUID) (*models.Membership, error) {
	m, err := a.dir.MembershipFor(userID, tenantID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, models.ErrMembershipInactive
	}
	return m, nil
}

// TenantMembers lists all memberships of a tenant.
func (a *Authority) TenantMembers(tenantID uuid.UUID) ([]models.Membership, error) {
	return a.dir.TenantMembers(tenantID)
}

// Invite creates a pending membership carrying a single-use opaque token.
// The invited user's email is the identity the token is redeemable by.
func (a *Authority) Invite(tenantID uuid.UUID, email string, role models.MembershipRole, invitedBy string) (*models.Membership, error) {
	if !models.IsValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	// One membership per (user, tenant); the user id is unknown until
	// acceptance, so pending rows are deduplicated by email.
	_, err := a.dir.MembershipByEmail(tenantID, email)
	if err == nil {
		return nil, fmt.Errorf("user %s already has a membership in this tenant", email)
	}
	if !errors.Is(err, models.ErrMembershipNotFound) {
		return nil, err
	}

	now := a.nowFn()
	m := models.Membership{
		ID:              uuid.New(),
		UserID:          "invite:" + uuid.NewString(), // placeholder until acceptance
		TenantID:        tenantID,
		Email:           email,
		Role:            role,
		Status:          models.MembershipPending,
		InvitationToken: uuid.NewString(),
		InvitedBy:       invitedBy,
		InvitedAt:       &now,
	}
	if err := a.dir.CreateMembership(&m); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return &m, nil
}

// AcceptInvitation redeems an invitation token. Only the invited identity
// may redeem it; acceptance stamps joined_at exactly once, and replays fail
// with ErrInvitationAlreadyUsed.
func (a *Authority) AcceptInvitation(token, userID, email string) (*models.Membership, error) {
	m, err := a.dir.MembershipByToken(token)
	if err != nil {
		if errors.Is(err, models.ErrMembershipNotFound) {
			return nil, models.ErrInvitationInvalidOrExpired
		}
		return nil, err
	}

	if m.JoinedAt != nil || m.Status != models.MembershipPending {
		return nil, models.ErrInvitationAlreadyUsed
	}
	if m.Email != email {
		return nil, models.ErrInvitationInvalidOrExpired
	}
	now := a.nowFn()
	if m.InvitedAt == nil || now.Sub(*m.InvitedAt) > a.invitationTTL {
		return nil, models.ErrInvitationInvalidOrExpired
	}

	m.UserID = userID
	m.Status = models.MembershipActive
	m.JoinedAt = &now
	if err := a.dir.SaveMembership(m); err != nil {
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}
	return m, nil
}

// ChangeRole moves a member to a new role. The actor must outrank both the
// member's current role and the new one; the only exception is stepping
// down, where a member may move themselves to a strictly lower role. Either
// way the change may not leave the tenant ownerless.
func (a *Authority) ChangeRole(actor, target *models.Membership, newRole models.MembershipRole) error {
	if !models.IsValidRole(newRole) {
		return fmt.Errorf("unknown role %q", newRole)
	}
	if isSelf(actor, target) {
		if models.RoleLevel(newRole) >= models.RoleLevel(target.Role) {
			return models.ErrInsufficientRoleLevel
		}
	} else if !actor.CanManageRole(target.Role) || !actor.CanManageRole(newRole) {
		return models.ErrInsufficientRoleLevel
	}
	if target.Role == models.RoleOwner && newRole != models.RoleOwner {
		if err := a.guardLastOwner(target); err != nil {
			return err
		}
	}
	target.Role = newRole
	return a.dir.SaveMembership(target)
}

// RemoveMember marks a membership inactive. Members may remove themselves
// (leaving the tenant); removing the last active owner is refused.
func (a *Authority) RemoveMember(actor, target *models.Membership) error {
	if !isSelf(actor, target) && !actor.CanManageRole(target.Role) {
		return models.ErrInsufficientRoleLevel
	}
	if target.Role == models.RoleOwner {
		if err := a.guardLastOwner(target); err != nil {
			return err
		}
	}
	target.Status = models.MembershipInactive
	return a.dir.SaveMembership(target)
}

// GrantPermission adds an explicit permission grant. Grants are additive to
// the role, never subtractive.
func (a *Authority) GrantPermission(actor, target *models.Membership, permission string) error {
	if !actor.CanManageRole(target.Role) {
		return models.ErrInsufficientRoleLevel
	}
	if target.HasPermission(permission) {
		return nil
	}
	target.Permissions = append(target.Permissions, permission)
	return a.dir.SaveMembership(target)
}

// RevokePermission removes an explicit permission grant.
func (a *Authority) RevokePermission(actor, target *models.Membership, permission string) error {
	if !actor.CanManageRole(target.Role) {
		return models.ErrInsufficientRoleLevel
	}
	kept := make(models.StringList, 0, len(target.Permissions))
	for _, p := range target.Permissions {
		if p != permission {
			kept = append(kept, p)
		}
	}
	target.Permissions = kept
	return a.dir.SaveMembership(target)
}

// isSelf reports whether actor and target are the same membership. Platform
// staff act through a synthetic membership, which never matches a real row's
// user id unless the staff member genuinely holds it.
func isSelf(actor, target *models.Membership) bool {
	return actor.UserID == target.UserID && actor.TenantID == target.TenantID
}

// guardLastOwner refuses any change that would leave the tenant with zero
// active owners.
func (a *Authority) guardLastOwner(target *models.Membership) error {
	owners, err := a.dir.CountOtherActiveOwners(target.TenantID, target.ID)
	if err != nil {
		return err
	}
	if owners == 0 {
		return models.ErrLastOwner
	}
	return nil
}

// GormDirectory is the production Directory.
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory creates the production membership directory.
func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) MembershipFor(userID string, tenantID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := d.db.Where("user_id = ? AND tenant_id = ?", userID, tenantID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (d *GormDirectory) MembershipByEmail(tenantID uuid.UUID, email string) (*models.Membership, error) {
	var m models.Membership
	err := d.db.Where("tenant_id = ? AND email = ?", tenantID, email).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (d *GormDirectory) MembershipByToken(token string) (*models.Membership, error) {
	var m models.Membership
	err := d.db.Where("invitation_token = ?", token).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (d *GormDirectory) TenantMembers(tenantID uuid.UUID) ([]models.Membership, error) {
	var members []models.Membership
	err := d.db.Where("tenant_id = ?", tenantID).Order("created_at asc").Find(&members).Error
	return members, err
}

func (d *GormDirectory) CreateMembership(m *models.Membership) error {
	return d.db.Create(m).Error
}

func (d *GormDirectory) SaveMembership(m *models.Membership) error {
	return d.db.Save(m).Error
}

func (d *GormDirectory) CountOtherActiveOwners(tenantID, excludeID uuid.UUID) (int64, error) {
	var owners int64
	err := d.db.Model(&models.Membership{}).
		Where("tenant_id = ? AND role = ? AND status = ? AND id != ?",
			tenantID, models.RoleOwner, models.MembershipActive, excludeID).
		Count(&owners).Error
	return owners, err
}
