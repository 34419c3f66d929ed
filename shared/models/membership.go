package models

import (
	"time"

	"github.com/google/uuid"
)

// MembershipRole is the closed role set. Management rights follow a strict
// total order over role levels; RoleLevel is the single source of ordering.
type MembershipRole string

const (
	RoleOwner   MembershipRole = "owner"
	RoleAdmin   MembershipRole = "admin"
	RoleManager MembershipRole = "manager"
	RoleMember  MembershipRole = "member"
	RoleViewer  MembershipRole = "viewer"
)

var roleLevels = map[MembershipRole]int{
	RoleOwner:   5,
	RoleAdmin:   4,
	RoleManager: 3,
	RoleMember:  2,
	RoleViewer:  1,
}

// RoleLevel returns the ordinal for a role, 0 for unknown roles.
func RoleLevel(role MembershipRole) int {
	return roleLevels[role]
}

// IsValidRole reports whether role belongs to the closed role set.
func IsValidRole(role MembershipRole) bool {
	_, ok := roleLevels[role]
	return ok
}

// MembershipStatus represents the state of a user's membership in a tenant.
type MembershipStatus string

const (
	MembershipPending   MembershipStatus = "pending"
	MembershipActive    MembershipStatus = "active"
	MembershipSuspended MembershipStatus = "suspended"
	MembershipInactive  MembershipStatus = "inactive"
)

// Membership ties one user to one tenant with a role. A (user, tenant) pair
// has at most one row. Pending rows carry a single-use invitation token.
type Membership struct {
	ID              uuid.UUID        `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID          string           `json:"user_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_memberships_user_tenant"`
	TenantID        uuid.UUID        `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_tenant;index"`
	Email           string           `json:"email" gorm:"not null"`
	Role            MembershipRole   `json:"role" gorm:"type:varchar(20);default:'member'"`
	Status          MembershipStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Permissions     StringList       `json:"permissions" gorm:"type:jsonb;default:'[]'"`
	InvitationToken string           `json:"-" gorm:"index"`
	InvitedBy       string           `json:"invited_by,omitempty"`
	InvitedAt       *time.Time       `json:"invited_at,omitempty"`
	JoinedAt        *time.Time       `json:"joined_at,omitempty"`
	LastAccessedAt  *time.Time       `json:"last_accessed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

func (Membership) TableName() string {
	return "memberships"
}

// IsActive reports whether the membership grants access right now.
func (m *Membership) IsActive() bool {
	return m.Status == MembershipActive
}

// CanManage reports whether the membership's role carries management rights
// within its tenant.
func (m *Membership) CanManage() bool {
	switch m.Role {
	case RoleOwner, RoleAdmin, RoleManager:
		return true
	}
	return false
}

// CanManageRole reports whether this membership may manage a target role.
// A role can never manage its own level or a higher one.
func (m *Membership) CanManageRole(target MembershipRole) bool {
	return RoleLevel(m.Role) > RoleLevel(target)
}

// HasPermission checks the explicit grant list. Grants are additive to the
// role, never subtractive.
func (m *Membership) HasPermission(name string) bool {
	return m.Permissions.Contains(name)
}
