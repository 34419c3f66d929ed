package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleLevelOrdering(t *testing.T) {
	assert.Greater(t, RoleLevel(RoleOwner), RoleLevel(RoleAdmin))
	assert.Greater(t, RoleLevel(RoleAdmin), RoleLevel(RoleManager))
	assert.Greater(t, RoleLevel(RoleManager), RoleLevel(RoleMember))
	assert.Greater(t, RoleLevel(RoleMember), RoleLevel(RoleViewer))
	assert.Equal(t, 0, RoleLevel(MembershipRole("superuser")))
}

func TestIsValidRole(t *testing.T) {
	for _, role := range []MembershipRole{RoleOwner, RoleAdmin, RoleManager, RoleMember, RoleViewer} {
		assert.True(t, IsValidRole(role), "expected %s to be valid", role)
	}
	assert.False(t, IsValidRole(MembershipRole("")))
	assert.False(t, IsValidRole(MembershipRole("root")))
}

func TestCanManageRole(t *testing.T) {
	admin := &Membership{Role: RoleAdmin}

	assert.True(t, admin.CanManageRole(RoleManager))
	assert.True(t, admin.CanManageRole(RoleViewer))

	// Never the same level or above
	assert.False(t, admin.CanManageRole(RoleAdmin))
	assert.False(t, admin.CanManageRole(RoleOwner))

	// Owners cannot manage other owners either
	owner := &Membership{Role: RoleOwner}
	assert.False(t, owner.CanManageRole(RoleOwner))
	assert.True(t, owner.CanManageRole(RoleAdmin))
}

func TestCanManage(t *testing.T) {
	assert.True(t, (&Membership{Role: RoleOwner}).CanManage())
	assert.True(t, (&Membership{Role: RoleAdmin}).CanManage())
	assert.True(t, (&Membership{Role: RoleManager}).CanManage())
	assert.False(t, (&Membership{Role: RoleMember}).CanManage())
	assert.False(t, (&Membership{Role: RoleViewer}).CanManage())
}

func TestMembershipIsActive(t *testing.T) {
	assert.True(t, (&Membership{Status: MembershipActive}).IsActive())
	assert.False(t, (&Membership{Status: MembershipPending}).IsActive())
	assert.False(t, (&Membership{Status: MembershipSuspended}).IsActive())
	assert.False(t, (&Membership{Status: MembershipInactive}).IsActive())
}

func TestHasPermission(t *testing.T) {
	m := &Membership{Role: RoleViewer, Permissions: StringList{"billing:read", "reports:export"}}

	assert.True(t, m.HasPermission("billing:read"))
	assert.False(t, m.HasPermission("billing:write"))

	empty := &Membership{Role: RoleViewer}
	assert.False(t, empty.HasPermission("billing:read"))
}
