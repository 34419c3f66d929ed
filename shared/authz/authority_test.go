package authz

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adboardhq/platform/shared/models"
)

type fakeDirectory struct {
	rows  []*models.Membership
	saved int
}

func (f *fakeDirectory) MembershipFor(userID string, tenantID uuid.UUID) (*models.Membership, error) {
	for _, m := range f.rows {
		if m.UserID == userID && m.TenantID == tenantID {
			return m, nil
		}
	}
	return nil, models.ErrMembershipNotFound
}

func (f *fakeDirectory) MembershipByEmail(tenantID uuid.UUID, email string) (*models.Membership, error) {
	for _, m := range f.rows {
		if m.TenantID == tenantID && m.Email == email {
			return m, nil
		}
	}
	return nil, models.ErrMembershipNotFound
}

func (f *fakeDirectory) MembershipByToken(token string) (*models.Membership, error) {
	for _, m := range f.rows {
		if m.InvitationToken == token {
			return m, nil
		}
	}
	return nil, models.ErrMembershipNotFound
}

func (f *fakeDirectory) TenantMembers(tenantID uuid.UUID) ([]models.Membership, error) {
	var out []models.Membership
	for _, m := range f.rows {
		if m.TenantID == tenantID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeDirectory) CreateMembership(m *models.Membership) error {
	f.rows = append(f.rows, m)
	return nil
}

func (f *fakeDirectory) SaveMembership(m *models.Membership) error {
	f.saved++
	return nil
}

func (f *fakeDirectory) CountOtherActiveOwners(tenantID, excludeID uuid.UUID) (int64, error) {
	var owners int64
	for _, m := range f.rows {
		if m.TenantID == tenantID && m.Role == models.RoleOwner &&
			m.Status == models.MembershipActive && m.ID != excludeID {
			owners++
		}
	}
	return owners, nil
}

var authzNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestAuthority(dir *fakeDirectory) *Authority {
	a := NewAuthority(dir)
	a.nowFn = func() time.Time { return authzNow }
	return a
}

func activeMember(tenantID uuid.UUID, role models.MembershipRole) *models.Membership {
	userID := uuid.NewString()
	return &models.Membership{
		ID:       uuid.New(),
		UserID:   userID,
		TenantID: tenantID,
		Email:    userID + "@skyline-media.com",
		Role:     role,
		Status:   models.MembershipActive,
	}
}

func TestAcceptInvitationActivatesOnce(t *testing.T) {
	tenantID := uuid.New()
	dir := &fakeDirectory{}
	a := newTestAuthority(dir)

	invitation, err := a.Invite(tenantID, "new.hire@skyline-media.com", models.RoleMember, "inviter-1")
	require.NoError(t, err)
	require.Equal(t, models.MembershipPending, invitation.Status)
	require.NotEmpty(t, invitation.InvitationToken)
	assert.Nil(t, invitation.JoinedAt)

	accepted, err := a.AcceptInvitation(invitation.InvitationToken, "user-42", "new.hire@skyline-media.com")
	require.NoError(t, err)
	assert.Equal(t, "user-42", accepted.UserID)
	assert.Equal(t, models.MembershipActive, accepted.Status)
	require.NotNil(t, accepted.JoinedAt)
	assert.Equal(t, authzNow, *accepted.JoinedAt)

	// Redeeming the same token again must fail
	_, err = a.AcceptInvitation(invitation.InvitationToken, "user-43", "new.hire@skyline-media.com")
	assert.ErrorIs(t, err, models.ErrInvitationAlreadyUsed)
	assert.Equal(t, authzNow, *accepted.JoinedAt)
}

func TestAcceptInvitationWrongIdentity(t *testing.T) {
	tenantID := uuid.New()
	dir := &fakeDirectory{}
	a := newTestAuthority(dir)

	invitation, err := a.Invite(tenantID, "new.hire@skyline-media.com", models.RoleMember, "inviter-1")
	require.NoError(t, err)

	_, err = a.AcceptInvitation(invitation.InvitationToken, "user-42", "someone.else@skyline-media.com")
	assert.ErrorIs(t, err, models.ErrInvitationInvalidOrExpired)
}

func TestAcceptInvitationExpiredToken(t *testing.T) {
	tenantID := uuid.New()
	dir := &fakeDirectory{}
	a := newTestAuthority(dir)

	invitation, err := a.Invite(tenantID, "new.hire@skyline-media.com", models.RoleMember, "inviter-1")
	require.NoError(t, err)

	a.nowFn = func() time.Time { return authzNow.Add(a.invitationTTL + time.Hour) }
	_, err = a.AcceptInvitation(invitation.InvitationToken, "user-42", "new.hire@skyline-media.com")
	assert.ErrorIs(t, err, models.ErrInvitationInvalidOrExpired)
}

func TestAcceptInvitationUnknownToken(t *testing.T) {
	a := newTestAuthority(&fakeDirectory{})

	_, err := a.AcceptInvitation("no-such-token", "user-42", "new.hire@skyline-media.com")
	assert.ErrorIs(t, err, models.ErrInvitationInvalidOrExpired)
}

func TestInviteRejectsDuplicateEmail(t *testing.T) {
	tenantID := uuid.New()
	dir := &fakeDirectory{}
	a := newTestAuthority(dir)

	_, err := a.Invite(tenantID, "new.hire@skyline-media.com", models.RoleMember, "inviter-1")
	require.NoError(t, err)

	_, err = a.Invite(tenantID, "new.hire@skyline-media.com", models.RoleViewer, "inviter-1")
	assert.Error(t, err)
}

func TestChangeRoleHierarchy(t *testing.T) {
	tenantID := uuid.New()
	admin := activeMember(tenantID, models.RoleAdmin)
	manager := activeMember(tenantID, models.RoleManager)
	owner := activeMember(tenantID, models.RoleOwner)
	dir := &fakeDirectory{rows: []*models.Membership{admin, manager, owner}}
	a := newTestAuthority(dir)

	// An admin may move a manager within the ranks below admin
	require.NoError(t, a.ChangeRole(admin, manager, models.RoleMember))
	assert.Equal(t, models.RoleMember, manager.Role)

	// An admin may not touch an owner, and may not promote to admin
	assert.ErrorIs(t, a.ChangeRole(admin, owner, models.RoleAdmin), models.ErrInsufficientRoleLevel)
	assert.ErrorIs(t, a.ChangeRole(admin, manager, models.RoleAdmin), models.ErrInsufficientRoleLevel)
}

func TestChangeRoleSelfDemotion(t *testing.T) {
	tenantID := uuid.New()
	first := activeMember(tenantID, models.RoleOwner)
	second := activeMember(tenantID, models.RoleOwner)
	dir := &fakeDirectory{rows: []*models.Membership{first, second}}
	a := newTestAuthority(dir)

	// With a second owner present, stepping down is allowed
	require.NoError(t, a.ChangeRole(first, first, models.RoleAdmin))
	assert.Equal(t, models.RoleAdmin, first.Role)

	// Self-promotion is never allowed
	assert.ErrorIs(t, a.ChangeRole(first, first, models.RoleOwner), models.ErrInsufficientRoleLevel)
}

func TestChangeRoleLastOwnerGuard(t *testing.T) {
	tenantID := uuid.New()
	owner := activeMember(tenantID, models.RoleOwner)
	admin := activeMember(tenantID, models.RoleAdmin)
	dir := &fakeDirectory{rows: []*models.Membership{owner, admin}}
	a := newTestAuthority(dir)

	err := a.ChangeRole(owner, owner, models.RoleAdmin)
	assert.ErrorIs(t, err, models.ErrLastOwner)
	assert.Equal(t, models.RoleOwner, owner.Role)
	assert.Zero(t, dir.saved)
}

func TestRemoveMemberLastOwnerGuard(t *testing.T) {
	tenantID := uuid.New()
	owner := activeMember(tenantID, models.RoleOwner)
	dir := &fakeDirectory{rows: []*models.Membership{owner}}
	a := newTestAuthority(dir)

	err := a.RemoveMember(owner, owner)
	assert.ErrorIs(t, err, models.ErrLastOwner)
	assert.Equal(t, models.MembershipActive, owner.Status)
}

func TestRemoveMemberSelfAndManaged(t *testing.T) {
	tenantID := uuid.New()
	first := activeMember(tenantID, models.RoleOwner)
	second := activeMember(tenantID, models.RoleOwner)
	member := activeMember(tenantID, models.RoleMember)
	viewer := activeMember(tenantID, models.RoleViewer)
	dir := &fakeDirectory{rows: []*models.Membership{first, second, member, viewer}}
	a := newTestAuthority(dir)

	// An owner may leave while another owner remains
	require.NoError(t, a.RemoveMember(first, first))
	assert.Equal(t, models.MembershipInactive, first.Status)

	// A member may leave on their own, and a manager-level actor may remove
	// those below them
	require.NoError(t, a.RemoveMember(member, member))
	require.NoError(t, a.RemoveMember(second, viewer))

	// A viewer may not remove a member
	other := activeMember(tenantID, models.RoleViewer)
	dir.rows = append(dir.rows, other)
	assert.ErrorIs(t, a.RemoveMember(other, second), models.ErrInsufficientRoleLevel)
}
