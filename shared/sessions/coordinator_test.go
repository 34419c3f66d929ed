package sessions

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adboardhq/platform/shared/models"
)

type fakeMemberships struct {
	rows  []models.Membership
	saved []*models.Membership
}

func (f *fakeMemberships) ActiveMemberships(userID string) ([]models.Membership, error) {
	var out []models.Membership
	for _, m := range f.rows {
		if m.UserID == userID && m.Status == models.MembershipActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemberships) MembershipFor(userID string, tenantID uuid.UUID) (*models.Membership, error) {
	for i := range f.rows {
		if f.rows[i].UserID == userID && f.rows[i].TenantID == tenantID {
			return &f.rows[i], nil
		}
	}
	return nil, models.ErrMembershipNotFound
}

func (f *fakeMemberships) SaveMembership(m *models.Membership) error {
	f.saved = append(f.saved, m)
	return nil
}

type fakeBinding struct {
	current map[string]uuid.UUID
}

func newFakeBinding() *fakeBinding {
	return &fakeBinding{current: make(map[string]uuid.UUID)}
}

func (f *fakeBinding) Set(userID string, tenantID uuid.UUID) error {
	f.current[userID] = tenantID
	return nil
}

func (f *fakeBinding) Get(userID string) (uuid.UUID, error) {
	return f.current[userID], nil
}

func (f *fakeBinding) Clear(userID string) error {
	delete(f.current, userID)
	return nil
}

func membership(userID string, status models.MembershipStatus) models.Membership {
	return models.Membership{
		ID:       uuid.New(),
		UserID:   userID,
		TenantID: uuid.New(),
		Email:    userID + "@skyline-media.com",
		Role:     models.RoleMember,
		Status:   status,
	}
}

func TestClassifyAccess(t *testing.T) {
	assert.Equal(t, RouteOnboarding, ClassifyAccess(0))
	assert.Equal(t, RouteDashboard, ClassifyAccess(1))
	assert.Equal(t, RouteSelection, ClassifyAccess(2))
	assert.Equal(t, RouteSelection, ClassifyAccess(17))
}

func TestSwitchTenantStampsLastAccessed(t *testing.T) {
	m := membership("user-1", models.MembershipActive)
	memberships := &fakeMemberships{rows: []models.Membership{m}}
	binding := newFakeBinding()

	coord := NewCoordinator(memberships, binding)
	switchedAt := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	coord.nowFn = func() time.Time { return switchedAt }

	got, err := coord.SwitchTenant("user-1", m.TenantID)
	require.NoError(t, err)

	require.NotNil(t, got.LastAccessedAt)
	assert.Equal(t, switchedAt, *got.LastAccessedAt)
	require.Len(t, memberships.saved, 1)

	current, err := coord.CurrentTenant("user-1")
	require.NoError(t, err)
	assert.Equal(t, m.TenantID, current)
}

func TestSwitchTenantWithoutMembership(t *testing.T) {
	memberships := &fakeMemberships{rows: []models.Membership{membership("user-1", models.MembershipActive)}}
	binding := newFakeBinding()
	coord := NewCoordinator(memberships, binding)

	_, err := coord.SwitchTenant("user-1", uuid.New())
	assert.ErrorIs(t, err, models.ErrMembershipNotFound)
	assert.Empty(t, memberships.saved)
	assert.Empty(t, binding.current)
}

func TestSwitchTenantInactiveMembership(t *testing.T) {
	m := membership("user-1", models.MembershipSuspended)
	memberships := &fakeMemberships{rows: []models.Membership{m}}
	coord := NewCoordinator(memberships, newFakeBinding())

	_, err := coord.SwitchTenant("user-1", m.TenantID)
	assert.ErrorIs(t, err, models.ErrMembershipInactive)
	assert.Empty(t, memberships.saved)
}

func TestAccessibleTenantsExcludesInactive(t *testing.T) {
	active := membership("user-1", models.MembershipActive)
	memberships := &fakeMemberships{rows: []models.Membership{
		active,
		membership("user-1", models.MembershipPending),
		membership("user-1", models.MembershipSuspended),
		membership("user-2", models.MembershipActive),
	}}
	coord := NewCoordinator(memberships, newFakeBinding())

	got, err := coord.AccessibleTenants("user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
}

func TestClearSessionDropsBinding(t *testing.T) {
	m := membership("user-1", models.MembershipActive)
	memberships := &fakeMemberships{rows: []models.Membership{m}}
	binding := newFakeBinding()
	coord := NewCoordinator(memberships, binding)

	_, err := coord.SwitchTenant("user-1", m.TenantID)
	require.NoError(t, err)

	require.NoError(t, coord.ClearSession("user-1"))
	current, err := coord.CurrentTenant("user-1")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, current)
}
