// Package sessions binds an authenticated user's session to one tenant
// among possibly many memberships.
package sessions

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adboardhq/platform/shared/models"
	"github.com/adboardhq/platform/shared/utils"
)

// RoutingState tells the UI layer where a user with N accessible tenants
// lands. The routing itself is UI policy; the core only classifies.
type RoutingState string

const (
	RouteOnboarding RoutingState = "onboarding" // zero accessible tenants
	RouteDashboard  RoutingState = "dashboard"  // exactly one
	RouteSelection  RoutingState = "selection"  // more than one
)

// ClassifyAccess maps an accessible-tenant count to a routing state.
func ClassifyAccess(count int) RoutingState {
	switch {
	case count == 0:
		return RouteOnboarding
	case count == 1:
		return RouteDashboard
	default:
		return RouteSelection
	}
}

// MembershipSource is the persistence surface the coordinator reads and
// stamps.
type MembershipSource interface {
	// ActiveMemberships returns the user's active memberships with tenants
	// preloaded. Pending, suspended and inactive memberships are excluded.
	ActiveMemberships(userID string) ([]models.Membership, error)
	// MembershipFor returns the membership tying a user to a tenant, or
	// models.ErrMembershipNotFound.
	MembershipFor(userID string, tenantID uuid.UUID) (*models.Membership, error)
	SaveMembership(m *models.Membership) error
}

// Binding stores which tenant is current for each user session.
type Binding interface {
	Set(userID string, tenantID uuid.UUID) error
	Get(userID string) (uuid.UUID, error)
	Clear(userID string) error
}

// Coordinator maintains which tenant is current for each user session.
type Coordinator struct {
	memberships MembershipSource
	binding     Binding
	nowFn       func() time.Time
}

// NewCoordinator creates a session coordinator.
func NewCoordinator(memberships MembershipSource, binding Binding) *Coordinator {
	return &Coordinator{
		memberships: memberships,
		binding:     binding,
		nowFn:       time.Now,
	}
}

// AccessibleTenants returns the user's active memberships.
func (c *Coordinator) AccessibleTenants(userID string) ([]models.Membership, error) {
	return c.memberships.ActiveMemberships(userID)
}

// SwitchTenant binds the user's session to the given tenant. It succeeds
// only with an active membership, stamps last_accessed_at and records the
// new current tenant.
func (c *Coordinator) SwitchTenant(userID string, tenantID uuid.UUID) (*models.Membership, error) {
	m, err := c.memberships.MembershipFor(userID, tenantID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, models.ErrMembershipInactive
	}

	now := c.nowFn()
	m.LastAccessedAt = &now
	if err := c.memberships.SaveMembership(m); err != nil {
		return nil, err
	}

	if err := c.binding.Set(userID, tenantID); err != nil {
		return nil, err
	}
	return m, nil
}

// CurrentTenant returns the tenant currently bound to the user's session,
// uuid.Nil when none is bound.
func (c *Coordinator) CurrentTenant(userID string) (uuid.UUID, error) {
	return c.binding.Get(userID)
}

// ClearSession drops the user's current-tenant binding (logout).
func (c *Coordinator) ClearSession(userID string) error {
	return c.binding.Clear(userID)
}

// GormMembershipSource is the production MembershipSource.
type GormMembershipSource struct {
	db *gorm.DB
}

// NewGormMembershipSource creates the production membership source.
func NewGormMembershipSource(db *gorm.DB) *GormMembershipSource {
	return &GormMembershipSource{db: db}
}

func (s *GormMembershipSource) ActiveMemberships(userID string) ([]models.Membership, error) {
	var memberships []models.Membership
	err := s.db.Preload("Tenant").
		Where("user_id = ? AND status = ?", userID, models.MembershipActive).
		Order("last_accessed_at desc nulls last").
		Find(&memberships).Error
	return memberships, err
}

func (s *GormMembershipSource) MembershipFor(userID string, tenantID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := s.db.Preload("Tenant").
		Where("user_id = ? AND tenant_id = ?", userID, tenantID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *GormMembershipSource) SaveMembership(m *models.Membership) error {
	return s.db.Save(m).Error
}

// RedisBinding implements Binding on the shared Redis client.
type RedisBinding struct{}

func (RedisBinding) Set(userID string, tenantID uuid.UUID) error {
	return utils.SetCurrentTenant(userID, tenantID)
}

func (RedisBinding) Get(userID string) (uuid.UUID, error) {
	return utils.GetCurrentTenant(userID)
}

func (RedisBinding) Clear(userID string) error {
	return utils.ClearCurrentTenant(userID)
}
