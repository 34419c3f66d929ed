package enforcement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adboardhq/platform/shared/models"
	"github.com/adboardhq/platform/shared/utils"
)

// Store is the persistence surface the sweep mutates. Remediation methods
// operate only on the eligible set (already-suspended rows excluded), which
// is what makes re-running a sweep idempotent.
type Store interface {
	// CurrentSubscriptions returns current subscription rows with Tenant and
	// Plan preloaded, optionally filtered to one tenant by id or slug.
	// Subscriptions of soft-retired tenants are excluded; a retired tenant
	// has nothing left to enforce.
	CurrentSubscriptions(tenantFilter string) ([]models.TenantSubscription, error)
	SaveSubscription(sub *models.TenantSubscription) error
	SaveTenant(tenant *models.Tenant) error
	// SuspendOldestCampaigns suspends up to excess active campaigns, oldest
	// first, and returns how many were suspended.
	SuspendOldestCampaigns(tenantID uuid.UUID, excess int) (int, error)
	// SuspendNewestMembers suspends up to excess active non-owner
	// memberships, most recently created first.
	SuspendNewestMembers(tenantID uuid.UUID, excess int) (int, error)
	SetAPIThrottled(tenantID uuid.UUID, throttled bool) error
}

// Locker serializes enforcement per tenant across overlapping runs.
type Locker interface {
	Acquire(tenantID uuid.UUID, ttl time.Duration) (token string, err error)
	Release(tenantID uuid.UUID, token string) error
}

// GormStore is the production Store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates the production store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CurrentSubscriptions(tenantFilter string) ([]models.TenantSubscription, error) {
	// The tenant preload applies the soft-delete scope, so retired tenants
	// are filtered here rather than surfacing as rows with a nil Tenant.
	query := s.db.Preload("Tenant").Preload("Plan").
		Joins("JOIN tenants ON tenants.id = tenant_subscriptions.tenant_id").
		Where("tenant_subscriptions.is_current = ? AND tenants.deleted_at IS NULL", true)

	if tenantFilter != "" {
		if id, err := uuid.Parse(tenantFilter); err == nil {
			query = query.Where("tenant_subscriptions.tenant_id = ?", id)
		} else {
			query = query.Where("tenants.slug = ?", tenantFilter)
		}
	}

	var subs []models.TenantSubscription
	if err := query.Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to load current subscriptions: %w", err)
	}
	return subs, nil
}

func (s *GormStore) SaveSubscription(sub *models.TenantSubscription) error {
	return s.db.Save(sub).Error
}

func (s *GormStore) SaveTenant(tenant *models.Tenant) error {
	return s.db.Save(tenant).Error
}

func (s *GormStore) SuspendOldestCampaigns(tenantID uuid.UUID, excess int) (int, error) {
	if excess <= 0 {
		return 0, nil
	}
	// Subquery keeps the update to the excess oldest active rows; suspended
	// rows are already outside the eligible set.
	sub := s.db.Model(&models.Campaign{}).
		Select("id").
		Where("tenant_id = ? AND status = ?", tenantID, models.CampaignActive).
		Order("created_at asc").
		Limit(excess)

	result := s.db.Model(&models.Campaign{}).
		Where("id IN (?)", sub).
		Updates(map[string]interface{}{
			"status":           models.CampaignSuspended,
			"suspended_reason": "plan_limit_exceeded",
		})
	return int(result.RowsAffected), result.Error
}

func (s *GormStore) SuspendNewestMembers(tenantID uuid.UUID, excess int) (int, error) {
	if excess <= 0 {
		return 0, nil
	}
	// Owners are exempt from member remediation.
	sub := s.db.Model(&models.Membership{}).
		Select("id").
		Where("tenant_id = ? AND status = ? AND role != ?", tenantID, models.MembershipActive, models.RoleOwner).
		Order("created_at desc").
		Limit(excess)

	result := s.db.Model(&models.Membership{}).
		Where("id IN (?)", sub).
		Update("status", models.MembershipSuspended)
	return int(result.RowsAffected), result.Error
}

func (s *GormStore) SetAPIThrottled(tenantID uuid.UUID, throttled bool) error {
	return utils.SetAPIThrottled(tenantID, throttled)
}

// RedisLocker implements Locker on the shared Redis client.
type RedisLocker struct{}

func (RedisLocker) Acquire(tenantID uuid.UUID, ttl time.Duration) (string, error) {
	return utils.AcquireTenantLock(tenantID, ttl)
}

func (RedisLocker) Release(tenantID uuid.UUID, token string) error {
	return utils.ReleaseTenantLock(tenantID, token)
}
