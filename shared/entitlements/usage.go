package entitlements

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adboardhq/platform/shared/models"
	"github.com/adboardhq/platform/shared/utils"
)

// GormUsageSource derives usage counts from owned resources: campaign and
// membership rows in Postgres, the storage snapshot on the tenant row, and
// the monthly API-call counter in Redis.
type GormUsageSource struct {
	db *gorm.DB
}

// NewGormUsageSource creates the production usage source.
func NewGormUsageSource(db *gorm.DB) *GormUsageSource {
	return &GormUsageSource{db: db}
}

// Usage computes live usage for the given limit key.
func (s *GormUsageSource) Usage(tenantID uuid.UUID, limitKey string) (int, error) {
	switch limitKey {
	case models.LimitMaxCampaigns:
		return s.activeCampaignCount(tenantID)
	case models.LimitMaxTeamMembers:
		return s.activeMemberCount(tenantID)
	case models.LimitStorageGB:
		return s.storageGigabytes(tenantID)
	case models.LimitMaxAPICalls:
		count, err := utils.MonthlyAPICallCount(tenantID, time.Now())
		return int(count), err
	default:
		return 0, fmt.Errorf("unknown limit key %q", limitKey)
	}
}

func (s *GormUsageSource) activeCampaignCount(tenantID uuid.UUID) (int, error) {
	var count int64
	err := s.db.Model(&models.Campaign{}).
		Where("tenant_id = ? AND status = ?", tenantID, models.CampaignActive).
		Count(&count).Error
	return int(count), err
}

// activeMemberCount counts active non-owner memberships; owners never count
// against max_team_members.
func (s *GormUsageSource) activeMemberCount(tenantID uuid.UUID) (int, error) {
	var count int64
	err := s.db.Model(&models.Membership{}).
		Where("tenant_id = ? AND status = ? AND role != ?", tenantID, models.MembershipActive, models.RoleOwner).
		Count(&count).Error
	return int(count), err
}

func (s *GormUsageSource) storageGigabytes(tenantID uuid.UUID) (int, error) {
	var tenant models.Tenant
	if err := s.db.Select("storage_used_mb").Where("id = ?", tenantID).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, models.ErrTenantNotFound
		}
		return 0, err
	}
	return tenant.StorageUsedGB(), nil
}
