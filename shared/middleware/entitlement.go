package middleware

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adboardhq/platform/shared/entitlements"
	"github.com/adboardhq/platform/shared/models"
	"github.com/adboardhq/platform/shared/utils"
)

// FeatureGate guards routes behind a plan feature and an optional usage
// limit. Denials carry the machine-readable upgrade payload.
type FeatureGate struct {
	db         *gorm.DB
	engine     *entitlements.Engine
	upgradeURL string
}

// NewFeatureGate creates a feature gate. upgradeURL is where denials point
// clients (e.g. the billing settings page).
func NewFeatureGate(db *gorm.DB, engine *entitlements.Engine, upgradeURL string) *FeatureGate {
	return &FeatureGate{db: db, engine: engine, upgradeURL: upgradeURL}
}

// Require gates the route on a feature, and on a usage limit when limitKey
// is non-empty. Must run after the tenant resolver.
func (fg *FeatureGate) Require(feature, limitKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := GetTenantFromContext(c)
		if !ok {
			utils.InternalServerErrorResponse(c, "Tenant not resolved")
			c.Abort()
			return
		}

		sub, err := CurrentSubscription(fg.db, tenant.ID)
		if err != nil && !errors.Is(err, models.ErrSubscriptionNotFound) {
			utils.InternalServerErrorResponse(c, "Failed to load subscription")
			c.Abort()
			return
		}

		if err == nil {
			err = fg.engine.CheckFeature(sub, feature, limitKey)
		}
		if err == nil {
			c.Next()
			return
		}

		planName := tenant.SubscriptionTier
		if sub != nil && sub.Plan != nil {
			planName = sub.Plan.Name
		}

		switch {
		case errors.Is(err, models.ErrFeatureLimitExceeded):
			utils.UpgradeRequiredResponse(c, "feature_limit_exceeded",
				fmt.Sprintf("Your plan's %s limit has been reached", limitKey),
				feature, planName, fg.upgradeURL)
		case errors.Is(err, models.ErrFeatureNotAllowed), errors.Is(err, models.ErrSubscriptionNotFound):
			utils.UpgradeRequiredResponse(c, "feature_not_allowed",
				fmt.Sprintf("The %s feature is not included in your plan", feature),
				feature, planName, fg.upgradeURL)
		default:
			utils.InternalServerErrorResponse(c, "Failed to evaluate entitlement")
		}
		c.Abort()
	}
}

// CurrentSubscription loads the tenant's current subscription with its plan.
func CurrentSubscription(db *gorm.DB, tenantID uuid.UUID) (*models.TenantSubscription, error) {
	var sub models.TenantSubscription
	err := db.Preload("Plan").
		Where("tenant_id = ? AND is_current = ?", tenantID, true).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}
