// Package entitlements decides, per tenant subscription, whether a named
// feature is allowed and whether numeric usage is inside the plan's limits.
// It never applies corrective action itself; remediation is planned here but
// executed only by the enforcement sweep.
package entitlements

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/adboardhq/platform/shared/models"
)

// DefaultGrace is the tolerance window after expiration before restriction.
const DefaultGrace = 24 * time.Hour

// GraceFromEnv reads GRACE_PERIOD_HOURS, falling back to DefaultGrace.
func GraceFromEnv() time.Duration {
	if v := os.Getenv("GRACE_PERIOD_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours >= 0 {
			return time.Duration(hours) * time.Hour
		}
	}
	return DefaultGrace
}

// UsageSource computes live usage for a tenant and limit key. Counts are
// derived from owned resources and never cached beyond one enforcement pass.
type UsageSource interface {
	Usage(tenantID uuid.UUID, limitKey string) (int, error)
}

// Engine evaluates feature entitlements against a subscription.
type Engine struct {
	usage UsageSource
	grace time.Duration
	nowFn func() time.Time
}

// NewEngine creates an engine. grace is the tolerance window applied after a
// subscription's expiration moment before features are forced off.
func NewEngine(usage UsageSource, grace time.Duration) *Engine {
	return &Engine{
		usage: usage,
		grace: grace,
		nowFn: time.Now,
	}
}

// GracePeriod returns the engine's configured grace window.
func (e *Engine) GracePeriod() time.Duration {
	return e.grace
}

// IsRestricted reports whether the subscription's tenant is currently
// access-restricted under the grace rule.
func (e *Engine) IsRestricted(sub *models.TenantSubscription) bool {
	return sub.ShouldRestrictAccess(e.nowFn(), e.grace)
}

// HasFeature reports whether the subscription's plan enables the feature. A
// restricted subscription has all gated features forced to false regardless
// of plan.
func (e *Engine) HasFeature(sub *models.TenantSubscription, feature string) bool {
	if sub == nil {
		return false
	}
	if e.IsRestricted(sub) {
		return false
	}
	return sub.Plan.HasFeature(feature)
}

// FeatureLimit returns the plan's ceiling for a limit key.
// models.LimitUnlimited (-1) means no ceiling.
func (e *Engine) FeatureLimit(sub *models.TenantSubscription, limitKey string) int {
	if sub == nil {
		return 0
	}
	return sub.Plan.Limit(limitKey)
}

// FeatureUsage computes the tenant's current usage for a limit key.
func (e *Engine) FeatureUsage(tenantID uuid.UUID, limitKey string) (int, error) {
	return e.usage.Usage(tenantID, limitKey)
}

// CanUseFeature reports whether one more unit of the feature may be used:
// the feature is enabled and usage is strictly below the limit (unlimited
// short-circuits the comparison).
func (e *Engine) CanUseFeature(sub *models.TenantSubscription, feature, limitKey string) (bool, error) {
	if !e.HasFeature(sub, feature) {
		return false, nil
	}
	if limitKey == "" {
		return true, nil
	}
	limit := e.FeatureLimit(sub, limitKey)
	if limit == models.LimitUnlimited {
		return true, nil
	}
	usage, err := e.FeatureUsage(sub.TenantID, limitKey)
	if err != nil {
		return false, err
	}
	return usage < limit, nil
}

// CheckFeature is CanUseFeature expressed as the error taxonomy, for
// handlers and the feature-gate middleware.
func (e *Engine) CheckFeature(sub *models.TenantSubscription, feature, limitKey string) error {
	if sub == nil {
		return models.ErrSubscriptionNotFound
	}
	if !e.HasFeature(sub, feature) {
		return models.ErrFeatureNotAllowed
	}
	if limitKey == "" {
		return nil
	}
	limit := e.FeatureLimit(sub, limitKey)
	if limit == models.LimitUnlimited {
		return nil
	}
	usage, err := e.FeatureUsage(sub.TenantID, limitKey)
	if err != nil {
		return err
	}
	if usage >= limit {
		return models.ErrFeatureLimitExceeded
	}
	return nil
}

// Excess returns how far usage is over the limit for a key, zero when within
// plan or unlimited.
func (e *Engine) Excess(sub *models.TenantSubscription, limitKey string) (int, error) {
	limit := e.FeatureLimit(sub, limitKey)
	if limit == models.LimitUnlimited {
		return 0, nil
	}
	usage, err := e.FeatureUsage(sub.TenantID, limitKey)
	if err != nil {
		return 0, err
	}
	if usage <= limit {
		return 0, nil
	}
	return usage - limit, nil
}
