package entitlements

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adboardhq/platform/shared/models"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// fakeUsage returns canned usage per limit key.
type fakeUsage struct {
	counts map[string]int
	err    error
}

func (f *fakeUsage) Usage(tenantID uuid.UUID, limitKey string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[limitKey], nil
}

func testEngine(usage *fakeUsage) *Engine {
	e := NewEngine(usage, 24*time.Hour)
	e.nowFn = func() time.Time { return now }
	return e
}

func activeSub(plan *models.BillingPlan) *models.TenantSubscription {
	return &models.TenantSubscription{
		ID:               uuid.New(),
		TenantID:         uuid.New(),
		Status:           models.SubscriptionActive,
		CurrentPeriodEnd: now.Add(30 * 24 * time.Hour),
		Plan:             plan,
	}
}

func growthPlan() *models.BillingPlan {
	return &models.BillingPlan{
		Name:     "growth",
		Features: models.StringList{models.FeatureCampaigns, models.FeatureAPIAccess},
		Limits: models.LimitMap{
			models.LimitMaxCampaigns: 10,
			models.LimitMaxAPICalls:  models.LimitUnlimited,
		},
	}
}

func TestHasFeature(t *testing.T) {
	engine := testEngine(&fakeUsage{})
	sub := activeSub(growthPlan())

	assert.True(t, engine.HasFeature(sub, models.FeatureCampaigns))
	assert.False(t, engine.HasFeature(sub, models.FeatureBulkExport))
	assert.False(t, engine.HasFeature(nil, models.FeatureCampaigns))
}

func TestHasFeatureRestrictedSubscription(t *testing.T) {
	engine := testEngine(&fakeUsage{})

	sub := activeSub(growthPlan())
	sub.Status = models.SubscriptionExpired
	sub.CurrentPeriodEnd = now.Add(-72 * time.Hour)

	// Restriction forces every feature off, plan or not
	assert.False(t, engine.HasFeature(sub, models.FeatureCampaigns))
}

func TestHasFeatureInsideGrace(t *testing.T) {
	engine := testEngine(&fakeUsage{})

	// Expired 1 hour ago with a 24 hour grace: still tolerated
	sub := activeSub(growthPlan())
	sub.Status = models.SubscriptionExpired
	sub.CurrentPeriodEnd = now.Add(-time.Hour)

	assert.True(t, engine.HasFeature(sub, models.FeatureCampaigns))
}

func TestCanUseFeature(t *testing.T) {
	usage := &fakeUsage{counts: map[string]int{models.LimitMaxCampaigns: 9}}
	engine := testEngine(usage)
	sub := activeSub(growthPlan())

	ok, err := engine.CanUseFeature(sub, models.FeatureCampaigns, models.LimitMaxCampaigns)
	require.NoError(t, err)
	assert.True(t, ok)

	// At the ceiling the next unit is denied
	usage.counts[models.LimitMaxCampaigns] = 10
	ok, err = engine.CanUseFeature(sub, models.FeatureCampaigns, models.LimitMaxCampaigns)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanUseFeatureUnlimited(t *testing.T) {
	usage := &fakeUsage{counts: map[string]int{models.LimitMaxAPICalls: 1_000_000}}
	engine := testEngine(usage)
	sub := activeSub(growthPlan())

	ok, err := engine.CanUseFeature(sub, models.FeatureAPIAccess, models.LimitMaxAPICalls)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanUseFeatureAbsentLimitKey(t *testing.T) {
	engine := testEngine(&fakeUsage{})
	sub := activeSub(growthPlan())

	// storage_gb is not defined on the plan, so its ceiling is zero
	ok, err := engine.CanUseFeature(sub, models.FeatureCampaigns, models.LimitStorageGB)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckFeatureTaxonomy(t *testing.T) {
	usage := &fakeUsage{counts: map[string]int{models.LimitMaxCampaigns: 10}}
	engine := testEngine(usage)
	sub := activeSub(growthPlan())

	assert.ErrorIs(t, engine.CheckFeature(nil, models.FeatureCampaigns, ""), models.ErrSubscriptionNotFound)
	assert.ErrorIs(t, engine.CheckFeature(sub, models.FeatureBulkExport, ""), models.ErrFeatureNotAllowed)
	assert.ErrorIs(t, engine.CheckFeature(sub, models.FeatureCampaigns, models.LimitMaxCampaigns), models.ErrFeatureLimitExceeded)
	assert.NoError(t, engine.CheckFeature(sub, models.FeatureAPIAccess, models.LimitMaxAPICalls))
}

func TestCheckFeatureUsageError(t *testing.T) {
	boom := errors.New("usage backend down")
	engine := testEngine(&fakeUsage{err: boom})
	sub := activeSub(growthPlan())

	err := engine.CheckFeature(sub, models.FeatureCampaigns, models.LimitMaxCampaigns)
	assert.ErrorIs(t, err, boom)
}

func TestExcess(t *testing.T) {
	usage := &fakeUsage{counts: map[string]int{models.LimitMaxCampaigns: 13}}
	engine := testEngine(usage)
	sub := activeSub(growthPlan())

	excess, err := engine.Excess(sub, models.LimitMaxCampaigns)
	require.NoError(t, err)
	assert.Equal(t, 3, excess)

	usage.counts[models.LimitMaxCampaigns] = 10
	excess, err = engine.Excess(sub, models.LimitMaxCampaigns)
	require.NoError(t, err)
	assert.Equal(t, 0, excess)

	// Unlimited never reports excess
	excess, err = engine.Excess(sub, models.LimitMaxAPICalls)
	require.NoError(t, err)
	assert.Equal(t, 0, excess)
}

func TestPlanRemediation(t *testing.T) {
	assert.Equal(t, ActionSuspendOldestCampaigns, PlanRemediation(models.LimitMaxCampaigns, 2).Action)
	assert.Equal(t, ActionSuspendNewestMembers, PlanRemediation(models.LimitMaxTeamMembers, 1).Action)
	assert.Equal(t, ActionThrottleAPI, PlanRemediation(models.LimitMaxAPICalls, 500).Action)
	assert.Equal(t, ActionNotify, PlanRemediation(models.LimitStorageGB, 4).Action)

	r := PlanRemediation(models.LimitMaxCampaigns, 2)
	assert.Equal(t, models.LimitMaxCampaigns, r.LimitKey)
	assert.Equal(t, 2, r.Excess)
}

func TestGraceFromEnv(t *testing.T) {
	t.Setenv("GRACE_PERIOD_HOURS", "48")
	assert.Equal(t, 48*time.Hour, GraceFromEnv())

	t.Setenv("GRACE_PERIOD_HOURS", "not-a-number")
	assert.Equal(t, DefaultGrace, GraceFromEnv())

	t.Setenv("GRACE_PERIOD_HOURS", "")
	assert.Equal(t, DefaultGrace, GraceFromEnv())
}
