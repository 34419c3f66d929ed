package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func trialSub(endsAt time.Time) *TenantSubscription {
	return &TenantSubscription{
		Status:           SubscriptionTrial,
		TrialEndsAt:      &endsAt,
		CurrentPeriodEnd: endsAt,
	}
}

func TestIsExpired(t *testing.T) {
	active := &TenantSubscription{
		Status:           SubscriptionActive,
		CurrentPeriodEnd: testNow.Add(24 * time.Hour),
	}
	assert.False(t, active.IsExpired(testNow))

	lapsed := &TenantSubscription{
		Status:           SubscriptionActive,
		CurrentPeriodEnd: testNow.Add(-time.Minute),
	}
	assert.True(t, lapsed.IsExpired(testNow))

	// A trialing sub expires at the trial boundary even if a period end is set
	assert.True(t, trialSub(testNow.Add(-time.Hour)).IsExpired(testNow))
	assert.False(t, trialSub(testNow.Add(time.Hour)).IsExpired(testNow))
}

func TestIsActiveAndIsTrialActive(t *testing.T) {
	sub := &TenantSubscription{
		Status:           SubscriptionActive,
		CurrentPeriodEnd: testNow.Add(time.Hour),
	}
	assert.True(t, sub.IsActive(testNow))
	assert.False(t, sub.IsTrialActive(testNow))

	trial := trialSub(testNow.Add(time.Hour))
	assert.False(t, trial.IsActive(testNow))
	assert.True(t, trial.IsTrialActive(testNow))

	pastDue := &TenantSubscription{
		Status:           SubscriptionPastDue,
		CurrentPeriodEnd: testNow.Add(time.Hour),
	}
	assert.False(t, pastDue.IsActive(testNow))
}

func TestDaysUntilExpiration(t *testing.T) {
	sub := &TenantSubscription{
		Status:           SubscriptionActive,
		CurrentPeriodEnd: testNow.Add(72*time.Hour + 30*time.Minute),
	}
	assert.Equal(t, 3, sub.DaysUntilExpiration(testNow))

	overdue := &TenantSubscription{
		Status:           SubscriptionExpired,
		CurrentPeriodEnd: testNow.Add(-48 * time.Hour),
	}
	assert.Equal(t, 0, overdue.DaysUntilExpiration(testNow))
}

func TestShouldRestrictAccessGraceBoundary(t *testing.T) {
	grace := 24 * time.Hour
	periodEnd := testNow.Add(-48 * time.Hour)

	expired := &TenantSubscription{
		Status:           SubscriptionExpired,
		CurrentPeriodEnd: periodEnd,
	}

	// Inside the grace window: tolerated
	assert.False(t, expired.ShouldRestrictAccess(periodEnd.Add(grace-time.Second), grace))

	// Exactly at period end + grace: restricted
	assert.True(t, expired.ShouldRestrictAccess(periodEnd.Add(grace), grace))

	// Well past: restricted
	assert.True(t, expired.ShouldRestrictAccess(testNow, grace))
}

func TestShouldRestrictAccessStatusGating(t *testing.T) {
	grace := 24 * time.Hour
	periodEnd := testNow.Add(-72 * time.Hour)

	// Live statuses are never restricted regardless of dates
	for _, status := range []SubscriptionStatus{SubscriptionTrial, SubscriptionActive, SubscriptionPastDue} {
		sub := &TenantSubscription{Status: status, CurrentPeriodEnd: periodEnd}
		assert.False(t, sub.ShouldRestrictAccess(testNow, grace), "status %s", status)
	}

	for _, status := range []SubscriptionStatus{SubscriptionExpired, SubscriptionSuspended, SubscriptionCancelled} {
		sub := &TenantSubscription{Status: status, CurrentPeriodEnd: periodEnd}
		assert.True(t, sub.ShouldRestrictAccess(testNow, grace), "status %s", status)
	}

	// Dead status but the period has not lapsed yet (e.g. cancelled with
	// time remaining): not restricted
	cancelled := &TenantSubscription{
		Status:           SubscriptionCancelled,
		CurrentPeriodEnd: testNow.Add(time.Hour),
	}
	assert.False(t, cancelled.ShouldRestrictAccess(testNow, grace))
}

func TestShouldRestrictAccessZeroGrace(t *testing.T) {
	periodEnd := testNow.Add(-time.Second)
	sub := &TenantSubscription{Status: SubscriptionExpired, CurrentPeriodEnd: periodEnd}

	assert.True(t, sub.ShouldRestrictAccess(testNow, 0))
}

func TestPlanLimit(t *testing.T) {
	plan := &BillingPlan{
		Name:   "growth",
		Limits: LimitMap{LimitMaxCampaigns: 10, LimitMaxAPICalls: LimitUnlimited},
	}

	assert.Equal(t, 10, plan.Limit(LimitMaxCampaigns))
	assert.Equal(t, LimitUnlimited, plan.Limit(LimitMaxAPICalls))

	// Absent keys mean nothing allowed
	assert.Equal(t, 0, plan.Limit(LimitMaxTeamMembers))

	var nilPlan *BillingPlan
	assert.Equal(t, 0, nilPlan.Limit(LimitMaxCampaigns))
}

func TestPlanHasFeature(t *testing.T) {
	plan := &BillingPlan{Features: StringList{FeatureCampaigns, FeatureAPIAccess}}

	assert.True(t, plan.HasFeature(FeatureCampaigns))
	assert.False(t, plan.HasFeature(FeatureBulkExport))

	var nilPlan *BillingPlan
	assert.False(t, nilPlan.HasFeature(FeatureCampaigns))
}
