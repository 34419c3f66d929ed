package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureRegistry(t *testing.T) {
	assert.True(t, IsKnownFeature(FeatureCampaigns))
	assert.True(t, IsKnownFeature(FeatureContractPDFs))
	assert.False(t, IsKnownFeature("time_travel"))

	assert.True(t, IsKnownLimitKey(LimitMaxCampaigns))
	assert.True(t, IsKnownLimitKey(LimitStorageGB))
	assert.False(t, IsKnownLimitKey("max_billboards"))
}

func TestValidatePlan(t *testing.T) {
	valid := &BillingPlan{
		Name:     "growth",
		Features: StringList{FeatureCampaigns, FeatureTeamMembers},
		Limits:   LimitMap{LimitMaxCampaigns: 10, LimitMaxAPICalls: LimitUnlimited},
	}
	require.NoError(t, ValidatePlan(valid))

	badFeature := &BillingPlan{
		Name:     "growth",
		Features: StringList{"holograms"},
	}
	assert.Error(t, ValidatePlan(badFeature))

	badKey := &BillingPlan{
		Name:   "growth",
		Limits: LimitMap{"max_billboards": 5},
	}
	assert.Error(t, ValidatePlan(badKey))

	badValue := &BillingPlan{
		Name:   "growth",
		Limits: LimitMap{LimitMaxCampaigns: -2},
	}
	assert.Error(t, ValidatePlan(badValue))
}

func TestFlagsForPlan(t *testing.T) {
	plan := &BillingPlan{Features: StringList{FeatureCampaigns, FeatureAPIAccess}}
	flags := FlagsForPlan(plan)

	assert.True(t, flags[FeatureCampaigns])
	assert.True(t, flags[FeatureAPIAccess])
	assert.False(t, flags[FeatureBulkExport])

	// Every known feature is present in the map
	assert.Len(t, flags, len(AllFeatures))

	// Nil plan yields everything off
	for name, enabled := range FlagsForPlan(nil) {
		assert.False(t, enabled, "feature %s", name)
	}
}

func TestRestrictedFeatureFlagsAllOff(t *testing.T) {
	for name, enabled := range RestrictedFeatureFlags() {
		assert.False(t, enabled, "feature %s", name)
	}
}

func TestStringListContains(t *testing.T) {
	list := StringList{"a", "b"}
	assert.True(t, list.Contains("a"))
	assert.False(t, list.Contains("c"))
	assert.False(t, StringList(nil).Contains("a"))
}

func TestJSONBScanRoundTrip(t *testing.T) {
	flags := FeatureFlags{FeatureCampaigns: true}
	val, err := flags.Value()
	require.NoError(t, err)

	var scanned FeatureFlags
	require.NoError(t, scanned.Scan(val))
	assert.Equal(t, flags, scanned)

	// Postgres drivers hand back []byte as well
	var fromBytes LimitMap
	require.NoError(t, fromBytes.Scan([]byte(`{"max_campaigns":3}`)))
	assert.Equal(t, 3, fromBytes[LimitMaxCampaigns])

	var bad StringList
	assert.Error(t, bad.Scan(42))
}
