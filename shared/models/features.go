package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Feature names form a closed set. Plans are validated against this set at
// load time; free-form keys only exist at the persistence boundary.
const (
	FeatureCampaigns      = "campaigns"
	FeatureTeamMembers    = "team_members"
	FeatureCustomDomain   = "custom_domain"
	FeatureAPIAccess      = "api_access"
	FeatureAdvancedCharts = "advanced_charts"
	FeatureContractPDFs   = "contract_pdfs"
	FeatureBulkExport     = "bulk_export"
)

// Limit keys for plan-defined numeric ceilings. LimitUnlimited (-1)
// short-circuits every limit comparison.
const (
	LimitMaxCampaigns   = "max_campaigns"
	LimitMaxTeamMembers = "max_team_members"
	LimitStorageGB      = "storage_gb"
	LimitMaxAPICalls    = "max_api_calls"

	LimitUnlimited = -1
)

// AllFeatures lists every known feature name.
var AllFeatures = []string{
	FeatureCampaigns,
	FeatureTeamMembers,
	FeatureCustomDomain,
	FeatureAPIAccess,
	FeatureAdvancedCharts,
	FeatureContractPDFs,
	FeatureBulkExport,
}

// AllLimitKeys lists every known limit key.
var AllLimitKeys = []string{
	LimitMaxCampaigns,
	LimitMaxTeamMembers,
	LimitStorageGB,
	LimitMaxAPICalls,
}

// IsKnownFeature reports whether name belongs to the closed feature set.
func IsKnownFeature(name string) bool {
	for _, f := range AllFeatures {
		if f == name {
			return true
		}
	}
	return false
}

// IsKnownLimitKey reports whether key belongs to the closed limit-key set.
func IsKnownLimitKey(key string) bool {
	for _, k := range AllLimitKeys {
		if k == key {
			return true
		}
	}
	return false
}

// DefaultFeatureFlags returns the flag set for a tenant with no plan
// features: everything off.
func DefaultFeatureFlags() FeatureFlags {
	flags := make(FeatureFlags, len(AllFeatures))
	for _, f := range AllFeatures {
		flags[f] = false
	}
	return flags
}

// RestrictedFeatureFlags is the all-false set written when a tenant is
// access-restricted. Identical to the defaults today, but kept separate so
// restriction never picks up future default changes by accident.
func RestrictedFeatureFlags() FeatureFlags {
	return DefaultFeatureFlags()
}

// FlagsForPlan recomputes a tenant's feature flags from a plan: the plan's
// feature list merged onto the defaults.
func FlagsForPlan(plan *BillingPlan) FeatureFlags {
	flags := DefaultFeatureFlags()
	if plan == nil {
		return flags
	}
	for _, f := range plan.Features {
		flags[f] = true
	}
	return flags
}

// ValidatePlan rejects plans that reference unknown feature names or limit
// keys. Called wherever plan reference data enters the system.
func ValidatePlan(plan *BillingPlan) error {
	for _, f := range plan.Features {
		if !IsKnownFeature(f) {
			return fmt.Errorf("plan %q references unknown feature %q", plan.Name, f)
		}
	}
	for k, v := range plan.Limits {
		if !IsKnownLimitKey(k) {
			return fmt.Errorf("plan %q references unknown limit key %q", plan.Name, k)
		}
		if v < LimitUnlimited {
			return fmt.Errorf("plan %q has invalid limit %d for %q", plan.Name, v, k)
		}
	}
	return nil
}

// FeatureFlags is a feature-name -> enabled map stored as JSONB.
type FeatureFlags map[string]bool

func (f FeatureFlags) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (f *FeatureFlags) Scan(value interface{}) error {
	return scanJSON(value, f)
}

// LimitMap is a limit-key -> ceiling map stored as JSONB. -1 means unlimited.
type LimitMap map[string]int

func (l LimitMap) Value() (driver.Value, error) {
	if l == nil {
		return "{}", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *LimitMap) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// StringList is a JSONB-backed list of strings (plan features, permission
// grants).
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *StringList) Scan(value interface{}) error {
	return scanJSON(value, s)
}

// Contains reports whether the list holds the given entry.
func (s StringList) Contains(entry string) bool {
	for _, e := range s {
		if e == entry {
			return true
		}
	}
	return false
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
}
