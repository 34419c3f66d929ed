package entitlements

import "github.com/adboardhq/platform/shared/models"

// Action is the corrective measure taken for an over-limit feature.
type Action string

const (
	// ActionSuspendOldestCampaigns suspends the excess oldest active
	// campaigns (creation time ascending).
	ActionSuspendOldestCampaigns Action = "suspend_oldest_campaigns"
	// ActionSuspendNewestMembers suspends the excess most-recently-joined
	// non-owner memberships (creation time descending). Owners are exempt.
	ActionSuspendNewestMembers Action = "suspend_newest_members"
	// ActionThrottleAPI flags the tenant's API access for throttling; the
	// actual rate limiting happens at the gateway.
	ActionThrottleAPI Action = "throttle_api"
	// ActionNotify emits an overage notification and nothing else.
	ActionNotify Action = "notify_only"
)

// Remediation is a planned corrective step for one over-limit feature.
type Remediation struct {
	LimitKey string
	Action   Action
	Excess   int
}

// PlanRemediation maps (limitKey, excess) to the corrective action. It is a
// pure function; execution belongs to the enforcement sweep and must stay
// idempotent (already-suspended resources are outside the eligible set).
func PlanRemediation(limitKey string, excess int) Remediation {
	r := Remediation{LimitKey: limitKey, Excess: excess}
	switch limitKey {
	case models.LimitMaxCampaigns:
		r.Action = ActionSuspendOldestCampaigns
	case models.LimitMaxTeamMembers:
		r.Action = ActionSuspendNewestMembers
	case models.LimitMaxAPICalls:
		r.Action = ActionThrottleAPI
	default:
		// storage_gb and anything unrecognized: notify only, no automatic
		// deletion.
		r.Action = ActionNotify
	}
	return r
}
