// Package events carries enforcement and lifecycle events to the
// notification subsystem over Kafka.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Topic is the Kafka topic all enforcement events are published to.
const Topic = "enforcement-events"

// Event types consumed by the notification subsystem.
const (
	TypeTenantRestricted     = "tenant-restricted"
	TypeTenantRestored       = "tenant-restored"
	TypeFeatureOverage       = "feature-overage"
	TypeSubscriptionExpired  = "subscription-expired"
	TypeTrialExpiringSoon    = "trial-expiring-soon"
	TypePaymentIssueDetected = "payment-issue-detected"
)

// Reason codes attached to events.
const (
	ReasonSubscriptionExpired = "subscription_expired"
	ReasonSubscriptionRenewed = "subscription_renewed"
	ReasonTrialEnding         = "trial_ending"
	ReasonPlanLimitExceeded   = "plan_limit_exceeded"
	ReasonPaymentFailed       = "payment_failed"
	ReasonAdminSuspended      = "admin_suspended"
)

// Event is one enforcement event. Every event carries the tenant it concerns
// and a reason code.
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Type      string                 `json:"type"`
	TenantID  uuid.UUID              `json:"tenant_id"`
	Reason    string                 `json:"reason"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// New builds an event with a fresh id and timestamp.
func New(eventType string, tenantID uuid.UUID, reason string, detail map[string]interface{}) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		TenantID:  tenantID,
		Reason:    reason,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
}
