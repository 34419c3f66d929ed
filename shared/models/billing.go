package models

import (
	"time"

	"github.com/google/uuid"
)

// BillingPlan is immutable reference data describing a purchasable tier.
// Admin edits create new versions rather than mutating sold plans.
type BillingPlan struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name       string     `json:"name" gorm:"not null;index"`
	Version    int        `json:"version" gorm:"default:1"`
	PriceCents int64      `json:"price_cents" gorm:"not null"`
	Features   StringList `json:"features" gorm:"type:jsonb;default:'[]'"`
	Limits     LimitMap   `json:"limits" gorm:"type:jsonb;default:'{}'"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (BillingPlan) TableName() string {
	return "billing_plans"
}

// Limit returns the plan ceiling for a limit key. Keys absent from the plan
// are treated as zero (nothing allowed), per plan-load validation.
func (p *BillingPlan) Limit(key string) int {
	if p == nil {
		return 0
	}
	if v, ok := p.Limits[key]; ok {
		return v
	}
	return 0
}

// HasFeature reports whether the plan lists the feature.
func (p *BillingPlan) HasFeature(name string) bool {
	if p == nil {
		return false
	}
	return p.Features.Contains(name)
}

// SubscriptionStatus values for the per-tenant billing state machine.
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// TenantSubscription ties a tenant to a billing plan. A tenant keeps
// historical rows but exactly one carries IsCurrent. CurrentPeriodEnd (or
// TrialEndsAt while trialing) is the single source of truth for whether the
// subscription is entitled to service.
type TenantSubscription struct {
	ID                 uuid.UUID          `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID           uuid.UUID          `json:"tenant_id" gorm:"type:uuid;not null;index"`
	BillingPlanID      uuid.UUID          `json:"billing_plan_id" gorm:"type:uuid;not null"`
	Status             SubscriptionStatus `json:"status" gorm:"type:varchar(20);default:'trial';index"`
	IsCurrent          bool               `json:"is_current" gorm:"default:true;index"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`

	Tenant *Tenant      `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	Plan   *BillingPlan `json:"plan,omitempty" gorm:"foreignKey:BillingPlanID"`
}

func (TenantSubscription) TableName() string {
	return "tenant_subscriptions"
}

// expirationMoment is the boundary relevant to the subscription's state:
// the trial end while trialing, the period end otherwise.
func (s *TenantSubscription) expirationMoment() time.Time {
	if s.Status == SubscriptionTrial && s.TrialEndsAt != nil {
		return *s.TrialEndsAt
	}
	return s.CurrentPeriodEnd
}

// IsExpired reports whether the subscription's service entitlement has
// lapsed: the period end has passed, or the trial has run out.
func (s *TenantSubscription) IsExpired(now time.Time) bool {
	if s.CurrentPeriodEnd.Before(now) {
		return true
	}
	return s.Status == SubscriptionTrial && s.TrialEndsAt != nil && s.TrialEndsAt.Before(now)
}

// IsActive reports whether the subscription is paid up and inside its period.
func (s *TenantSubscription) IsActive(now time.Time) bool {
	return s.Status == SubscriptionActive && s.CurrentPeriodEnd.After(now)
}

// IsTrialActive reports whether the subscription is inside a live trial.
func (s *TenantSubscription) IsTrialActive(now time.Time) bool {
	return s.Status == SubscriptionTrial && s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
}

// DaysUntilExpiration returns whole days until the relevant boundary, never
// negative.
func (s *TenantSubscription) DaysUntilExpiration(now time.Time) int {
	until := s.expirationMoment().Sub(now)
	if until <= 0 {
		return 0
	}
	return int(until.Hours() / 24)
}

// ShouldRestrictAccess applies the grace rule: a subscription in a dead
// status is only restricted once the grace window past its expiration moment
// has elapsed. Until then it is expired-but-tolerated.
func (s *TenantSubscription) ShouldRestrictAccess(now time.Time, grace time.Duration) bool {
	switch s.Status {
	case SubscriptionExpired, SubscriptionSuspended, SubscriptionCancelled:
	default:
		return false
	}
	if !s.IsExpired(now) {
		return false
	}
	return !now.Before(s.expirationMoment().Add(grace))
}
