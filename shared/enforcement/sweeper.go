// Package enforcement implements the periodic sweep over all tenant
// subscriptions: lifecycle transitions, access restriction and restoration,
// and over-limit remediation. A sweep is idempotent and resumable; a failure
// on one tenant never aborts the others.
package enforcement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adboardhq/platform/shared/entitlements"
	"github.com/adboardhq/platform/shared/events"
	"github.com/adboardhq/platform/shared/models"
)

// EventSink receives enforcement events. The Kafka producer implements it;
// dry runs swap in a logging sink.
type EventSink interface {
	Emit(event events.Event) error
}

const (
	trialWarningDays = 3
	lockTTL          = 5 * time.Minute
)

// Options configures one sweep run.
type Options struct {
	// Tenant restricts the sweep to one tenant (id or slug). Empty sweeps all.
	Tenant string
	// DryRun logs intended actions without mutating state or emitting events.
	DryRun bool
	// NotifyOnly emits events and applies no corrective mutations.
	NotifyOnly bool
	// Workers bounds parallelism across tenants. Within a tenant the steps
	// always run sequentially under the per-tenant lock.
	Workers int
}

// Stats summarizes a sweep run.
type Stats struct {
	Checked    int
	Restricted int
	Restored   int
	OverLimit  int
	Expired    int
	Skipped    int
	Errors     int
}

func (s Stats) String() string {
	return fmt.Sprintf("checked=%d restricted=%d restored=%d over_limit=%d expired=%d skipped=%d errors=%d",
		s.Checked, s.Restricted, s.Restored, s.OverLimit, s.Expired, s.Skipped, s.Errors)
}

// Sweeper runs enforcement passes.
type Sweeper struct {
	store  Store
	engine *entitlements.Engine
	sink   EventSink
	locks  Locker
	log    *logrus.Logger
	nowFn  func() time.Time
}

// NewSweeper wires a sweeper. The engine's grace period is the sweep's grace
// period.
func NewSweeper(store Store, engine *entitlements.Engine, sink EventSink, locks Locker, log *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		engine: engine,
		sink:   sink,
		locks:  locks,
		log:    log,
		nowFn:  time.Now,
	}
}

type tenantResult struct {
	restricted bool
	restored   bool
	overLimit  int
	expired    bool
	skipped    bool
	err        error
}

// Run executes one sweep. Per-subscription failures are logged and counted;
// Run itself only fails when the subscription set cannot be loaded. The
// context is checked between tenants: a cancelled run stops picking up new
// tenants but never interrupts one mid-sequence.
func (s *Sweeper) Run(ctx context.Context, opts Options) (*Stats, error) {
	subs, err := s.store.CurrentSubscriptions(opts.Tenant)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(subs) && len(subs) > 0 {
		workers = len(subs)
	}

	jobs := make(chan models.TenantSubscription)
	results := make(chan tenantResult, len(subs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				results <- s.processTenant(sub, opts)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, sub := range subs {
			select {
			case <-ctx.Done():
				return
			case jobs <- sub:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	stats := &Stats{}
	for res := range results {
		stats.Checked++
		if res.skipped {
			stats.Skipped++
		}
		if res.restricted {
			stats.Restricted++
		}
		if res.restored {
			stats.Restored++
		}
		if res.expired {
			stats.Expired++
		}
		stats.OverLimit += res.overLimit
		if res.err != nil {
			stats.Errors++
		}
	}

	s.log.WithField("stats", stats.String()).Info("Enforcement sweep complete")
	return stats, nil
}

// processTenant runs steps 1-4 for one subscription as a single logical
// unit under the per-tenant lock.
func (s *Sweeper) processTenant(sub models.TenantSubscription, opts Options) (res tenantResult) {
	log := s.log.WithField("tenant_id", sub.TenantID)

	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("panic during enforcement: %v", r)
			log.Errorf("Enforcement panicked for tenant %s: %v", sub.TenantID, r)
		}
	}()

	if sub.Tenant == nil || sub.Plan == nil {
		res.err = fmt.Errorf("subscription %s missing tenant or plan", sub.ID)
		log.Error(res.err)
		return res
	}

	if !opts.DryRun {
		token, err := s.locks.Acquire(sub.TenantID, lockTTL)
		if err != nil {
			res.err = fmt.Errorf("failed to acquire tenant lock: %w", err)
			log.Error(res.err)
			return res
		}
		if token == "" {
			// Another run holds this tenant; it will finish the same work.
			log.Warn("Tenant locked by another enforcement run, skipping")
			res.skipped = true
			return res
		}
		defer func() {
			if err := s.locks.Release(sub.TenantID, token); err != nil {
				log.Warnf("Failed to release tenant lock: %v", err)
			}
		}()
	}

	now := s.nowFn()

	expired, err := s.applyClockTransitions(&sub, now, opts, log)
	if err != nil {
		res.err = err
		log.Errorf("Lifecycle transition failed: %v", err)
		return res
	}
	res.expired = expired

	restricted, restored, err := s.applyAccessState(&sub, now, opts, log)
	if err != nil {
		res.err = err
		log.Errorf("Access state update failed: %v", err)
		return res
	}
	res.restricted = restricted
	res.restored = restored

	s.warnTrialExpiry(&sub, now, opts, log)

	overLimit, err := s.remediateLimits(&sub, opts, log)
	res.overLimit = overLimit
	if err != nil {
		res.err = err
		log.Errorf("Remediation failed: %v", err)
	}
	return res
}

// applyClockTransitions moves the subscription along clock-driven edges:
// trial past its end expires, past_due past period end plus grace expires.
func (s *Sweeper) applyClockTransitions(sub *models.TenantSubscription, now time.Time, opts Options, log *logrus.Entry) (bool, error) {
	grace := s.engine.GracePeriod()

	var next models.SubscriptionStatus
	switch {
	case sub.Status == models.SubscriptionTrial && sub.TrialEndsAt != nil && sub.TrialEndsAt.Before(now):
		next = models.SubscriptionExpired
	case sub.Status == models.SubscriptionPastDue && now.After(sub.CurrentPeriodEnd.Add(grace)):
		next = models.SubscriptionExpired
	default:
		return false, nil
	}

	if opts.DryRun {
		log.Infof("[dry-run] Would transition subscription %s from %s to %s", sub.ID, sub.Status, next)
		sub.Status = next // decision only; nothing is saved in a dry run
		return true, nil
	}

	from := sub.Status
	sub.Status = next
	if !opts.NotifyOnly {
		if err := s.store.SaveSubscription(sub); err != nil {
			sub.Status = from
			return false, err
		}
	}
	s.emit(events.New(events.TypeSubscriptionExpired, sub.TenantID, events.ReasonSubscriptionExpired, map[string]interface{}{
		"from_status": string(from),
	}), log)
	return true, nil
}

// applyAccessState restricts a tenant whose dead subscription has outlived
// its grace, or restores a tenant whose subscription is serviceable again.
// Restoration recomputes flags from the current plan; it never replays the
// pre-restriction flags.
func (s *Sweeper) applyAccessState(sub *models.TenantSubscription, now time.Time, opts Options, log *logrus.Entry) (restricted, restored bool, err error) {
	tenant := sub.Tenant
	grace := s.engine.GracePeriod()

	switch {
	case sub.ShouldRestrictAccess(now, grace) && tenant.IsActive:
		if opts.DryRun {
			log.Infof("[dry-run] Would restrict tenant %s (%s)", tenant.Slug, events.ReasonSubscriptionExpired)
			return true, false, nil
		}
		if !opts.NotifyOnly {
			tenant.IsActive = false
			tenant.FeatureFlags = models.RestrictedFeatureFlags()
			tenant.RestrictedReason = events.ReasonSubscriptionExpired
			if err := s.store.SaveTenant(tenant); err != nil {
				return false, false, err
			}
		}
		s.emit(events.New(events.TypeTenantRestricted, tenant.ID, events.ReasonSubscriptionExpired, nil), log)
		return true, false, nil

	case !tenant.IsActive && (sub.IsActive(now) || sub.IsTrialActive(now)):
		if opts.DryRun {
			log.Infof("[dry-run] Would restore tenant %s to plan %s", tenant.Slug, sub.Plan.Name)
			return false, true, nil
		}
		if !opts.NotifyOnly {
			tenant.IsActive = true
			tenant.FeatureFlags = models.FlagsForPlan(sub.Plan)
			tenant.SubscriptionTier = sub.Plan.Name
			tenant.RestrictedReason = ""
			if err := s.store.SaveTenant(tenant); err != nil {
				return false, false, err
			}
		}
		s.emit(events.New(events.TypeTenantRestored, tenant.ID, events.ReasonSubscriptionRenewed, nil), log)
		return false, true, nil
	}

	return false, false, nil
}

func (s *Sweeper) warnTrialExpiry(sub *models.TenantSubscription, now time.Time, opts Options, log *logrus.Entry) {
	if !sub.IsTrialActive(now) {
		return
	}
	days := sub.DaysUntilExpiration(now)
	if days > trialWarningDays {
		return
	}
	if opts.DryRun {
		log.Infof("[dry-run] Would emit trial-expiring-soon for tenant %s (%d days left)", sub.TenantID, days)
		return
	}
	s.emit(events.New(events.TypeTrialExpiringSoon, sub.TenantID, events.ReasonTrialEnding, map[string]interface{}{
		"days_remaining": days,
	}), log)
}

// remediateLimits evaluates every plan limit and applies the feature-specific
// remediation for each overage. Runs regardless of the restriction outcome.
func (s *Sweeper) remediateLimits(sub *models.TenantSubscription, opts Options, log *logrus.Entry) (int, error) {
	overLimit := 0
	var firstErr error

	for _, limitKey := range models.AllLimitKeys {
		if _, defined := sub.Plan.Limits[limitKey]; !defined {
			continue
		}
		excess, err := s.engine.Excess(sub, limitKey)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("usage check for %s: %w", limitKey, err)
			}
			continue
		}
		if excess == 0 {
			// Back under the ceiling: clear the throttle flag if one is set.
			if limitKey == models.LimitMaxAPICalls && !opts.DryRun && !opts.NotifyOnly {
				if err := s.store.SetAPIThrottled(sub.TenantID, false); err != nil {
					log.Warnf("Failed to clear API throttle: %v", err)
				}
			}
			continue
		}

		overLimit++
		plan := entitlements.PlanRemediation(limitKey, excess)

		if opts.DryRun {
			log.Infof("[dry-run] Tenant %s over %s by %d, would apply %s", sub.TenantID, limitKey, excess, plan.Action)
			continue
		}

		if !opts.NotifyOnly {
			if err := s.executeRemediation(sub, plan, log); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}

		s.emit(events.New(events.TypeFeatureOverage, sub.TenantID, events.ReasonPlanLimitExceeded, map[string]interface{}{
			"limit_key": limitKey,
			"excess":    excess,
			"action":    string(plan.Action),
		}), log)
	}

	return overLimit, firstErr
}

func (s *Sweeper) executeRemediation(sub *models.TenantSubscription, plan entitlements.Remediation, log *logrus.Entry) error {
	switch plan.Action {
	case entitlements.ActionSuspendOldestCampaigns:
		n, err := s.store.SuspendOldestCampaigns(sub.TenantID, plan.Excess)
		if err != nil {
			return fmt.Errorf("suspend campaigns: %w", err)
		}
		log.Infof("Suspended %d campaigns for tenant %s (%s)", n, sub.TenantID, plan.LimitKey)
	case entitlements.ActionSuspendNewestMembers:
		n, err := s.store.SuspendNewestMembers(sub.TenantID, plan.Excess)
		if err != nil {
			return fmt.Errorf("suspend members: %w", err)
		}
		log.Infof("Suspended %d memberships for tenant %s (%s)", n, sub.TenantID, plan.LimitKey)
	case entitlements.ActionThrottleAPI:
		if err := s.store.SetAPIThrottled(sub.TenantID, true); err != nil {
			return fmt.Errorf("throttle api: %w", err)
		}
		log.Infof("Throttled API access for tenant %s", sub.TenantID)
	case entitlements.ActionNotify:
		// Notification is the event itself.
	}
	return nil
}

func (s *Sweeper) emit(event events.Event, log *logrus.Entry) {
	if err := s.sink.Emit(event); err != nil {
		log.Warnf("Failed to emit %s event: %v", event.Type, err)
	}
}
