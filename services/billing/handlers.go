package main

import (
	"errors"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adboardhq/platform/shared/events"
	"github.com/adboardhq/platform/shared/middleware"
	"github.com/adboardhq/platform/shared/models"
	"github.com/adboardhq/platform/shared/utils"
)

const billingPeriodDays = 30

// CreatePlanRequest defines a new billing plan version.
type CreatePlanRequest struct {
	Name       string         `json:"name" binding:"required"`
	PriceCents int64          `json:"price_cents" binding:"required"`
	Features   []string       `json:"features"`
	Limits     map[string]int `json:"limits"`
}

// handleGetPlans lists the latest version of each plan.
func handleGetPlans(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var plans []models.BillingPlan
		err := db.Raw(`SELECT DISTINCT ON (name) * FROM billing_plans ORDER BY name, version DESC`).
			Scan(&plans).Error
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch plans")
			return
		}

		utils.OKResponse(c, "Plans retrieved successfully", plans)
	}
}

// handleCreatePlan creates a new plan version (platform admin only). Sold
// plan versions are immutable; edits always append a version.
func handleCreatePlan(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		plan := models.BillingPlan{
			ID:         uuid.New(),
			Name:       req.Name,
			Version:    1,
			PriceCents: req.PriceCents,
			Features:   models.StringList(req.Features),
			Limits:     models.LimitMap(req.Limits),
		}

		if err := models.ValidatePlan(&plan); err != nil {
			utils.BadRequestResponse(c, err.Error())
			return
		}

		var latest models.BillingPlan
		if err := db.Where("name = ?", req.Name).Order("version desc").First(&latest).Error; err == nil {
			plan.Version = latest.Version + 1
		}

		if err := db.Create(&plan).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to create plan")
			return
		}

		utils.CreatedResponse(c, "Plan created successfully", plan)
	}
}

// handleGetSubscription returns the resolved tenant's current subscription.
func handleGetSubscription(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, _ := middleware.GetTenantFromContext(c)

		sub, err := middleware.CurrentSubscription(db, tenant.ID)
		if err != nil {
			if errors.Is(err, models.ErrSubscriptionNotFound) {
				utils.NotFoundResponse(c, "No current subscription")
			} else {
				utils.InternalServerErrorResponse(c, "Failed to fetch subscription")
			}
			return
		}

		utils.OKResponse(c, "Subscription retrieved successfully", gin.H{
			"subscription":          sub,
			"days_until_expiration": sub.DaysUntilExpiration(time.Now()),
		})
	}
}

// PaymentWebhookRequest is the payload the opaque payment provider posts
// back. Provider protocol details are out of scope; only the outcome and
// the tenant it concerns matter here.
type PaymentWebhookRequest struct {
	Event         string `json:"event" binding:"required"`
	TenantID      string `json:"tenant_id" binding:"required"`
	BillingPlanID string `json:"billing_plan_id"`
}

// handlePaymentWebhook consumes payment-provider callbacks and applies the
// resulting lifecycle transitions. Nothing in the core ever calls the
// provider inline; this endpoint is the only entry point for its events.
func handlePaymentWebhook(db *gorm.DB, producer *events.Producer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret := os.Getenv("PAYMENT_WEBHOOK_SECRET"); secret != "" {
			if c.GetHeader("X-Webhook-Secret") != secret {
				utils.UnauthorizedResponse(c, "Invalid webhook secret")
				return
			}
		}

		var req PaymentWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		tenantID, err := uuid.Parse(req.TenantID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid tenant id")
			return
		}

		sub, err := middleware.CurrentSubscription(db, tenantID)
		if err != nil {
			if errors.Is(err, models.ErrSubscriptionNotFound) {
				utils.NotFoundResponse(c, "No current subscription for tenant")
			} else {
				utils.InternalServerErrorResponse(c, "Failed to load subscription")
			}
			return
		}

		switch req.Event {
		case "payment_succeeded":
			err = applyPaymentSucceeded(db, sub, req.BillingPlanID)
		case "payment_failed":
			err = applyPaymentFailed(db, sub, producer)
		case "subscription_cancelled":
			err = applyCancellation(db, sub)
		default:
			utils.BadRequestResponse(c, "Unknown event")
			return
		}

		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to apply payment event")
			return
		}

		utils.OKResponse(c, "Event processed", sub)
	}
}

// applyPaymentSucceeded moves trial or past_due subscriptions to active and
// rolls the billing period forward. A different plan id supersedes the
// current row so history stays intact.
func applyPaymentSucceeded(db *gorm.DB, sub *models.TenantSubscription, planID string) error {
	now := time.Now()
	periodEnd := now.AddDate(0, 0, billingPeriodDays)

	return db.Transaction(func(tx *gorm.DB) error {
		target := sub

		if planID != "" {
			newPlanID, err := uuid.Parse(planID)
			if err == nil && newPlanID != sub.BillingPlanID {
				sub.IsCurrent = false
				if err := tx.Save(sub).Error; err != nil {
					return err
				}
				target = &models.TenantSubscription{
					ID:            uuid.New(),
					TenantID:      sub.TenantID,
					BillingPlanID: newPlanID,
					IsCurrent:     true,
				}
			}
		}

		target.Status = models.SubscriptionActive
		target.CurrentPeriodStart = now
		target.CurrentPeriodEnd = periodEnd
		target.TrialEndsAt = nil
		return tx.Save(target).Error
	})
}

func applyPaymentFailed(db *gorm.DB, sub *models.TenantSubscription, producer *events.Producer) error {
	if sub.Status != models.SubscriptionActive {
		return nil
	}
	sub.Status = models.SubscriptionPastDue
	if err := db.Save(sub).Error; err != nil {
		return err
	}
	// Event delivery is best-effort; the state change already happened
	_ = producer.Emit(events.New(events.TypePaymentIssueDetected, sub.TenantID, events.ReasonPaymentFailed, nil))
	return nil
}

func applyCancellation(db *gorm.DB, sub *models.TenantSubscription) error {
	now := time.Now()
	sub.Status = models.SubscriptionCancelled
	sub.CancelledAt = &now
	return db.Save(sub).Error
}

// handleSuspendSubscription is the administrative suspension action
// (terminal until reinstatement).
func handleSuspendSubscription(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, _ := middleware.GetTenantFromContext(c)

		sub, err := middleware.CurrentSubscription(db, tenant.ID)
		if err != nil {
			utils.NotFoundResponse(c, "No current subscription")
			return
		}

		sub.Status = models.SubscriptionSuspended
		if err := db.Save(sub).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to suspend subscription")
			return
		}

		utils.OKResponse(c, "Subscription suspended", sub)
	}
}

// handleReinstateSubscription lifts an administrative suspension.
func handleReinstateSubscription(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, _ := middleware.GetTenantFromContext(c)

		sub, err := middleware.CurrentSubscription(db, tenant.ID)
		if err != nil {
			utils.NotFoundResponse(c, "No current subscription")
			return
		}

		if sub.Status != models.SubscriptionSuspended {
			utils.BadRequestResponse(c, "Subscription is not suspended")
			return
		}

		now := time.Now()
		sub.Status = models.SubscriptionActive
		if sub.CurrentPeriodEnd.Before(now) {
			sub.CurrentPeriodStart = now
			sub.CurrentPeriodEnd = now.AddDate(0, 0, billingPeriodDays)
		}
		if err := db.Save(sub).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to reinstate subscription")
			return
		}

		utils.OKResponse(c, "Subscription reinstated", sub)
	}
}
