package main

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adboardhq/platform/shared/middleware"
	"github.com/adboardhq/platform/shared/models"
	"github.com/adboardhq/platform/shared/utils"
)

// CreateCampaignRequest represents the create campaign request
type CreateCampaignRequest struct {
	Name string `json:"name" binding:"required"`
}

// handleCreateCampaign creates a campaign for the resolved tenant. The
// entitlement gate already verified the campaigns feature and the
// max_campaigns limit before this handler runs.
func handleCreateCampaign(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, _ := middleware.GetTenantFromContext(c)
		userID, _, _ := middleware.GetUserFromContext(c)

		var req CreateCampaignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		campaign := models.Campaign{
			ID:        uuid.New(),
			TenantID:  tenant.ID,
			Name:      req.Name,
			Status:    models.CampaignActive,
			CreatedBy: userID,
		}

		if err := db.Create(&campaign).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to create campaign")
			return
		}

		utils.CreatedResponse(c, "Campaign created successfully", campaign)
	}
}

// handleGetCampaigns lists the tenant's campaigns, newest first.
func handleGetCampaigns(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, _ := middleware.GetTenantFromContext(c)

		query := db.Where("tenant_id = ?", tenant.ID)
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}

		var campaigns []models.Campaign
		if err := query.Order("created_at DESC").Find(&campaigns).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch campaigns")
			return
		}

		utils.OKResponse(c, "Campaigns retrieved successfully", campaigns)
	}
}

// handleGetCampaign returns one campaign scoped to the resolved tenant.
func handleGetCampaign(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		campaign, ok := loadCampaign(c, db)
		if !ok {
			return
		}

		utils.OKResponse(c, "Campaign retrieved successfully", campaign)
	}
}

// handleSuspendCampaign pauses an active campaign.
func handleSuspendCampaign(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		campaign, ok := loadCampaign(c, db)
		if !ok {
			return
		}

		if campaign.Status != models.CampaignActive {
			utils.BadRequestResponse(c, "Campaign is not active")
			return
		}

		campaign.Status = models.CampaignSuspended
		campaign.SuspendedReason = "manual_suspension"
		if err := db.Save(campaign).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to suspend campaign")
			return
		}

		utils.OKResponse(c, "Campaign suspended successfully", campaign)
	}
}

// handleResumeCampaign reactivates a suspended campaign. Reactivation
// counts against the campaign limit again, so it runs behind the same
// entitlement gate as creation.
func handleResumeCampaign(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		campaign, ok := loadCampaign(c, db)
		if !ok {
			return
		}

		if campaign.Status != models.CampaignSuspended {
			utils.BadRequestResponse(c, "Campaign is not suspended")
			return
		}

		campaign.Status = models.CampaignActive
		campaign.SuspendedReason = ""
		if err := db.Save(campaign).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to resume campaign")
			return
		}

		utils.OKResponse(c, "Campaign resumed successfully", campaign)
	}
}

// handleCompleteCampaign marks a campaign as finished. Completed
// campaigns no longer count against the campaign limit.
func handleCompleteCampaign(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		campaign, ok := loadCampaign(c, db)
		if !ok {
			return
		}

		if campaign.Status == models.CampaignCompleted {
			utils.BadRequestResponse(c, "Campaign is already completed")
			return
		}

		now := time.Now()
		campaign.Status = models.CampaignCompleted
		campaign.CompletedAt = &now
		if err := db.Save(campaign).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to complete campaign")
			return
		}

		utils.OKResponse(c, "Campaign completed successfully", campaign)
	}
}

// loadCampaign fetches the :id campaign scoped to the resolved tenant and
// writes the error response itself when the lookup fails.
func loadCampaign(c *gin.Context, db *gorm.DB) (*models.Campaign, bool) {
	tenant, _ := middleware.GetTenantFromContext(c)

	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid campaign ID")
		return nil, false
	}

	var campaign models.Campaign
	if err := db.Where("id = ? AND tenant_id = ?", campaignID, tenant.ID).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFoundResponse(c, "Campaign not found")
		} else {
			utils.InternalServerErrorResponse(c, "Failed to fetch campaign")
		}
		return nil, false
	}

	return &campaign, true
}
