package main

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/adboardhq/platform/shared/utils"
)

// handleGetNotifierStatus handles getting the delivery pipeline status
func handleGetNotifierStatus(client *WebhookClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := client.GetStatus()
		utils.OKResponse(c, "Notifier status retrieved successfully", status)
	}
}

// handleReconnectEndpoint handles reconnecting to the notification endpoint
func handleReconnectEndpoint(client *WebhookClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := client.Reconnect(); err != nil {
			utils.InternalServerErrorResponse(c, "Failed to reconnect: "+err.Error())
			return
		}

		utils.OKResponse(c, "Successfully reconnected to notification endpoint", nil)
	}
}

// handleGetFailedDeliveries lists notifications still awaiting retry.
func handleGetFailedDeliveries(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.DefaultQuery("status", "pending")

		var failed []FailedNotification
		if err := db.Where("status = ?", status).Order("created_at DESC").Limit(100).Find(&failed).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch failed deliveries")
			return
		}

		utils.OKResponse(c, "Failed deliveries retrieved successfully", failed)
	}
}
