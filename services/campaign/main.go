package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/adboardhq/platform/shared/authz"
	"github.com/adboardhq/platform/shared/config"
	"github.com/adboardhq/platform/shared/entitlements"
	"github.com/adboardhq/platform/shared/middleware"
	"github.com/adboardhq/platform/shared/models"
	"github.com/adboardhq/platform/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	// Initialize Redis for token caching and API usage counters
	if err := utils.InitRedis(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer utils.CloseRedis()

	// Initialize database
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize authentication middleware
	authMiddleware, err := middleware.NewAuthMiddleware(
		os.Getenv("AWS_REGION"),
		os.Getenv("COGNITO_USER_POOL_ID"),
	)
	if err != nil {
		log.Fatal("Failed to initialize auth middleware:", err)
	}

	authority := authz.NewAuthority(authz.NewGormDirectory(db))
	resolver := middleware.NewTenantResolver(middleware.NewGormTenantSource(db))
	guard := middleware.NewMembershipGuard(authority)

	engine := entitlements.NewEngine(entitlements.NewGormUsageSource(db), entitlements.GraceFromEnv())
	gate := middleware.NewFeatureGate(db, engine, os.Getenv("UPGRADE_URL"))

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Campaign service is healthy", nil)
	})

	// Tenant-scoped campaign routes
	scoped := router.Group("/tenants/:tenant")
	scoped.Use(authMiddleware.RequireAuth(), resolver.Resolve(), guard.RequireMember())
	{
		campaigns := scoped.Group("/campaigns")
		{
			campaigns.POST("/", gate.Require(models.FeatureCampaigns, models.LimitMaxCampaigns), handleCreateCampaign(db))
			campaigns.GET("/", handleGetCampaigns(db))
			campaigns.GET("/:id", handleGetCampaign(db))
			campaigns.POST("/:id/suspend", guard.RequireManager(), handleSuspendCampaign(db))
			campaigns.POST("/:id/resume", guard.RequireManager(), gate.Require(models.FeatureCampaigns, models.LimitMaxCampaigns), handleResumeCampaign(db))
			campaigns.POST("/:id/complete", guard.RequireManager(), handleCompleteCampaign(db))
		}
	}

	// Start server
	port := os.Getenv("CAMPAIGN_SERVICE_PORT")
	if port == "" {
		port = "8004"
	}

	logrus.Infof("Campaign service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start campaign service:", err)
	}
}
