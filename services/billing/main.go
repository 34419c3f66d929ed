package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/adboardhq/platform/shared/authz"
	"github.com/adboardhq/platform/shared/config"
	"github.com/adboardhq/platform/shared/events"
	"github.com/adboardhq/platform/shared/middleware"
	"github.com/adboardhq/platform/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	// Initialize Redis for token caching
	if err := utils.InitRedis(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer utils.CloseRedis()

	// Initialize database
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize Kafka producer for lifecycle events
	producer, err := events.NewProducer(os.Getenv("KAFKA_BROKER"))
	if err != nil {
		log.Fatal("Failed to initialize Kafka producer:", err)
	}
	defer producer.Close()

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

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Billing service is healthy", nil)
	})

	// Plan catalog
	plans := router.Group("/plans")
	{
		plans.GET("/", authMiddleware.RequireAuth(), handleGetPlans(db))
		plans.POST("/", authMiddleware.RequireAuth(), authMiddleware.RequirePlatformAdmin(), handleCreatePlan(db))
	}

	// Payment provider callbacks are authenticated by shared secret, not JWT
	router.POST("/webhooks/payment", handlePaymentWebhook(db, producer))

	// Tenant-scoped subscription routes
	scoped := router.Group("/tenants/:tenant")
	scoped.Use(authMiddleware.RequireAuth(), resolver.Resolve())
	{
		scoped.GET("/subscription", guard.RequireMember(), handleGetSubscription(db))
		scoped.POST("/subscription/suspend", authMiddleware.RequirePlatformAdmin(), handleSuspendSubscription(db))
		scoped.POST("/subscription/reinstate", authMiddleware.RequirePlatformAdmin(), handleReinstateSubscription(db))
	}

	// Start server
	port := os.Getenv("BILLING_SERVICE_PORT")
	if port == "" {
		port = "8003"
	}

	logrus.Infof("Billing service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start billing service:", err)
	}
}
