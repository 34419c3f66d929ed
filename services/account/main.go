package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/adboardhq/platform/shared/config"
	"github.com/adboardhq/platform/shared/middleware"
	"github.com/adboardhq/platform/shared/sessions"
	"github.com/adboardhq/platform/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	// Initialize Redis for session bindings and token caching
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

	coordinator := sessions.NewCoordinator(sessions.NewGormMembershipSource(db), sessions.RedisBinding{})

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Account service is healthy", nil)
	})

	// Authentication routes
	auth := router.Group("/auth")
	{
		auth.POST("/login", handleLogin())
		auth.POST("/refresh", handleRefreshToken())
		auth.POST("/logout", authMiddleware.RequireAuth(), handleLogout(coordinator))
	}

	// Session coordination routes
	me := router.Group("/me")
	me.Use(authMiddleware.RequireAuth())
	{
		me.GET("/tenants", handleGetMyTenants(coordinator))
		me.POST("/switch-tenant", handleSwitchTenant(coordinator))
	}

	// Start server
	port := os.Getenv("ACCOUNT_SERVICE_PORT")
	if port == "" {
		port = "8001"
	}

	logrus.Infof("Account service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start account service:", err)
	}
}
