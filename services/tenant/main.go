package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/adboardhq/platform/shared/authz"
	"github.com/adboardhq/platform/shared/config"
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
		utils.OKResponse(c, "Tenant service is healthy", nil)
	})

	// Platform-level tenant management
	tenants := router.Group("/tenants")
	tenants.Use(authMiddleware.RequireAuth())
	{
		tenants.POST("/", authMiddleware.RequirePlatformAdmin(), handleCreateTenant(db, authority))
		tenants.GET("/", authMiddleware.RequirePlatformAdmin(), handleGetTenants(db))
	}

	// Invitation redemption is tenant-less: the token identifies the tenant
	router.POST("/invitations/accept", authMiddleware.RequireAuth(), handleAcceptInvitation(authority))

	// Tenant-scoped routes: resolver binds the tenant, guard checks membership
	scoped := router.Group("/tenants/:tenant")
	scoped.Use(authMiddleware.RequireAuth(), resolver.Resolve())
	{
		scoped.GET("", guard.RequireMember(), handleGetTenant())
		scoped.PUT("", guard.RequireManager(), handleUpdateTenant(db))
		scoped.DELETE("", authMiddleware.RequirePlatformAdmin(), handleRetireTenant(db))

		scoped.GET("/members", guard.RequireManager(), handleGetMembers(authority))
		scoped.POST("/members", guard.RequireManager(), handleInviteMember(authority))
		scoped.PUT("/members/:member_id/role", guard.RequireManager(), handleChangeMemberRole(db, authority))
		scoped.DELETE("/members/:member_id", guard.RequireManager(), handleRemoveMember(db, authority))
		scoped.POST("/members/:member_id/permissions", guard.RequireManager(), handleGrantPermission(db, authority))
		scoped.DELETE("/members/:member_id/permissions", guard.RequireManager(), handleRevokePermission(db, authority))
	}

	// Start server
	port := os.Getenv("TENANT_SERVICE_PORT")
	if port == "" {
		port = "8002"
	}

	logrus.Infof("Tenant service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start tenant service:", err)
	}
}
