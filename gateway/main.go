package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/adboardhq/platform/shared/config"
	"github.com/adboardhq/platform/shared/middleware"
	"github.com/adboardhq/platform/shared/utils"
)

// rewriteHostScopedPath maps a host-resolved request onto the canonical
// tenant-scoped path the downstream services expose. Must run after the
// tenant resolver.
func rewriteHostScopedPath() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tenant, ok := middleware.GetTenantFromContext(c); ok {
			c.Request.URL.Path = "/tenants/" + tenant.ID.String() + c.Request.URL.Path
		}
		c.Next()
	}
}

// meterAPICalls counts the request against the resolved tenant's monthly API
// quota and rejects requests while the tenant is throttled. Counting failures
// never block the request; the enforcement sweep trues up later.
func meterAPICalls() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := middleware.GetTenantFromContext(c)
		if !ok {
			c.Next()
			return
		}

		throttled, err := utils.IsAPIThrottled(tenant.ID)
		if err == nil && throttled {
			utils.TooManyRequestsResponse(c, "API call limit exceeded for this billing period")
			c.Abort()
			return
		}

		if _, err := utils.IncrAPICall(tenant.ID, time.Now()); err != nil {
			logrus.Warnf("Failed to meter API call for tenant %s: %v", tenant.Slug, err)
		}

		c.Next()
	}
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	// Initialize Redis for metering and token caching
	if err := utils.InitRedis(); err != nil {
		logrus.Warnf("Failed to connect to Redis, caching disabled: %v", err)
	}

	// Database connection for host-based tenant resolution
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Get AWS configuration
	awsRegion := os.Getenv("AWS_REGION")
	cognitoUserPoolID := os.Getenv("COGNITO_USER_POOL_ID")

	if awsRegion == "" || cognitoUserPoolID == "" {
		log.Fatal("AWS_REGION and COGNITO_USER_POOL_ID must be set")
	}

	// Initialize authentication middleware
	authMiddleware, err := middleware.NewAuthMiddleware(
		awsRegion,
		cognitoUserPoolID,
	)
	if err != nil {
		log.Fatal("Failed to initialize auth middleware:", err)
	}

	resolver := middleware.NewTenantResolver(middleware.NewGormTenantSource(db))

	// Initialize service clients
	serviceClients := &ServiceClients{
		AccountService:  NewServiceClient(os.Getenv("ACCOUNT_SERVICE_URL")),
		TenantService:   NewServiceClient(os.Getenv("TENANT_SERVICE_URL")),
		BillingService:  NewServiceClient(os.Getenv("BILLING_SERVICE_URL")),
		CampaignService: NewServiceClient(os.Getenv("CAMPAIGN_SERVICE_URL")),
		NotifierService: NewServiceClient(os.Getenv("NOTIFIER_SERVICE_URL")),
	}

	// Initialize Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Tenant-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check endpoints
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "API Gateway is healthy", nil)
	})
	router.GET("/health/services", func(c *gin.Context) {
		utils.OKResponse(c, "Service status retrieved", serviceClients.GetServiceStatus())
	})

	// Authentication and session routes
	auth := router.Group("/auth")
	{
		auth.POST("/login", serviceClients.AccountService.ProxyRequest)
		auth.POST("/refresh", serviceClients.AccountService.ProxyRequest)
		auth.POST("/logout", authMiddleware.RequireAuth(), serviceClients.AccountService.ProxyRequest)
	}

	me := router.Group("/me")
	me.Use(authMiddleware.RequireAuth())
	{
		me.GET("/tenants", serviceClients.AccountService.ProxyRequest)
		me.POST("/switch-tenant", serviceClients.AccountService.ProxyRequest)
	}

	// Plan catalog and payment callbacks
	plans := router.Group("/plans")
	plans.Use(authMiddleware.RequireAuth())
	{
		plans.GET("/", serviceClients.BillingService.ProxyRequest)
		plans.POST("/", authMiddleware.RequirePlatformAdmin(), serviceClients.BillingService.ProxyRequest)
	}
	router.POST("/webhooks/payment", serviceClients.BillingService.ProxyRequest)

	// Invitation redemption
	router.POST("/invitations/accept", authMiddleware.RequireAuth(), serviceClients.TenantService.ProxyRequest)

	// Platform-level tenant management
	tenants := router.Group("/tenants")
	tenants.Use(authMiddleware.RequireAuth())
	{
		tenants.POST("/", authMiddleware.RequirePlatformAdmin(), serviceClients.TenantService.ProxyRequest)
		tenants.GET("/", authMiddleware.RequirePlatformAdmin(), serviceClients.TenantService.ProxyRequest)
	}

	// Tenant-scoped routes: the resolver binds the tenant from the path
	// segment, header, or Host, then every call is metered
	scoped := router.Group("/tenants/:tenant")
	scoped.Use(authMiddleware.RequireAuth(), resolver.Resolve(), meterAPICalls())
	{
		scoped.GET("", serviceClients.TenantService.ProxyRequest)
		scoped.PUT("", serviceClients.TenantService.ProxyRequest)
		scoped.DELETE("", serviceClients.TenantService.ProxyRequest)
		scoped.Any("/members", serviceClients.TenantService.ProxyRequest)
		scoped.Any("/members/*rest", serviceClients.TenantService.ProxyRequest)

		scoped.GET("/subscription", serviceClients.BillingService.ProxyRequest)
		scoped.POST("/subscription/suspend", serviceClients.BillingService.ProxyRequest)
		scoped.POST("/subscription/reinstate", serviceClients.BillingService.ProxyRequest)

		scoped.Any("/campaigns", serviceClients.CampaignService.ProxyRequest)
		scoped.Any("/campaigns/*rest", serviceClients.CampaignService.ProxyRequest)
	}

	// Host-resolved tenant routes: tenants on a custom domain or subdomain
	// (acme.adboardhq.com/campaigns) carry the tenant in the Host header, so
	// the same surface is mounted without the path prefix and rewritten onto
	// the canonical path before proxying
	hostScoped := router.Group("")
	hostScoped.Use(authMiddleware.RequireAuth(), resolver.Resolve(), meterAPICalls(), rewriteHostScopedPath())
	{
		hostScoped.Any("/members", serviceClients.TenantService.ProxyRequest)
		hostScoped.Any("/members/*rest", serviceClients.TenantService.ProxyRequest)

		hostScoped.GET("/subscription", serviceClients.BillingService.ProxyRequest)

		hostScoped.Any("/campaigns", serviceClients.CampaignService.ProxyRequest)
		hostScoped.Any("/campaigns/*rest", serviceClients.CampaignService.ProxyRequest)
	}

	// Notifier observability (read-only, for monitoring)
	notifier := router.Group("/notifier")
	notifier.Use(authMiddleware.RequireAuth(), authMiddleware.RequirePlatformAdmin())
	{
		notifier.GET("/status", serviceClients.NotifierService.ProxyRequest)
		notifier.GET("/failed", serviceClients.NotifierService.ProxyRequest)
	}

	// Start server
	port := os.Getenv("API_GATEWAY_PORT")
	if port == "" {
		port = "8080"
	}

	logrus.Infof("API Gateway starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start API Gateway:", err)
	}
}
