package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adboardhq/platform/shared/middleware"
	"github.com/adboardhq/platform/shared/models"
	"github.com/adboardhq/platform/shared/sessions"
	"github.com/adboardhq/platform/shared/utils"
)

var (
	cognitoClient  *cognitoidentityprovider.CognitoIdentityProvider
	circuitBreaker *utils.CircuitBreaker
)

// generateSecretHash creates a secret hash for Cognito authentication
func generateSecretHash(username string) string {
	clientSecret := os.Getenv("COGNITO_CLIENT_SECRET")
	clientId := os.Getenv("COGNITO_CLIENT_ID")

	if clientSecret == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(username + clientId))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func init() {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(os.Getenv("AWS_REGION")),
	})
	if err != nil {
		panic("Failed to create AWS session: " + err.Error())
	}
	cognitoClient = cognitoidentityprovider.New(sess)

	// Circuit breaker for Cognito calls (max 5 failures, 30 second reset)
	circuitBreaker = utils.NewCircuitBreaker(5, 30*time.Second)
}

// LoginRequest represents the login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin authenticates against Cognito with circuit breaker protection.
func handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		authParams := map[string]*string{
			"USERNAME": aws.String(req.Username),
			"PASSWORD": aws.String(req.Password),
		}

		// Add secret hash if client secret is configured
		if secretHash := generateSecretHash(req.Username); secretHash != "" {
			authParams["SECRET_HASH"] = aws.String(secretHash)
		}

		authInput := &cognitoidentityprovider.InitiateAuthInput{
			AuthFlow:       aws.String("USER_PASSWORD_AUTH"),
			ClientId:       aws.String(os.Getenv("COGNITO_CLIENT_ID")),
			AuthParameters: authParams,
		}

		var authResult *cognitoidentityprovider.InitiateAuthOutput
		err := circuitBreaker.Call(func() error {
			var cognitoErr error
			authResult, cognitoErr = cognitoClient.InitiateAuth(authInput)
			return cognitoErr
		})

		if err != nil {
			if errors.Is(err, utils.ErrCircuitOpen) {
				utils.ServiceUnavailableResponse(c, "Authentication service temporarily unavailable")
			} else {
				utils.UnauthorizedResponse(c, "Invalid credentials")
			}
			return
		}

		response := map[string]interface{}{
			"access_token": *authResult.AuthenticationResult.AccessToken,
			"id_token":     *authResult.AuthenticationResult.IdToken,
			"expires_in":   *authResult.AuthenticationResult.ExpiresIn,
			"token_type":   "Bearer",
		}

		utils.OKResponse(c, "Login successful", response)
	}
}

// handleRefreshToken handles token refresh
func handleRefreshToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}

		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		authInput := &cognitoidentityprovider.InitiateAuthInput{
			AuthFlow: aws.String("REFRESH_TOKEN_AUTH"),
			ClientId: aws.String(os.Getenv("COGNITO_CLIENT_ID")),
			AuthParameters: map[string]*string{
				"REFRESH_TOKEN": aws.String(req.RefreshToken),
			},
		}

		authResult, err := cognitoClient.InitiateAuth(authInput)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid refresh token")
			return
		}

		response := map[string]interface{}{
			"access_token": *authResult.AuthenticationResult.AccessToken,
			"expires_in":   *authResult.AuthenticationResult.ExpiresIn,
			"token_type":   "Bearer",
		}

		utils.OKResponse(c, "Token refreshed successfully", response)
	}
}

// handleLogout drops the user's current-tenant session binding.
func handleLogout(coordinator *sessions.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, _ := middleware.GetUserFromContext(c)

		if err := coordinator.ClearSession(userID); err != nil {
			utils.InternalServerErrorResponse(c, "Failed to clear session")
			return
		}

		utils.OKResponse(c, "Logout successful", nil)
	}
}

// handleGetMyTenants lists the tenants the user can access, the session's
// current tenant, and where the UI should route next.
func handleGetMyTenants(coordinator *sessions.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, _ := middleware.GetUserFromContext(c)

		memberships, err := coordinator.AccessibleTenants(userID)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch tenants")
			return
		}

		current, err := coordinator.CurrentTenant(userID)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to read session")
			return
		}

		response := map[string]interface{}{
			"memberships":   memberships,
			"routing_state": sessions.ClassifyAccess(len(memberships)),
		}
		if current != uuid.Nil {
			response["current_tenant_id"] = current
		}

		utils.OKResponse(c, "Accessible tenants retrieved", response)
	}
}

// SwitchTenantRequest selects the session's current tenant.
type SwitchTenantRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
}

// handleSwitchTenant binds the session to one of the user's tenants.
func handleSwitchTenant(coordinator *sessions.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SwitchTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		tenantID, err := uuid.Parse(req.TenantID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid tenant id")
			return
		}

		userID, _, _ := middleware.GetUserFromContext(c)
		membership, err := coordinator.SwitchTenant(userID, tenantID)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrMembershipNotFound):
				utils.ForbiddenResponse(c, "No membership in this tenant")
			case errors.Is(err, models.ErrMembershipInactive):
				utils.ForbiddenResponse(c, "Membership is not active")
			default:
				utils.InternalServerErrorResponse(c, "Failed to switch tenant")
			}
			return
		}

		utils.OKResponse(c, "Switched tenant", membership)
	}
}
