package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/adboardhq/platform/shared/utils"
)

// Context keys set by RequireAuth and consumed downstream.
const (
	CtxUserID       = "user_id"
	CtxUserEmail    = "email"
	CtxUsername     = "username"
	CtxPlatformRole = "platform_role"
)

// PlatformRoleAdmin marks platform staff (super-admin capability): full
// cross-tenant access plus the read-only inactive-tenant override.
const PlatformRoleAdmin = "admin"

// AuthMiddleware handles JWT token validation. Identity lives in Cognito;
// tenant-level authorization lives in Membership rows, never in the token.
type AuthMiddleware struct {
	cognitoClient *cognitoidentityprovider.CognitoIdentityProvider
	userPoolID    string
	jwksValidator *utils.JWKSValidator
}

// CognitoClaims represents Cognito JWT claims
type CognitoClaims struct {
	Sub                string `json:"sub"`
	Email              string `json:"email"`
	Username           string `json:"cognito:username"`
	TokenUse           string `json:"token_use"`
	CustomPlatformRole string `json:"custom:platform_role"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(region, userPoolID string) (*AuthMiddleware, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}

	// Initialize JWKS validator for proper token verification
	jwksValidator := utils.NewJWKSValidator(region, userPoolID)

	return &AuthMiddleware{
		cognitoClient: cognitoidentityprovider.New(sess),
		userPoolID:    userPoolID,
		jwksValidator: jwksValidator,
	}, nil
}

// RequireAuth middleware validates JWT tokens
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			c.Abort()
			return
		}

		claims, err := am.parseToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(CtxUserID, claims.Sub)
		c.Set(CtxUsername, claims.Username)
		c.Set(CtxUserEmail, claims.Email)
		c.Set(CtxPlatformRole, claims.CustomPlatformRole)

		c.Next()
	}
}

// RequirePlatformAdmin restricts a route to platform staff.
func (am *AuthMiddleware) RequirePlatformAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(CtxPlatformRole)
		if role != PlatformRoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"error":         "Insufficient permissions",
				"required_role": PlatformRoleAdmin,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// IsPlatformAdmin reports whether the authenticated caller is platform staff.
func IsPlatformAdmin(c *gin.Context) bool {
	return c.GetString(CtxPlatformRole) == PlatformRoleAdmin
}

// getCacheKey generates a cache key for the token
func getCacheKey(tokenString string) string {
	hash := sha256.Sum256([]byte(tokenString))
	return "token:" + hex.EncodeToString(hash[:])
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	// Check for "Bearer " prefix
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return authHeader
}

// parseToken validates and parses a Cognito JWT, with a Redis cache in front
// so hot tokens skip JWKS verification.
func (am *AuthMiddleware) parseToken(tokenString string) (*CognitoClaims, error) {
	// Check Redis cache first
	cacheKey := getCacheKey(tokenString)
	if cachedData, err := utils.CacheGet(cacheKey); err == nil {
		var claims CognitoClaims
		if err := json.Unmarshal([]byte(cachedData), &claims); err == nil {
			return &claims, nil
		}
	}

	token, err := am.jwksValidator.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("JWKS validation failed: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims format")
	}

	claims := &CognitoClaims{
		Sub:                getClaimString(mapClaims, "sub"),
		Email:              getClaimString(mapClaims, "email"),
		Username:           getClaimString(mapClaims, "cognito:username"),
		TokenUse:           getClaimString(mapClaims, "token_use"),
		CustomPlatformRole: getClaimString(mapClaims, "custom:platform_role"),
	}

	// ID tokens carry the custom attributes, access tokens don't
	if claims.TokenUse != "access" && claims.TokenUse != "id" {
		return nil, fmt.Errorf("invalid token use: expected 'access' or 'id', got '%s'", claims.TokenUse)
	}

	// Access tokens lack email/custom attributes; fill from Cognito
	if claims.Email == "" || claims.CustomPlatformRole == "" {
		if err := am.fillFromCognito(claims); err != nil {
			return nil, err
		}
	}

	if claims.Username == "" {
		claims.Username = claims.Email
		if claims.Username == "" {
			claims.Username = claims.Sub
		}
	}

	// Cache the parsed token for 1 hour
	if cacheData, err := json.Marshal(claims); err == nil {
		_ = utils.CacheSet(cacheKey, string(cacheData), 1*time.Hour)
	}

	return claims, nil
}

// fillFromCognito fetches missing attributes via AdminGetUser.
func (am *AuthMiddleware) fillFromCognito(claims *CognitoClaims) error {
	out, err := am.cognitoClient.AdminGetUser(&cognitoidentityprovider.AdminGetUserInput{
		UserPoolId: aws.String(am.userPoolID),
		Username:   aws.String(claims.Sub),
	})
	if err != nil {
		return fmt.Errorf("failed to get user from Cognito: %w", err)
	}

	for _, attr := range out.UserAttributes {
		switch *attr.Name {
		case "email":
			if claims.Email == "" {
				claims.Email = *attr.Value
			}
		case "custom:platform_role":
			if claims.CustomPlatformRole == "" {
				claims.CustomPlatformRole = *attr.Value
			}
		}
	}
	return nil
}

// getClaimString safely extracts a string claim from JWT claims
func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetUserFromContext extracts user identity from the Gin context.
func GetUserFromContext(c *gin.Context) (userID, email, platformRole string) {
	userID = c.GetString(CtxUserID)
	email = c.GetString(CtxUserEmail)
	platformRole = c.GetString(CtxPlatformRole)
	return
}
