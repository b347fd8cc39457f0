package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/service"
)

const (
	// AuthorizationHeader is the header key for the JWT token
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for the JWT token
	BearerPrefix = "Bearer "
	// UserIDKey is the context key for the user ID
	UserIDKey = "userID"
	// RoleKey is the context key for the caller's role
	RoleKey = "role"
	// TokenQueryParam carries the access token where headers cannot be set (websocket upgrades)
	TokenQueryParam = "token"
)

// TokenValidator turns an access token into the caller's claims
type TokenValidator interface {
	ValidateAccessToken(token string) (*service.Claims, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader(AuthorizationHeader)
	if authHeader == "" {
		if token := c.Query(TokenQueryParam); token != "" {
			return token, true
		}
		return "", false
	}
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
	return token, token != ""
}

// AuthMiddleware rejects requests without a valid access token
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header is required",
			})
			return
		}

		claims, err := validator.ValidateAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, string(claims.Role))
		c.Next()
	}
}

// OptionalAuthMiddleware validates a token if present but doesn't require it
func OptionalAuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if claims, err := validator.ValidateAccessToken(token); err == nil {
				c.Set(UserIDKey, claims.UserID)
				c.Set(RoleKey, string(claims.Role))
			}
		}
		c.Next()
	}
}

// RequireAdmin must run after AuthMiddleware. Non-admin callers get 403.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleKey) != string(domain.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": domain.ErrForbidden.Error(),
			})
			return
		}
		c.Next()
	}
}

// GetUserID extracts the user ID from the gin context
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}

// RequireUser returns the caller's ID or aborts with 401
func RequireUser(c *gin.Context) (string, bool) {
	userID, ok := GetUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
		})
		return "", false
	}
	return userID, true
}
