package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sreekar-ss/devbytes-blog/utils"
)

// Context keys set by the auth middlewares.
const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

const (
	tokenCookie  = "jwt_token"
	apiKeyHeader = "X-API-KEY"
)

// Auth adapts the sign-in flow's JWTs into a user id on the request context.
type Auth struct {
	tokens       *utils.TokenManager
	adminKeyHash []byte
	logger       *zap.Logger
}

// NewAuth builds the auth middlewares. An empty adminKeyHash disables API key
// access to the admin routes.
func NewAuth(tokens *utils.TokenManager, adminKeyHash string, logger *zap.Logger) *Auth {
	a := &Auth{tokens: tokens, logger: logger}
	if adminKeyHash != "" {
		a.adminKeyHash = []byte(adminKeyHash)
	}
	return a
}

func (a *Auth) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
			return
		}

		claims, err := a.tokens.ValidateJWT(tokenString)
		if err != nil {
			a.logger.Debug("Rejected JWT", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and otherwise
// lets the request through anonymously.
func (a *Auth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := extractToken(c); tokenString != "" {
			claims, err := a.tokens.ValidateJWT(tokenString)
			if err == nil {
				c.Set(ContextUserID, claims.UserID)
				c.Set(ContextUserRole, claims.Role)
			} else {
				a.logger.Debug("Ignoring invalid JWT on anonymous route", zap.Error(err))
			}
		}
		c.Next()
	}
}

// AdminRequired accepts either the operator API key or a JWT carrying the
// admin role.
func (a *Auth) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader(apiKeyHeader); key != "" {
			if a.adminKeyHash == nil || bcrypt.CompareHashAndPassword(a.adminKeyHash, []byte(key)) != nil {
				a.logger.Warn("Rejected admin API key", zap.String("path", c.FullPath()))
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API key"})
				return
			}
			c.Set(ContextUserRole, utils.RoleAdmin)
			c.Next()
			return
		}

		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
			return
		}

		claims, err := a.tokens.ValidateJWT(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}
		if !claims.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: Admin access required"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// UserID returns the authenticated user, if any.
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserID)
	return id, id != ""
}

func extractToken(c *gin.Context) string {
	if tokenString, err := c.Cookie(tokenCookie); err == nil && tokenString != "" {
		return tokenString
	}
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(header)
}
