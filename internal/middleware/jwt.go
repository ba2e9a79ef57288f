package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
	"github.com/noah-isme/edufin-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// TokenValidator turns a bearer token into claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*models.JWTClaims, error)
}

// JWT rejects requests without a valid bearer access token.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticate(validator, c.GetHeader("Authorization"))
		if err != nil {
			deny(c, err)
			return
		}
		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// OptionalJWT attaches claims when a valid token is present and lets
// anonymous or badly authenticated callers through as guests. Catalog pages
// use it to overlay the caller's progress.
func OptionalJWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := authenticate(validator, c.GetHeader("Authorization")); err == nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}
}

func authenticate(validator TokenValidator, header string) (*models.JWTClaims, error) {
	if header == "" {
		return nil, appErrors.ErrUnauthorized
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return validator.ValidateToken(token)
}

func deny(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}
