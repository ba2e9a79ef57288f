package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

// RequireRoles lets a request through only when JWT ran first and the
// caller holds one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		switch {
		case claims == nil:
			deny(c, appErrors.ErrUnauthorized)
		case !allowed[claims.Role]:
			deny(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not access this resource"))
		default:
			c.Next()
		}
	}
}
