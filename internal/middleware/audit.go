package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/edufin-api/internal/models"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit files an entry for every request under the group that succeeds. The
// route's :id parameter, when present, becomes the resource id. Write
// failures are logged and never change the response.
func Audit(recorder AuditRecorder, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		if recorder == nil || status >= 400 {
			return
		}

		var actor string
		if claims := claimsFrom(c); claims != nil {
			actor = claims.UserID
		}
		entry := models.NewAuditEntry(actor, action, resource).
			On(c.Param("id")).
			From(c.ClientIP(), c.GetHeader("User-Agent")).
			WithValues(map[string]interface{}{
				"route":      c.FullPath(),
				"method":     c.Request.Method,
				"status":     status,
				"latency_ms": time.Since(started).Milliseconds(),
			})
		if err := recorder.CreateAuditLog(c.Request.Context(), entry); err != nil {
			logger.Warn("audit entry dropped", zap.String("action", action), zap.String("route", c.FullPath()), zap.Error(err))
		}
	}
}

func claimsFrom(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
