package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[string(r)] = struct{}{}
	}
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := roleVal.(string)
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ActiveChecker reports whether an account may still act.
type ActiveChecker interface {
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)
}

// RequireActive rejects tokens of accounts that were deactivated after the token was issued.
func RequireActive(check ActiveChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := c.Get(ContextUserID)
		if !ok {
			c.Next()
			return
		}
		active, err := check.IsActive(c.Request.Context(), id.(uuid.UUID))
		if err != nil {
			response.Internal(c, "failed to load account")
			c.Abort()
			return
		}
		if !active {
			response.Error(c, apperr.ErrAccountDisabled)
			c.Abort()
			return
		}
		c.Next()
	}
}
