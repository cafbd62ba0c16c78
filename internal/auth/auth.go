// Package auth resolves the calling user for API requests.
//
// The platform terminates real authentication at the edge gateway, which
// forwards the verified user identifier in the X-User-ID header. This
// package validates and propagates that identity.
package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khanyab/applyflow/internal/validation"
)

type contextKey string

const userIDKey contextKey = "user_id"

// HeaderUserID is the header set by the edge gateway after authentication.
const HeaderUserID = "X-User-ID"

// WithUserID stores the user ID on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID extracts the user ID from context, empty if absent.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// Middleware requires a well-formed X-User-ID header and stores it on the
// request context. Requests without one are rejected with 401.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "Missing X-User-ID header",
			})
			c.Abort()
			return
		}
		if !validation.IsValidUserID(userID) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "Malformed user identifier",
			})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}
