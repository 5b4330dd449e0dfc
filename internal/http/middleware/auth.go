// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the two identity mechanisms the API uses. App-facing
// routes identify the caller through the X-User-ID header set by the fronting
// application; operational routes (webhook ingestion, sweep trigger) are
// guarded by a shared secret carried in a route-specific header.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// userIDKey is the Gin context key holding the authenticated user ID.
	userIDKey = "userID"
	// userIDHeader carries the caller identity on app-facing routes.
	userIDHeader = "X-User-ID"
)

// UserIDFrom returns the authenticated user ID, empty when absent.
func UserIDFrom(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	s, _ := v.(string)
	return s
}

// RequireUser rejects requests without an X-User-ID header and stores the
// value in the context for handlers and the access log.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(userIDHeader))
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "missing_user",
				"message":    "X-User-ID header is required",
			})
			return
		}
		c.Set(userIDKey, uid)
		c.Next()
	}
}

// RequireSecret guards a route with a shared secret carried in header. The
// comparison is constant time. An empty configured secret disables the route
// entirely rather than leaving it open.
func RequireSecret(header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(header)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "invalid or missing secret",
			})
			return
		}
		c.Next()
	}
}
