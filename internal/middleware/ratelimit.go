package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
)

// RateLimit enforces the request quota. endpoint names a configured
// endpoint category and overrides the caller's role rule; pass "" for
// routes covered by the role (or guest) quota.
//
// The X-RateLimit-* headers are set on every response, allowed or not, so
// well-behaved clients can pace themselves before hitting the limit.
func RateLimit(gate *guard.Gate, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := guard.Request{
			IP:       c.ClientIP(),
			Role:     c.GetString("user_role"),
			Endpoint: endpoint,
		}
		if id, ok := c.Get("user_id"); ok {
			req.UserID = fmt.Sprintf("%v", id)
		}

		d := gate.CheckRequest(c.Request.Context(), req)
		setQuotaHeaders(c, d)

		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": d.RetryAfterSeconds,
			})
			return
		}
		c.Next()
	}
}

func setQuotaHeaders(c *gin.Context, d guard.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
