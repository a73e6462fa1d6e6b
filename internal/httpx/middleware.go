// Package httpx carries the middleware shared by every shop route: request
// IDs, access logging and Prometheus metrics.
package httpx

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// RequestID accepts a caller-supplied X-Request-ID or mints one, and echoes
// it on the response so a checkout failure can be traced end to end.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// RequestIDFrom returns the request ID set by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Logger writes one access line per request. Probe endpoints are skipped so
// the log stays readable under scraping.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		if len(c.Errors) > 0 {
			log.Printf("[http] rid=%s %s %s status=%d ip=%s dur=%s err=%v",
				RequestIDFrom(c), c.Request.Method, path, c.Writer.Status(),
				c.ClientIP(), time.Since(start), c.Errors.Errors())
			return
		}
		log.Printf("[http] rid=%s %s %s status=%d ip=%s dur=%s",
			RequestIDFrom(c), c.Request.Method, path, c.Writer.Status(),
			c.ClientIP(), time.Since(start))
	}
}
