package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pulse-metrics-api/internal/service"
)

// Metrics records request counts and latency per route template.
func Metrics(instr *service.InstrumentationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		instr.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
