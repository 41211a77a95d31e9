package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/pms/channelsync/internal/infrastructure/telemetry"
)

// Profiling labels CPU samples taken while serving a request with the route
// pattern, method and :backend parameter. Unmatched routes and /health are
// served unlabeled.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || route == "/health" {
			c.Next()
			return
		}

		labels := telemetry.SyncLabels(c.Param("backend"), "")
		labels[telemetry.ProfilingLabelRoute] = route
		labels[telemetry.ProfilingLabelMethod] = c.Request.Method
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
