package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/memorymap-backend-go/internal/logger"
	"github.com/jengzang/memorymap-backend-go/internal/metrics"
)

// Logger middleware logs HTTP requests and records their latency
func Logger(log *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	log = logger.OrNop(log).Named("http")

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// Unmatched routes share one label so ids never become label values
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordRequest(c.Request.Method, route, strconv.Itoa(status), latency.Seconds())

		if raw != "" {
			path = path + "?" + raw
		}

		kv := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"ip", c.ClientIP(),
			"latency", latency,
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("request", kv...)
		case status >= 400:
			log.Warn("request", kv...)
		default:
			log.Debug("request", kv...)
		}
	}
}
