package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HTTPMetricsMiddleware tracks HTTP request metrics
func HTTPMetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		method := c.Method()
		path := sanitizePath(c.Path())

		HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()

		return err
	}
}

// sanitizePath removes dynamic segments to avoid high cardinality
// Example: /api/v1/admin/users/amina/block -> /api/v1/admin/users/:id
func sanitizePath(path string) string {
	prefixes := []struct {
		prefix     string
		normalized string
	}{
		{"/api/v1/admin/users/", "/api/v1/admin/users/:id"},
		{"/api/v1/admin/tickets/", "/api/v1/admin/tickets/:id"},
		{"/api/v1/admin/content/", "/api/v1/admin/content/:kind"},
		{"/api/v1/content/", "/api/v1/content/:kind"},
	}

	for _, p := range prefixes {
		if strings.HasPrefix(path, p.prefix) && len(path) > len(p.prefix) {
			return p.normalized
		}
	}

	if strings.HasPrefix(path, "/api/v1/") || path == "/health" || path == "/metrics" || path == "/ws/events" {
		return path
	}
	return "/other"
}
