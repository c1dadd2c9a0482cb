package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type Config struct {
	// ImageSources for the CSP img-src directive. Profile pictures and
	// settings images are data URIs, so "data:" is always allowed.
	ImageSources []string

	// Development drops Strict-Transport-Security for plain-http local runs
	Development bool
}

var DefaultConfig = Config{
	ImageSources: []string{"'self'", "https:"},
	Development:  false,
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		return DefaultConfig
	}

	cfg := config[0]
	if len(cfg.ImageSources) == 0 {
		cfg.ImageSources = DefaultConfig.ImageSources
	}
	return cfg
}

// New sets security headers suited to a JSON and event-stream API
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)
	csp := buildCSP(cfg)

	return func(c *fiber.Ctx) error {
		c.Set("Content-Security-Policy", csp)
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if !cfg.Development {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}

func buildCSP(cfg Config) string {
	var b strings.Builder
	b.WriteString("default-src 'none'; ")

	b.WriteString("img-src data:")
	for _, src := range cfg.ImageSources {
		b.WriteString(" " + src)
	}
	b.WriteString("; ")

	// Event streams
	b.WriteString("connect-src 'self' ws: wss:; ")
	b.WriteString("frame-ancestors 'none'; ")
	b.WriteString("base-uri 'none';")

	return b.String()
}
