package auth

import (
	"tutorhub/services/sessions"

	"github.com/gofiber/fiber/v2"
)

type Config struct {
	// Next defines a function to skip middleware.
	//
	// Optional. Default: nil
	Next func(c *fiber.Ctx) bool

	// SessionManager resolves the signed-in user.
	//
	// Required. Default: nil
	SessionManager *sessions.SessionManager
}

// contextUser is the Locals key the signed-in user is stored under
const contextUser = "user"

var ConfigDefault = Config{
	Next: nil,
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		return ConfigDefault
	}
	return config[0]
}

type AdminConfig struct {
	// Token every admin request must present. An empty token disables the
	// admin API.
	Token string

	// Header carrying the token
	//
	// Optional. Default: "X-Admin-Token"
	Header string
}

func adminConfigDefault(cfg AdminConfig) AdminConfig {
	if cfg.Header == "" {
		cfg.Header = "X-Admin-Token"
	}
	return cfg
}
