package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	"tutorhub/apperrors"
	"tutorhub/config"
	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"
	"tutorhub/server/middleware/limiter"
	"tutorhub/server/middleware/security"
	"tutorhub/server/routes"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App *fiber.App
	cfg *config.Config
	log *logger.Logger
}

// Options carries what the server needs beyond the route dependencies
type Options struct {
	Logger *logger.Logger
	// Redis, when set, backs the rate limiter so limits hold across
	// server processes
	Redis *redis.Client
}

func NewServer(cfg *config.Config, deps routes.Deps, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.GetDefault()
	}
	log = log.Component("server")

	errorConfig := apperrors.HandlerConfig{
		Logger:             log,
		ShowInternalErrors: cfg.Server.Development,
		OnError: func(c *fiber.Ctx, err *apperrors.AppError) {
			metrics.RecordError(string(err.Code), strconv.Itoa(err.StatusCode))
		},
	}

	app := fiber.New(fiber.Config{
		AppName:      "TutorHub",
		ServerHeader: "TutorHub",
		ReadTimeout:  cfg.Server.ReadTimeout,
		ErrorHandler: apperrors.Handler(errorConfig),
	})

	app.Use(recover.New())
	app.Use(metrics.HTTPMetricsMiddleware())
	app.Use(security.New(security.Config{Development: cfg.Server.Development}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, X-Admin-Token",
	}))

	setupLogging(app, log)

	var storage limiter.Storage
	if opts.Redis != nil {
		storage = limiter.NewRedisStorage(opts.Redis, cfg.Store.KeyPrefix, time.Hour)
	}

	skipStreams := func(c *fiber.Ctx) bool {
		p := c.Path()
		return p == "/metrics" || strings.HasPrefix(p, "/health") || p == "/api/v1/events" || strings.HasPrefix(p, "/ws")
	}
	app.Use(limiter.New(limiter.Config{
		Capacity:     cfg.RateLimit.Capacity,
		RefillRate:   cfg.RateLimit.RefillRate,
		RefillPeriod: cfg.RateLimit.RefillPeriod,
		Storage:      storage,
		Next:         skipStreams,
	}))

	deps.AdminToken = cfg.Server.AdminToken
	deps.AllowedOrigins = cfg.Server.AllowedOrigins
	if deps.AuthLimiter == nil {
		deps.AuthLimiter = limiter.New(limiter.Config{
			Capacity:     cfg.RateLimit.AuthCapacity,
			RefillRate:   1,
			RefillPeriod: 10 * time.Second,
			Storage:      storage,
			KeyGenerator: func(c *fiber.Ctx) string {
				return "auth:" + c.IP()
			},
		})
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	routes.RegisterRoutes(app, deps)

	return &Server{App: app, cfg: cfg, log: log}
}

func (s *Server) Start() error {
	addr := s.cfg.ServerAddress()
	s.log.Info("Starting server on %s", addr)
	return s.App.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server...")
	return s.App.ShutdownWithContext(ctx)
}
