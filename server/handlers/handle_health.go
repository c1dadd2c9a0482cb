package handlers

import (
	"context"
	"strconv"
	"time"

	"tutorhub/db"
	"tutorhub/notify"
	"tutorhub/store"

	"github.com/gofiber/fiber/v2"
)

// HealthCheckHandler reports liveness and backend readiness
type HealthCheckHandler struct {
	store    *store.Store
	notifier *notify.Notifier
}

func NewHealthCheckHandler(st *store.Store, n *notify.Notifier) *HealthCheckHandler {
	return &HealthCheckHandler{store: st, notifier: n}
}

type HealthCheckResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    float64                `json:"uptime_seconds"`
	Checks    map[string]CheckStatus `json:"checks"`
}

type CheckStatus struct {
	Status  string  `json:"status"`
	Message string  `json:"message,omitempty"`
	Latency float64 `json:"latency_ms,omitempty"`
}

var startTime = time.Now()

// HandleHealthCheck probes the storage backend with a cheap read
func (h *HealthCheckHandler) HandleHealthCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		response := HealthCheckResponse{
			Status:    "healthy",
			Timestamp: time.Now().Format(time.RFC3339),
			Uptime:    time.Since(startTime).Seconds(),
			Checks:    make(map[string]CheckStatus),
		}

		backend := h.checkBackend(ctx)
		response.Checks["store"] = backend
		response.Checks["notifier"] = CheckStatus{
			Status:  "healthy",
			Message: strconv.Itoa(h.notifier.Listeners()) + " listeners",
		}

		if backend.Status == "unhealthy" {
			response.Status = "unhealthy"
			return c.Status(fiber.StatusServiceUnavailable).JSON(response)
		}
		if backend.Status == "degraded" {
			response.Status = "degraded"
		}
		return c.JSON(response)
	}
}

func (h *HealthCheckHandler) checkBackend(ctx context.Context) CheckStatus {
	start := time.Now()
	_, _, err := h.store.Raw(ctx, db.KeySettings)
	latency := time.Since(start).Milliseconds()

	name := h.store.Backend().Name()
	if err != nil {
		return CheckStatus{
			Status:  "unhealthy",
			Message: name + " backend failed: " + err.Error(),
			Latency: float64(latency),
		}
	}

	status, message := "healthy", name+" backend is responding"
	if latency > 250 {
		status, message = "degraded", name+" backend latency is high"
	}
	return CheckStatus{Status: status, Message: message, Latency: float64(latency)}
}

// HandleLivenessCheck is a simple liveness probe
func (h *HealthCheckHandler) HandleLivenessCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendString("OK")
	}
}
