package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dperhar/Karma-app-sub001/internal/health"
)

type HealthHandler struct {
	monitor *health.Monitor
}

func NewHealthHandler(monitor *health.Monitor) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// Live is the basic liveness probe.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

// Connections exposes the read-only per-user connection aggregates.
func (h *HealthHandler) Connections(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sessions_live": h.monitor.LiveSessions(),
		"users":         h.monitor.Snapshot(),
	})
}
