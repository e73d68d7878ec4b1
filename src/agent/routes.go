package agent

import (
	"github.com/gofiber/fiber/v3"
)

// RegisterRoutes mounts the agent's HTTP surface on a Fiber router.
func (a *Agent) RegisterRoutes(group fiber.Router) {
	group.Get("/status", a.handleStatus)
	group.Get("/devices", a.handleDevices)
	group.Post("/devices/:id/commands", a.handleCommand)
}

func (a *Agent) handleStatus(c fiber.Ctx) error {
	return c.JSON(a.Snapshot())
}

func (a *Agent) handleDevices(c fiber.Ctx) error {
	devices := a.Devices()
	return c.JSON(fiber.Map{
		"devices": devices,
		"count":   len(devices),
	})
}

type commandRequest struct {
	Command string `json:"command"`
}

func (a *Agent) handleCommand(c fiber.Ctx) error {
	deviceID := c.Params("id")

	var req commandRequest
	if err := c.Bind().Body(&req); err != nil || req.Command == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "command is required",
		})
	}

	if !a.SendCommand(deviceID, req.Command) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "telemetry channel not connected",
		})
	}
	return c.JSON(fiber.Map{
		"sent":      true,
		"device_id": deviceID,
		"command":   req.Command,
	})
}
