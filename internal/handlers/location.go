package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/yourorg/rutatrack/internal/middleware"
	"github.com/yourorg/rutatrack/internal/tracking"
)

type LocationHandler struct {
	svc *tracking.Service
}

func NewLocationHandler(svc *tracking.Service) *LocationHandler {
	return &LocationHandler{svc: svc}
}

// Driver POST /api/location/driver
func (h *LocationHandler) Driver(c *fiber.Ctx) error {
	var req point
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	if !req.ok() {
		return unprocessable(c, "lat and lng are required")
	}

	res, err := h.svc.UpdateDriverPosition(c.UserContext(), middleware.ActorID(c), *req.Lat, *req.Lng)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// Rider POST /api/location/rider
func (h *LocationHandler) Rider(c *fiber.Ctx) error {
	var req point
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	if !req.ok() {
		return unprocessable(c, "lat and lng are required")
	}

	if err := h.svc.UpdateRiderPosition(c.UserContext(), middleware.ActorID(c), *req.Lat, *req.Lng); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ActiveUnits GET /api/location/units/active
func (h *LocationHandler) ActiveUnits(c *fiber.Ctx) error {
	units, err := h.svc.ActiveUnitPositions(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"count": len(units),
		"units": units,
	})
}
