package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/yourorg/rutatrack/internal/middleware"
	"github.com/yourorg/rutatrack/internal/tracking"
)

// JourneyHandler endpoints del conductor sobre su jornada
type JourneyHandler struct {
	svc *tracking.Service
}

func NewJourneyHandler(svc *tracking.Service) *JourneyHandler {
	return &JourneyHandler{svc: svc}
}

type startJourneyRequest struct {
	UnitID  int64 `json:"unit_id"`
	RouteID int64 `json:"route_id"`
}

// Start POST /api/journeys/start
func (h *JourneyHandler) Start(c *fiber.Ctx) error {
	var req startJourneyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid json")
		}
	}
	if req.UnitID < 0 || req.RouteID < 0 {
		return unprocessable(c, "unit_id and route_id must be positive")
	}

	res, err := h.svc.StartJourney(c.UserContext(), middleware.ActorID(c), req.UnitID, req.RouteID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

type confirmStopRequest struct {
	StopID int64 `json:"stop_id"`
	point
}

// ConfirmStop POST /api/journeys/confirm-stop
func (h *JourneyHandler) ConfirmStop(c *fiber.Ctx) error {
	var req confirmStopRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	if req.StopID <= 0 || !req.ok() {
		return unprocessable(c, "stop_id, lat and lng are required")
	}

	res, err := h.svc.ConfirmStop(c.UserContext(), middleware.ActorID(c), req.StopID, *req.Lat, *req.Lng)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// Finish POST /api/journeys/finish
func (h *JourneyHandler) Finish(c *fiber.Ctx) error {
	var req point
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	if !req.ok() {
		return unprocessable(c, "lat and lng are required")
	}

	j, err := h.svc.FinishJourney(c.UserContext(), middleware.ActorID(c), *req.Lat, *req.Lng)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"journey": j})
}

// Active GET /api/journeys/active
func (h *JourneyHandler) Active(c *fiber.Ctx) error {
	j, err := h.svc.GetActiveJourney(c.UserContext(), middleware.ActorID(c))
	if err != nil {
		return respondError(c, err)
	}
	// sin jornada: 200 con journey null
	return c.JSON(fiber.Map{"journey": j})
}

// VerifyProximity POST /api/journeys/verify-proximity
func (h *JourneyHandler) VerifyProximity(c *fiber.Ctx) error {
	var req point
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	if !req.ok() {
		return unprocessable(c, "lat and lng are required")
	}

	res, err := h.svc.VerifyStopProximity(c.UserContext(), middleware.ActorID(c), *req.Lat, *req.Lng)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// PendingStops GET /api/journeys/:id/pending-stops
func (h *JourneyHandler) PendingStops(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid journey id")
	}

	visits, err := h.svc.PendingStopsForDriver(c.UserContext(), middleware.ActorID(c), int64(id))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"journey_id": id,
		"count":      len(visits),
		"stops":      visits,
	})
}

// Roster GET /api/routes/:id (paradas en orden)
func (h *JourneyHandler) Roster(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid route id")
	}
	route, err := h.svc.Roster(c.UserContext(), int64(id))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(route)
}
