package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/yourorg/rutatrack/internal/middleware"
	"github.com/yourorg/rutatrack/internal/tracking"
)

type RiderIntentHandler struct {
	svc *tracking.Service
}

func NewRiderIntentHandler(svc *tracking.Service) *RiderIntentHandler {
	return &RiderIntentHandler{svc: svc}
}

type declareIntentRequest struct {
	JourneyID int64 `json:"journey_id"`
	Indicated *bool `json:"indicated"`
}

// Declare POST /api/rider-intents
func (h *RiderIntentHandler) Declare(c *fiber.Ctx) error {
	var req declareIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	if req.JourneyID <= 0 {
		return unprocessable(c, "journey_id is required")
	}

	ri, err := h.svc.DeclareIntent(c.UserContext(), middleware.ActorID(c), req.JourneyID, req.Indicated)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ri)
}

type checkProximityRequest struct {
	JourneyID int64 `json:"journey_id"`
	point
}

// CheckProximity POST /api/rider-intents/check-proximity
func (h *RiderIntentHandler) CheckProximity(c *fiber.Ctx) error {
	var req checkProximityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	if req.JourneyID <= 0 || !req.ok() {
		return unprocessable(c, "journey_id, lat and lng are required")
	}

	res, err := h.svc.CheckRiderProximity(c.UserContext(), middleware.ActorID(c), req.JourneyID, *req.Lat, *req.Lng)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// Proximity GET /api/rider-intents/proximity?lat=&lng=
func (h *RiderIntentHandler) Proximity(c *fiber.Ctx) error {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		return unprocessable(c, "lat and lng query params are required")
	}

	items, err := h.svc.RiderIntentsWithProximity(c.UserContext(), middleware.ActorID(c), lat, lng)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"count":   len(items),
		"intents": items,
	})
}
