package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/yourorg/rutatrack/internal/tracking"
)

var kindStatus = map[tracking.Kind]int{
	tracking.KindValidation:   fiber.StatusUnprocessableEntity,
	tracking.KindNotFound:     fiber.StatusNotFound,
	tracking.KindConflict:     fiber.StatusConflict,
	tracking.KindOutOfRange:   fiber.StatusUnprocessableEntity,
	tracking.KindPrecondition: fiber.StatusPreconditionFailed,
}

// respondError traduce errores de dominio a HTTP. Todo lo demás es 500.
func respondError(c *fiber.Ctx, err error) error {
	var de *tracking.Error
	if !errors.As(err, &de) || de.Kind == tracking.KindInternal {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
			"kind":  string(tracking.KindInternal),
		})
	}

	status, ok := kindStatus[de.Kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}
	body := fiber.Map{
		"error": de.Message,
		"kind":  string(de.Kind),
	}
	if de.Kind == tracking.KindOutOfRange {
		body["distance_meters"] = de.Distance
		body["radius_meters"] = de.Radius
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"kind":  string(tracking.KindValidation),
	})
}

func unprocessable(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"error": msg,
		"kind":  string(tracking.KindValidation),
	})
}

// point lat/lng obligatorios en el body
type point struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (p point) ok() bool { return p.Lat != nil && p.Lng != nil }
