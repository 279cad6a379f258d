package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// Metrics expone el registry de Prometheus en Fiber
func Metrics(h http.Handler) fiber.Handler {
	return adaptor.HTTPHandler(h)
}
