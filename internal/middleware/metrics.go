package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestObserver recibe la duración de cada request (metrics.Collector)
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// MetricsMiddleware captura métricas de cada request.
// Usa el patrón de la ruta (no el path) para no explotar la cardinalidad.
func MetricsMiddleware(obs RequestObserver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		}
		obs.ObserveRequest(c.Method(), route, status, time.Since(start))
		return err
	}
}
