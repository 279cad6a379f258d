package middleware

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

// RequestID agrega X-Request-ID (uuid) a cada request
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	})
}

// RequestLogger log de acceso con nivel según status.
// Las requests rápidas y exitosas solo se loguean si verbose.
func RequestLogger(verbose bool, slow time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		icon := ""
		switch {
		case status >= 500:
			icon = "❌"
		case status >= 400:
			icon = "⚠️"
		case slow > 0 && duration > slow:
			icon = "🐢"
		case verbose:
			icon = "➡️"
		default:
			return err
		}

		rid, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
		log.Printf("%s [HTTP] %s %s -> %d (%dms) ip=%s rid=%s",
			icon, c.Method(), c.Path(), status, duration.Milliseconds(), c.IP(), rid)
		return err
	}
}
