package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// ============================================================================
// RATE LIMITING MIDDLEWARE
// ============================================================================

// APIRateLimiter - Limitador general por IP
func APIRateLimiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "API rate limit exceeded",
				"kind":        "rate_limited",
				"retry_after": 60,
				"limit":       max,
				"window":      "1 minute",
			})
		},
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}

// LocationRateLimiter - Rate limiting por actor autenticado en los reportes de posición.
// Debe ir después de RequireRole; sin actor cae a la IP.
func LocationRateLimiter(maxPerMinute int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        maxPerMinute,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := ActorID(c); id > 0 {
				return Role(c) + ":" + strconv.FormatInt(id, 10)
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "location rate limit exceeded",
				"kind":        "rate_limited",
				"retry_after": 60,
				"message":     "demasiados reportes de posición, intenta de nuevo en un minuto",
			})
		},
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}
