package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/yourorg/rutatrack/internal/cache"
)

// ============================================================================
// CACHE STATISTICS ENDPOINT
// ============================================================================
// GET /api/cache/stats

// StatsSource caché en memoria con estadísticas (Redis no expone Stats)
type StatsSource interface {
	Stats() cache.Stats
}

// CacheStats retorna estadísticas del caché de posiciones
func CacheStats(src StatsSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if src == nil {
			return c.JSON(fiber.Map{"status": "unavailable", "backend": "redis"})
		}
		return c.JSON(fiber.Map{
			"status":    "ok",
			"backend":   "memory",
			"positions": src.Stats(),
		})
	}
}
