package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/yourorg/rutatrack/internal/handlers"
	"github.com/yourorg/rutatrack/internal/middleware"
	"github.com/yourorg/rutatrack/internal/notify"
	"github.com/yourorg/rutatrack/internal/tracking"
)

// Deps todo lo que el router necesita, armado en cmd/server
type Deps struct {
	Service   *tracking.Service
	Hub       *notify.Hub
	Health    *handlers.HealthHandler
	Metrics   http.Handler
	CacheStat handlers.StatsSource
	JWTSecret []byte
	// LocationRateLimit reportes de posición por actor por minuto
	LocationRateLimit int
}

func Register(app *fiber.App, d Deps) {
	journeys := handlers.NewJourneyHandler(d.Service)
	locations := handlers.NewLocationHandler(d.Service)
	intents := handlers.NewRiderIntentHandler(d.Service)
	notifications := handlers.NewNotificationsHandler(d.Hub)

	driverOnly := middleware.RequireRole(d.JWTSecret, middleware.RoleDriver)
	riderOnly := middleware.RequireRole(d.JWTSecret, middleware.RoleRider)
	anyActor := middleware.RequireRole(d.JWTSecret, middleware.RoleDriver, middleware.RoleRider)

	api := app.Group("/api")

	// Health check (sin auth)
	api.Get("/health", d.Health.Health)
	api.Get("/cache/stats", handlers.CacheStats(d.CacheStat))
	if d.Metrics != nil {
		app.Get("/metrics", handlers.Metrics(d.Metrics))
	}

	// ============================================================================
	// JORNADAS (conductor)
	// ============================================================================
	j := api.Group("/journeys", driverOnly)
	j.Post("/start", journeys.Start)
	j.Post("/confirm-stop", journeys.ConfirmStop)
	j.Post("/finish", journeys.Finish)
	j.Get("/active", journeys.Active)
	j.Post("/verify-proximity", journeys.VerifyProximity)
	j.Get("/:id/pending-stops", journeys.PendingStops)

	api.Get("/routes/:id", anyActor, journeys.Roster)

	// ============================================================================
	// POSICIONES
	// ============================================================================
	loc := api.Group("/location")
	loc.Post("/driver", driverOnly, middleware.LocationRateLimiter(d.LocationRateLimit), locations.Driver)
	loc.Post("/rider", riderOnly, middleware.LocationRateLimiter(d.LocationRateLimit), locations.Rider)
	loc.Get("/units/active", anyActor, locations.ActiveUnits)

	// ============================================================================
	// INTENCIÓN DE VIAJE (pasajero)
	// ============================================================================
	ri := api.Group("/rider-intents", riderOnly)
	ri.Post("/", intents.Declare)
	ri.Post("/check-proximity", intents.CheckProximity)
	ri.Get("/proximity", intents.Proximity)

	// ============================================================================
	// NOTIFICACIONES WEBSOCKET
	// ============================================================================
	app.Get("/ws/notifications", append([]fiber.Handler{anyActor}, notifications.Handler()...)...)
}
