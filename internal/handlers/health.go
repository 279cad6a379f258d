package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthResponse representa el estado de salud del sistema
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version,omitempty"`
}

// Pinger dependencia con chequeo de salud (store, cache)
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	version string
	checks  map[string]Pinger
	// nats es opcional; nil = no configurado
	nats interface{ Connected() bool }
	ws   interface{ Clients() int }
}

func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version, checks: map[string]Pinger{}}
}

func (h *HealthHandler) Check(name string, p Pinger) *HealthHandler {
	h.checks[name] = p
	return h
}

func (h *HealthHandler) NATS(n interface{ Connected() bool }) *HealthHandler {
	h.nats = n
	return h
}

func (h *HealthHandler) Websocket(w interface{ Clients() int }) *HealthHandler {
	h.ws = w
	return h
}

// Health GET /api/health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	services := make(map[string]string)
	overall := "healthy"

	// ============================================================================
	// CHECK: store / cache
	// ============================================================================
	for name, p := range h.checks {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			services[name] = "unhealthy: " + err.Error()
			overall = "degraded"
		} else {
			services[name] = "healthy"
		}
	}

	// ============================================================================
	// CHECK: NATS
	// ============================================================================
	if h.nats == nil {
		services["nats"] = "disabled"
	} else if h.nats.Connected() {
		services["nats"] = "healthy"
	} else {
		services["nats"] = "disconnected"
		overall = "degraded"
	}

	if h.ws != nil {
		services["websocket_clients"] = strconv.Itoa(h.ws.Clients())
	}

	status := fiber.StatusOK
	if overall != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
	})
}
