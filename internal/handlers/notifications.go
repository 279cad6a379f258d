package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/yourorg/rutatrack/internal/middleware"
	"github.com/yourorg/rutatrack/internal/notify"
)

const unitLocationPrefix = "unit-location:"

// NotificationsHandler suscripción websocket a canales de notificación
type NotificationsHandler struct {
	hub *notify.Hub
}

func NewNotificationsHandler(hub *notify.Hub) *NotificationsHandler {
	return &NotificationsHandler{hub: hub}
}

// allowedChannels filtra lo pedido: un pasajero solo escucha sus propios canales,
// unit-location es público para cualquier actor autenticado.
func allowedChannels(role string, actorID int64, requested string) []string {
	var out []string
	seen := map[string]bool{}
	for _, ch := range strings.Split(requested, ",") {
		ch = strings.TrimSpace(ch)
		if ch == "" || seen[ch] {
			continue
		}
		ok := strings.HasPrefix(ch, unitLocationPrefix)
		if role == middleware.RoleRider {
			ok = ok || ch == notify.RiderChannel(actorID) || ch == notify.RideConfirmedChannel(actorID)
		}
		if ok {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

// Upgrade GET /ws/notifications?channels=a,b
func (h *NotificationsHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	channels := allowedChannels(middleware.Role(c), middleware.ActorID(c), c.Query("channels"))
	if len(channels) == 0 {
		return unprocessable(c, "no allowed channels requested")
	}
	c.Locals("channels", channels)
	return c.Next()
}

// Serve corre dentro de websocket.New
func (h *NotificationsHandler) Serve(conn *websocket.Conn) {
	channels, _ := conn.Locals("channels").([]string)
	log.Printf("🔌 [WS] cliente conectado: %v", channels)
	h.hub.Serve(conn, channels)
	log.Printf("🔌 [WS] cliente desconectado")
}

// Handler arma upgrade + websocket en un solo slice para el router
func (h *NotificationsHandler) Handler() []fiber.Handler {
	return []fiber.Handler{h.Upgrade, websocket.New(h.Serve)}
}
