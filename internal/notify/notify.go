// Package notify entrega eventos en tiempo real a canales con nombre.
// La entrega es best-effort: Emit nunca bloquea ni retorna error al llamador.
package notify

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dispatcher envía un payload a un canal (fire and forget)
type Dispatcher interface {
	Emit(channel string, payload any)
}

// DispatcherFunc adapta una función a Dispatcher
type DispatcherFunc func(channel string, payload any)

func (f DispatcherFunc) Emit(channel string, payload any) { f(channel, payload) }

// Discard descarta todos los eventos
var Discard Dispatcher = DispatcherFunc(func(string, any) {})

// Fanout reenvía cada evento a todos los dispatchers
type Fanout []Dispatcher

func (f Fanout) Emit(channel string, payload any) {
	for _, d := range f {
		if d != nil {
			d.Emit(channel, payload)
		}
	}
}

// ============================================================================
// CANALES
// ============================================================================

const (
	EventRiderNotification = "rider-notification"
	EventRideConfirmed     = "ride-confirmed"
	EventUnitLocation      = "unit-location"
)

func RiderChannel(riderID int64) string {
	return EventRiderNotification + ":" + strconv.FormatInt(riderID, 10)
}

func RideConfirmedChannel(riderID int64) string {
	return EventRideConfirmed + ":" + strconv.FormatInt(riderID, 10)
}

// UnitLocationChannel canal por ruta; unidades sin ruta publican en "general"
func UnitLocationChannel(routeID *int64) string {
	if routeID == nil {
		return EventUnitLocation + ":general"
	}
	return EventUnitLocation + ":" + strconv.FormatInt(*routeID, 10)
}

// EventName parte del canal antes de ':'
func EventName(channel string) string {
	if i := strings.IndexByte(channel, ':'); i >= 0 {
		return channel[:i]
	}
	return channel
}

// ============================================================================
// PAYLOADS
// ============================================================================

// Envelope formato común en websocket y NATS
type Envelope struct {
	ID      string    `json:"id"`
	Channel string    `json:"channel"`
	Event   string    `json:"event"`
	SentAt  time.Time `json:"sent_at"`
	Data    any       `json:"data"`
}

func NewEnvelope(channel string, payload any) Envelope {
	return Envelope{
		ID:      uuid.NewString(),
		Channel: channel,
		Event:   EventName(channel),
		SentAt:  time.Now().UTC(),
		Data:    payload,
	}
}

// RiderAlert la unidad se acerca a la parada del pasajero
type RiderAlert struct {
	Message        string  `json:"message"`
	StopID         int64   `json:"stop_id"`
	StopName       string  `json:"stop_name"`
	DistanceMeters float64 `json:"distance_meters"`
	JourneyID      int64   `json:"journey_id"`
}

// RideConfirmation abordaje confirmado automáticamente
type RideConfirmation struct {
	Message        string  `json:"message"`
	DistanceMeters float64 `json:"distance_meters"`
	JourneyID      int64   `json:"journey_id"`
}

type UnitLocation struct {
	DriverID  int64     `json:"driver_id"`
	UnitID    *int64    `json:"unit_id,omitempty"`
	RouteID   *int64    `json:"route_id,omitempty"`
	JourneyID *int64    `json:"journey_id,omitempty"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Cell      string    `json:"cell"`
	At        time.Time `json:"at"`
}
