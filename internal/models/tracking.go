package models

import "time"

// ============================================================================
// RED DE TRANSPORTE: rutas, paradas, unidades, conductores y pasajeros
// ============================================================================

// Coordinate punto de la polilínea de una ruta
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Route ruta fija con paradas ordenadas y trazado pre-dibujado
type Route struct {
	ID    int64        `json:"id"`
	Name  string       `json:"name"`
	Stops []Stop       `json:"stops,omitempty"`
	Path  []Coordinate `json:"path,omitempty"`
}

// Stop parada de una ruta. Order nil se ordena después de las que tienen orden.
type Stop struct {
	ID      int64   `json:"id"`
	RouteID int64   `json:"route_id"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Order   *int    `json:"order,omitempty"`
}

type UnitStatus string

const (
	UnitActive      UnitStatus = "active"
	UnitMaintenance UnitStatus = "maintenance"
	UnitInactive    UnitStatus = "inactive"
)

// Unit vehículo de la flota
type Unit struct {
	ID       int64      `json:"id"`
	Plate    string     `json:"plate"`
	Model    string     `json:"model,omitempty"`
	Capacity int        `json:"capacity"`
	Status   UnitStatus `json:"status"`
	RouteID  *int64     `json:"route_id,omitempty"`
}

type DriverRole string

const (
	DriverPrimary    DriverRole = "primary"
	DriverSubstitute DriverRole = "substitute"
)

// Position última posición conocida (last write wins)
type Position struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Driver struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	UnitID       *int64     `json:"unit_id,omitempty"`
	Role         DriverRole `json:"role"`
	Position     *Position  `json:"position,omitempty"`
}

type Rider struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	StopID   *int64    `json:"stop_id,omitempty"`
	RouteID  *int64    `json:"route_id,omitempty"`
	Position *Position `json:"position,omitempty"`
}

// ============================================================================
// JORNADAS
// ============================================================================

type JourneyState string

const (
	JourneyPending   JourneyState = "pending"
	JourneyActive    JourneyState = "en_curso"
	JourneyCompleted JourneyState = "completada"
	JourneyCancelled JourneyState = "cancelada"
)

// Terminal reports whether no further transition is allowed.
func (s JourneyState) Terminal() bool {
	return s == JourneyCompleted || s == JourneyCancelled
}

// Open estados que cuentan para la regla de una jornada por conductor por día
func (s JourneyState) Open() bool {
	return s == JourneyPending || s == JourneyActive
}

// Journey un turno de conductor sobre una unidad y ruta en un día calendario
type Journey struct {
	ID             int64        `json:"id"`
	Date           string       `json:"date"` // YYYY-MM-DD en la zona horaria del servicio
	UnitID         int64        `json:"unit_id"`
	DriverID       *int64       `json:"driver_id,omitempty"`
	RouteID        *int64       `json:"route_id,omitempty"`
	State          JourneyState `json:"state"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	EndedAt        *time.Time   `json:"ended_at,omitempty"`
	EndLat         *float64     `json:"end_lat,omitempty"`
	EndLng         *float64     `json:"end_lng,omitempty"`
	StopsTotal     int          `json:"stops_total"`
	StopsCompleted int          `json:"stops_completed"`
	Notes          string       `json:"notes,omitempty"`

	Route  *Route      `json:"route,omitempty"`
	Visits []StopVisit `json:"visits,omitempty"`
}

// ============================================================================
// CHECKLIST DE PARADAS
// ============================================================================

type VisitState string

const (
	VisitPending   VisitState = "pending"
	VisitConfirmed VisitState = "confirmed"
	VisitSkipped   VisitState = "skipped"
	VisitExpired   VisitState = "expired"
)

// StopVisit registro de una parada dentro de una jornada
type StopVisit struct {
	ID             int64      `json:"id"`
	JourneyID      int64      `json:"journey_id"`
	StopID         int64      `json:"stop_id"`
	DriverID       int64      `json:"driver_id"`
	State          VisitState `json:"state"`
	ArrivedAt      *time.Time `json:"arrived_at,omitempty"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	ConfirmLat     *float64   `json:"confirm_lat,omitempty"`
	ConfirmLng     *float64   `json:"confirm_lng,omitempty"`
	DistanceMeters *float64   `json:"distance_meters,omitempty"`
	VisitOrder     *int       `json:"visit_order,omitempty"`
	WaitSeconds    *int       `json:"wait_seconds,omitempty"`

	Stop *Stop `json:"stop,omitempty"`
}

// ============================================================================
// INTENCIÓN DE USO
// ============================================================================

// RiderIntent declaración de un pasajero de que abordará la unidad de una jornada.
// Indicated nil se trata como indicado.
type RiderIntent struct {
	ID          int64      `json:"id"`
	RiderID     int64      `json:"rider_id"`
	JourneyID   int64      `json:"journey_id"`
	Indicated   *bool      `json:"indicated,omitempty"`
	Confirmed   bool       `json:"confirmed"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Wants reports whether the rider still wants to be alerted.
func (ri RiderIntent) Wants() bool {
	return ri.Indicated == nil || *ri.Indicated
}

// UnitPosition posición de una unidad con jornada en curso
type UnitPosition struct {
	DriverID  int64     `json:"driver_id"`
	UnitID    int64     `json:"unit_id"`
	JourneyID int64     `json:"journey_id"`
	RouteID   *int64    `json:"route_id,omitempty"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Cell      string    `json:"cell,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
