// Package store define el acceso a datos de la red de transporte y las jornadas.
// mysqlstore implementa la versión relacional; memstore la versión en memoria
// usada en desarrollo (STORE=memory) y en tests.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/yourorg/rutatrack/internal/models"
)

var (
	// ErrNotFound la fila pedida no existe
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate violación de una restricción única
	ErrDuplicate = errors.New("store: duplicate")
)

// Queries operaciones de lectura/escritura. Los métodos con forUpdate=true
// bloquean la fila hasta el fin de la transacción cuando se llaman dentro de WithTx.
type Queries interface {
	Driver(ctx context.Context, id int64, forUpdate bool) (models.Driver, error)
	Unit(ctx context.Context, id int64) (models.Unit, error)
	Route(ctx context.Context, id int64) (models.Route, error)
	RouteStops(ctx context.Context, routeID int64) ([]models.Stop, error)
	Stop(ctx context.Context, id int64) (models.Stop, error)
	Rider(ctx context.Context, id int64) (models.Rider, error)

	Journey(ctx context.Context, id int64, forUpdate bool) (models.Journey, error)
	// OpenJourney jornada pending o en_curso más reciente del conductor, de cualquier día
	OpenJourney(ctx context.Context, driverID int64, forUpdate bool) (models.Journey, error)
	// UnclaimedJourney jornada pending sin conductor programada para la unidad
	UnclaimedJourney(ctx context.Context, unitID int64, day string, forUpdate bool) (models.Journey, error)
	CreateJourney(ctx context.Context, j *models.Journey) error
	UpdateJourney(ctx context.Context, j models.Journey) error

	CreateStopVisits(ctx context.Context, visits []models.StopVisit) error
	// StopVisits visitas de la jornada con su Stop, en orden de parada
	StopVisits(ctx context.Context, journeyID int64) ([]models.StopVisit, error)
	StopVisit(ctx context.Context, journeyID, stopID int64, forUpdate bool) (models.StopVisit, error)
	UpdateStopVisit(ctx context.Context, v models.StopVisit) error

	SetDriverPosition(ctx context.Context, driverID int64, pos models.Position) error
	SetRiderPosition(ctx context.Context, riderID int64, pos models.Position) error
	// ActiveUnitPositions posiciones de conductores con jornada en curso ese día
	ActiveUnitPositions(ctx context.Context) ([]models.UnitPosition, error)

	RiderIntents(ctx context.Context, journeyID int64) ([]models.RiderIntent, error)
	RiderIntent(ctx context.Context, riderID, journeyID int64, forUpdate bool) (models.RiderIntent, error)
	RiderIntentsForRider(ctx context.Context, riderID int64) ([]models.RiderIntent, error)
	CreateRiderIntent(ctx context.Context, ri *models.RiderIntent) error
	UpdateRiderIntent(ctx context.Context, ri models.RiderIntent) error

	CreateRoute(ctx context.Context, r *models.Route) error
	CreateUnit(ctx context.Context, u *models.Unit) error
	CreateDriver(ctx context.Context, d *models.Driver) error
	CreateRider(ctx context.Context, r *models.Rider) error
}

// Store agrega transacciones y health check a Queries
type Store interface {
	Queries
	// WithTx ejecuta fn en una transacción; un error de fn hace rollback
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
}

// StopLess orden de visualización: paradas sin orden van al final, desempate por ID
func StopLess(a, b models.Stop) bool {
	switch {
	case a.Order != nil && b.Order != nil:
		if *a.Order != *b.Order {
			return *a.Order < *b.Order
		}
	case a.Order != nil:
		return true
	case b.Order != nil:
		return false
	}
	return a.ID < b.ID
}

func SortStops(stops []models.Stop) {
	sort.SliceStable(stops, func(i, j int) bool { return StopLess(stops[i], stops[j]) })
}
