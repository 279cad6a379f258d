package tracking

import (
	"context"

	"github.com/yourorg/rutatrack/internal/models"
	"github.com/yourorg/rutatrack/internal/store"
)

// loadRoster ruta con sus paradas en orden de visualización. Es la foto que
// StartJourney usa para crear las visitas; cambios posteriores a la ruta no
// afectan jornadas ya iniciadas.
func loadRoster(ctx context.Context, q store.Queries, routeID int64) (*models.Route, error) {
	r, err := q.Route(ctx, routeID)
	if err != nil {
		return nil, lookup(err, "route %d not found", routeID)
	}
	stops, err := q.RouteStops(ctx, routeID)
	if err != nil {
		return nil, err
	}
	store.SortStops(stops)
	r.Stops = stops
	return &r, nil
}

// Roster expone la ruta con paradas ordenadas
func (s *Service) Roster(ctx context.Context, routeID int64) (*models.Route, error) {
	if routeID <= 0 {
		return nil, validationf("route id is required")
	}
	return loadRoster(ctx, s.store, routeID)
}
