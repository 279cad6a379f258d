package tracking

import (
	"context"
	"errors"
	"log"

	"github.com/yourorg/rutatrack/internal/geo"
	"github.com/yourorg/rutatrack/internal/models"
	"github.com/yourorg/rutatrack/internal/notify"
	"github.com/yourorg/rutatrack/internal/store"
)

type PositionUpdate struct {
	JourneyActive     bool   `json:"journey_active"`
	JourneyID         *int64 `json:"journey_id,omitempty"`
	NotificationsSent int    `json:"notifications_sent"`
	Cell              string `json:"cell"`
}

// UpdateDriverPosition guarda la posición (last write wins), publica unit-location
// y, si hay jornada en curso, revisa la cercanía a las paradas de los pasajeros.
func (s *Service) UpdateDriverPosition(ctx context.Context, driverID int64, lat, lng float64) (PositionUpdate, error) {
	if err := validCoordinates(lat, lng); err != nil {
		return PositionUpdate{}, err
	}
	if driverID <= 0 {
		return PositionUpdate{}, validationf("driver id is required")
	}

	driver, err := s.store.Driver(ctx, driverID, false)
	if err != nil {
		return PositionUpdate{}, lookup(err, "driver %d not found", driverID)
	}

	now := s.now()
	pos := models.Position{Lat: lat, Lng: lng, UpdatedAt: now}
	if err := s.store.SetDriverPosition(ctx, driverID, pos); err != nil {
		return PositionUpdate{}, lookup(err, "driver %d not found", driverID)
	}
	if s.positions != nil {
		if err := s.positions.SetDriverPosition(ctx, driverID, pos); err != nil {
			log.Printf("⚠️ [POSITIONS] cache write driver %d: %v", driverID, err)
		}
	}

	j, err := s.store.OpenJourney(ctx, driverID, false)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return PositionUpdate{}, err
	}
	active := err == nil && j.State == models.JourneyActive

	res := PositionUpdate{JourneyActive: active, Cell: geo.Cell(lat, lng)}
	event := notify.UnitLocation{DriverID: driverID, UnitID: driver.UnitID, Lat: lat, Lng: lng, Cell: res.Cell, At: now}
	if active {
		event.UnitID = &j.UnitID
		event.RouteID = j.RouteID
		event.JourneyID = &j.ID
		res.JourneyID = &j.ID
	} else if driver.UnitID != nil {
		if unit, err := s.store.Unit(ctx, *driver.UnitID); err == nil {
			event.RouteID = unit.RouteID
		}
	}
	s.notify.Emit(notify.UnitLocationChannel(event.RouteID), event)

	if !active {
		return res, nil
	}
	sent, err := s.CheckUnitProximityToStops(ctx, j.ID, lat, lng)
	if err != nil {
		return res, err
	}
	res.NotificationsSent = sent
	return res, nil
}

func (s *Service) UpdateRiderPosition(ctx context.Context, riderID int64, lat, lng float64) error {
	if err := validCoordinates(lat, lng); err != nil {
		return err
	}
	if riderID <= 0 {
		return validationf("rider id is required")
	}
	pos := models.Position{Lat: lat, Lng: lng, UpdatedAt: s.now()}
	if err := s.store.SetRiderPosition(ctx, riderID, pos); err != nil {
		return lookup(err, "rider %d not found", riderID)
	}
	return nil
}

// ActiveUnitPositions unidades con jornada en curso y posición conocida
func (s *Service) ActiveUnitPositions(ctx context.Context) ([]models.UnitPosition, error) {
	positions, err := s.store.ActiveUnitPositions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		p := &positions[i]
		if s.positions != nil {
			if cached, ok, err := s.positions.DriverPosition(ctx, p.DriverID); err == nil && ok && cached.UpdatedAt.After(p.UpdatedAt) {
				p.Lat, p.Lng, p.UpdatedAt = cached.Lat, cached.Lng, cached.UpdatedAt
			}
		}
		p.Cell = geo.Cell(p.Lat, p.Lng)
	}
	return positions, nil
}
