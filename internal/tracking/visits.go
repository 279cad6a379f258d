package tracking

import (
	"context"

	"github.com/yourorg/rutatrack/internal/geo"
	"github.com/yourorg/rutatrack/internal/models"
)

func distance(lat, lng float64, st models.Stop) float64 {
	return geo.DistanceMeters(lat, lng, st.Lat, st.Lng)
}

// PendingStops visitas pendientes de la jornada en orden de parada
func (s *Service) PendingStops(ctx context.Context, journeyID int64) ([]models.StopVisit, error) {
	if journeyID <= 0 {
		return nil, validationf("journey id is required")
	}
	if _, err := s.store.Journey(ctx, journeyID, false); err != nil {
		return nil, lookup(err, "journey %d not found", journeyID)
	}
	visits, err := s.store.StopVisits(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	pending := make([]models.StopVisit, 0, len(visits))
	for _, v := range visits {
		if v.State == models.VisitPending {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

// PendingStopsForDriver igual que PendingStops, pero solo para jornadas del conductor;
// una jornada ajena se reporta como inexistente
func (s *Service) PendingStopsForDriver(ctx context.Context, driverID, journeyID int64) ([]models.StopVisit, error) {
	if driverID <= 0 || journeyID <= 0 {
		return nil, validationf("driver id and journey id are required")
	}
	j, err := s.store.Journey(ctx, journeyID, false)
	if err != nil {
		return nil, lookup(err, "journey %d not found", journeyID)
	}
	if j.DriverID == nil || *j.DriverID != driverID {
		return nil, notFoundf("journey %d not found", journeyID)
	}
	return s.PendingStops(ctx, journeyID)
}

// StopProximity parada pendiente más cercana a la posición del conductor
type StopProximity struct {
	JourneyID      int64        `json:"journey_id"`
	Stop           *models.Stop `json:"stop,omitempty"`
	DistanceMeters float64      `json:"distance_meters"`
	RadiusMeters   float64      `json:"radius_meters"`
	WithinRadius   bool         `json:"within_radius"`
	PendingCount   int          `json:"pending_count"`
}

// VerifyStopProximity no modifica nada; Stop es nil cuando no quedan paradas pendientes
func (s *Service) VerifyStopProximity(ctx context.Context, driverID int64, lat, lng float64) (StopProximity, error) {
	if err := validCoordinates(lat, lng); err != nil {
		return StopProximity{}, err
	}
	j, err := s.activeJourney(ctx, s.store, driverID, false)
	if err != nil {
		return StopProximity{}, err
	}
	pending, err := s.PendingStops(ctx, j.ID)
	if err != nil {
		return StopProximity{}, err
	}

	res := StopProximity{JourneyID: j.ID, RadiusMeters: s.cfg.StopConfirmRadius, PendingCount: len(pending)}
	for _, v := range pending {
		if v.Stop == nil {
			continue
		}
		d := distance(lat, lng, *v.Stop)
		if res.Stop == nil || d < res.DistanceMeters {
			res.Stop = v.Stop
			res.DistanceMeters = d
		}
	}
	res.WithinRadius = res.Stop != nil && res.DistanceMeters <= s.cfg.StopConfirmRadius
	s.metrics.ProximityChecked("stop", res.WithinRadius)
	return res, nil
}
