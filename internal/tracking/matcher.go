package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/yourorg/rutatrack/internal/geo"
	"github.com/yourorg/rutatrack/internal/models"
	"github.com/yourorg/rutatrack/internal/notify"
	"github.com/yourorg/rutatrack/internal/store"
	"github.com/yourorg/rutatrack/internal/validation"
)

// CheckUnitProximityToStops avisa a cada pasajero con intención no confirmada
// cuya parada está dentro del radio de alerta. Retorna cuántos avisos se enviaron.
// Un pasajero con datos inválidos se registra en el log y se omite.
func (s *Service) CheckUnitProximityToStops(ctx context.Context, journeyID int64, lat, lng float64) (int, error) {
	if err := validCoordinates(lat, lng); err != nil {
		return 0, err
	}
	intents, err := s.store.RiderIntents(ctx, journeyID)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, ri := range intents {
		if ri.Confirmed || !ri.Wants() {
			continue
		}
		rider, err := s.store.Rider(ctx, ri.RiderID)
		if err != nil {
			log.Printf("⚠️ [MATCHER] pasajero %d omitido: %v", ri.RiderID, err)
			continue
		}
		if rider.StopID == nil {
			continue
		}
		stop, err := s.store.Stop(ctx, *rider.StopID)
		if err != nil {
			log.Printf("⚠️ [MATCHER] parada %d del pasajero %d: %v", *rider.StopID, rider.ID, err)
			continue
		}
		if err := validation.ValidateCoordinatePair(stop.Lat, stop.Lng, "stop"); err != nil {
			log.Printf("⚠️ [MATCHER] parada %d con coordenadas inválidas: %v", stop.ID, err)
			continue
		}

		dist := distance(lat, lng, stop)
		within := dist <= s.cfg.RiderAlertRadius
		s.metrics.ProximityChecked("rider_stop", within)
		if !within {
			continue
		}
		s.notify.Emit(notify.RiderChannel(rider.ID), notify.RiderAlert{
			Message:        fmt.Sprintf("La unidad está a %.0f metros de tu parada %s", dist, stop.Name),
			StopID:         stop.ID,
			StopName:       stop.Name,
			DistanceMeters: dist,
			JourneyID:      journeyID,
		})
		s.metrics.RiderNotified()
		sent++
	}
	return sent, nil
}

type RiderProximity struct {
	Confirmed      bool    `json:"confirmed"`
	DistanceMeters float64 `json:"distance_meters"`
	RadiusMeters   float64 `json:"radius_meters"`
	Message        string  `json:"message"`
}

// CheckRiderProximity confirma el abordaje cuando el pasajero está dentro del radio
// de la unidad. Confirmar es idempotente: una segunda llamada no vuelve a emitir.
func (s *Service) CheckRiderProximity(ctx context.Context, riderID, journeyID int64, lat, lng float64) (RiderProximity, error) {
	if err := validCoordinates(lat, lng); err != nil {
		return RiderProximity{}, err
	}
	if riderID <= 0 || journeyID <= 0 {
		return RiderProximity{}, validationf("rider id and journey id are required")
	}

	j, err := s.store.Journey(ctx, journeyID, false)
	if err != nil {
		return RiderProximity{}, lookup(err, "journey %d not found", journeyID)
	}
	if j.State != models.JourneyActive || j.DriverID == nil {
		return RiderProximity{}, notFoundf("journey %d is not in progress", journeyID)
	}
	ri, err := s.store.RiderIntent(ctx, riderID, journeyID, false)
	if err != nil {
		return RiderProximity{}, lookup(err, "rider %d has no intent for journey %d", riderID, journeyID)
	}
	unitPos, ok, err := s.driverPosition(ctx, *j.DriverID)
	if err != nil {
		return RiderProximity{}, err
	}
	// ya confirmado: no depende de conocer la posición de la unidad
	if !ok && !ri.Confirmed {
		return RiderProximity{}, notFoundf("unit position for journey %d is unknown", journeyID)
	}

	now := s.now()
	if err := s.store.SetRiderPosition(ctx, riderID, models.Position{Lat: lat, Lng: lng, UpdatedAt: now}); err != nil {
		return RiderProximity{}, lookup(err, "rider %d not found", riderID)
	}

	res := RiderProximity{RadiusMeters: s.cfg.RiderConfirmRadius}
	if ok {
		res.DistanceMeters = geo.DistanceMeters(lat, lng, unitPos.Lat, unitPos.Lng)
	}
	if ri.Confirmed {
		res.Confirmed = true
		res.Message = "Uso ya confirmado"
		return res, nil
	}
	dist := res.DistanceMeters
	within := dist <= s.cfg.RiderConfirmRadius
	s.metrics.ProximityChecked("rider_unit", within)
	if !within {
		res.Message = fmt.Sprintf("Estás a %.0f metros de la unidad", dist)
		return res, nil
	}

	newly := false
	err = s.store.WithTx(ctx, func(q store.Queries) error {
		locked, err := q.RiderIntent(ctx, riderID, journeyID, true)
		if err != nil {
			return lookup(err, "rider %d has no intent for journey %d", riderID, journeyID)
		}
		if locked.Confirmed {
			return nil
		}
		locked.Confirmed = true
		locked.ConfirmedAt = &now
		newly = true
		return q.UpdateRiderIntent(ctx, locked)
	})
	if err != nil {
		return RiderProximity{}, err
	}

	res.Confirmed = true
	res.Message = "Uso confirmado automáticamente"
	if newly {
		s.notify.Emit(notify.RideConfirmedChannel(riderID), notify.RideConfirmation{
			Message:        res.Message,
			DistanceMeters: dist,
			JourneyID:      journeyID,
		})
		s.metrics.RideConfirmed()
		log.Printf("🎫 [MATCHER] Pasajero %d confirmado en jornada %d (%.1fm)", riderID, journeyID, dist)
	}
	return res, nil
}

// IntentProximity intención del pasajero con la distancia a la unidad si se conoce
type IntentProximity struct {
	Intent         models.RiderIntent  `json:"intent"`
	JourneyState   models.JourneyState `json:"journey_state"`
	UnitID         int64               `json:"unit_id"`
	DistanceMeters *float64            `json:"distance_meters,omitempty"`
	WithinRadius   bool                `json:"within_radius"`
}

func (s *Service) RiderIntentsWithProximity(ctx context.Context, riderID int64, lat, lng float64) ([]IntentProximity, error) {
	if err := validCoordinates(lat, lng); err != nil {
		return nil, err
	}
	if _, err := s.store.Rider(ctx, riderID); err != nil {
		return nil, lookup(err, "rider %d not found", riderID)
	}
	intents, err := s.store.RiderIntentsForRider(ctx, riderID)
	if err != nil {
		return nil, err
	}

	out := make([]IntentProximity, 0, len(intents))
	for _, ri := range intents {
		j, err := s.store.Journey(ctx, ri.JourneyID, false)
		if err != nil {
			log.Printf("⚠️ [MATCHER] jornada %d de la intención %d: %v", ri.JourneyID, ri.ID, err)
			continue
		}
		item := IntentProximity{Intent: ri, JourneyState: j.State, UnitID: j.UnitID}
		if j.State == models.JourneyActive && j.DriverID != nil {
			pos, ok, err := s.driverPosition(ctx, *j.DriverID)
			if err != nil {
				log.Printf("⚠️ [MATCHER] posición del conductor %d: %v", *j.DriverID, err)
			} else if ok {
				d := geo.DistanceMeters(lat, lng, pos.Lat, pos.Lng)
				item.DistanceMeters = &d
				item.WithinRadius = d <= s.cfg.RiderConfirmRadius
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// DeclareIntent registra que el pasajero abordará la unidad de la jornada
func (s *Service) DeclareIntent(ctx context.Context, riderID, journeyID int64, indicated *bool) (models.RiderIntent, error) {
	if riderID <= 0 || journeyID <= 0 {
		return models.RiderIntent{}, validationf("rider id and journey id are required")
	}
	if _, err := s.store.Rider(ctx, riderID); err != nil {
		return models.RiderIntent{}, lookup(err, "rider %d not found", riderID)
	}
	j, err := s.store.Journey(ctx, journeyID, false)
	if err != nil {
		return models.RiderIntent{}, lookup(err, "journey %d not found", journeyID)
	}
	if j.State.Terminal() {
		return models.RiderIntent{}, preconditionf("journey %d is %s", journeyID, j.State)
	}

	ri := models.RiderIntent{RiderID: riderID, JourneyID: journeyID, Indicated: indicated, CreatedAt: s.now()}
	if err := s.store.CreateRiderIntent(ctx, &ri); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.RiderIntent{}, conflictf("rider %d already declared intent for journey %d", riderID, journeyID)
		}
		return models.RiderIntent{}, err
	}
	return ri, nil
}
