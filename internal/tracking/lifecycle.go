package tracking

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/yourorg/rutatrack/internal/models"
	"github.com/yourorg/rutatrack/internal/store"
)

// transiciones permitidas; los estados terminales no tienen salida
var transitions = map[models.JourneyState][]models.JourneyState{
	models.JourneyPending: {models.JourneyActive, models.JourneyCancelled},
	models.JourneyActive:  {models.JourneyCompleted, models.JourneyCancelled},
}

func canTransition(from, to models.JourneyState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transition(j *models.Journey, to models.JourneyState) error {
	if !canTransition(j.State, to) {
		return conflictf("journey %d cannot go from %s to %s", j.ID, j.State, to)
	}
	j.State = to
	return nil
}

type StartResult struct {
	Journey   models.Journey `json:"journey"`
	StopCount int            `json:"stop_count"`
	// Claimed la jornada ya estaba programada para la unidad
	Claimed bool `json:"claimed"`
}

type ConfirmResult struct {
	Visit      models.StopVisit `json:"visit"`
	Journey    models.Journey   `json:"journey"`
	IsLastStop bool             `json:"is_last_stop"`
}

// StartJourney abre la jornada del día para el conductor. unitID 0 usa la unidad
// asignada al conductor y routeID 0 la ruta de la jornada programada o de la unidad.
func (s *Service) StartJourney(ctx context.Context, driverID, unitID, routeID int64) (StartResult, error) {
	if driverID <= 0 {
		return StartResult{}, validationf("driver id is required")
	}
	if unitID < 0 || routeID < 0 {
		return StartResult{}, validationf("unit id and route id must be positive")
	}

	var res StartResult
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		driver, err := q.Driver(ctx, driverID, true)
		if err != nil {
			return lookup(err, "driver %d not found", driverID)
		}
		if unitID == 0 {
			if driver.UnitID == nil {
				return validationf("driver %d has no assigned unit; unit_id is required", driverID)
			}
			unitID = *driver.UnitID
		}
		unit, err := q.Unit(ctx, unitID)
		if err != nil {
			return lookup(err, "unit %d not found", unitID)
		}
		if unit.Status != models.UnitActive {
			return preconditionf("unit %s is %s", unit.Plate, unit.Status)
		}

		day := s.day()
		// una jornada abierta de ayer también bloquea: hay que terminarla o cancelarla
		if open, err := q.OpenJourney(ctx, driverID, true); err == nil {
			return conflictf("driver %d already has journey %d (%s) from %s", driverID, open.ID, open.State, open.Date)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		j, err := q.UnclaimedJourney(ctx, unitID, day, true)
		claimed := err == nil
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			j = models.Journey{Date: day, UnitID: unitID, State: models.JourneyPending}
		}

		switch {
		case routeID > 0:
			j.RouteID = &routeID
		case j.RouteID == nil:
			j.RouteID = unit.RouteID
		}

		var (
			route *models.Route
			stops []models.Stop
		)
		if j.RouteID != nil {
			if route, err = loadRoster(ctx, q, *j.RouteID); err != nil {
				return err
			}
			stops = route.Stops
		}

		if err := transition(&j, models.JourneyActive); err != nil {
			return err
		}
		now := s.now()
		j.DriverID = &driverID
		j.StartedAt = &now
		j.StopsTotal = len(stops)
		j.StopsCompleted = 0

		if claimed {
			err = q.UpdateJourney(ctx, j)
		} else {
			err = q.CreateJourney(ctx, &j)
		}
		if err != nil {
			return err
		}

		visits := make([]models.StopVisit, len(stops))
		for i, st := range stops {
			visits[i] = models.StopVisit{
				JourneyID: j.ID,
				StopID:    st.ID,
				DriverID:  driverID,
				State:     models.VisitPending,
			}
		}
		if err := q.CreateStopVisits(ctx, visits); err != nil {
			return err
		}
		for i := range visits {
			visits[i].Stop = &stops[i]
		}

		j.Route = route
		j.Visits = visits
		res = StartResult{Journey: j, StopCount: len(stops), Claimed: claimed}
		return nil
	})
	if err != nil {
		return StartResult{}, err
	}

	log.Printf("🚌 [JOURNEY] Conductor %d inició jornada %d (unidad %d, %d paradas)",
		driverID, res.Journey.ID, res.Journey.UnitID, res.StopCount)
	s.metrics.JourneyStarted()
	return res, nil
}

// activeJourney jornada en curso del conductor (de cualquier día), con bloqueo opcional
func (s *Service) activeJourney(ctx context.Context, q store.Queries, driverID int64, forUpdate bool) (models.Journey, error) {
	j, err := q.OpenJourney(ctx, driverID, forUpdate)
	if err != nil {
		return models.Journey{}, lookup(err, "driver %d has no journey in progress", driverID)
	}
	if j.State != models.JourneyActive {
		return models.Journey{}, notFoundf("driver %d has no journey in progress", driverID)
	}
	return j, nil
}

// ConfirmStop marca una parada como visitada si el conductor está dentro del radio.
// Se permite confirmar paradas fuera de orden.
func (s *Service) ConfirmStop(ctx context.Context, driverID, stopID int64, lat, lng float64) (ConfirmResult, error) {
	if err := validCoordinates(lat, lng); err != nil {
		return ConfirmResult{}, err
	}
	if driverID <= 0 || stopID <= 0 {
		return ConfirmResult{}, validationf("driver id and stop id are required")
	}

	var res ConfirmResult
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		j, err := s.activeJourney(ctx, q, driverID, true)
		if err != nil {
			return err
		}

		visit, err := q.StopVisit(ctx, j.ID, stopID, true)
		if errors.Is(err, store.ErrNotFound) {
			return conflictf("stop %d is not part of journey %d", stopID, j.ID)
		} else if err != nil {
			return err
		}
		if visit.State != models.VisitPending {
			return conflictf("stop %d is already %s", stopID, visit.State)
		}

		stop, err := q.Stop(ctx, stopID)
		if err != nil {
			return lookup(err, "stop %d not found", stopID)
		}
		dist := distance(lat, lng, stop)
		s.metrics.ProximityChecked("stop", dist <= s.cfg.StopConfirmRadius)
		if dist > s.cfg.StopConfirmRadius {
			return outOfRange(dist, s.cfg.StopConfirmRadius)
		}

		if j.StopsCompleted >= j.StopsTotal {
			return conflictf("journey %d has no pending stops", j.ID)
		}

		now := s.now()
		order := j.StopsCompleted + 1
		if visit.ArrivedAt != nil {
			wait := int(now.Sub(*visit.ArrivedAt) / time.Second)
			visit.WaitSeconds = &wait
		} else {
			visit.ArrivedAt = &now
		}
		visit.State = models.VisitConfirmed
		visit.ConfirmedAt = &now
		visit.ConfirmLat = &lat
		visit.ConfirmLng = &lng
		visit.DistanceMeters = &dist
		visit.VisitOrder = &order
		if err := q.UpdateStopVisit(ctx, visit); err != nil {
			return err
		}

		j.StopsCompleted = order
		if err := q.UpdateJourney(ctx, j); err != nil {
			return err
		}

		visit.Stop = &stop
		res = ConfirmResult{Visit: visit, Journey: j, IsLastStop: j.StopsCompleted == j.StopsTotal}
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	log.Printf("✅ [JOURNEY] Parada %d confirmada en jornada %d (%d/%d, %.1fm)",
		stopID, res.Journey.ID, res.Journey.StopsCompleted, res.Journey.StopsTotal, *res.Visit.DistanceMeters)
	s.metrics.StopConfirmed()
	return res, nil
}

// FinishJourney cierra la jornada en curso; exige todas las paradas confirmadas
func (s *Service) FinishJourney(ctx context.Context, driverID int64, lat, lng float64) (models.Journey, error) {
	if err := validCoordinates(lat, lng); err != nil {
		return models.Journey{}, err
	}
	if driverID <= 0 {
		return models.Journey{}, validationf("driver id is required")
	}

	var j models.Journey
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		var err error
		if j, err = s.activeJourney(ctx, q, driverID, true); err != nil {
			return err
		}
		if j.StopsCompleted < j.StopsTotal {
			return preconditionf("%d of %d stops still pending", j.StopsTotal-j.StopsCompleted, j.StopsTotal)
		}
		if err := transition(&j, models.JourneyCompleted); err != nil {
			return err
		}
		now := s.now()
		j.EndedAt = &now
		j.EndLat = &lat
		j.EndLng = &lng
		return q.UpdateJourney(ctx, j)
	})
	if err != nil {
		return models.Journey{}, err
	}

	log.Printf("🏁 [JOURNEY] Jornada %d finalizada por conductor %d", j.ID, driverID)
	s.metrics.JourneyFinished()
	return j, nil
}

// GetActiveJourney jornada abierta del conductor con ruta, paradas y visitas.
// Retorna nil si no hay ninguna.
func (s *Service) GetActiveJourney(ctx context.Context, driverID int64) (*models.Journey, error) {
	if driverID <= 0 {
		return nil, validationf("driver id is required")
	}
	j, err := s.store.OpenJourney(ctx, driverID, false)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if err := s.loadDetail(ctx, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// loadDetail adjunta ruta con paradas y visitas (confirmadas por orden de visita primero)
func (s *Service) loadDetail(ctx context.Context, j *models.Journey) error {
	if j.RouteID != nil {
		route, err := loadRoster(ctx, s.store, *j.RouteID)
		if err != nil && KindOf(err) != KindNotFound {
			return err
		}
		j.Route = route
	}

	visits, err := s.store.StopVisits(ctx, j.ID)
	if err != nil {
		return err
	}
	sort.SliceStable(visits, func(a, b int) bool {
		va, vb := visits[a].VisitOrder, visits[b].VisitOrder
		switch {
		case va != nil && vb != nil:
			return *va < *vb
		case va != nil:
			return true
		default:
			return false
		}
	})
	j.Visits = visits
	return nil
}

// CancelJourney cancelación administrativa; las visitas pendientes quedan expiradas
func (s *Service) CancelJourney(ctx context.Context, journeyID int64, reason string) (models.Journey, error) {
	if journeyID <= 0 {
		return models.Journey{}, validationf("journey id is required")
	}

	var j models.Journey
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		var err error
		if j, err = q.Journey(ctx, journeyID, true); err != nil {
			return lookup(err, "journey %d not found", journeyID)
		}
		if err := transition(&j, models.JourneyCancelled); err != nil {
			return err
		}
		now := s.now()
		j.EndedAt = &now
		j.Notes = reason
		if err := q.UpdateJourney(ctx, j); err != nil {
			return err
		}

		visits, err := q.StopVisits(ctx, j.ID)
		if err != nil {
			return err
		}
		for _, v := range visits {
			if v.State != models.VisitPending {
				continue
			}
			v.State = models.VisitExpired
			if err := q.UpdateStopVisit(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Journey{}, err
	}

	log.Printf("🛑 [JOURNEY] Jornada %d cancelada: %s", j.ID, reason)
	s.metrics.JourneyCancelled()
	return j, nil
}

// ScheduleJourney crea una jornada pendiente sin conductor para que los pasajeros
// declaren intención antes del inicio. date vacío usa el día actual.
func (s *Service) ScheduleJourney(ctx context.Context, unitID, routeID int64, date string) (models.Journey, error) {
	if unitID <= 0 || routeID < 0 {
		return models.Journey{}, validationf("unit id is required")
	}
	if date == "" {
		date = s.day()
	} else if _, err := time.ParseInLocation("2006-01-02", date, s.cfg.Location); err != nil {
		return models.Journey{}, validationf("date must be YYYY-MM-DD")
	}

	unit, err := s.store.Unit(ctx, unitID)
	if err != nil {
		return models.Journey{}, lookup(err, "unit %d not found", unitID)
	}
	j := models.Journey{Date: date, UnitID: unitID, State: models.JourneyPending, RouteID: unit.RouteID}
	if routeID > 0 {
		j.RouteID = &routeID
	}
	if j.RouteID != nil {
		if _, err := s.store.Route(ctx, *j.RouteID); err != nil {
			return models.Journey{}, lookup(err, "route %d not found", *j.RouteID)
		}
	}
	if err := s.store.CreateJourney(ctx, &j); err != nil {
		return models.Journey{}, err
	}
	log.Printf("📅 [JOURNEY] Jornada %d programada para unidad %s el %s", j.ID, unit.Plate, date)
	return j, nil
}
