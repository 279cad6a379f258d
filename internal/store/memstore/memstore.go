// Package memstore implementa store.Store en memoria.
// Las transacciones se serializan y hacen rollback restaurando una copia del estado.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/yourorg/rutatrack/internal/models"
	"github.com/yourorg/rutatrack/internal/store"
)

type state struct {
	nextID   int64
	routes   map[int64]models.Route
	stops    map[int64]models.Stop
	units    map[int64]models.Unit
	drivers  map[int64]models.Driver
	riders   map[int64]models.Rider
	journeys map[int64]models.Journey
	visits   map[int64]models.StopVisit
	intents  map[int64]models.RiderIntent
}

func newState() *state {
	return &state{
		routes:   make(map[int64]models.Route),
		stops:    make(map[int64]models.Stop),
		units:    make(map[int64]models.Unit),
		drivers:  make(map[int64]models.Driver),
		riders:   make(map[int64]models.Rider),
		journeys: make(map[int64]models.Journey),
		visits:   make(map[int64]models.StopVisit),
		intents:  make(map[int64]models.RiderIntent),
	}
}

func (s *state) clone() *state {
	c := &state{nextID: s.nextID}
	c.routes = cloneMap(s.routes)
	c.stops = cloneMap(s.stops)
	c.units = cloneMap(s.units)
	c.drivers = cloneMap(s.drivers)
	c.riders = cloneMap(s.riders)
	c.journeys = cloneMap(s.journeys)
	c.visits = cloneMap(s.visits)
	c.intents = cloneMap(s.intents)
	return c
}

func cloneMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type shared struct {
	mu sync.Mutex
	// txMu lo toma WithTx y toda escritura hecha fuera de una transacción,
	// así un rollback nunca pisa escrituras ajenas
	txMu sync.Mutex
	data *state
}

// Store comparte estado con las vistas que WithTx entrega al callback (tx=true)
type Store struct {
	*shared
	tx bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{shared: &shared{data: newState()}}
}

// write toma txMu si la escritura no viene de dentro de WithTx; defer s.write()()
func (s *Store) write() func() {
	if s.tx {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

func (s *Store) id() int64 {
	s.data.nextID++
	return s.data.nextID
}

func (s *Store) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(&Store{shared: s.shared, tx: true}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// ============================================================================
// RED DE TRANSPORTE
// ============================================================================

func (s *Store) Driver(ctx context.Context, id int64, forUpdate bool) (models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.drivers[id]
	if !ok {
		return models.Driver{}, store.ErrNotFound
	}
	return d, nil
}

func (s *Store) Unit(ctx context.Context, id int64) (models.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.units[id]
	if !ok {
		return models.Unit{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) Route(ctx context.Context, id int64) (models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.routes[id]
	if !ok {
		return models.Route{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) RouteStops(ctx context.Context, routeID int64) ([]models.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stops := []models.Stop{}
	for _, st := range s.data.stops {
		if st.RouteID == routeID {
			stops = append(stops, st)
		}
	}
	store.SortStops(stops)
	return stops, nil
}

func (s *Store) Stop(ctx context.Context, id int64) (models.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data.stops[id]
	if !ok {
		return models.Stop{}, store.ErrNotFound
	}
	return st, nil
}

func (s *Store) Rider(ctx context.Context, id int64) (models.Rider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.riders[id]
	if !ok {
		return models.Rider{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) CreateRoute(ctx context.Context, r *models.Route) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	for i := range r.Stops {
		r.Stops[i].ID = s.id()
		r.Stops[i].RouteID = r.ID
		s.data.stops[r.Stops[i].ID] = r.Stops[i]
	}
	stored := *r
	stored.Stops = nil
	s.data.routes[r.ID] = stored
	return nil
}

func (s *Store) CreateUnit(ctx context.Context, u *models.Unit) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.id()
	s.data.units[u.ID] = *u
	return nil
}

func (s *Store) CreateDriver(ctx context.Context, d *models.Driver) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.drivers {
		if d.Email != "" && existing.Email == d.Email {
			return store.ErrDuplicate
		}
	}
	d.ID = s.id()
	s.data.drivers[d.ID] = *d
	return nil
}

func (s *Store) CreateRider(ctx context.Context, r *models.Rider) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.riders {
		if r.Email != "" && existing.Email == r.Email {
			return store.ErrDuplicate
		}
	}
	r.ID = s.id()
	s.data.riders[r.ID] = *r
	return nil
}

// ============================================================================
// JORNADAS
// ============================================================================

func (s *Store) Journey(ctx context.Context, id int64, forUpdate bool) (models.Journey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.data.journeys[id]
	if !ok {
		return models.Journey{}, store.ErrNotFound
	}
	return j, nil
}

func (s *Store) OpenJourney(ctx context.Context, driverID int64, forUpdate bool) (models.Journey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Journey
	for _, j := range s.data.journeys {
		if j.DriverID == nil || *j.DriverID != driverID || !j.State.Open() {
			continue
		}
		if found == nil || j.ID > found.ID {
			j := j
			found = &j
		}
	}
	if found == nil {
		return models.Journey{}, store.ErrNotFound
	}
	return *found, nil
}

func (s *Store) UnclaimedJourney(ctx context.Context, unitID int64, day string, forUpdate bool) (models.Journey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstJourney(func(j models.Journey) bool {
		return j.DriverID == nil && j.UnitID == unitID && j.Date == day && j.State == models.JourneyPending
	})
}

// firstJourney menor ID que cumple match; mu debe estar tomado
func (s *Store) firstJourney(match func(models.Journey) bool) (models.Journey, error) {
	var found *models.Journey
	for _, j := range s.data.journeys {
		if !match(j) {
			continue
		}
		if found == nil || j.ID < found.ID {
			j := j
			found = &j
		}
	}
	if found == nil {
		return models.Journey{}, store.ErrNotFound
	}
	return *found, nil
}

func (s *Store) CreateJourney(ctx context.Context, j *models.Journey) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	j.ID = s.id()
	stored := *j
	stored.Route, stored.Visits = nil, nil
	s.data.journeys[j.ID] = stored
	return nil
}

func (s *Store) UpdateJourney(ctx context.Context, j models.Journey) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.journeys[j.ID]; !ok {
		return store.ErrNotFound
	}
	j.Route, j.Visits = nil, nil
	s.data.journeys[j.ID] = j
	return nil
}

func (s *Store) CreateStopVisits(ctx context.Context, visits []models.StopVisit) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range visits {
		visits[i].ID = s.id()
		v := visits[i]
		v.Stop = nil
		s.data.visits[v.ID] = v
	}
	return nil
}

func (s *Store) StopVisits(ctx context.Context, journeyID int64) ([]models.StopVisit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	visits := []models.StopVisit{}
	for _, v := range s.data.visits {
		if v.JourneyID != journeyID {
			continue
		}
		if st, ok := s.data.stops[v.StopID]; ok {
			st := st
			v.Stop = &st
		}
		visits = append(visits, v)
	}
	sort.SliceStable(visits, func(i, j int) bool {
		a, b := visits[i].Stop, visits[j].Stop
		if a == nil || b == nil || a.ID == b.ID {
			return visits[i].ID < visits[j].ID
		}
		return store.StopLess(*a, *b)
	})
	return visits, nil
}

func (s *Store) StopVisit(ctx context.Context, journeyID, stopID int64, forUpdate bool) (models.StopVisit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.data.visits {
		if v.JourneyID == journeyID && v.StopID == stopID {
			return v, nil
		}
	}
	return models.StopVisit{}, store.ErrNotFound
}

func (s *Store) UpdateStopVisit(ctx context.Context, v models.StopVisit) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.visits[v.ID]; !ok {
		return store.ErrNotFound
	}
	v.Stop = nil
	s.data.visits[v.ID] = v
	return nil
}

// ============================================================================
// POSICIONES
// ============================================================================

func (s *Store) SetDriverPosition(ctx context.Context, driverID int64, pos models.Position) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.drivers[driverID]
	if !ok {
		return store.ErrNotFound
	}
	d.Position = &pos
	s.data.drivers[driverID] = d
	return nil
}

func (s *Store) SetRiderPosition(ctx context.Context, riderID int64, pos models.Position) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.riders[riderID]
	if !ok {
		return store.ErrNotFound
	}
	r.Position = &pos
	s.data.riders[riderID] = r
	return nil
}

func (s *Store) ActiveUnitPositions(ctx context.Context) ([]models.UnitPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.UnitPosition{}
	for _, j := range s.data.journeys {
		if j.State != models.JourneyActive || j.DriverID == nil {
			continue
		}
		d, ok := s.data.drivers[*j.DriverID]
		if !ok || d.Position == nil {
			continue
		}
		out = append(out, models.UnitPosition{
			DriverID:  d.ID,
			UnitID:    j.UnitID,
			JourneyID: j.ID,
			RouteID:   j.RouteID,
			Lat:       d.Position.Lat,
			Lng:       d.Position.Lng,
			UpdatedAt: d.Position.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JourneyID < out[j].JourneyID })
	return out, nil
}

// ============================================================================
// INTENCIONES DE USO
// ============================================================================

func (s *Store) RiderIntents(ctx context.Context, journeyID int64) ([]models.RiderIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intentsWhere(func(ri models.RiderIntent) bool { return ri.JourneyID == journeyID }), nil
}

func (s *Store) RiderIntentsForRider(ctx context.Context, riderID int64) ([]models.RiderIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intentsWhere(func(ri models.RiderIntent) bool { return ri.RiderID == riderID }), nil
}

func (s *Store) intentsWhere(match func(models.RiderIntent) bool) []models.RiderIntent {
	out := []models.RiderIntent{}
	for _, ri := range s.data.intents {
		if match(ri) {
			out = append(out, ri)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) RiderIntent(ctx context.Context, riderID, journeyID int64, forUpdate bool) (models.RiderIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ri := range s.data.intents {
		if ri.RiderID == riderID && ri.JourneyID == journeyID {
			return ri, nil
		}
	}
	return models.RiderIntent{}, store.ErrNotFound
}

func (s *Store) CreateRiderIntent(ctx context.Context, ri *models.RiderIntent) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.intents {
		if existing.RiderID == ri.RiderID && existing.JourneyID == ri.JourneyID {
			return store.ErrDuplicate
		}
	}
	ri.ID = s.id()
	s.data.intents[ri.ID] = *ri
	return nil
}

func (s *Store) UpdateRiderIntent(ctx context.Context, ri models.RiderIntent) error {
	defer s.write()()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.intents[ri.ID]; !ok {
		return store.ErrNotFound
	}
	s.data.intents[ri.ID] = ri
	return nil
}
