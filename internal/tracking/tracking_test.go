package tracking

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/rutatrack/internal/models"
	"github.com/yourorg/rutatrack/internal/notify"
	"github.com/yourorg/rutatrack/internal/store/memstore"
)

type emitted struct {
	channel string
	payload any
}

type recorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recorder) Emit(channel string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{channel, payload})
}

func (r *recorder) on(prefix string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if strings.HasPrefix(e.channel, prefix) {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	ctx    context.Context
	svc    *Service
	store  *memstore.Store
	rec    *recorder
	now    time.Time
	route  models.Route
	unit   models.Unit
	driver models.Driver
}

func intp(n int) *int { return &n }

// Paradas sobre el mismo meridiano, ~556m entre cada una
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: memstore.New(),
		rec:   &recorder{},
		now:   time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	}

	f.route = models.Route{Name: "Ruta 1", Stops: []models.Stop{
		{Name: "Plaza", Lat: -33.4500, Lng: -70.6600, Order: intp(1)},
		{Name: "Hospital", Lat: -33.4550, Lng: -70.6600, Order: intp(2)},
		{Name: "Terminal", Lat: -33.4600, Lng: -70.6600, Order: intp(3)},
	}}
	if err := f.store.CreateRoute(f.ctx, &f.route); err != nil {
		t.Fatalf("CreateRoute: %v", err)
	}
	f.unit = models.Unit{Plate: "AB-1234", Capacity: 40, Status: models.UnitActive, RouteID: &f.route.ID}
	if err := f.store.CreateUnit(f.ctx, &f.unit); err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}
	f.driver = f.newDriver(t, "conductor@rutatrack.test", &f.unit.ID)

	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.svc = NewService(f.store, f.rec, DefaultConfig(), opts...)
	return f
}

func (f *fixture) newDriver(t *testing.T, email string, unitID *int64) models.Driver {
	t.Helper()
	d := models.Driver{Name: "Conductor", Email: email, UnitID: unitID, Role: models.DriverPrimary}
	if err := f.store.CreateDriver(f.ctx, &d); err != nil {
		t.Fatalf("CreateDriver: %v", err)
	}
	return d
}

func (f *fixture) newRider(t *testing.T, email string, stopID *int64) models.Rider {
	t.Helper()
	r := models.Rider{Name: "Pasajero", Email: email, StopID: stopID, RouteID: &f.route.ID}
	if err := f.store.CreateRider(f.ctx, &r); err != nil {
		t.Fatalf("CreateRider: %v", err)
	}
	return r
}

func (f *fixture) start(t *testing.T) models.Journey {
	t.Helper()
	res, err := f.svc.StartJourney(f.ctx, f.driver.ID, 0, 0)
	if err != nil {
		t.Fatalf("StartJourney: %v", err)
	}
	return res.Journey
}

func (f *fixture) stop(i int) models.Stop { return f.route.Stops[i] }

func expectKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("Expected %s error, got %s (%v)", want, got, err)
	}
}

// ============================================================================
// CICLO DE VIDA
// ============================================================================

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to models.JourneyState
		ok       bool
	}{
		{models.JourneyPending, models.JourneyActive, true},
		{models.JourneyPending, models.JourneyCancelled, true},
		{models.JourneyPending, models.JourneyCompleted, false},
		{models.JourneyActive, models.JourneyCompleted, true},
		{models.JourneyActive, models.JourneyCancelled, true},
		{models.JourneyActive, models.JourneyPending, false},
		{models.JourneyCompleted, models.JourneyActive, false},
		{models.JourneyCompleted, models.JourneyCancelled, false},
		{models.JourneyCancelled, models.JourneyActive, false},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.ok, got)
		}
	}
}

func TestStartJourneyCreatesVisits(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.StartJourney(f.ctx, f.driver.ID, 0, 0)
	if err != nil {
		t.Fatalf("StartJourney: %v", err)
	}

	j := res.Journey
	if j.State != models.JourneyActive {
		t.Errorf("Expected en_curso, got %s", j.State)
	}
	if res.StopCount != 3 || j.StopsTotal != 3 || j.StopsCompleted != 0 {
		t.Errorf("Unexpected counters: count=%d total=%d completed=%d", res.StopCount, j.StopsTotal, j.StopsCompleted)
	}
	if j.Date != "2026-10-16" || j.StartedAt == nil || !j.StartedAt.Equal(f.now) {
		t.Errorf("Unexpected date/start: %s %v", j.Date, j.StartedAt)
	}
	if j.DriverID == nil || *j.DriverID != f.driver.ID || j.UnitID != f.unit.ID {
		t.Errorf("Unexpected driver/unit: %+v", j)
	}
	if res.Claimed {
		t.Error("Expected a new journey, not a claimed one")
	}

	visits, err := f.store.StopVisits(f.ctx, j.ID)
	if err != nil {
		t.Fatalf("StopVisits: %v", err)
	}
	if len(visits) != 3 {
		t.Fatalf("Expected 3 visits, got %d", len(visits))
	}
	for i, v := range visits {
		if v.State != models.VisitPending || v.StopID != f.stop(i).ID {
			t.Errorf("visit %d: unexpected %+v", i, v)
		}
	}
}

func TestStartJourneyTwiceSameDayConflicts(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	_, err := f.svc.StartJourney(f.ctx, f.driver.ID, 0, 0)
	expectKind(t, err, KindConflict)
}

func TestStartJourneyValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.StartJourney(f.ctx, 0, 0, 0)
	expectKind(t, err, KindValidation)

	_, err = f.svc.StartJourney(f.ctx, 999, 0, 0)
	expectKind(t, err, KindNotFound)

	noUnit := f.newDriver(t, "sin-unidad@rutatrack.test", nil)
	_, err = f.svc.StartJourney(f.ctx, noUnit.ID, 0, 0)
	expectKind(t, err, KindValidation)

	_, err = f.svc.StartJourney(f.ctx, f.driver.ID, 12345, 0)
	expectKind(t, err, KindNotFound)

	_, err = f.svc.StartJourney(f.ctx, f.driver.ID, 0, 12345)
	expectKind(t, err, KindNotFound)
}

func TestStartJourneyRequiresActiveUnit(t *testing.T) {
	f := newFixture(t)
	u := models.Unit{Plate: "ZZ-9999", Status: models.UnitMaintenance, RouteID: &f.route.ID}
	if err := f.store.CreateUnit(f.ctx, &u); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.StartJourney(f.ctx, f.driver.ID, u.ID, 0)
	expectKind(t, err, KindPrecondition)

	// la transacción fallida no deja jornadas abiertas
	if j, _ := f.svc.GetActiveJourney(f.ctx, f.driver.ID); j != nil {
		t.Errorf("Expected no journey, got %+v", j)
	}
}

func TestStartJourneyClaimsScheduledJourney(t *testing.T) {
	f := newFixture(t)
	scheduled, err := f.svc.ScheduleJourney(f.ctx, f.unit.ID, 0, "")
	if err != nil {
		t.Fatalf("ScheduleJourney: %v", err)
	}
	if scheduled.State != models.JourneyPending || scheduled.DriverID != nil {
		t.Fatalf("Unexpected scheduled journey: %+v", scheduled)
	}

	res, err := f.svc.StartJourney(f.ctx, f.driver.ID, 0, 0)
	if err != nil {
		t.Fatalf("StartJourney: %v", err)
	}
	if !res.Claimed || res.Journey.ID != scheduled.ID {
		t.Errorf("Expected to claim journey %d, got %d (claimed=%v)", scheduled.ID, res.Journey.ID, res.Claimed)
	}
	if res.Journey.StopsTotal != 3 {
		t.Errorf("Expected 3 stops, got %d", res.Journey.StopsTotal)
	}
}

func TestStartJourneyNextDayAfterFinish(t *testing.T) {
	f := newFixture(t)
	emptyRoute := models.Route{Name: "Sin paradas"}
	if err := f.store.CreateRoute(f.ctx, &emptyRoute); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.StartJourney(f.ctx, f.driver.ID, 0, emptyRoute.ID)
	if err != nil {
		t.Fatalf("StartJourney: %v", err)
	}
	if res.Journey.StopsTotal != 0 {
		t.Fatalf("Expected 0 stops, got %d", res.Journey.StopsTotal)
	}
	if _, err := f.svc.FinishJourney(f.ctx, f.driver.ID, -33.45, -70.66); err != nil {
		t.Fatalf("FinishJourney on empty route: %v", err)
	}

	f.now = f.now.Add(24 * time.Hour)
	if _, err := f.svc.StartJourney(f.ctx, f.driver.ID, 0, 0); err != nil {
		t.Fatalf("Expected new journey next day, got %v", err)
	}
}

func TestJourneyStaysOpenAcrossMidnight(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2026, 10, 16, 23, 50, 0, 0, time.UTC)
	j := f.start(t)

	f.now = f.now.Add(20 * time.Minute)

	active, err := f.svc.GetActiveJourney(f.ctx, f.driver.ID)
	if err != nil {
		t.Fatalf("GetActiveJourney: %v", err)
	}
	if active == nil || active.ID != j.ID {
		t.Fatalf("Expected journey %d still active after midnight, got %+v", j.ID, active)
	}
	if active.Date != "2026-10-16" {
		t.Errorf("Expected journey date to stay 2026-10-16, got %s", active.Date)
	}

	_, err = f.svc.StartJourney(f.ctx, f.driver.ID, 0, 0)
	expectKind(t, err, KindConflict)

	upd, err := f.svc.UpdateDriverPosition(f.ctx, f.driver.ID, -33.4501, -70.66)
	if err != nil {
		t.Fatalf("UpdateDriverPosition: %v", err)
	}
	if !upd.JourneyActive || upd.JourneyID == nil || *upd.JourneyID != j.ID {
		t.Errorf("Expected position update bound to journey %d, got %+v", j.ID, upd)
	}

	if _, err := f.svc.ConfirmStop(f.ctx, f.driver.ID, f.stop(0).ID, -33.4501, -70.66); err != nil {
		t.Fatalf("ConfirmStop after midnight: %v", err)
	}
	units, err := f.svc.ActiveUnitPositions(f.ctx)
	if err != nil || len(units) != 1 {
		t.Errorf("Expected 1 active unit after midnight, got %d (%v)", len(units), err)
	}
}

// ============================================================================
// CONFIRMACIÓN DE PARADAS
// ============================================================================

func TestConfirmStopOutOfRange(t *testing.T) {
	f := newFixture(t)
	j := f.start(t)

	// ~111m al sur de Plaza
	_, err := f.svc.ConfirmStop(f.ctx, f.driver.ID, f.stop(0).ID, -33.4510, -70.6600)
	expectKind(t, err, KindOutOfRange)

	de, ok := err.(*Error)
	if !ok {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if math.Abs(de.Distance-111.2) > 1 || de.Radius != 50 {
		t.Errorf("Unexpected distance/radius: %.1f/%.0f", de.Distance, de.Radius)
	}

	stored, _ := f.store.Journey(f.ctx, j.ID, false)
	if stored.StopsCompleted != 0 {
		t.Errorf("Expected no progress, got %d", stored.StopsCompleted)
	}
	v, _ := f.store.StopVisit(f.ctx, j.ID, f.stop(0).ID, false)
	if v.State != models.VisitPending {
		t.Errorf("Expected visit to stay pending, got %s", v.State)
	}
}

func TestConfirmStopWithinRadius(t *testing.T) {
	f := newFixture(t)
	j := f.start(t)

	// ~22m de Plaza
	res, err := f.svc.ConfirmStop(f.ctx, f.driver.ID, f.stop(0).ID, -33.4502, -70.6600)
	if err != nil {
		t.Fatalf("ConfirmStop: %v", err)
	}
	if res.Visit.State != models.VisitConfirmed || res.Visit.ConfirmedAt == nil {
		t.Errorf("Unexpected visit: %+v", res.Visit)
	}
	if res.Visit.VisitOrder == nil || *res.Visit.VisitOrder != 1 {
		t.Errorf("Expected visit order 1, got %v", res.Visit.VisitOrder)
	}
	if d := *res.Visit.DistanceMeters; d > 50 {
		t.Errorf("Expected distance under 50m, got %.1f", d)
	}
	if res.IsLastStop {
		t.Error("Expected more stops pending")
	}

	stored, _ := f.store.Journey(f.ctx, j.ID, false)
	if stored.StopsCompleted != 1 {
		t.Errorf("Expected 1 completed, got %d", stored.StopsCompleted)
	}

	_, err = f.svc.ConfirmStop(f.ctx, f.driver.ID, f.stop(0).ID, -33.4500, -70.6600)
	expectKind(t, err, KindConflict)
}

func TestConfirmStopErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ConfirmStop(f.ctx, f.driver.ID, f.stop(0).ID, -33.45, -70.66)
	expectKind(t, err, KindNotFound)

	f.start(t)

	_, err = f.svc.ConfirmStop(f.ctx, f.driver.ID, f.stop(0).ID, 91, -70.66)
	expectKind(t, err, KindValidation)

	_, err = f.svc.ConfirmStop(f.ctx, f.driver.ID, f.stop(0).ID, math.NaN(), -70.66)
	expectKind(t, err, KindValidation)

	other := models.Route{Name: "Otra", Stops: []models.Stop{{Name: "Lejos", Lat: -33.5, Lng: -70.7}}}
	if err := f.store.CreateRoute(f.ctx, &other); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.ConfirmStop(f.ctx, f.driver.ID, other.Stops[0].ID, -33.5, -70.7)
	expectKind(t, err, KindConflict)
}

func TestConfirmStopsOutOfOrderAndFinish(t *testing.T) {
	f := newFixture(t)
	j := f.start(t)

	_, err := f.svc.FinishJourney(f.ctx, f.driver.ID, -33.46, -70.66)
	expectKind(t, err, KindPrecondition)

	for i, idx := range []int{2, 0, 1} {
		st := f.stop(idx)
		res, err := f.svc.ConfirmStop(f.ctx, f.driver.ID, st.ID, st.Lat, st.Lng)
		if err != nil {
			t.Fatalf("ConfirmStop %s: %v", st.Name, err)
		}
		if *res.Visit.VisitOrder != i+1 {
			t.Errorf("%s: expected order %d, got %d", st.Name, i+1, *res.Visit.VisitOrder)
		}
		if res.IsLastStop != (i == 2) {
			t.Errorf("%s: unexpected IsLastStop=%v", st.Name, res.IsLastStop)
		}
	}

	active, err := f.svc.GetActiveJourney(f.ctx, f.driver.ID)
	if err != nil || active == nil {
		t.Fatalf("GetActiveJourney: %v %v", active, err)
	}
	if active.Route == nil || len(active.Route.Stops) != 3 {
		t.Errorf("Expected route with 3 stops, got %+v", active.Route)
	}
	if len(active.Visits) != 3 || active.Visits[0].StopID != f.stop(2).ID {
		t.Errorf("Expected visits ordered by visit order, got %+v", active.Visits)
	}

	done, err := f.svc.FinishJourney(f.ctx, f.driver.ID, -33.46, -70.66)
	if err != nil {
		t.Fatalf("FinishJourney: %v", err)
	}
	if done.ID != j.ID || done.State != models.JourneyCompleted || done.EndedAt == nil || done.EndLat == nil {
		t.Errorf("Unexpected finished journey: %+v", done)
	}

	if got, _ := f.svc.GetActiveJourney(f.ctx, f.driver.ID); got != nil {
		t.Errorf("Expected no active journey after finish, got %d", got.ID)
	}
	_, err = f.svc.FinishJourney(f.ctx, f.driver.ID, -33.46, -70.66)
	expectKind(t, err, KindNotFound)
}

func TestConfirmStopConcurrent(t *testing.T) {
	f := newFixture(t)
	j := f.start(t)

	const perStop = 8
	type outcome struct {
		stopID int64
		res    ConfirmResult
		err    error
	}
	results := make(chan outcome, perStop*len(f.route.Stops))

	var wg sync.WaitGroup
	for i := 0; i < perStop; i++ {
		for _, st := range f.route.Stops {
			wg.Add(1)
			go func(st models.Stop) {
				defer wg.Done()
				res, err := f.svc.ConfirmStop(f.ctx, f.driver.ID, st.ID, st.Lat, st.Lng)
				results <- outcome{st.ID, res, err}
			}(st)
		}
	}
	wg.Wait()
	close(results)

	wins := map[int64]int{}
	orders := map[int]bool{}
	for o := range results {
		if o.err != nil {
			if KindOf(o.err) != KindConflict {
				t.Errorf("Expected conflict for losing confirmation, got %v", o.err)
			}
			continue
		}
		wins[o.stopID]++
		order := *o.res.Visit.VisitOrder
		if orders[order] {
			t.Errorf("Visit order %d assigned twice", order)
		}
		orders[order] = true
	}

	for _, st := range f.route.Stops {
		if wins[st.ID] != 1 {
			t.Errorf("Expected exactly one confirmation for %s, got %d", st.Name, wins[st.ID])
		}
	}
	for n := 1; n <= len(f.route.Stops); n++ {
		if !orders[n] {
			t.Errorf("Expected visit order %d to be used", n)
		}
	}

	active, err := f.svc.GetActiveJourney(f.ctx, f.driver.ID)
	if err != nil || active == nil {
		t.Fatalf("GetActiveJourney: %v %v", active, err)
	}
	if active.ID != j.ID || active.StopsCompleted != len(f.route.Stops) {
		t.Errorf("Expected %d stops completed on journey %d, got %d on %d",
			len(f.route.Stops), j.ID, active.StopsCompleted, active.ID)
	}
}

func TestCancelJourney(t *testing.T) {
	f := newFixture(t)
	j := f.start(t)
	st := f.stop(0)
	if _, err := f.svc.ConfirmStop(f.ctx, f.driver.ID, st.ID, st.Lat, st.Lng); err != nil {
		t.Fatal(err)
	}

	cancelled, err := f.svc.CancelJourney(f.ctx, j.ID, "falla mecánica")
	if err != nil {
		t.Fatalf("CancelJourney: %v", err)
	}
	if cancelled.State != models.JourneyCancelled || cancelled.Notes != "falla mecánica" {
		t.Errorf("Unexpected journey: %+v", cancelled)
	}

	visits, _ := f.store.StopVisits(f.ctx, j.ID)
	for _, v := range visits {
		want := models.VisitExpired
		if v.StopID == st.ID {
			want = models.VisitConfirmed
		}
		if v.State != want {
			t.Errorf("stop %d: expected %s, got %s", v.StopID, want, v.State)
		}
	}

	_, err = f.svc.CancelJourney(f.ctx, j.ID, "otra vez")
	expectKind(t, err, KindConflict)

	_, err = f.svc.ConfirmStop(f.ctx, f.driver.ID, f.stop(1).ID, f.stop(1).Lat, f.stop(1).Lng)
	expectKind(t, err, KindNotFound)
}

func TestPendingStopsAndVerifyProximity(t *testing.T) {
	f := newFixture(t)
	j := f.start(t)
	st := f.stop(0)
	if _, err := f.svc.ConfirmStop(f.ctx, f.driver.ID, st.ID, st.Lat, st.Lng); err != nil {
		t.Fatal(err)
	}

	pending, err := f.svc.PendingStops(f.ctx, j.ID)
	if err != nil {
		t.Fatalf("PendingStops: %v", err)
	}
	if len(pending) != 2 || pending[0].StopID != f.stop(1).ID || pending[0].Stop == nil {
		t.Errorf("Unexpected pending stops: %+v", pending)
	}

	_, err = f.svc.PendingStops(f.ctx, 999)
	expectKind(t, err, KindNotFound)

	mine, err := f.svc.PendingStopsForDriver(f.ctx, f.driver.ID, j.ID)
	if err != nil || len(mine) != 2 {
		t.Errorf("Expected 2 pending stops for owner, got %d (%v)", len(mine), err)
	}
	other := f.newDriver(t, "otro@rutatrack.test", nil)
	_, err = f.svc.PendingStopsForDriver(f.ctx, other.ID, j.ID)
	expectKind(t, err, KindNotFound)

	// ~33m de Hospital
	prox, err := f.svc.VerifyStopProximity(f.ctx, f.driver.ID, -33.4547, -70.6600)
	if err != nil {
		t.Fatalf("VerifyStopProximity: %v", err)
	}
	if prox.Stop == nil || prox.Stop.ID != f.stop(1).ID || !prox.WithinRadius || prox.PendingCount != 2 {
		t.Errorf("Unexpected proximity: %+v", prox)
	}

	prox, err = f.svc.VerifyStopProximity(f.ctx, f.driver.ID, -33.4580, -70.6600)
	if err != nil {
		t.Fatal(err)
	}
	if prox.Stop.ID != f.stop(2).ID || prox.WithinRadius {
		t.Errorf("Expected Terminal out of radius, got %+v", prox)
	}
}

// ============================================================================
// POSICIONES Y PASAJEROS
// ============================================================================

func TestUpdateDriverPositionWithoutJourney(t *testing.T) {
	f := newFixture(t)
	f.newRider(t, "p1@rutatrack.test", &f.route.Stops[0].ID)

	res, err := f.svc.UpdateDriverPosition(f.ctx, f.driver.ID, -33.4501, -70.6600)
	if err != nil {
		t.Fatalf("UpdateDriverPosition: %v", err)
	}
	if res.JourneyActive || res.NotificationsSent != 0 {
		t.Errorf("Unexpected result: %+v", res)
	}

	locs := f.rec.on(notify.EventUnitLocation)
	if len(locs) != 1 {
		t.Fatalf("Expected 1 unit-location event, got %d", len(locs))
	}
	if locs[0].channel != notify.UnitLocationChannel(&f.route.ID) {
		t.Errorf("Unexpected channel %s", locs[0].channel)
	}
	if n := len(f.rec.on(notify.EventRiderNotification)); n != 0 {
		t.Errorf("Expected no rider notifications, got %d", n)
	}

	d, _ := f.store.Driver(f.ctx, f.driver.ID, false)
	if d.Position == nil || d.Position.Lat != -33.4501 {
		t.Errorf("Expected stored position, got %+v", d.Position)
	}

	_, err = f.svc.UpdateDriverPosition(f.ctx, 999, -33.45, -70.66)
	expectKind(t, err, KindNotFound)
	_, err = f.svc.UpdateDriverPosition(f.ctx, f.driver.ID, -33.45, 181)
	expectKind(t, err, KindValidation)
}

func TestUpdateDriverPositionNotifiesNearbyRiders(t *testing.T) {
	f := newFixture(t)
	j := f.start(t)

	no := false
	yes := true
	near := f.newRider(t, "near@rutatrack.test", &f.route.Stops[0].ID)
	far := f.newRider(t, "far@rutatrack.test", &f.route.Stops[2].ID)
	optedOut := f.newRider(t, "optout@rutatrack.test", &f.route.Stops[0].ID)
	noStop := f.newRider(t, "nostop@rutatrack.test", nil)
	confirmed := f.newRider(t, "confirmed@rutatrack.test", &f.route.Stops[0].ID)

	for _, tc := range []struct {
		rider     models.Rider
		indicated *bool
	}{{near, &yes}, {far, nil}, {optedOut, &no}, {noStop, nil}, {confirmed, nil}} {
		if _, err := f.svc.DeclareIntent(f.ctx, tc.rider.ID, j.ID, tc.indicated); err != nil {
			t.Fatalf("DeclareIntent: %v", err)
		}
	}
	ri, _ := f.store.RiderIntent(f.ctx, confirmed.ID, j.ID, false)
	ri.Confirmed = true
	if err := f.store.UpdateRiderIntent(f.ctx, ri); err != nil {
		t.Fatal(err)
	}

	// ~111m de Plaza, ~445m de Hospital, ~1000m de Terminal
	res, err := f.svc.UpdateDriverPosition(f.ctx, f.driver.ID, -33.4510, -70.6600)
	if err != nil {
		t.Fatalf("UpdateDriverPosition: %v", err)
	}
	if !res.JourneyActive || res.NotificationsSent != 1 {
		t.Fatalf("Expected 1 notification with active journey, got %+v", res)
	}

	alerts := f.rec.on(notify.EventRiderNotification)
	if len(alerts) != 1 || alerts[0].channel != notify.RiderChannel(near.ID) {
		t.Fatalf("Unexpected alerts: %+v", alerts)
	}
	alert := alerts[0].payload.(notify.RiderAlert)
	if alert.StopName != "Plaza" || alert.JourneyID != j.ID || math.Abs(alert.DistanceMeters-111.2) > 1 {
		t.Errorf("Unexpected alert payload: %+v", alert)
	}
	if !strings.Contains(alert.Message, "Plaza") {
		t.Errorf("Expected stop name in message, got %q", alert.Message)
	}

	locs := f.rec.on(notify.EventUnitLocation)
	if len(locs) != 1 {
		t.Fatalf("Expected unit-location event, got %d", len(locs))
	}
	loc := locs[0].payload.(notify.UnitLocation)
	if loc.JourneyID == nil || *loc.JourneyID != j.ID || loc.Cell == "" {
		t.Errorf("Unexpected unit-location payload: %+v", loc)
	}

	// el aviso no confirma la intención
	stored, _ := f.store.RiderIntent(f.ctx, near.ID, j.ID, false)
	if stored.Confirmed {
		t.Error("Expected intent to remain unconfirmed")
	}
}

func TestCheckRiderProximityConfirmsOnce(t *testing.T) {
	f := newFixture(t)
	j := f.start(t)
	rider := f.newRider(t, "rider@rutatrack.test", &f.route.Stops[0].ID)
	if _, err := f.svc.DeclareIntent(f.ctx, rider.ID, j.ID, nil); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.CheckRiderProximity(f.ctx, rider.ID, j.ID, -33.4515, -70.66)
	expectKind(t, err, KindNotFound) // posición de la unidad desconocida

	if _, err := f.svc.UpdateDriverPosition(f.ctx, f.driver.ID, -33.4510, -70.6600); err != nil {
		t.Fatal(err)
	}

	// ~222m
	res, err := f.svc.CheckRiderProximity(f.ctx, rider.ID, j.ID, -33.4530, -70.6600)
	if err != nil {
		t.Fatalf("CheckRiderProximity: %v", err)
	}
	if res.Confirmed || math.Abs(res.DistanceMeters-222.4) > 1 {
		t.Errorf("Expected not confirmed at ~222m, got %+v", res)
	}
	if n := len(f.rec.on(notify.EventRideConfirmed)); n != 0 {
		t.Errorf("Expected no confirmation events, got %d", n)
	}

	// ~56m
	res, err = f.svc.CheckRiderProximity(f.ctx, rider.ID, j.ID, -33.4515, -70.6600)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Confirmed {
		t.Errorf("Expected confirmation at ~56m, got %+v", res)
	}
	stored, _ := f.store.RiderIntent(f.ctx, rider.ID, j.ID, false)
	if !stored.Confirmed || stored.ConfirmedAt == nil {
		t.Errorf("Expected stored confirmation, got %+v", stored)
	}
	r, _ := f.store.Rider(f.ctx, rider.ID)
	if r.Position == nil || r.Position.Lat != -33.4515 {
		t.Errorf("Expected rider position stored, got %+v", r.Position)
	}

	// idempotente, incluso lejos
	res, err = f.svc.CheckRiderProximity(f.ctx, rider.ID, j.ID, -33.4600, -70.6600)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Confirmed {
		t.Error("Expected confirmed to stay true")
	}
	events := f.rec.on(notify.EventRideConfirmed)
	if len(events) != 1 || events[0].channel != notify.RideConfirmedChannel(rider.ID) {
		t.Errorf("Expected exactly one ride-confirmed event, got %+v", events)
	}
}

func TestCheckRiderProximityConfirmedWithoutUnitPosition(t *testing.T) {
	f := newFixture(t)
	j := f.start(t)
	rider := f.newRider(t, "confirmed@rutatrack.test", &f.route.Stops[0].ID)
	if _, err := f.svc.DeclareIntent(f.ctx, rider.ID, j.ID, nil); err != nil {
		t.Fatal(err)
	}
	ri, _ := f.store.RiderIntent(f.ctx, rider.ID, j.ID, false)
	ri.Confirmed = true
	if err := f.store.UpdateRiderIntent(f.ctx, ri); err != nil {
		t.Fatal(err)
	}

	// el conductor aún no reporta posición
	res, err := f.svc.CheckRiderProximity(f.ctx, rider.ID, j.ID, -33.4515, -70.66)
	if err != nil {
		t.Fatalf("CheckRiderProximity: %v", err)
	}
	if !res.Confirmed || res.Message != "Uso ya confirmado" || res.DistanceMeters != 0 {
		t.Errorf("Expected already-confirmed result, got %+v", res)
	}
	if n := len(f.rec.on(notify.EventRideConfirmed)); n != 0 {
		t.Errorf("Expected no confirmation events, got %d", n)
	}
}

func TestCheckRiderProximityErrors(t *testing.T) {
	f := newFixture(t)
	rider := f.newRider(t, "rider@rutatrack.test", nil)

	_, err := f.svc.CheckRiderProximity(f.ctx, rider.ID, 999, -33.45, -70.66)
	expectKind(t, err, KindNotFound)

	scheduled, err := f.svc.ScheduleJourney(f.ctx, f.unit.ID, 0, "2026-10-17")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.DeclareIntent(f.ctx, rider.ID, scheduled.ID, nil); err != nil {
		t.Fatalf("DeclareIntent on scheduled journey: %v", err)
	}
	_, err = f.svc.CheckRiderProximity(f.ctx, rider.ID, scheduled.ID, -33.45, -70.66)
	expectKind(t, err, KindNotFound)

	j := f.start(t)
	_, err = f.svc.CheckRiderProximity(f.ctx, rider.ID, j.ID, -33.45, -70.66)
	expectKind(t, err, KindNotFound) // sin intención

	_, err = f.svc.CheckRiderProximity(f.ctx, rider.ID, j.ID, -91, -70.66)
	expectKind(t, err, KindValidation)
}

func TestDeclareIntent(t *testing.T) {
	f := newFixture(t)
	j := f.start(t)
	rider := f.newRider(t, "rider@rutatrack.test", nil)

	if _, err := f.svc.DeclareIntent(f.ctx, rider.ID, j.ID, nil); err != nil {
		t.Fatalf("DeclareIntent: %v", err)
	}
	_, err := f.svc.DeclareIntent(f.ctx, rider.ID, j.ID, nil)
	expectKind(t, err, KindConflict)

	_, err = f.svc.DeclareIntent(f.ctx, 999, j.ID, nil)
	expectKind(t, err, KindNotFound)

	if _, err := f.svc.CancelJourney(f.ctx, j.ID, "test"); err != nil {
		t.Fatal(err)
	}
	other := f.newRider(t, "other@rutatrack.test", nil)
	_, err = f.svc.DeclareIntent(f.ctx, other.ID, j.ID, nil)
	expectKind(t, err, KindPrecondition)
}

type mapCache struct {
	mu    sync.Mutex
	items map[int64]models.Position
}

func (c *mapCache) SetDriverPosition(_ context.Context, id int64, pos models.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id] = pos
	return nil
}

func (c *mapCache) DriverPosition(_ context.Context, id int64) (models.Position, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.items[id]
	return pos, ok, nil
}

func TestPositionCacheAndActiveUnits(t *testing.T) {
	cache := &mapCache{items: make(map[int64]models.Position)}
	f := newFixture(t, WithPositionCache(cache))
	j := f.start(t)
	rider := f.newRider(t, "rider@rutatrack.test", nil)
	if _, err := f.svc.DeclareIntent(f.ctx, rider.ID, j.ID, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.UpdateDriverPosition(f.ctx, f.driver.ID, -33.4510, -70.6600); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := cache.DriverPosition(f.ctx, f.driver.ID); !ok {
		t.Fatal("Expected position written through to cache")
	}

	units, err := f.svc.ActiveUnitPositions(f.ctx)
	if err != nil {
		t.Fatalf("ActiveUnitPositions: %v", err)
	}
	if len(units) != 1 || units[0].JourneyID != j.ID || units[0].Cell == "" {
		t.Fatalf("Unexpected active units: %+v", units)
	}

	intents, err := f.svc.RiderIntentsWithProximity(f.ctx, rider.ID, -33.4515, -70.6600)
	if err != nil {
		t.Fatalf("RiderIntentsWithProximity: %v", err)
	}
	if len(intents) != 1 || intents[0].DistanceMeters == nil || !intents[0].WithinRadius {
		t.Errorf("Unexpected intents: %+v", intents)
	}
	if intents[0].JourneyState != models.JourneyActive {
		t.Errorf("Expected en_curso, got %s", intents[0].JourneyState)
	}
}

func TestUpdateRiderPosition(t *testing.T) {
	f := newFixture(t)
	rider := f.newRider(t, "rider@rutatrack.test", nil)

	if err := f.svc.UpdateRiderPosition(f.ctx, rider.ID, -33.44, -70.65); err != nil {
		t.Fatalf("UpdateRiderPosition: %v", err)
	}
	expectKind(t, f.svc.UpdateRiderPosition(f.ctx, 999, -33.44, -70.65), KindNotFound)
	expectKind(t, f.svc.UpdateRiderPosition(f.ctx, rider.ID, 100, -70.65), KindValidation)
}
