// Package mysqlstore implementa store.Store sobre MySQL/MariaDB.
// Los bloqueos por fila usan SELECT ... FOR UPDATE dentro de WithTx.
package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/yourorg/rutatrack/internal/models"
	"github.com/yourorg/rutatrack/internal/store"
)

// querier lo satisfacen *sql.DB y *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type Store struct {
	db *sql.DB
	q  querier
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(q store.Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func lock(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func duplicate(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return store.ErrDuplicate
	}
	return err
}

func position(lat, lng sql.NullFloat64, at sql.NullTime) *models.Position {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &models.Position{Lat: lat.Float64, Lng: lng.Float64, UpdatedAt: at.Time}
}

// ============================================================================
// RED DE TRANSPORTE
// ============================================================================

const driverCols = `id, name, email, password_hash, unit_id, role, lat, lng, position_updated_at`

func (s *Store) Driver(ctx context.Context, id int64, forUpdate bool) (models.Driver, error) {
	var (
		d        models.Driver
		lat, lng sql.NullFloat64
		at       sql.NullTime
	)
	err := s.q.QueryRowContext(ctx, `SELECT `+driverCols+` FROM drivers WHERE id = ?`+lock(forUpdate), id).
		Scan(&d.ID, &d.Name, &d.Email, &d.PasswordHash, &d.UnitID, &d.Role, &lat, &lng, &at)
	if err != nil {
		return models.Driver{}, notFound(err)
	}
	d.Position = position(lat, lng, at)
	return d, nil
}

func (s *Store) Unit(ctx context.Context, id int64) (models.Unit, error) {
	var u models.Unit
	err := s.q.QueryRowContext(ctx,
		`SELECT id, plate, COALESCE(model, ''), capacity, status, route_id FROM units WHERE id = ?`, id).
		Scan(&u.ID, &u.Plate, &u.Model, &u.Capacity, &u.Status, &u.RouteID)
	if err != nil {
		return models.Unit{}, notFound(err)
	}
	return u, nil
}

func (s *Store) Route(ctx context.Context, id int64) (models.Route, error) {
	var r models.Route
	if err := s.q.QueryRowContext(ctx, `SELECT id, name FROM routes WHERE id = ?`, id).Scan(&r.ID, &r.Name); err != nil {
		return models.Route{}, notFound(err)
	}

	rows, err := s.q.QueryContext(ctx, `SELECT lat, lng FROM route_path_points WHERE route_id = ? ORDER BY seq`, id)
	if err != nil {
		return models.Route{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var c models.Coordinate
		if err := rows.Scan(&c.Lat, &c.Lng); err != nil {
			return models.Route{}, err
		}
		r.Path = append(r.Path, c)
	}
	return r, rows.Err()
}

const stopCols = `id, route_id, name, lat, lng, display_order`

func scanStop(sc scanner) (models.Stop, error) {
	var st models.Stop
	err := sc.Scan(&st.ID, &st.RouteID, &st.Name, &st.Lat, &st.Lng, &st.Order)
	return st, err
}

func (s *Store) RouteStops(ctx context.Context, routeID int64) ([]models.Stop, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+stopCols+` FROM stops WHERE route_id = ? ORDER BY display_order IS NULL, display_order, id`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stops := []models.Stop{}
	for rows.Next() {
		st, err := scanStop(rows)
		if err != nil {
			return nil, err
		}
		stops = append(stops, st)
	}
	return stops, rows.Err()
}

func (s *Store) Stop(ctx context.Context, id int64) (models.Stop, error) {
	st, err := scanStop(s.q.QueryRowContext(ctx, `SELECT `+stopCols+` FROM stops WHERE id = ?`, id))
	if err != nil {
		return models.Stop{}, notFound(err)
	}
	return st, nil
}

func (s *Store) Rider(ctx context.Context, id int64) (models.Rider, error) {
	var (
		r        models.Rider
		lat, lng sql.NullFloat64
		at       sql.NullTime
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, email, stop_id, route_id, lat, lng, position_updated_at FROM riders WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.Email, &r.StopID, &r.RouteID, &lat, &lng, &at)
	if err != nil {
		return models.Rider{}, notFound(err)
	}
	r.Position = position(lat, lng, at)
	return r, nil
}

func (s *Store) CreateRoute(ctx context.Context, r *models.Route) error {
	res, err := s.q.ExecContext(ctx, `INSERT INTO routes (name) VALUES (?)`, r.Name)
	if err != nil {
		return err
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	for i, c := range r.Path {
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO route_path_points (route_id, seq, lat, lng) VALUES (?, ?, ?, ?)`, r.ID, i, c.Lat, c.Lng); err != nil {
			return err
		}
	}
	for i := range r.Stops {
		st := &r.Stops[i]
		st.RouteID = r.ID
		res, err := s.q.ExecContext(ctx,
			`INSERT INTO stops (route_id, name, lat, lng, display_order) VALUES (?, ?, ?, ?, ?)`,
			st.RouteID, st.Name, st.Lat, st.Lng, st.Order)
		if err != nil {
			return err
		}
		if st.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateUnit(ctx context.Context, u *models.Unit) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO units (plate, model, capacity, status, route_id) VALUES (?, ?, ?, ?, ?)`,
		u.Plate, u.Model, u.Capacity, u.Status, u.RouteID)
	if err != nil {
		return duplicate(err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (s *Store) CreateDriver(ctx context.Context, d *models.Driver) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO drivers (name, email, password_hash, unit_id, role) VALUES (?, ?, ?, ?, ?)`,
		d.Name, d.Email, d.PasswordHash, d.UnitID, d.Role)
	if err != nil {
		return duplicate(err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

func (s *Store) CreateRider(ctx context.Context, r *models.Rider) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO riders (name, email, stop_id, route_id) VALUES (?, ?, ?, ?)`,
		r.Name, r.Email, r.StopID, r.RouteID)
	if err != nil {
		return duplicate(err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// ============================================================================
// JORNADAS
// ============================================================================

const journeyCols = `id, DATE_FORMAT(journey_date, '%Y-%m-%d'), unit_id, driver_id, route_id, state,
	started_at, ended_at, end_lat, end_lng, stops_total, stops_completed, COALESCE(notes, '')`

func scanJourney(sc scanner) (models.Journey, error) {
	var j models.Journey
	err := sc.Scan(&j.ID, &j.Date, &j.UnitID, &j.DriverID, &j.RouteID, &j.State,
		&j.StartedAt, &j.EndedAt, &j.EndLat, &j.EndLng, &j.StopsTotal, &j.StopsCompleted, &j.Notes)
	return j, err
}

func (s *Store) Journey(ctx context.Context, id int64, forUpdate bool) (models.Journey, error) {
	j, err := scanJourney(s.q.QueryRowContext(ctx, `SELECT `+journeyCols+` FROM journeys WHERE id = ?`+lock(forUpdate), id))
	if err != nil {
		return models.Journey{}, notFound(err)
	}
	return j, nil
}

func (s *Store) OpenJourney(ctx context.Context, driverID int64, forUpdate bool) (models.Journey, error) {
	j, err := scanJourney(s.q.QueryRowContext(ctx, `SELECT `+journeyCols+` FROM journeys
		WHERE driver_id = ? AND state IN ('pending', 'en_curso')
		ORDER BY id DESC LIMIT 1`+lock(forUpdate), driverID))
	if err != nil {
		return models.Journey{}, notFound(err)
	}
	return j, nil
}

func (s *Store) UnclaimedJourney(ctx context.Context, unitID int64, day string, forUpdate bool) (models.Journey, error) {
	j, err := scanJourney(s.q.QueryRowContext(ctx, `SELECT `+journeyCols+` FROM journeys
		WHERE unit_id = ? AND journey_date = ? AND state = 'pending' AND driver_id IS NULL
		ORDER BY id LIMIT 1`+lock(forUpdate), unitID, day))
	if err != nil {
		return models.Journey{}, notFound(err)
	}
	return j, nil
}

func (s *Store) CreateJourney(ctx context.Context, j *models.Journey) error {
	res, err := s.q.ExecContext(ctx, `INSERT INTO journeys
		(journey_date, unit_id, driver_id, route_id, state, started_at, stops_total, stops_completed, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.Date, j.UnitID, j.DriverID, j.RouteID, j.State, j.StartedAt, j.StopsTotal, j.StopsCompleted, j.Notes)
	if err != nil {
		return err
	}
	j.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateJourney(ctx context.Context, j models.Journey) error {
	res, err := s.q.ExecContext(ctx, `UPDATE journeys SET
		driver_id = ?, route_id = ?, state = ?, started_at = ?, ended_at = ?, end_lat = ?, end_lng = ?,
		stops_total = ?, stops_completed = ?, notes = ?
		WHERE id = ?`,
		j.DriverID, j.RouteID, j.State, j.StartedAt, j.EndedAt, j.EndLat, j.EndLng,
		j.StopsTotal, j.StopsCompleted, j.Notes, j.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ============================================================================
// CHECKLIST DE PARADAS
// ============================================================================

const visitCols = `v.id, v.journey_id, v.stop_id, v.driver_id, v.state, v.arrived_at, v.confirmed_at,
	v.confirm_lat, v.confirm_lng, v.distance_m, v.visit_order, v.wait_seconds`

func scanVisit(sc scanner, extra ...any) (models.StopVisit, error) {
	var v models.StopVisit
	dest := []any{&v.ID, &v.JourneyID, &v.StopID, &v.DriverID, &v.State, &v.ArrivedAt, &v.ConfirmedAt,
		&v.ConfirmLat, &v.ConfirmLng, &v.DistanceMeters, &v.VisitOrder, &v.WaitSeconds}
	err := sc.Scan(append(dest, extra...)...)
	return v, err
}

func (s *Store) CreateStopVisits(ctx context.Context, visits []models.StopVisit) error {
	for i := range visits {
		v := &visits[i]
		res, err := s.q.ExecContext(ctx, `INSERT INTO stop_visits (journey_id, stop_id, driver_id, state) VALUES (?, ?, ?, ?)`,
			v.JourneyID, v.StopID, v.DriverID, v.State)
		if err != nil {
			return duplicate(err)
		}
		if v.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) StopVisits(ctx context.Context, journeyID int64) ([]models.StopVisit, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+visitCols+`, s.id, s.route_id, s.name, s.lat, s.lng, s.display_order
		FROM stop_visits v JOIN stops s ON s.id = v.stop_id
		WHERE v.journey_id = ?
		ORDER BY s.display_order IS NULL, s.display_order, s.id`, journeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visits := []models.StopVisit{}
	for rows.Next() {
		var st models.Stop
		v, err := scanVisit(rows, &st.ID, &st.RouteID, &st.Name, &st.Lat, &st.Lng, &st.Order)
		if err != nil {
			return nil, err
		}
		v.Stop = &st
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

func (s *Store) StopVisit(ctx context.Context, journeyID, stopID int64, forUpdate bool) (models.StopVisit, error) {
	v, err := scanVisit(s.q.QueryRowContext(ctx, `SELECT `+visitCols+` FROM stop_visits v
		WHERE v.journey_id = ? AND v.stop_id = ?`+lock(forUpdate), journeyID, stopID))
	if err != nil {
		return models.StopVisit{}, notFound(err)
	}
	return v, nil
}

func (s *Store) UpdateStopVisit(ctx context.Context, v models.StopVisit) error {
	res, err := s.q.ExecContext(ctx, `UPDATE stop_visits SET
		state = ?, arrived_at = ?, confirmed_at = ?, confirm_lat = ?, confirm_lng = ?,
		distance_m = ?, visit_order = ?, wait_seconds = ?
		WHERE id = ?`,
		v.State, v.ArrivedAt, v.ConfirmedAt, v.ConfirmLat, v.ConfirmLng,
		v.DistanceMeters, v.VisitOrder, v.WaitSeconds, v.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

// ============================================================================
// POSICIONES
// ============================================================================

func (s *Store) SetDriverPosition(ctx context.Context, driverID int64, pos models.Position) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE drivers SET lat = ?, lng = ?, position_updated_at = ? WHERE id = ?`,
		pos.Lat, pos.Lng, pos.UpdatedAt, driverID)
	if err != nil {
		return err
	}
	// MySQL reporta 0 filas si los valores no cambian; se distingue con una lectura
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Driver(ctx, driverID, false); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SetRiderPosition(ctx context.Context, riderID int64, pos models.Position) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE riders SET lat = ?, lng = ?, position_updated_at = ? WHERE id = ?`,
		pos.Lat, pos.Lng, pos.UpdatedAt, riderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Rider(ctx, riderID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ActiveUnitPositions(ctx context.Context) ([]models.UnitPosition, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT j.id, j.unit_id, j.route_id, d.id, d.lat, d.lng, d.position_updated_at
		FROM journeys j JOIN drivers d ON d.id = j.driver_id
		WHERE j.state = 'en_curso' AND d.lat IS NOT NULL AND d.lng IS NOT NULL
		ORDER BY j.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.UnitPosition{}
	for rows.Next() {
		var (
			p  models.UnitPosition
			at sql.NullTime
		)
		if err := rows.Scan(&p.JourneyID, &p.UnitID, &p.RouteID, &p.DriverID, &p.Lat, &p.Lng, &at); err != nil {
			return nil, err
		}
		p.UpdatedAt = at.Time
		out = append(out, p)
	}
	return out, rows.Err()
}

// ============================================================================
// INTENCIONES DE USO
// ============================================================================

const intentCols = `id, rider_id, journey_id, indicated, confirmed, confirmed_at, created_at`

func scanIntent(sc scanner) (models.RiderIntent, error) {
	var ri models.RiderIntent
	err := sc.Scan(&ri.ID, &ri.RiderID, &ri.JourneyID, &ri.Indicated, &ri.Confirmed, &ri.ConfirmedAt, &ri.CreatedAt)
	return ri, err
}

func (s *Store) queryIntents(ctx context.Context, where string, arg int64) ([]models.RiderIntent, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+intentCols+` FROM rider_intents WHERE `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.RiderIntent{}
	for rows.Next() {
		ri, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ri)
	}
	return out, rows.Err()
}

func (s *Store) RiderIntents(ctx context.Context, journeyID int64) ([]models.RiderIntent, error) {
	return s.queryIntents(ctx, "journey_id = ?", journeyID)
}

func (s *Store) RiderIntentsForRider(ctx context.Context, riderID int64) ([]models.RiderIntent, error) {
	return s.queryIntents(ctx, "rider_id = ?", riderID)
}

func (s *Store) RiderIntent(ctx context.Context, riderID, journeyID int64, forUpdate bool) (models.RiderIntent, error) {
	ri, err := scanIntent(s.q.QueryRowContext(ctx,
		`SELECT `+intentCols+` FROM rider_intents WHERE rider_id = ? AND journey_id = ?`+lock(forUpdate), riderID, journeyID))
	if err != nil {
		return models.RiderIntent{}, notFound(err)
	}
	return ri, nil
}

func (s *Store) CreateRiderIntent(ctx context.Context, ri *models.RiderIntent) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO rider_intents (rider_id, journey_id, indicated, confirmed, created_at) VALUES (?, ?, ?, ?, ?)`,
		ri.RiderID, ri.JourneyID, ri.Indicated, ri.Confirmed, ri.CreatedAt)
	if err != nil {
		return duplicate(err)
	}
	ri.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateRiderIntent(ctx context.Context, ri models.RiderIntent) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE rider_intents SET indicated = ?, confirmed = ?, confirmed_at = ? WHERE id = ?`,
		ri.Indicated, ri.Confirmed, ri.ConfirmedAt, ri.ID)
	return err
}
