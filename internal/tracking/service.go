// Package tracking implementa el ciclo de vida de las jornadas, el checklist de
// paradas y el geofencing entre unidades, paradas y pasajeros.
package tracking

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/yourorg/rutatrack/internal/models"
	"github.com/yourorg/rutatrack/internal/notify"
	"github.com/yourorg/rutatrack/internal/store"
	"github.com/yourorg/rutatrack/internal/validation"
)

// Config radios de geofencing en metros
type Config struct {
	StopConfirmRadius  float64
	RiderAlertRadius   float64
	RiderConfirmRadius float64
	// Location define el día calendario de las jornadas
	Location *time.Location
}

func DefaultConfig() Config {
	return Config{
		StopConfirmRadius:  50,
		RiderAlertRadius:   200,
		RiderConfirmRadius: 100,
		Location:           time.UTC,
	}
}

// PositionCache última posición conocida de cada conductor, consultada antes que el store
type PositionCache interface {
	SetDriverPosition(ctx context.Context, driverID int64, pos models.Position) error
	DriverPosition(ctx context.Context, driverID int64) (models.Position, bool, error)
}

// Observer recibe eventos de dominio para métricas
type Observer interface {
	JourneyStarted()
	JourneyFinished()
	JourneyCancelled()
	StopConfirmed()
	RiderNotified()
	RideConfirmed()
	ProximityChecked(kind string, within bool)
}

type noopObserver struct{}

func (noopObserver) JourneyStarted()                {}
func (noopObserver) JourneyFinished()               {}
func (noopObserver) JourneyCancelled()              {}
func (noopObserver) StopConfirmed()                 {}
func (noopObserver) RiderNotified()                 {}
func (noopObserver) RideConfirmed()                 {}
func (noopObserver) ProximityChecked(string, bool) {}

type Service struct {
	store     store.Store
	notify    notify.Dispatcher
	positions PositionCache
	metrics   Observer
	cfg       Config
	now       func() time.Time
}

type Option func(*Service)

func WithPositionCache(c PositionCache) Option {
	return func(s *Service) { s.positions = c }
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.metrics = o
		}
	}
}

// WithClock reemplaza time.Now (tests)
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, d notify.Dispatcher, cfg Config, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if d == nil {
		d = notify.Discard
	}
	s := &Service{
		store:   st,
		notify:  d,
		metrics: noopObserver{},
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

// day fecha calendario actual en la zona del servicio
func (s *Service) day() string {
	return s.now().In(s.cfg.Location).Format("2006-01-02")
}

func validCoordinates(lat, lng float64) error {
	if err := validation.ValidateCoordinatePair(lat, lng, "position"); err != nil {
		return &Error{Kind: KindValidation, Message: "invalid coordinates", Err: err}
	}
	return nil
}

// lookup traduce store.ErrNotFound a un error de dominio NotFound
func lookup(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundf(format, args...)
	}
	return err
}

// driverPosition cache primero, luego store (y recalienta el cache)
func (s *Service) driverPosition(ctx context.Context, driverID int64) (models.Position, bool, error) {
	if s.positions != nil {
		pos, ok, err := s.positions.DriverPosition(ctx, driverID)
		if err != nil {
			log.Printf("⚠️ [POSITIONS] cache lookup driver %d: %v", driverID, err)
		} else if ok {
			return pos, true, nil
		}
	}

	d, err := s.store.Driver(ctx, driverID, false)
	if err != nil {
		return models.Position{}, false, lookup(err, "driver %d not found", driverID)
	}
	if d.Position == nil {
		return models.Position{}, false, nil
	}
	if s.positions != nil {
		if err := s.positions.SetDriverPosition(ctx, driverID, *d.Position); err != nil {
			log.Printf("⚠️ [POSITIONS] cache warm driver %d: %v", driverID, err)
		}
	}
	return *d.Position, true, nil
}
