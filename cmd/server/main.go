package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/yourorg/rutatrack/internal/cache"
	"github.com/yourorg/rutatrack/internal/config"
	"github.com/yourorg/rutatrack/internal/db"
	"github.com/yourorg/rutatrack/internal/handlers"
	"github.com/yourorg/rutatrack/internal/metrics"
	"github.com/yourorg/rutatrack/internal/middleware"
	"github.com/yourorg/rutatrack/internal/notify"
	"github.com/yourorg/rutatrack/internal/routes"
	"github.com/yourorg/rutatrack/internal/store"
	"github.com/yourorg/rutatrack/internal/store/memstore"
	"github.com/yourorg/rutatrack/internal/store/mysqlstore"
	"github.com/yourorg/rutatrack/internal/tracking"
)

const natsPrefix = "rutatrack"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ config: %v", err)
	}

	collector := metrics.NewCollector()

	// ============================================================================
	// STORE
	// ============================================================================
	var (
		st    store.Store
		sqlDB *sql.DB
	)
	switch cfg.Store {
	case "memory":
		log.Println("⚠️  STORE=memory: los datos se pierden al reiniciar")
		st = memstore.New()
	default:
		sqlDB = connectWithRetry(cfg.DB)
		st = mysqlstore.New(sqlDB)
	}

	// ============================================================================
	// CACHE DE POSICIONES
	// ============================================================================
	var (
		positions interface {
			tracking.PositionCache
			handlers.Pinger
			Close() error
		}
		stats handlers.StatsSource
	)
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		cancel()
		if err != nil {
			log.Fatalf("❌ redis %s: %v", cfg.Redis.Addr, err)
		}
		positions = cache.NewRedisPositions(rdb, cfg.PositionTTL)
		log.Printf("✅ Cache de posiciones en Redis (%s)", cfg.Redis.Addr)
	} else {
		mem := cache.NewMemoryPositions(cfg.PositionTTL)
		positions, stats = mem, mem
		log.Println("✅ Cache de posiciones en memoria")
	}

	// ============================================================================
	// NOTIFICACIONES: websocket hub + NATS opcional
	// ============================================================================
	hub := notify.NewHub()
	dispatchers := notify.Fanout{hub}
	health := handlers.NewHealthHandler(cfg.Version).
		Check("store", st).
		Check("cache", positions).
		Websocket(hub)

	var publisher *notify.NATSPublisher
	if cfg.NATS.URL != "" {
		publisher, err = notify.NewNATSPublisher(cfg.NATS.URL, natsPrefix, cfg.NATS.LogSubjects, collector)
		if err != nil {
			log.Printf("⚠️  NATS no disponible (%v), notificaciones solo por websocket", err)
		} else {
			dispatchers = append(dispatchers, publisher)
			health.NATS(publisher)
			log.Printf("✅ NATS conectado: %s", cfg.NATS.URL)
		}
	}

	svc := tracking.NewService(st, dispatchers, tracking.Config{
		StopConfirmRadius:  cfg.Tracking.StopConfirmRadius,
		RiderAlertRadius:   cfg.Tracking.RiderAlertRadius,
		RiderConfirmRadius: cfg.Tracking.RiderConfirmRadius,
		Location:           cfg.Location(),
	},
		tracking.WithPositionCache(positions),
		tracking.WithObserver(collector),
	)

	// ============================================================================
	// HTTP
	// ============================================================================
	app := fiber.New(fiber.Config{
		AppName:      "rutatrack " + cfg.Version,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if cfg.Production() {
		app.Use(middleware.RequestLogger(false, 500*time.Millisecond))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(middleware.MetricsMiddleware(collector))

	routes.Register(app, routes.Deps{
		Service:           svc,
		Hub:               hub,
		Health:            health,
		Metrics:           collector.Handler(),
		CacheStat:         stats,
		JWTSecret:         []byte(cfg.JWT.Secret),
		LocationRateLimit: cfg.LocationRateLimit,
	})

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\n🛑 Señal de terminación recibida, cerrando servidor...")

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️  Error cerrando servidor: %v", err)
		}
		hub.Close()
		if publisher != nil {
			publisher.Close()
		}
		if err := positions.Close(); err != nil {
			log.Printf("⚠️  Error cerrando cache: %v", err)
		}
		if sqlDB != nil {
			sqlDB.Close()
		}
		log.Println("✅ Servidor cerrado correctamente")
	}()

	log.Printf("🚀 rutatrack escuchando en :%s (env=%s, store=%s, tz=%s)", cfg.Port, cfg.Env, cfg.Store, cfg.Tracking.TimeZone)
	log.Printf("📍 Radios: parada %.0fm, aviso %.0fm, abordaje %.0fm",
		cfg.Tracking.StopConfirmRadius, cfg.Tracking.RiderAlertRadius, cfg.Tracking.RiderConfirmRadius)

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}

// connectWithRetry espera a MySQL (docker compose levanta la DB en paralelo) y migra
func connectWithRetry(cfg config.DBConfig) *sql.DB {
	for attempt := 1; ; attempt++ {
		conn, err := db.Connect(cfg)
		if err != nil {
			if attempt >= 12 {
				log.Fatalf("❌ db connect: %v", err)
			}
			log.Printf("db connect error: %v (retrying in 5s)", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if err := db.Migrate(cfg); err != nil {
			conn.Close()
			log.Fatalf("❌ migrate: %v", err)
		}
		log.Printf("✅ Database ready (%s@%s:%s/%s)", cfg.User, cfg.Host, cfg.Port, cfg.Name)
		return conn
	}
}
