// Package config carga la configuración del servicio desde .env, config.yaml
// opcional y variables de entorno (las variables de entorno ganan).
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const devJWTSecret = "dev-secret-change-me-0123456789abcdef"

type Config struct {
	Port    string
	Env     string
	Version string
	// Store "mysql" (default) o "memory" para desarrollo sin base de datos
	Store string

	DB       DBConfig
	Redis    RedisConfig
	NATS     NATSConfig
	JWT      JWTConfig
	Tracking TrackingConfig

	LocationRateLimit int
	PositionTTL       time.Duration
}

type DBConfig struct {
	User       string
	Password   string
	Host       string
	Port       string
	Name       string
	SkipSchema bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type NATSConfig struct {
	URL         string
	LogSubjects bool
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// TrackingConfig radios en metros y zona horaria del día calendario
type TrackingConfig struct {
	StopConfirmRadius  float64
	RiderAlertRadius   float64
	RiderConfirmRadius float64
	TimeZone           string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE", "mysql")

	v.SetDefault("DB_HOST", "127.0.0.1")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_NAME", "rutatrack")
	v.SetDefault("DB_SKIP_SCHEMA", false)

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NATS_LOG_SUBJECTS", false)

	v.SetDefault("JWT_TTL", "12h")

	v.SetDefault("STOP_CONFIRM_RADIUS_M", 50.0)
	v.SetDefault("RIDER_ALERT_RADIUS_M", 200.0)
	v.SetDefault("RIDER_CONFIRM_RADIUS_M", 100.0)
	v.SetDefault("TZ", "America/Santiago")

	v.SetDefault("LOCATION_RATE_LIMIT", 120)
	v.SetDefault("POSITION_TTL", "10m")
}

// Load lee la configuración. Un config.yaml en el directorio actual es opcional.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		Port:    v.GetString("PORT"),
		Env:     v.GetString("ENV"),
		Version: v.GetString("APP_VERSION"),
		Store:   strings.ToLower(strings.TrimSpace(v.GetString("STORE"))),
		DB: DBConfig{
			User:       v.GetString("DB_USER"),
			Password:   v.GetString("DB_PASS"),
			Host:       v.GetString("DB_HOST"),
			Port:       v.GetString("DB_PORT"),
			Name:       v.GetString("DB_NAME"),
			SkipSchema: v.GetBool("DB_SKIP_SCHEMA"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		NATS: NATSConfig{
			URL:         v.GetString("NATS_URL"),
			LogSubjects: v.GetBool("NATS_LOG_SUBJECTS"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			TTL:    v.GetDuration("JWT_TTL"),
		},
		Tracking: TrackingConfig{
			StopConfirmRadius:  v.GetFloat64("STOP_CONFIRM_RADIUS_M"),
			RiderAlertRadius:   v.GetFloat64("RIDER_ALERT_RADIUS_M"),
			RiderConfirmRadius: v.GetFloat64("RIDER_CONFIRM_RADIUS_M"),
			TimeZone:           v.GetString("TZ"),
		},
		LocationRateLimit: v.GetInt("LOCATION_RATE_LIMIT"),
		PositionTTL:       v.GetDuration("POSITION_TTL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Store != "mysql" && c.Store != "memory" {
		return fmt.Errorf("STORE must be mysql or memory, got %q", c.Store)
	}

	if c.JWT.Secret == "" {
		if c.Production() {
			return errors.New("JWT_SECRET must be set in production environment")
		}
		log.Println("⚠️ WARNING: Using default JWT secret (development only)")
		c.JWT.Secret = devJWTSecret
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long (current: %d)", len(c.JWT.Secret))
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("invalid JWT_TTL %s", c.JWT.TTL)
	}

	t := c.Tracking
	if t.StopConfirmRadius <= 0 || t.RiderAlertRadius <= 0 || t.RiderConfirmRadius <= 0 {
		return errors.New("geofence radii must be positive")
	}
	if _, err := time.LoadLocation(t.TimeZone); err != nil {
		return fmt.Errorf("invalid TZ %q: %w", t.TimeZone, err)
	}
	if c.LocationRateLimit <= 0 {
		c.LocationRateLimit = 120
	}
	return nil
}

func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Location zona horaria ya validada en Load
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Tracking.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
