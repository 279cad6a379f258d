package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/yourorg/rutatrack/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DSN arma el DSN de go-sql-driver/mysql
func DSN(cfg config.DBConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4,utf8", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
}

// Connect returns a MySQL/MariaDB connection pool and verifies it with a ping.
func Connect(cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate aplica las migraciones embebidas. Usa su propia conexión
// (multiStatements) y la cierra al terminar.
func Migrate(cfg config.DBConfig) error {
	if cfg.SkipSchema {
		log.Printf("Migrate: skipped (DB_SKIP_SCHEMA=true)")
		return nil
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "mysql://"+DSN(cfg)+"&multiStatements=true")
	if err != nil {
		return fmt.Errorf("could not start migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	version, dirty, _ := m.Version()
	log.Printf("✅ Migrations applied (version=%d dirty=%v)", version, dirty)
	return nil
}
