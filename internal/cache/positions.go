package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yourorg/rutatrack/internal/config"
	"github.com/yourorg/rutatrack/internal/models"
)

// ============================================================================
// POSICIONES DE CONDUCTORES
// ============================================================================
// Última posición conocida por conductor. MemoryPositions para una sola
// instancia; RedisPositions cuando hay varias réplicas del backend.

func driverKey(driverID int64) string {
	return "driver:" + strconv.FormatInt(driverID, 10)
}

type MemoryPositions struct {
	c *Cache[models.Position]
}

func NewMemoryPositions(ttl time.Duration) *MemoryPositions {
	return &MemoryPositions{c: NewCache[models.Position](ttl, time.Minute)}
}

func (m *MemoryPositions) SetDriverPosition(_ context.Context, driverID int64, pos models.Position) error {
	m.c.Set(driverKey(driverID), pos)
	return nil
}

func (m *MemoryPositions) DriverPosition(_ context.Context, driverID int64) (models.Position, bool, error) {
	pos, ok := m.c.Get(driverKey(driverID))
	return pos, ok, nil
}

func (m *MemoryPositions) Ping(context.Context) error { return nil }

func (m *MemoryPositions) Stats() Stats { return m.c.Stats() }

func (m *MemoryPositions) Close() error {
	m.c.Stop()
	return nil
}

// RedisPositions guarda la posición como JSON con TTL
type RedisPositions struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisClient conecta y verifica con PING
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Println("Connected to Redis successfully.")
	return rdb, nil
}

func NewRedisPositions(rdb *redis.Client, ttl time.Duration) *RedisPositions {
	return &RedisPositions{rdb: rdb, ttl: ttl, prefix: "rutatrack:"}
}

func (r *RedisPositions) key(driverID int64) string {
	return r.prefix + driverKey(driverID) + ":pos"
}

func (r *RedisPositions) SetDriverPosition(ctx context.Context, driverID int64, pos models.Position) error {
	b, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(driverID), b, r.ttl).Err()
}

func (r *RedisPositions) DriverPosition(ctx context.Context, driverID int64) (models.Position, bool, error) {
	b, err := r.rdb.Get(ctx, r.key(driverID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Position{}, false, nil
	}
	if err != nil {
		return models.Position{}, false, err
	}
	var pos models.Position
	if err := json.Unmarshal(b, &pos); err != nil {
		return models.Position{}, false, err
	}
	return pos, true, nil
}

func (r *RedisPositions) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisPositions) Close() error {
	return r.rdb.Close()
}
