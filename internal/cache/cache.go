package cache

import (
	"sync"
	"time"
)

// ============================================================================
// TTL CACHE - IN-MEMORY CON EXPIRACIÓN
// ============================================================================
// Caché thread-safe con expiración por item y limpieza periódica.
//
// Uso:
//   c := NewCache[models.Position](10*time.Minute, time.Minute)
//   c.Set("driver:7", pos)
//   if pos, found := c.Get("driver:7"); found { ... }

type item[V any] struct {
	value      V
	expiration int64 // Unix nanos; 0 = no expira
}

// Cache almacén key-value con TTL
type Cache[V any] struct {
	items             map[string]item[V]
	mu                sync.RWMutex
	defaultExpiration time.Duration
	stopCleanup       chan struct{}
	stopOnce          sync.Once
}

// NewCache crea una caché; cleanupInterval <= 0 desactiva la limpieza automática
func NewCache[V any](defaultExpiration, cleanupInterval time.Duration) *Cache[V] {
	c := &Cache[V]{
		items:             make(map[string]item[V]),
		defaultExpiration: defaultExpiration,
		stopCleanup:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

// Set almacena un valor con la expiración por defecto
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultExpiration)
}

func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}
	c.mu.Lock()
	c.items[key] = item[V]{value: value, expiration: exp}
	c.mu.Unlock()
}

// Get retorna (valor, true) si existe y no ha expirado
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	it, found := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !found {
		return zero, false
	}
	if it.expired(time.Now().UnixNano()) {
		c.Delete(key)
		return zero, false
	}
	return it.value, true
}

func (it item[V]) expired(now int64) bool {
	return it.expiration > 0 && now > it.expiration
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Count incluye items expirados aún no limpiados
func (c *Cache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

type Stats struct {
	TotalItems   int `json:"total_items"`
	ExpiredItems int `json:"expired_items"`
	ValidItems   int `json:"valid_items"`
}

func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{TotalItems: len(c.items)}
	now := time.Now().UnixNano()
	for _, it := range c.items {
		if it.expired(now) {
			stats.ExpiredItems++
		} else {
			stats.ValidItems++
		}
	}
	return stats
}

func (c *Cache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Cache[V]) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	for key, it := range c.items {
		if it.expired(now) {
			delete(c.items, key)
		}
	}
}

// Stop detiene la limpieza automática; es seguro llamarlo más de una vez
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}
