package cache

import (
	"context"
	"testing"
	"time"

	"github.com/yourorg/rutatrack/internal/models"
)

func TestCacheBasicOperations(t *testing.T) {
	cache := NewCache[string](5*time.Minute, 10*time.Minute)
	defer cache.Stop()

	cache.Set("key1", "value1")

	value, found := cache.Get("key1")
	if !found {
		t.Error("Expected to find key1")
	}
	if value != "value1" {
		t.Errorf("Expected 'value1', got %v", value)
	}

	if _, found = cache.Get("nonexistent"); found {
		t.Error("Expected not to find nonexistent key")
	}
}

func TestCacheExpiration(t *testing.T) {
	cache := NewCache[string](5*time.Minute, 0)
	defer cache.Stop()

	cache.SetWithTTL("expiring", "value", 50*time.Millisecond)
	if _, found := cache.Get("expiring"); !found {
		t.Error("Expected to find item before expiration")
	}

	time.Sleep(100 * time.Millisecond)

	if _, found := cache.Get("expiring"); found {
		t.Error("Expected item to be expired")
	}
}

func TestCacheStats(t *testing.T) {
	cache := NewCache[int](time.Minute, 0)
	defer cache.Stop()

	cache.Set("a", 1)
	cache.SetWithTTL("b", 2, time.Nanosecond)
	time.Sleep(time.Millisecond)

	stats := cache.Stats()
	if stats.TotalItems != 2 || stats.ValidItems != 1 || stats.ExpiredItems != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestCacheCleanupLoop(t *testing.T) {
	cache := NewCache[int](time.Minute, 10*time.Millisecond)
	defer cache.Stop()

	cache.SetWithTTL("short", 1, time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	if cache.Count() != 0 {
		t.Errorf("Expected cleanup to remove expired item, got %d", cache.Count())
	}
}

func TestCacheStopTwice(t *testing.T) {
	cache := NewCache[int](time.Minute, time.Minute)
	cache.Stop()
	cache.Stop()
}

func TestMemoryPositions(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPositions(time.Minute)
	defer p.Close()

	if _, ok, _ := p.DriverPosition(ctx, 7); ok {
		t.Fatal("Expected empty cache")
	}
	pos := models.Position{Lat: -33.45, Lng: -70.66, UpdatedAt: time.Now()}
	if err := p.SetDriverPosition(ctx, 7, pos); err != nil {
		t.Fatal(err)
	}
	got, ok, err := p.DriverPosition(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("Expected cached position, got ok=%v err=%v", ok, err)
	}
	if got.Lat != pos.Lat || got.Lng != pos.Lng {
		t.Errorf("Unexpected position %+v", got)
	}
}

func BenchmarkCacheGet(b *testing.B) {
	cache := NewCache[int](time.Minute, 0)
	defer cache.Stop()
	cache.Set("driver:1", 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get("driver:1")
	}
}
