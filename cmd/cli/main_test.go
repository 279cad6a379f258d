package main

import (
	"context"
	"errors"
	"testing"

	"github.com/yourorg/rutatrack/internal/store"
	"github.com/yourorg/rutatrack/internal/store/memstore"
	"golang.org/x/crypto/bcrypt"
)

func TestSeedDemo(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	res, err := seedDemo(ctx, st)
	if err != nil {
		t.Fatalf("seedDemo: %v", err)
	}
	if len(res.Route.Stops) != 4 {
		t.Errorf("Expected 4 stops, got %d", len(res.Route.Stops))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(res.Driver.PasswordHash), []byte(demoPassword)); err != nil {
		t.Errorf("Expected bcrypt hash of demo password: %v", err)
	}

	stops, err := st.RouteStops(ctx, res.Route.ID)
	if err != nil || len(stops) != 4 {
		t.Fatalf("RouteStops: %v (%d)", err, len(stops))
	}
	if stops[0].Name != "Estación Central" {
		t.Errorf("Expected stops in order, first is %q", stops[0].Name)
	}

	if _, err := seedDemo(ctx, st); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate on reseed, got %v", err)
	}
}
