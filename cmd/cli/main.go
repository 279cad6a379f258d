package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/rutatrack/internal/config"
	appdb "github.com/yourorg/rutatrack/internal/db"
	"github.com/yourorg/rutatrack/internal/middleware"
	"github.com/yourorg/rutatrack/internal/models"
	"github.com/yourorg/rutatrack/internal/store"
	"github.com/yourorg/rutatrack/internal/store/mysqlstore"
	"github.com/yourorg/rutatrack/internal/tracking"
	"golang.org/x/crypto/bcrypt"
)

const demoPassword = "demo1234"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Println("==== rutatrack CLI ====")
		fmt.Println("1) Health check API")
		fmt.Println("2) Run migrations")
		fmt.Println("3) Seed demo data (route, unit, driver, rider)")
		fmt.Println("4) Mint dev token")
		fmt.Println("5) Schedule journey")
		fmt.Println("6) Cancel journey")
		fmt.Println("7) Exit")
		fmt.Print("Select option: ")
		choice := prompt(reader, "")
		switch choice {
		case "1":
			doHealthCheck()
		case "2":
			doMigrate(cfg)
		case "3":
			doSeed(cfg)
		case "4":
			doMintToken(cfg, reader)
		case "5":
			doSchedule(cfg, reader)
		case "6":
			doCancel(cfg, reader)
		case "7":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Invalid option")
		}
		fmt.Println()
	}
}

func prompt(r *bufio.Reader, label string) string {
	if label != "" {
		fmt.Print(label)
	}
	s, _ := r.ReadString('\n')
	return strings.TrimSpace(s)
}

func promptID(r *bufio.Reader, label string) (int64, bool) {
	id, err := strconv.ParseInt(prompt(r, label), 10, 64)
	if err != nil || id <= 0 {
		fmt.Println("Invalid id")
		return 0, false
	}
	return id, true
}

func doHealthCheck() {
	base := os.Getenv("BASE_URL")
	if base == "" {
		base = "http://127.0.0.1:8080"
	}
	url := strings.TrimRight(base, "/") + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		fmt.Println("Health: ERROR:", err)
		return
	}
	defer resp.Body.Close()
	fmt.Println("Health status:", resp.Status)
}

func doMigrate(cfg *config.Config) {
	if err := appdb.Migrate(cfg.DB); err != nil {
		log.Println("Migrate error:", err)
		return
	}
	fmt.Println("Migrations applied")
}

// openStore conecta y migra; el caller cierra
func openStore(cfg *config.Config) (store.Store, func(), error) {
	conn, err := appdb.Connect(cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	if err := appdb.Migrate(cfg.DB); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return mysqlstore.New(conn), func() { conn.Close() }, nil
}

func newService(cfg *config.Config, st store.Store) *tracking.Service {
	return tracking.NewService(st, nil, tracking.Config{
		StopConfirmRadius:  cfg.Tracking.StopConfirmRadius,
		RiderAlertRadius:   cfg.Tracking.RiderAlertRadius,
		RiderConfirmRadius: cfg.Tracking.RiderConfirmRadius,
		Location:           cfg.Location(),
	})
}

func doSeed(cfg *config.Config) {
	st, closeFn, err := openStore(cfg)
	if err != nil {
		log.Println("Seed:", err)
		return
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := seedDemo(ctx, st)
	if errors.Is(err, store.ErrDuplicate) {
		fmt.Println("Seed: demo data already exists")
		return
	} else if err != nil {
		fmt.Println("Seed: error:", err)
		return
	}
	fmt.Printf("Seed: route=%d unit=%d driver=%d rider=%d (driver password %q)\n",
		res.Route.ID, res.Unit.ID, res.Driver.ID, res.Rider.ID, demoPassword)
}

type seedResult struct {
	Route  models.Route
	Unit   models.Unit
	Driver models.Driver
	Rider  models.Rider
}

func intp(n int) *int { return &n }

// seedDemo crea una ruta de ejemplo por la Alameda en una sola transacción
func seedDemo(ctx context.Context, st store.Store) (seedResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return seedResult{}, err
	}

	var res seedResult
	err = st.WithTx(ctx, func(q store.Queries) error {
		res.Route = models.Route{
			Name: "Demo Alameda",
			Stops: []models.Stop{
				{Name: "Estación Central", Lat: -33.4517, Lng: -70.6793, Order: intp(1)},
				{Name: "Los Héroes", Lat: -33.4460, Lng: -70.6600, Order: intp(2)},
				{Name: "La Moneda", Lat: -33.4430, Lng: -70.6540, Order: intp(3)},
				{Name: "Baquedano", Lat: -33.4372, Lng: -70.6343, Order: intp(4)},
			},
			Path: []models.Coordinate{
				{Lat: -33.4517, Lng: -70.6793},
				{Lat: -33.4460, Lng: -70.6600},
				{Lat: -33.4430, Lng: -70.6540},
				{Lat: -33.4372, Lng: -70.6343},
			},
		}
		if err := q.CreateRoute(ctx, &res.Route); err != nil {
			return err
		}
		res.Unit = models.Unit{Plate: "DEMO-01", Model: "Demo", Capacity: 40, Status: models.UnitActive, RouteID: &res.Route.ID}
		if err := q.CreateUnit(ctx, &res.Unit); err != nil {
			return err
		}
		res.Driver = models.Driver{
			Name:         "Conductor Demo",
			Email:        "conductor@demo.local",
			PasswordHash: string(hash),
			UnitID:       &res.Unit.ID,
			Role:         models.DriverPrimary,
		}
		if err := q.CreateDriver(ctx, &res.Driver); err != nil {
			return err
		}
		res.Rider = models.Rider{
			Name:    "Pasajero Demo",
			Email:   "pasajero@demo.local",
			StopID:  &res.Route.Stops[2].ID,
			RouteID: &res.Route.ID,
		}
		return q.CreateRider(ctx, &res.Rider)
	})
	return res, err
}

func doMintToken(cfg *config.Config, r *bufio.Reader) {
	role := prompt(r, "Role (driver|rider): ")
	if role != middleware.RoleDriver && role != middleware.RoleRider {
		fmt.Println("Invalid role")
		return
	}
	id, ok := promptID(r, "Actor id: ")
	if !ok {
		return
	}
	tok, exp, err := middleware.IssueToken([]byte(cfg.JWT.Secret), role, id, cfg.JWT.TTL)
	if err != nil {
		fmt.Println("Token: error:", err)
		return
	}
	fmt.Printf("Token (expira %s):\n%s\n", exp.Format(time.RFC3339), tok)
}

func doSchedule(cfg *config.Config, r *bufio.Reader) {
	unitID, ok := promptID(r, "Unit id: ")
	if !ok {
		return
	}
	var routeID int64
	if s := prompt(r, "Route id (enter = ruta de la unidad): "); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			fmt.Println("Invalid id")
			return
		}
		routeID = id
	}
	date := prompt(r, "Date YYYY-MM-DD (enter = hoy): ")

	st, closeFn, err := openStore(cfg)
	if err != nil {
		log.Println("Schedule:", err)
		return
	}
	defer closeFn()

	j, err := newService(cfg, st).ScheduleJourney(context.Background(), unitID, routeID, date)
	if err != nil {
		fmt.Println("Schedule: error:", err)
		return
	}
	fmt.Printf("Journey %d scheduled for unit %d on %s\n", j.ID, j.UnitID, j.Date)
}

func doCancel(cfg *config.Config, r *bufio.Reader) {
	id, ok := promptID(r, "Journey id: ")
	if !ok {
		return
	}
	reason := prompt(r, "Reason: ")

	st, closeFn, err := openStore(cfg)
	if err != nil {
		log.Println("Cancel:", err)
		return
	}
	defer closeFn()

	j, err := newService(cfg, st).CancelJourney(context.Background(), id, reason)
	if err != nil {
		fmt.Println("Cancel: error:", err)
		return
	}
	fmt.Printf("Journey %d cancelled (%d/%d stops)\n", j.ID, j.StopsCompleted, j.StopsTotal)
}
