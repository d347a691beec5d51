package engine

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/devitachiui22/aotravel-sub002/internal/config"
	"github.com/devitachiui22/aotravel-sub002/internal/database"
	"github.com/devitachiui22/aotravel-sub002/internal/models"
)

// testDB opens an in-memory database restricted to a single connection so
// concurrent transactions serialize the way row locks serialize them in
// production.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		DriverSearchRadiusKm: 10.0,
		LockTimeout:          3 * time.Second,
		MinProposalPrice:     100,
		MaxFareMultiplier:    2.0,
		WalletOverdraft:      0,
		RatingIncrement:      0.1,
		MaxRating:            5.0,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordedEvent is one notification captured by fakeNotifier.
type recordedEvent struct {
	Target string // "user:<id>", "pool" or "ride:<id>"
	Event  string
	Data   any
}

// fakeNotifier records every notification for assertions.
type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeNotifier) ToUser(userID uint, event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Target: fmt.Sprintf("user:%d", userID), Event: event, Data: data})
}

func (f *fakeNotifier) ToDriverPool(event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Target: "pool", Event: event, Data: data})
}

func (f *fakeNotifier) ToRide(rideID uint, passengerID uint, driverID *uint, event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Target: fmt.Sprintf("ride:%d", rideID), Event: event, Data: data})
}

func target(kind string, id uint) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

func (f *fakeNotifier) count(target, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Target == target && e.Event == event {
			n++
		}
	}
	return n
}

// fakeFeed records every published ledger entry.
type fakeFeed struct {
	mu      sync.Mutex
	entries []models.LedgerEntry
}

func (f *fakeFeed) PublishEntry(entry models.LedgerEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

var userSeq atomic.Uint64

func createUser(t *testing.T, db *gorm.DB, userType models.UserType) *models.User {
	t.Helper()

	seq := userSeq.Add(1)
	u := models.User{
		Username:     fmt.Sprintf("%s-%d", userType, seq),
		Email:        fmt.Sprintf("%s-%d@test.local", userType, seq),
		PasswordHash: "x",
		UserType:     string(userType),
		Verified:     true,
		Rating:       5,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create %s: %v", userType, err)
	}
	return &u
}

func createPresence(t *testing.T, db *gorm.DB, driverID uint, lat, lng float64) {
	t.Helper()

	p := models.DriverPresence{
		DriverID:    driverID,
		Latitude:    lat,
		Longitude:   lng,
		IsOnline:    true,
		IsAvailable: true,
		LastSeen:    time.Now(),
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create presence: %v", err)
	}
}

func createRide(t *testing.T, db *gorm.DB, passengerID uint, status string, driverID *uint) *models.Ride {
	t.Helper()

	ride := models.Ride{
		PassengerID:    passengerID,
		DriverID:       driverID,
		PickupLat:      -8.84,
		PickupLng:      13.23,
		PickupAddr:     "Rua da Missao",
		DestLat:        -8.90,
		DestLng:        13.19,
		DestAddr:       "Aeroporto",
		Distance:       8.5,
		RequestedPrice: 1000,
		Status:         status,
		PaymentMethod:  models.PaymentMethodCash,
		PaymentStatus:  models.PaymentStatusUnpaid,
	}
	if err := db.Create(&ride).Error; err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return &ride
}

func reloadRide(t *testing.T, db *gorm.DB, id uint) *models.Ride {
	t.Helper()

	var ride models.Ride
	if err := db.First(&ride, id).Error; err != nil {
		t.Fatalf("reload ride %d: %v", id, err)
	}
	return &ride
}
