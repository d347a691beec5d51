package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/devitachiui22/aotravel-sub002/internal/apperrors"
	"github.com/devitachiui22/aotravel-sub002/internal/config"
	"github.com/devitachiui22/aotravel-sub002/internal/database"
	"github.com/devitachiui22/aotravel-sub002/internal/models"
	"github.com/devitachiui22/aotravel-sub002/internal/observability"
	"github.com/devitachiui22/aotravel-sub002/pkg/utils"
)

// Dispatch runs the broadcast-and-claim protocol matching ride requests
// to drivers.
type Dispatch struct {
	db     *gorm.DB
	notify Notifier
	log    *slog.Logger
	cfg    config.Config
}

func NewDispatch(db *gorm.DB, notify Notifier, log *slog.Logger, cfg config.Config) *Dispatch {
	return &Dispatch{db: db, notify: notify, log: log, cfg: cfg}
}

// RideRequestInput carries a passenger's ride request.
type RideRequestInput struct {
	PickupLat     float64
	PickupLng     float64
	PickupAddr    string
	DestLat       float64
	DestLng       float64
	DestAddr      string
	PriceOffer    float64 // 0 asks for an estimate
	Distance      float64 // 0 asks for a haversine estimate
	PaymentMethod string
}

func (in *RideRequestInput) validate() error {
	if in.PickupLat < -90 || in.PickupLat > 90 || in.DestLat < -90 || in.DestLat > 90 {
		return apperrors.E(apperrors.KindValidation, "invalid latitude")
	}
	if in.PickupLng < -180 || in.PickupLng > 180 || in.DestLng < -180 || in.DestLng > 180 {
		return apperrors.E(apperrors.KindValidation, "invalid longitude")
	}
	if strings.TrimSpace(in.PickupAddr) == "" || strings.TrimSpace(in.DestAddr) == "" {
		return apperrors.E(apperrors.KindValidation, "pickup and destination addresses are required")
	}
	if in.PriceOffer < 0 {
		return apperrors.E(apperrors.KindValidation, "price offer must be non-negative")
	}
	switch in.PaymentMethod {
	case "":
		in.PaymentMethod = models.PaymentMethodCash
	case models.PaymentMethodCash, models.PaymentMethodWallet:
	default:
		return apperrors.E(apperrors.KindValidation, "unknown payment method")
	}
	return nil
}

// RequestRide persists a searching ride for the passenger and fans it out
// to eligible drivers. A passenger may hold at most one non-terminal ride;
// the ride stays in searching until claimed or cancelled — dispatch has no
// server-side timeout.
func (d *Dispatch) RequestRide(ctx context.Context, passengerID uint, in RideRequestInput) (*models.Ride, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	if in.Distance <= 0 {
		in.Distance = utils.HaversineDistance(in.PickupLat, in.PickupLng, in.DestLat, in.DestLng)
	}
	if in.PriceOffer <= 0 {
		in.PriceOffer = utils.EstimatePrice(in.Distance, 0)
	}

	ride := models.Ride{
		PassengerID:    passengerID,
		PickupLat:      in.PickupLat,
		PickupLng:      in.PickupLng,
		PickupAddr:     in.PickupAddr,
		DestLat:        in.DestLat,
		DestLng:        in.DestLng,
		DestAddr:       in.DestAddr,
		Distance:       in.Distance,
		RequestedPrice: in.PriceOffer,
		Status:         models.RideStatusSearching,
		PaymentMethod:  in.PaymentMethod,
		PaymentStatus:  models.PaymentStatusUnpaid,
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// "non-terminal ride" is a computed predicate, so the one-ride
		// rule is enforced here under a per-passenger advisory lock
		// rather than a unique constraint.
		if err := database.SerializeOnUser(tx, passengerID); err != nil {
			return unavailable(err)
		}

		var active int64
		if err := tx.Model(&models.Ride{}).
			Where("passenger_id = ? AND status IN (?)", passengerID, models.ActiveRideStatuses).
			Count(&active).Error; err != nil {
			return unavailable(err)
		}
		if active > 0 {
			return apperrors.E(apperrors.KindConflict, "you already have an active ride")
		}

		if err := tx.Create(&ride).Error; err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RidesRequested.Inc()
	d.log.Info("ride requested",
		"ride_id", ride.ID,
		"passenger_id", passengerID,
		"price", ride.RequestedPrice,
		"distance_km", ride.Distance,
	)

	d.broadcastRequest(ctx, &ride)
	return &ride, nil
}

// broadcastRequest notifies every online, available, verified and
// non-blocked driver near the pickup point.
func (d *Dispatch) broadcastRequest(ctx context.Context, ride *models.Ride) {
	var presences []models.DriverPresence
	err := d.db.WithContext(ctx).
		Joins("JOIN users ON users.id = driver_presences.driver_id").
		Where("driver_presences.is_online = ? AND driver_presences.is_available = ?", true, true).
		Where("users.verified = ? AND users.blocked = ?", true, false).
		Find(&presences).Error
	if err != nil {
		d.log.Error("driver lookup for broadcast failed", "ride_id", ride.ID, "error", err)
		return
	}

	payload := map[string]any{
		"rideId": ride.ID,
		"pickup": map[string]any{
			"lat":     ride.PickupLat,
			"lng":     ride.PickupLng,
			"address": ride.PickupAddr,
		},
		"destination": map[string]any{
			"lat":     ride.DestLat,
			"lng":     ride.DestLng,
			"address": ride.DestAddr,
		},
		"price":    ride.RequestedPrice,
		"distance": ride.Distance,
	}

	notified := 0
	for _, p := range presences {
		if !utils.IsWithinRadius(ride.PickupLat, ride.PickupLng, p.Latitude, p.Longitude, d.cfg.DriverSearchRadiusKm) {
			continue
		}
		d.notify.ToUser(p.DriverID, "new_ride_request", payload)
		notified++
	}
	d.log.Info("ride request broadcast", "ride_id", ride.ID, "drivers_notified", notified)
}

// AcceptRide lets a driver claim a searching ride. Multiple drivers race
// here; only the one that observes status == searching under the row lock
// wins. The driver-busy check runs in the same lock scope so a driver
// cannot win two rides at once.
func (d *Dispatch) AcceptRide(ctx context.Context, driverID, rideID uint) (*models.Ride, error) {
	var ride models.Ride

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BoundLockWait(tx, d.cfg.LockTimeout); err != nil {
			return unavailable(err)
		}

		if err := database.LockForUpdate(tx).First(&ride, rideID).Error; err != nil {
			return storeErr(err, "ride not found")
		}
		if ride.Status != models.RideStatusSearching {
			observability.AcceptLost.Inc()
			return apperrors.E(apperrors.KindConflict, "ride already taken")
		}

		var driver models.User
		if err := tx.First(&driver, driverID).Error; err != nil {
			return storeErr(err, "driver not found")
		}
		if !driver.Verified || driver.Blocked {
			return apperrors.E(apperrors.KindForbidden, "driver is not eligible to accept rides")
		}

		var busy int64
		if err := tx.Model(&models.Ride{}).
			Where("driver_id = ? AND status IN (?)", driverID, models.BusyDriverStatuses).
			Count(&busy).Error; err != nil {
			return unavailable(err)
		}
		if busy > 0 {
			return apperrors.E(apperrors.KindConflict, "driver already has an active ride")
		}

		now := time.Now()
		ride.DriverID = &driverID
		ride.Status = models.RideStatusAccepted
		ride.AcceptedAt = &now
		if err := tx.Save(&ride).Error; err != nil {
			return unavailable(err)
		}

		// Driver drops out of the dispatch pool while on a ride.
		if err := tx.Model(&models.DriverPresence{}).
			Where("driver_id = ?", driverID).
			Update("is_available", false).Error; err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RidesAccepted.Inc()
	d.log.Info("ride accepted", "ride_id", ride.ID, "driver_id", driverID)

	d.notify.ToUser(ride.PassengerID, "ride_accepted", map[string]any{
		"rideId":   ride.ID,
		"driverId": driverID,
		"status":   ride.Status,
	})
	d.notify.ToDriverPool("ride_taken", map[string]any{
		"rideId": ride.ID,
	})
	return &ride, nil
}

// statusUpdateInputOK screens the statuses reachable through UpdateStatus.
// Acceptance and completion have their own entry points.
func statusUpdateInputOK(status string) bool {
	switch status {
	case models.RideStatusArrived, models.RideStatusStarted, models.RideStatusCancelled:
		return true
	}
	return false
}

// UpdateStatus advances the ride state machine:
// searching→accepted→arrived→started→completed, with cancellation
// reachable from searching, accepted and started. Terminal states admit
// no further transitions.
func (d *Dispatch) UpdateStatus(ctx context.Context, actor Actor, rideID uint, newStatus, reason string) (*models.Ride, error) {
	if !statusUpdateInputOK(newStatus) {
		return nil, apperrors.Ef(apperrors.KindValidation, "status %q cannot be requested", newStatus)
	}
	if newStatus == models.RideStatusCancelled && len(strings.TrimSpace(reason)) < 3 {
		return nil, apperrors.E(apperrors.KindValidation, "cancellation requires a reason")
	}

	var ride models.Ride
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BoundLockWait(tx, d.cfg.LockTimeout); err != nil {
			return unavailable(err)
		}
		if err := database.LockForUpdate(tx).First(&ride, rideID).Error; err != nil {
			return storeErr(err, "ride not found")
		}
		if ride.IsTerminal() {
			return apperrors.Ef(apperrors.KindInvalidState, "ride is already %s", ride.Status)
		}

		if err := d.applyTransition(&ride, actor, newStatus, reason); err != nil {
			return err
		}
		if err := tx.Save(&ride).Error; err != nil {
			return unavailable(err)
		}

		// A cancelled ride releases its driver back into the pool.
		if newStatus == models.RideStatusCancelled && ride.DriverID != nil {
			if err := tx.Model(&models.DriverPresence{}).
				Where("driver_id = ?", *ride.DriverID).
				Update("is_available", true).Error; err != nil {
				return unavailable(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if newStatus == models.RideStatusCancelled {
		observability.RidesCancelled.Inc()
	}
	d.log.Info("ride status updated", "ride_id", ride.ID, "status", ride.Status, "actor_id", actor.ID)

	d.notify.ToRide(ride.ID, ride.PassengerID, ride.DriverID, "ride_status_update", map[string]any{
		"rideId": ride.ID,
		"status": ride.Status,
		"reason": reason,
	})
	return &ride, nil
}

func (d *Dispatch) applyTransition(ride *models.Ride, actor Actor, newStatus, reason string) error {
	now := time.Now()
	assignedDriver := ride.DriverID != nil && *ride.DriverID == actor.ID && actor.IsDriver()
	owningPassenger := ride.PassengerID == actor.ID && actor.IsPassenger()

	switch newStatus {
	case models.RideStatusArrived:
		if !assignedDriver {
			return apperrors.E(apperrors.KindForbidden, "only the assigned driver can mark arrival")
		}
		if ride.Status != models.RideStatusAccepted {
			return apperrors.Ef(apperrors.KindInvalidState, "cannot arrive from %s", ride.Status)
		}
		ride.Status = models.RideStatusArrived
		ride.ArrivedAt = &now

	case models.RideStatusStarted:
		if !assignedDriver {
			return apperrors.E(apperrors.KindForbidden, "only the assigned driver can start the ride")
		}
		if ride.Status != models.RideStatusArrived {
			return apperrors.Ef(apperrors.KindInvalidState, "cannot start from %s", ride.Status)
		}
		ride.Status = models.RideStatusStarted
		ride.StartedAt = &now

	case models.RideStatusCancelled:
		switch ride.Status {
		case models.RideStatusSearching:
			if !owningPassenger {
				return apperrors.E(apperrors.KindForbidden, "only the passenger can cancel a searching ride")
			}
		case models.RideStatusAccepted, models.RideStatusStarted:
			if !owningPassenger && !assignedDriver {
				return apperrors.E(apperrors.KindForbidden, "only ride participants can cancel")
			}
		default:
			return apperrors.Ef(apperrors.KindInvalidState, "cannot cancel from %s", ride.Status)
		}
		ride.Status = models.RideStatusCancelled
		ride.CancelReason = strings.TrimSpace(reason)
		ride.CancelledAt = &now
	}
	return nil
}

// ActiveRides lists the caller's non-terminal rides; admins see every
// active ride.
func (d *Dispatch) ActiveRides(ctx context.Context, actor Actor) ([]models.Ride, error) {
	q := d.db.WithContext(ctx).Preload("Driver").Preload("Passenger").
		Where("status IN (?)", models.ActiveRideStatuses).
		Order("created_at DESC")

	switch {
	case actor.IsAdmin():
	case actor.IsDriver():
		q = q.Where("driver_id = ?", actor.ID)
	default:
		q = q.Where("passenger_id = ?", actor.ID)
	}

	var rides []models.Ride
	if err := q.Find(&rides).Error; err != nil {
		return nil, unavailable(err)
	}
	return rides, nil
}

// History lists the caller's finished rides, newest first.
func (d *Dispatch) History(ctx context.Context, actor Actor, page, limit int) ([]models.Ride, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	offset := (page - 1) * limit

	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Where("status IN (?)", []string{models.RideStatusCompleted, models.RideStatusCancelled})
		if actor.IsDriver() {
			q = q.Where("driver_id = ?", actor.ID)
		} else if !actor.IsAdmin() {
			q = q.Where("passenger_id = ?", actor.ID)
		}
		return q
	}

	var rides []models.Ride
	if err := scope(d.db.WithContext(ctx)).Preload("Driver").Preload("Passenger").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&rides).Error; err != nil {
		return nil, 0, unavailable(err)
	}

	var total int64
	if err := scope(d.db.WithContext(ctx).Model(&models.Ride{})).Count(&total).Error; err != nil {
		return nil, 0, unavailable(err)
	}
	return rides, total, nil
}
