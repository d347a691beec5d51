package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/devitachiui22/aotravel-sub002/internal/apperrors"
	"github.com/devitachiui22/aotravel-sub002/internal/config"
	"github.com/devitachiui22/aotravel-sub002/internal/database"
	"github.com/devitachiui22/aotravel-sub002/internal/models"
	"github.com/devitachiui22/aotravel-sub002/internal/observability"
)

// Settlement finalizes price and payment when a ride completes. Ride
// close, ledger movement and the driver's rating nudge commit in one
// transaction; if any piece fails nothing is visible.
type Settlement struct {
	db     *gorm.DB
	notify Notifier
	feed   EventFeed
	log    *slog.Logger
	cfg    config.Config
}

func NewSettlement(db *gorm.DB, notify Notifier, feed EventFeed, log *slog.Logger, cfg config.Config) *Settlement {
	return &Settlement{db: db, notify: notify, feed: feed, log: log, cfg: cfg}
}

// Result reports a completed settlement.
type Result struct {
	Ride    *models.Ride
	Entries []models.LedgerEntry
}

// Complete closes a started ride. Wallet settlements debit the passenger
// and credit the driver with paired ledger entries sharing one reference
// id; a balance shortfall fails the whole call with InsufficientFunds and
// the ride stays started so the driver can collect cash instead. Cash
// settlements mark the payment pending collection and never touch the
// ledger — reconciling cash is a manual, out-of-band process.
func (s *Settlement) Complete(ctx context.Context, driverID, rideID uint, finalPrice float64, method string) (*Result, error) {
	if finalPrice <= 0 {
		return nil, apperrors.E(apperrors.KindValidation, "final price must be positive")
	}
	if method != models.PaymentMethodCash && method != models.PaymentMethodWallet {
		return nil, apperrors.E(apperrors.KindValidation, "unknown payment method")
	}

	var ride models.Ride
	var entries []models.LedgerEntry

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BoundLockWait(tx, s.cfg.LockTimeout); err != nil {
			return unavailable(err)
		}
		if err := database.LockForUpdate(tx).First(&ride, rideID).Error; err != nil {
			return storeErr(err, "ride not found")
		}
		if ride.DriverID == nil || *ride.DriverID != driverID {
			return apperrors.E(apperrors.KindForbidden, "only the assigned driver can complete the ride")
		}
		if ride.Status != models.RideStatusStarted {
			return apperrors.Ef(apperrors.KindInvalidState, "ride must be started to complete, not %s", ride.Status)
		}

		// Up to the configured multiple of the original request the
		// driver may settle without fresh passenger approval; anything
		// beyond needs out-of-band consent.
		ceiling := s.cfg.MaxFareMultiplier * ride.RequestedPrice
		if finalPrice > ceiling {
			return apperrors.Ef(apperrors.KindValidation,
				"final price %.2f exceeds the allowed maximum of %.2f; passenger approval required", finalPrice, ceiling)
		}

		now := time.Now()
		ride.Status = models.RideStatusCompleted
		ride.FinalPrice = &finalPrice
		ride.CompletedAt = &now
		ride.PaymentMethod = method

		if method == models.PaymentMethodWallet {
			moved, err := s.moveFunds(tx, &ride, finalPrice, driverID)
			if err != nil {
				return err
			}
			entries = moved
			ride.PaymentStatus = models.PaymentStatusPaid
		} else {
			ride.PaymentStatus = models.PaymentStatusPendingCollection
		}

		if err := tx.Save(&ride).Error; err != nil {
			return unavailable(err)
		}

		if err := s.nudgeDriverRating(tx, driverID); err != nil {
			return err
		}

		// Completed drivers rejoin the dispatch pool.
		if err := tx.Model(&models.DriverPresence{}).
			Where("driver_id = ?", driverID).
			Update("is_available", true).Error; err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.Settlements.WithLabelValues(method).Inc()
	observability.SettlementAmount.Observe(finalPrice)
	for _, e := range entries {
		observability.LedgerEntries.WithLabelValues(e.Category).Inc()
		s.feed.PublishEntry(e)
	}
	s.log.Info("ride settled",
		"ride_id", ride.ID,
		"driver_id", driverID,
		"final_price", finalPrice,
		"method", method,
	)

	s.notify.ToRide(ride.ID, ride.PassengerID, ride.DriverID, "ride_completed", map[string]any{
		"rideId":     ride.ID,
		"finalPrice": finalPrice,
		"method":     method,
		"status":     ride.Status,
	})
	return &Result{Ride: &ride, Entries: entries}, nil
}

// moveFunds debits the passenger and credits the driver inside the
// caller's transaction. Account rows are locked in user-id order so two
// settlements touching the same pair cannot deadlock.
func (s *Settlement) moveFunds(tx *gorm.DB, ride *models.Ride, finalPrice float64, driverID uint) ([]models.LedgerEntry, error) {
	amount := decimal.NewFromFloat(finalPrice)

	first, second := ride.PassengerID, driverID
	if driverID < ride.PassengerID {
		first, second = driverID, ride.PassengerID
	}
	a1, err := lockAccount(tx, first)
	if err != nil {
		return nil, err
	}
	a2, err := lockAccount(tx, second)
	if err != nil {
		return nil, err
	}
	passengerAcct, driverAcct := a1, a2
	if a1.UserID == driverID {
		passengerAcct, driverAcct = a2, a1
	}

	if passengerAcct.Status != models.AccountStatusActive {
		return nil, apperrors.Ef(apperrors.KindForbidden, "passenger account is %s", passengerAcct.Status)
	}
	if driverAcct.Status != models.AccountStatusActive {
		return nil, apperrors.Ef(apperrors.KindForbidden, "driver account is %s", driverAcct.Status)
	}

	overdraft := decimal.NewFromFloat(s.cfg.WalletOverdraft)
	if passengerAcct.Balance.Add(overdraft).LessThan(amount) {
		return nil, apperrors.E(apperrors.KindInsufficientFunds, "passenger balance cannot cover the fare, collect cash instead")
	}
	if passengerAcct.DailyLimit.IsPositive() &&
		passengerAcct.DailyLimitUsed.Add(amount).GreaterThan(passengerAcct.DailyLimit) {
		return nil, apperrors.E(apperrors.KindInsufficientFunds, "passenger daily spending limit exceeded, collect cash instead")
	}

	refID := newReferenceID()
	note := rideNote(ride.ID)

	passengerAcct.DailyLimitUsed = passengerAcct.DailyLimitUsed.Add(amount)
	debit, err := applyEntry(tx, passengerAcct, amount.Neg(), refID, models.LedgerCategorySettlement, note, nil)
	if err != nil {
		return nil, err
	}
	credit, err := applyEntry(tx, driverAcct, amount, refID, models.LedgerCategorySettlement, note, nil)
	if err != nil {
		return nil, err
	}
	return []models.LedgerEntry{debit, credit}, nil
}

// nudgeDriverRating bumps the driver's aggregate rating by a small fixed
// increment, bounded at the configured maximum.
func (s *Settlement) nudgeDriverRating(tx *gorm.DB, driverID uint) error {
	var driver models.User
	if err := tx.First(&driver, driverID).Error; err != nil {
		return storeErr(err, "driver not found")
	}
	driver.Rating = math.Min(driver.Rating+s.cfg.RatingIncrement, s.cfg.MaxRating)
	if err := tx.Save(&driver).Error; err != nil {
		return unavailable(err)
	}
	return nil
}

func rideNote(rideID uint) string {
	return fmt.Sprintf("settlement of ride %d", rideID)
}
