// Package engine holds the ride lifecycle core: dispatch, price
// negotiation, and ledger settlement. Every state-changing operation
// re-reads its row under the same lock it writes with, inside one
// transaction, so check-then-act sequences stay race-free under
// concurrent calls.
package engine

import (
	"errors"

	"gorm.io/gorm"

	"github.com/devitachiui22/aotravel-sub002/internal/apperrors"
	"github.com/devitachiui22/aotravel-sub002/internal/models"
)

// Actor is the verified identity behind a call, supplied by the auth
// middleware.
type Actor struct {
	ID   uint
	Role string
}

func (a Actor) IsAdmin() bool     { return a.Role == string(models.UserTypeAdmin) }
func (a Actor) IsDriver() bool    { return a.Role == string(models.UserTypeDriver) }
func (a Actor) IsPassenger() bool { return a.Role == string(models.UserTypePassenger) }

// Notifier fans events out to users and the driver pool. Publishing is
// fire-and-forget and must happen only after the transaction that
// produced the event has committed.
type Notifier interface {
	ToUser(userID uint, event string, data any)
	ToDriverPool(event string, data any)
	ToRide(rideID uint, passengerID uint, driverID *uint, event string, data any)
}

// EventFeed receives committed ledger entries.
type EventFeed interface {
	PublishEntry(entry models.LedgerEntry)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) ToUser(uint, string, any)              {}
func (NopNotifier) ToDriverPool(string, any)              {}
func (NopNotifier) ToRide(uint, uint, *uint, string, any) {}

// NopFeed discards all entries.
type NopFeed struct{}

func (NopFeed) PublishEntry(models.LedgerEntry) {}

// storeErr classifies a gorm error: record-not-found becomes NotFound,
// anything else is a storage fault the caller may retry.
func storeErr(err error, notFoundMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.E(apperrors.KindNotFound, notFoundMsg)
	}
	return apperrors.Wrap(apperrors.KindUnavailable, "storage failure", err)
}

// unavailable wraps a storage/connectivity fault.
func unavailable(err error) error {
	return apperrors.Wrap(apperrors.KindUnavailable, "storage failure", err)
}
