package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/devitachiui22/aotravel-sub002/internal/apperrors"
	"github.com/devitachiui22/aotravel-sub002/internal/config"
	"github.com/devitachiui22/aotravel-sub002/internal/database"
	"github.com/devitachiui22/aotravel-sub002/internal/models"
	"github.com/devitachiui22/aotravel-sub002/internal/observability"
)

// Negotiation manages the proposal/response exchange that can revise a
// ride's settlement price after acceptance. History is append-only and
// owned by the ride; at most one proposal is pending at a time.
type Negotiation struct {
	db     *gorm.DB
	notify Notifier
	log    *slog.Logger
	cfg    config.Config
}

func NewNegotiation(db *gorm.DB, notify Notifier, log *slog.Logger, cfg config.Config) *Negotiation {
	return &Negotiation{db: db, notify: notify, log: log, cfg: cfg}
}

// Propose opens a pending price proposal on behalf of the assigned driver.
func (n *Negotiation) Propose(ctx context.Context, driverID, rideID uint, price float64, reason string) (*models.NegotiationProposal, error) {
	if price < n.cfg.MinProposalPrice {
		return nil, apperrors.Ef(apperrors.KindValidation, "proposed price is below the minimum of %.0f", n.cfg.MinProposalPrice)
	}

	var ride models.Ride
	proposal := models.NegotiationProposal{
		RideID:        rideID,
		DriverID:      driverID,
		ProposedPrice: price,
		Reason:        reason,
		Status:        models.ProposalStatusPending,
	}

	err := n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BoundLockWait(tx, n.cfg.LockTimeout); err != nil {
			return unavailable(err)
		}
		if err := database.LockForUpdate(tx).First(&ride, rideID).Error; err != nil {
			return storeErr(err, "ride not found")
		}
		if ride.DriverID == nil || *ride.DriverID != driverID {
			return apperrors.E(apperrors.KindForbidden, "only the assigned driver can propose a price")
		}
		if ride.Status != models.RideStatusAccepted && ride.Status != models.RideStatusStarted {
			return apperrors.Ef(apperrors.KindInvalidState, "cannot negotiate while ride is %s", ride.Status)
		}

		var pending int64
		if err := tx.Model(&models.NegotiationProposal{}).
			Where("ride_id = ? AND status = ?", rideID, models.ProposalStatusPending).
			Count(&pending).Error; err != nil {
			return unavailable(err)
		}
		if pending > 0 {
			return apperrors.E(apperrors.KindConflict, "a proposal is already awaiting a response")
		}

		if err := tx.Create(&proposal).Error; err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.ProposalsOpened.Inc()
	n.log.Info("price proposed", "ride_id", rideID, "driver_id", driverID, "price", price)

	n.notify.ToUser(ride.PassengerID, "price_proposal", map[string]any{
		"rideId":        rideID,
		"proposalId":    proposal.ID,
		"proposedPrice": price,
		"reason":        reason,
	})
	return &proposal, nil
}

// Respond resolves the latest pending proposal. Accepting commits the
// proposed price as the ride's settlement price; rejecting leaves the
// committed price untouched. Concurrent responses serialize on the ride
// row so a proposal can never be resolved twice.
func (n *Negotiation) Respond(ctx context.Context, passengerID, rideID uint, accept bool, note string) (*models.NegotiationProposal, error) {
	var ride models.Ride
	var proposal models.NegotiationProposal

	err := n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.BoundLockWait(tx, n.cfg.LockTimeout); err != nil {
			return unavailable(err)
		}
		if err := database.LockForUpdate(tx).First(&ride, rideID).Error; err != nil {
			return storeErr(err, "ride not found")
		}
		if ride.PassengerID != passengerID {
			return apperrors.E(apperrors.KindForbidden, "only the ride's passenger can respond")
		}
		if ride.IsTerminal() {
			return apperrors.Ef(apperrors.KindInvalidState, "ride is already %s", ride.Status)
		}

		err := tx.Where("ride_id = ? AND status = ?", rideID, models.ProposalStatusPending).
			Order("id DESC").
			First(&proposal).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.E(apperrors.KindConflict, "no proposal is pending")
			}
			return unavailable(err)
		}

		now := time.Now()
		proposal.RespondedAt = &now
		proposal.ResponseNote = note
		if accept {
			proposal.Status = models.ProposalStatusAccepted
			committed := proposal.ProposedPrice
			ride.CommittedPrice = &committed
			if err := tx.Save(&ride).Error; err != nil {
				return unavailable(err)
			}
		} else {
			proposal.Status = models.ProposalStatusRejected
		}
		if err := tx.Save(&proposal).Error; err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.ProposalsResolved.WithLabelValues(proposal.Status).Inc()
	n.log.Info("proposal resolved",
		"ride_id", rideID,
		"proposal_id", proposal.ID,
		"outcome", proposal.Status,
	)

	if ride.DriverID != nil {
		n.notify.ToUser(*ride.DriverID, "price_proposal_response", map[string]any{
			"rideId":     rideID,
			"proposalId": proposal.ID,
			"accepted":   accept,
			"note":       note,
		})
	}
	return &proposal, nil
}

// History returns the ride's full negotiation record, oldest first.
// Repeated reads without intervening writes return identical sequences.
func (n *Negotiation) History(ctx context.Context, actor Actor, rideID uint) ([]models.NegotiationProposal, error) {
	var ride models.Ride
	if err := n.db.WithContext(ctx).First(&ride, rideID).Error; err != nil {
		return nil, storeErr(err, "ride not found")
	}

	participant := ride.PassengerID == actor.ID ||
		(ride.DriverID != nil && *ride.DriverID == actor.ID)
	if !participant && !actor.IsAdmin() {
		return nil, apperrors.E(apperrors.KindForbidden, "not a participant of this ride")
	}

	var proposals []models.NegotiationProposal
	if err := n.db.WithContext(ctx).
		Where("ride_id = ?", rideID).
		Order("id ASC").
		Find(&proposals).Error; err != nil {
		return nil, unavailable(err)
	}
	return proposals, nil
}
