package models

import (
	"time"

	"gorm.io/gorm"
)

// Ride tracks a passenger-to-destination transport transaction through its
// status lifecycle. DriverID stays null only while the ride is searching.
type Ride struct {
	gorm.Model
	PassengerID uint    `json:"passengerId" gorm:"not null;index"`
	DriverID    *uint   `json:"driverId,omitempty" gorm:"null;index"`
	PickupLat   float64 `json:"pickupLat" gorm:"not null"`
	PickupLng   float64 `json:"pickupLng" gorm:"not null"`
	PickupAddr  string  `json:"pickupAddress" gorm:"not null"`
	DestLat     float64 `json:"destLat" gorm:"not null"`
	DestLng     float64 `json:"destLng" gorm:"not null"`
	DestAddr    string  `json:"destAddress" gorm:"not null"`
	Distance    float64 `json:"distance,omitempty"` // in kilometers

	RequestedPrice float64  `json:"requestedPrice" gorm:"not null"`
	CommittedPrice *float64 `json:"committedPrice,omitempty"` // set by an accepted proposal
	FinalPrice     *float64 `json:"finalPrice,omitempty"`     // set at settlement

	Status        string `json:"status" gorm:"not null;default:'searching';index"`
	PaymentMethod string `json:"paymentMethod" gorm:"not null;default:'cash'"`
	PaymentStatus string `json:"paymentStatus" gorm:"not null;default:'unpaid'"`
	CancelReason  string `json:"cancelReason,omitempty"`

	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	ArrivedAt   *time.Time `json:"arrivedAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	Proposals []NegotiationProposal `json:"proposals,omitempty" gorm:"foreignKey:RideID"`
	Passenger *User                 `json:"passenger,omitempty" gorm:"foreignKey:PassengerID"`
	Driver    *User                 `json:"driver,omitempty" gorm:"foreignKey:DriverID"`
}

// TableName specifies the table name
func (Ride) TableName() string {
	return "rides"
}

// SettlementPrice is the price in effect going into settlement: the
// committed price when a proposal was accepted, otherwise the requested one.
func (r *Ride) SettlementPrice() float64 {
	if r.CommittedPrice != nil {
		return *r.CommittedPrice
	}
	return r.RequestedPrice
}

// IsTerminal reports whether the ride can no longer be mutated.
func (r *Ride) IsTerminal() bool {
	return r.Status == RideStatusCompleted || r.Status == RideStatusCancelled
}

// NegotiationProposal is one entry in a ride's append-only negotiation
// history. At most one proposal per ride may be pending at a time.
type NegotiationProposal struct {
	gorm.Model
	RideID        uint       `json:"rideId" gorm:"not null;index"`
	DriverID      uint       `json:"driverId" gorm:"not null"`
	ProposedPrice float64    `json:"proposedPrice" gorm:"not null"`
	Reason        string     `json:"reason"`
	Status        string     `json:"status" gorm:"not null;default:'pending'"` // pending, accepted, rejected
	ResponseNote  string     `json:"responseNote,omitempty"`
	RespondedAt   *time.Time `json:"respondedAt,omitempty"`
}

// TableName specifies the table name
func (NegotiationProposal) TableName() string {
	return "negotiation_proposals"
}

// RideStatus constants
const (
	RideStatusSearching = "searching"
	RideStatusAccepted  = "accepted"
	RideStatusArrived   = "arrived"
	RideStatusStarted   = "started"
	RideStatusCompleted = "completed"
	RideStatusCancelled = "cancelled"
)

// ActiveRideStatuses are the non-terminal statuses that block a passenger
// from opening another ride.
var ActiveRideStatuses = []string{
	RideStatusSearching,
	RideStatusAccepted,
	RideStatusArrived,
	RideStatusStarted,
}

// BusyDriverStatuses are the statuses that count a driver as already
// holding a ride.
var BusyDriverStatuses = []string{
	RideStatusAccepted,
	RideStatusArrived,
	RideStatusStarted,
}

// PaymentMethod constants
const (
	PaymentMethodCash   = "cash"
	PaymentMethodWallet = "wallet"
)

// PaymentStatus constants
const (
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusPaid              = "paid"
	PaymentStatusPendingCollection = "pending_collection"
)

// ProposalStatus constants
const (
	ProposalStatusPending  = "pending"
	ProposalStatusAccepted = "accepted"
	ProposalStatusRejected = "rejected"
)
