package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested  RideStatus = "REQUESTED"
	RideStatusAccepted   RideStatus = "ACCEPTED"
	RideStatusInProgress RideStatus = "IN_PROGRESS"
	RideStatusCompleted  RideStatus = "COMPLETED"
	RideStatusCancelled  RideStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible from s.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Ride represents one request-to-completion trip.
type Ride struct {
	ID            string
	ChainRideID   string // on-chain ride index, empty until the RideRequested event is decoded
	Pickup        string
	Drop          string
	DistanceKm    decimal.Decimal
	Fare          decimal.Decimal // display units
	FareWei       *big.Int        // on-chain quote, nil until quoted
	Status        RideStatus
	DriverID      string
	Rating        int    // 0 = unrated
	TxHash        string // latest confirming transaction: request, then completion
	RequestTxHash string
	RatingTxHash  string
	CancelReason  string
	RequestedAt   time.Time
	AcceptedAt    time.Time
	StartedAt     time.Time
	CompletedAt   time.Time
	CancelledAt   time.Time
}

// Clone returns a deep copy so callers cannot mutate controller-owned state.
func (r *Ride) Clone() *Ride {
	if r == nil {
		return nil
	}
	c := *r
	if r.FareWei != nil {
		c.FareWei = new(big.Int).Set(r.FareWei)
	}
	return &c
}

// IsRated reports whether the ride already carries a rating.
func (r *Ride) IsRated() bool {
	return r.Rating != 0
}

// AwaitingRequestConfirmation reports whether the ride is still REQUESTED and
// its paid request has not been confirmed on chain.
func (r *Ride) AwaitingRequestConfirmation() bool {
	return r.Status == RideStatusRequested && r.RequestTxHash == ""
}

// IsValidRating reports whether rating is within the accepted 1-5 range.
func IsValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}
