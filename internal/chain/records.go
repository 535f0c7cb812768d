package chain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"autoride/internal/domain"
)

// RideSubmission is the result of a confirmed requestRide transaction.
// RideID is empty when the receipt carried no RideRequested event.
type RideSubmission struct {
	TxHash string
	RideID string
	Fare   *big.Int
}

// RideRecord is a ride as stored by the contract.
type RideRecord struct {
	ID         string
	Passenger  string
	Driver     string
	Pickup     string
	Drop       string
	DistanceKm decimal.Decimal
	Fare       decimal.Decimal
	FareWei    *big.Int
	Status     domain.RideStatus
	Rating     int
	Timestamp  time.Time
}

// contractStatuses maps the contract's status enum index to a ride status.
var contractStatuses = []domain.RideStatus{
	domain.RideStatusRequested,
	domain.RideStatusAccepted,
	domain.RideStatusInProgress,
	domain.RideStatusCompleted,
	domain.RideStatusCancelled,
}

// RideStatusUnknown is reported for enum values the contract may add later.
const RideStatusUnknown domain.RideStatus = "UNKNOWN"

func statusFromIndex(index uint8) domain.RideStatus {
	if int(index) >= len(contractStatuses) {
		return RideStatusUnknown
	}
	return contractStatuses[index]
}

// rideDetails mirrors the outputs of getRideDetails.
type rideDetails struct {
	Passenger      common.Address
	Driver         common.Address
	PickupLocation string
	DropLocation   string
	Distance       *big.Int
	Fare           *big.Int
	Status         uint8
	Timestamp      *big.Int
	Rating         uint8
}

func (d rideDetails) toRecord(id *big.Int) RideRecord {
	rec := RideRecord{
		ID:        id.String(),
		Passenger: d.Passenger.Hex(),
		Pickup:    d.PickupLocation,
		Drop:      d.DropLocation,
		FareWei:   d.Fare,
		Fare:      domain.FromBaseUnits(d.Fare),
		Status:    statusFromIndex(d.Status),
		Rating:    int(d.Rating),
	}
	if d.Driver != (common.Address{}) {
		rec.Driver = d.Driver.Hex()
	}
	if d.Distance != nil {
		rec.DistanceKm = decimal.NewFromBigInt(d.Distance, 0)
	}
	if d.Timestamp != nil && d.Timestamp.Sign() > 0 {
		rec.Timestamp = time.Unix(d.Timestamp.Int64(), 0).UTC()
	}
	return rec
}
