package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"autoride/internal/domain"
)

// ReceiptService handles receipt generation.
type ReceiptService struct {
	fares domain.FareSchedule
	now   func() time.Time
}

// NewReceiptService creates a new ReceiptService.
func NewReceiptService(fares domain.FareSchedule) *ReceiptService {
	return &ReceiptService{
		fares: fares,
		now:   time.Now,
	}
}

// GenerateReceipt generates a receipt for a completed ride.
func (s *ReceiptService) GenerateReceipt(ride *domain.Ride) (*domain.Receipt, error) {
	if ride == nil || ride.Status != domain.RideStatusCompleted {
		return nil, domain.ErrNoCompletedRide
	}

	paymentStatus := domain.PaymentStatusUnconfirmed
	if ride.RequestTxHash != "" {
		paymentStatus = domain.PaymentStatusPaid
	}

	var completeTxHash string
	if ride.TxHash != ride.RequestTxHash {
		completeTxHash = ride.TxHash
	}

	var duration time.Duration
	if !ride.StartedAt.IsZero() && ride.CompletedAt.After(ride.StartedAt) {
		duration = ride.CompletedAt.Sub(ride.StartedAt)
	}

	return &domain.Receipt{
		ID:             uuid.New().String(),
		RideID:         ride.ID,
		ChainRideID:    ride.ChainRideID,
		Pickup:         ride.Pickup,
		Drop:           ride.Drop,
		DistanceKm:     ride.DistanceKm,
		BaseFare:       s.fares.BaseFare,
		DistanceCharge: ride.DistanceKm.Mul(s.fares.PerKmRate),
		TotalFare:      ride.Fare,
		FareWei:        ride.FareWei,
		PaymentStatus:  paymentStatus,
		RequestTxHash:  ride.RequestTxHash,
		CompleteTxHash: completeTxHash,
		DriverID:       ride.DriverID,
		Rating:         ride.Rating,
		Duration:       duration,
		StartedAt:      ride.StartedAt,
		EndedAt:        ride.CompletedAt,
		CreatedAt:      s.now(),
	}, nil
}

// FormatReceipt formats the receipt as plain text.
func (s *ReceiptService) FormatReceipt(receipt *domain.Receipt) string {
	chainID := receipt.ChainRideID
	if chainID == "" {
		chainID = "-"
	}
	rating := "not rated"
	if receipt.Rating > 0 {
		rating = fmt.Sprintf("%d/5", receipt.Rating)
	}

	return `
=====================================
        AUTORIDE RECEIPT
=====================================
Receipt ID: ` + receipt.ID + `
Ride ID:    ` + receipt.RideID + `
Chain ID:   ` + chainID + `
Date:       ` + receipt.CreatedAt.Format("Jan 02, 2006 3:04 PM") + `

TRIP DETAILS
-------------------------------------
Pickup:   ` + receipt.Pickup + `
Drop:     ` + receipt.Drop + `
Duration: ` + formatDuration(receipt.Duration) + `
Distance: ` + receipt.DistanceKm.String() + ` km
Driver:   ` + receipt.DriverID + `
Rating:   ` + rating + `

FARE BREAKDOWN
-------------------------------------
Base Fare:       ` + receipt.BaseFare.String() + ` ETH
Distance Charge: ` + receipt.DistanceCharge.String() + ` ETH
-------------------------------------
TOTAL:           ` + receipt.TotalFare.String() + ` ETH

PAYMENT
-------------------------------------
Status:     ` + string(receipt.PaymentStatus) + `
Request Tx: ` + orDash(receipt.RequestTxHash) + `
Complete Tx: ` + orDash(receipt.CompleteTxHash) + `

=====================================
     Thank you for riding with us!
=====================================
`
}

func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	return fmt.Sprintf("%d min", minutes)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
