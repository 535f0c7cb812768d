package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus describes how a ride's fare was settled.
type PaymentStatus string

const (
	PaymentStatusPaid        PaymentStatus = "PAID"        // request transaction confirmed on chain
	PaymentStatusUnconfirmed PaymentStatus = "UNCONFIRMED" // no confirming transaction recorded
)

// Receipt summarises a completed ride.
type Receipt struct {
	ID             string
	RideID         string
	ChainRideID    string
	Pickup         string
	Drop           string
	DistanceKm     decimal.Decimal
	BaseFare       decimal.Decimal
	DistanceCharge decimal.Decimal
	TotalFare      decimal.Decimal
	FareWei        *big.Int
	PaymentStatus  PaymentStatus
	RequestTxHash  string
	CompleteTxHash string
	DriverID       string
	Rating         int
	Duration       time.Duration
	StartedAt      time.Time
	EndedAt        time.Time
	CreatedAt      time.Time
}
