package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Fare constants in display units.
const (
	DefaultBaseFare  = 25
	DefaultPerKmRate = 15
)

// BaseUnitDecimals is the fixed scaling between the display unit and the chain's smallest unit.
const BaseUnitDecimals = 18

// FareSchedule holds the pricing used to compute a ride's fare.
type FareSchedule struct {
	BaseFare  decimal.Decimal
	PerKmRate decimal.Decimal
}

// DefaultFareSchedule returns base fare 25 plus 15 per kilometre.
func DefaultFareSchedule() FareSchedule {
	return FareSchedule{
		BaseFare:  decimal.NewFromInt(DefaultBaseFare),
		PerKmRate: decimal.NewFromInt(DefaultPerKmRate),
	}
}

// Fare computes BaseFare + distanceKm * PerKmRate without rounding.
func (s FareSchedule) Fare(distanceKm decimal.Decimal) decimal.Decimal {
	return s.BaseFare.Add(distanceKm.Mul(s.PerKmRate))
}

// ToBaseUnits converts a display amount into the chain's smallest unit.
// Amounts that would need rounding are rejected.
func ToBaseUnits(amount decimal.Decimal) (*big.Int, error) {
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	scaled := amount.Shift(BaseUnitDecimals)
	if !scaled.IsInteger() {
		return nil, ErrInvalidAmount
	}
	return scaled.BigInt(), nil
}

// FromBaseUnits converts an amount in the chain's smallest unit into display units.
func FromBaseUnits(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -BaseUnitDecimals)
}
