package domain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFare_DefaultSchedule(t *testing.T) {
	t.Parallel()

	schedule := DefaultFareSchedule()

	testCases := []struct {
		distance string
		want     string
	}{
		{"5.2", "103"},
		{"1", "40"},
		{"0.1", "26.5"},
		{"12.75", "216.25"},
		{"100", "1525"},
	}

	for _, tc := range testCases {
		t.Run(tc.distance, func(t *testing.T) {
			got := schedule.Fare(decimal.RequireFromString(tc.distance))
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("expected fare %s for %s km, got %s", tc.want, tc.distance, got)
			}
		})
	}
}

func TestFare_NoDriftAcrossRepeatedComputation(t *testing.T) {
	t.Parallel()

	schedule := DefaultFareSchedule()
	distance := decimal.RequireFromString("5.2")
	first := schedule.Fare(distance)

	for i := 0; i < 1000; i++ {
		if got := schedule.Fare(distance); !got.Equal(first) {
			t.Fatalf("fare drifted on iteration %d: %s != %s", i, got, first)
		}
	}

	if first.String() != "103" {
		t.Errorf("expected 103, got %s", first.String())
	}
}

func TestToBaseUnits_ExactConversion(t *testing.T) {
	t.Parallel()

	wei, err := ToBaseUnits(decimal.RequireFromString("103"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want, _ := new(big.Int).SetString("103000000000000000000", 10)
	if wei.Cmp(want) != 0 {
		t.Errorf("expected %s, got %s", want, wei)
	}

	wei, err = ToBaseUnits(decimal.RequireFromString("0.000000000000000001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wei.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("expected 1 wei, got %s", wei)
	}
}

func TestToBaseUnits_RejectsExcessPrecision(t *testing.T) {
	t.Parallel()

	_, err := ToBaseUnits(decimal.RequireFromString("0.0000000000000000001"))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	_, err = ToBaseUnits(decimal.NewFromInt(-1))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative amount, got %v", err)
	}
}

func TestFromBaseUnits_RoundTrip(t *testing.T) {
	t.Parallel()

	amount := decimal.RequireFromString("26.5")
	wei, err := ToBaseUnits(amount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if back := FromBaseUnits(wei); !back.Equal(amount) {
		t.Errorf("expected %s after round trip, got %s", amount, back)
	}

	if !FromBaseUnits(nil).IsZero() {
		t.Error("expected nil amount to convert to zero")
	}
}
