package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the controller, gateway or session
// matches exactly one of these with errors.Is.
var (
	// ErrValidation is returned for bad caller input. No chain call is attempted.
	ErrValidation = errors.New("validation error")

	// ErrConflict is returned when the current state rules out the operation.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition is returned when a status change is not in AllowedTransitions.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrGatewayUnavailable is returned when no wallet or provider is configured.
	ErrGatewayUnavailable = errors.New("gateway unavailable")

	// ErrChain is returned when the wallet rejects a transaction or it reverts.
	ErrChain = errors.New("chain error")

	// ErrEventNotFound is returned when a confirmed receipt lacks the expected event.
	ErrEventNotFound = errors.New("event not found")
)

var (
	// ErrEmptyPickup is returned when the pickup location is blank.
	ErrEmptyPickup = fmt.Errorf("%w: pickup location is required", ErrValidation)

	// ErrEmptyDrop is returned when the drop location is blank.
	ErrEmptyDrop = fmt.Errorf("%w: drop location is required", ErrValidation)

	// ErrInvalidDistance is returned when the distance is not strictly positive.
	ErrInvalidDistance = fmt.Errorf("%w: distance must be greater than zero", ErrValidation)

	// ErrFractionalDistance is returned when a distance cannot be sent as whole kilometres.
	ErrFractionalDistance = fmt.Errorf("%w: on-chain distance must be a whole number of kilometres", ErrValidation)

	// ErrInvalidRating is returned when a rating is outside 1-5.
	ErrInvalidRating = fmt.Errorf("%w: rating must be between %d and %d", ErrValidation, MinRating, MaxRating)

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = fmt.Errorf("%w: driver id is required", ErrValidation)

	// ErrInvalidAmount is returned when an amount cannot be expressed exactly in base units.
	ErrInvalidAmount = fmt.Errorf("%w: amount has more precision than the chain supports", ErrValidation)

	// ErrInvalidRideID is returned when an on-chain ride id is missing or malformed.
	ErrInvalidRideID = fmt.Errorf("%w: invalid ride id", ErrValidation)

	// ErrRideInFlight is returned when a ride is requested while another is not terminal.
	ErrRideInFlight = fmt.Errorf("%w: a ride is already in progress", ErrConflict)

	// ErrNoCurrentRide is returned when a transition is requested with no current ride.
	ErrNoCurrentRide = fmt.Errorf("%w: no current ride", ErrConflict)

	// ErrRideMismatch is returned when a confirmation targets a ride that is no longer current.
	ErrRideMismatch = fmt.Errorf("%w: ride is not the current ride", ErrConflict)

	// ErrNothingToRate is returned when the newest history entry is missing or not completed.
	ErrNothingToRate = fmt.Errorf("%w: no completed ride to rate", ErrConflict)

	// ErrNoCompletedRide is returned when history holds no completed ride.
	ErrNoCompletedRide = fmt.Errorf("%w: no completed ride", ErrConflict)

	// ErrAlreadyRated is returned when the newest completed ride already has a rating.
	ErrAlreadyRated = fmt.Errorf("%w: ride already rated", ErrConflict)

	// ErrConfirmationPending is returned when the ride request has not been confirmed yet.
	ErrConfirmationPending = fmt.Errorf("%w: ride request confirmation is pending", ErrConflict)

	// ErrWalletBusy is returned when another instance holds the wallet's request lock.
	ErrWalletBusy = fmt.Errorf("%w: wallet has an unconfirmed ride request", ErrConflict)

	// ErrNoWallet is returned when no wallet capability is present.
	ErrNoWallet = fmt.Errorf("%w: no wallet provider configured", ErrGatewayUnavailable)

	// ErrNoAccounts is returned when the wallet exposes no account.
	ErrNoAccounts = fmt.Errorf("%w: wallet exposes no accounts", ErrGatewayUnavailable)
)

// InvalidTransitionError describes a rejected status change.
type InvalidTransitionError struct {
	From RideStatus
	To   RideStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ChainError carries the provider's message for a rejected or reverted transaction.
type ChainError struct {
	Op      string
	Message string
	Err     error
}

func (e *ChainError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("chain error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("chain error: %s: %s", e.Op, e.Message)
}

// Is matches ErrChain.
func (e *ChainError) Is(target error) bool {
	return target == ErrChain
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// EventNotFoundError reports that a confirmed transaction did not emit the expected event.
// The transaction succeeded; funds have moved.
type EventNotFoundError struct {
	Event  string
	TxHash string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("event %s not found in receipt of %s", e.Event, e.TxHash)
}

// Is matches ErrEventNotFound.
func (e *EventNotFoundError) Is(target error) bool {
	return target == ErrEventNotFound
}
