package domain

import "time"

// LifecycleEvent is emitted after every successful status transition.
// PreviousState is empty for the event that creates the ride.
type LifecycleEvent struct {
	RideID        string
	ChainRideID   string
	PreviousState RideStatus
	NewState      RideStatus
	Timestamp     time.Time
}

// NewLifecycleEvent builds the event for a ride that just moved out of previous.
func NewLifecycleEvent(ride *Ride, previous RideStatus, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		RideID:        ride.ID,
		ChainRideID:   ride.ChainRideID,
		PreviousState: previous,
		NewState:      ride.Status,
		Timestamp:     at,
	}
}
