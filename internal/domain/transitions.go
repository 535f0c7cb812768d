package domain

// AllowedTransitions maps each status to the statuses it may move to.
// A ride must pass through IN_PROGRESS before it can be COMPLETED.
var AllowedTransitions = map[RideStatus][]RideStatus{
	RideStatusRequested: {
		RideStatusAccepted,
		RideStatusCancelled,
	},
	RideStatusAccepted: {
		RideStatusInProgress,
		RideStatusCancelled,
	},
	RideStatusInProgress: {
		RideStatusCompleted,
	},
	RideStatusCompleted: {}, // Terminal state
	RideStatusCancelled: {}, // Terminal state
}

// CanTransition checks if a transition from one status to another is allowed.
func CanTransition(from, to RideStatus) bool {
	allowed, exists := AllowedTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an *InvalidTransitionError if the transition is not allowed.
func ValidateTransition(from, to RideStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
