package service

import (
	"fmt"

	"autoride/internal/domain"
)

var (
	// ErrSessionClosed is returned once Close has been called on a Session.
	ErrSessionClosed = fmt.Errorf("%w: session closed", domain.ErrGatewayUnavailable)

	// ErrRequestAbandoned is returned by AwaitConfirmation when the ride was
	// cancelled before its request transaction was confirmed.
	ErrRequestAbandoned = fmt.Errorf("%w: ride request confirmation abandoned", domain.ErrConflict)

	// ErrNoPendingRequest is returned when AwaitConfirmation is asked about an unknown ride.
	ErrNoPendingRequest = fmt.Errorf("%w: no ride request awaiting confirmation", domain.ErrConflict)
)
