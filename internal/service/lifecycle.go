package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"autoride/internal/domain"
	"autoride/internal/logger"
	"autoride/internal/repository"
)

// RequestRideInput contains the parameters for requesting a ride.
type RequestRideInput struct {
	Pickup     string
	Drop       string
	DistanceKm decimal.Decimal
}

// RideLifecycleController owns the current ride and moves it through its states.
// Terminal rides are handed to the history repository.
type RideLifecycleController struct {
	history repository.HistoryRepository
	events  EventPublisher
	fares   domain.FareSchedule
	log     *logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	current *domain.Ride
}

// NewRideLifecycleController creates a controller with the default fare schedule.
// events may be nil.
func NewRideLifecycleController(history repository.HistoryRepository, events EventPublisher, log *logger.Logger) *RideLifecycleController {
	if log == nil {
		log = logger.Discard()
	}
	return &RideLifecycleController{
		history: history,
		events:  events,
		fares:   domain.DefaultFareSchedule(),
		log:     log.WithField("component", "lifecycle"),
		now:     time.Now,
	}
}

// Fares returns the fare schedule used for new rides.
func (c *RideLifecycleController) Fares() domain.FareSchedule {
	return c.fares
}

// RequestRide creates the current ride in REQUESTED state.
func (c *RideLifecycleController) RequestRide(ctx context.Context, in RequestRideInput) (*domain.Ride, error) {
	pickup := strings.TrimSpace(in.Pickup)
	drop := strings.TrimSpace(in.Drop)
	if pickup == "" {
		return nil, domain.ErrEmptyPickup
	}
	if drop == "" {
		return nil, domain.ErrEmptyDrop
	}
	if !in.DistanceKm.IsPositive() {
		return nil, domain.ErrInvalidDistance
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && !c.current.Status.IsTerminal() {
		return nil, domain.ErrRideInFlight
	}

	ride := &domain.Ride{
		ID:          uuid.New().String(),
		Pickup:      pickup,
		Drop:        drop,
		DistanceKm:  in.DistanceKm,
		Fare:        c.fares.Fare(in.DistanceKm),
		Status:      domain.RideStatusRequested,
		RequestedAt: c.now(),
	}
	c.current = ride

	c.log.WithRideID(ride.ID).
		WithField("fare", ride.Fare.String()).
		Info("ride requested")
	c.publish(ride, "", ride.RequestedAt)

	return ride.Clone(), nil
}

// RecordRequestConfirmation attaches the confirmed request transaction to the
// current ride. The status does not change.
func (c *RideLifecycleController) RecordRequestConfirmation(ctx context.Context, rideID, chainRideID, txHash string, fareWei *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return domain.ErrNoCurrentRide
	}
	if c.current.ID != rideID {
		return domain.ErrRideMismatch
	}

	c.current.ChainRideID = chainRideID
	c.current.TxHash = txHash
	c.current.RequestTxHash = txHash
	if fareWei != nil {
		c.current.FareWei = new(big.Int).Set(fareWei)
	}

	c.log.WithRideID(rideID).
		WithTxHash(txHash).
		WithField("chain_ride_id", chainRideID).
		Info("ride request confirmed")
	return nil
}

// ConfirmAcceptance moves the current ride from REQUESTED to ACCEPTED.
func (c *RideLifecycleController) ConfirmAcceptance(ctx context.Context, driverID string) (*domain.Ride, error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return nil, domain.ErrInvalidDriverID
	}
	return c.transition(ctx, "", nil, domain.RideStatusAccepted, acceptBy(driverID))
}

// AcceptPaidRequest is ConfirmAcceptance for a ride whose request must be
// confirmed on chain first. A REQUESTED ride without a request transaction
// fails with ErrConfirmationPending.
func (c *RideLifecycleController) AcceptPaidRequest(ctx context.Context, driverID string) (*domain.Ride, error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return nil, domain.ErrInvalidDriverID
	}
	return c.transition(ctx, "", requirePaidRequest, domain.RideStatusAccepted, acceptBy(driverID))
}

func acceptBy(driverID string) func(*domain.Ride, time.Time) {
	return func(r *domain.Ride, at time.Time) {
		r.DriverID = driverID
		r.AcceptedAt = at
	}
}

func requirePaidRequest(r *domain.Ride) error {
	if r.AwaitingRequestConfirmation() {
		return domain.ErrConfirmationPending
	}
	return nil
}

// StartTrip moves the current ride from ACCEPTED to IN_PROGRESS.
func (c *RideLifecycleController) StartTrip(ctx context.Context) (*domain.Ride, error) {
	return c.transition(ctx, "", nil, domain.RideStatusInProgress, func(r *domain.Ride, at time.Time) {
		r.StartedAt = at
	})
}

// CompleteTrip moves the current ride from IN_PROGRESS to COMPLETED and archives it.
func (c *RideLifecycleController) CompleteTrip(ctx context.Context, txHash string) (*domain.Ride, error) {
	return c.CompleteRide(ctx, "", txHash)
}

// CompleteRide completes rideID, failing with ErrRideMismatch if another ride
// is current. An empty rideID completes whichever ride is current.
func (c *RideLifecycleController) CompleteRide(ctx context.Context, rideID, txHash string) (*domain.Ride, error) {
	return c.transition(ctx, rideID, nil, domain.RideStatusCompleted, func(r *domain.Ride, at time.Time) {
		if txHash != "" {
			r.TxHash = txHash
		}
		r.CompletedAt = at
	})
}

// CancelTrip cancels the current ride from REQUESTED or ACCEPTED and archives it.
func (c *RideLifecycleController) CancelTrip(ctx context.Context, reason string) (*domain.Ride, error) {
	return c.CancelRide(ctx, "", reason)
}

// CancelRide cancels rideID, failing with ErrRideMismatch if another ride is
// current. An empty rideID cancels whichever ride is current.
func (c *RideLifecycleController) CancelRide(ctx context.Context, rideID, reason string) (*domain.Ride, error) {
	return c.transition(ctx, rideID, nil, domain.RideStatusCancelled, func(r *domain.Ride, at time.Time) {
		r.CancelReason = strings.TrimSpace(reason)
		r.CancelledAt = at
	})
}

// Rate sets the rating of the newest history entry.
func (c *RideLifecycleController) Rate(ctx context.Context, rating int, txHash string) (*domain.Ride, error) {
	if !domain.IsValidRating(rating) {
		return nil, domain.ErrInvalidRating
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	latest, err := c.latestRateable(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.history.SetRating(ctx, latest.ID, rating, txHash); err != nil {
		return nil, err
	}

	latest.Rating = rating
	latest.RatingTxHash = txHash

	c.log.WithRideID(latest.ID).WithField("rating", rating).Info("ride rated")
	return latest, nil
}

// LatestRateable returns the newest history entry if it can still be rated.
func (c *RideLifecycleController) LatestRateable(ctx context.Context) (*domain.Ride, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latestRateable(ctx)
}

func (c *RideLifecycleController) latestRateable(ctx context.Context) (*domain.Ride, error) {
	latest, err := c.history.Latest(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNothingToRate
		}
		return nil, err
	}
	if latest.Status != domain.RideStatusCompleted {
		return nil, domain.ErrNothingToRate
	}
	if latest.IsRated() {
		return nil, domain.ErrAlreadyRated
	}
	return latest, nil
}

// Current returns a copy of the current ride, or nil.
func (c *RideLifecycleController) Current() *domain.Ride {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone()
}

// History returns archived rides, newest first.
func (c *RideLifecycleController) History(ctx context.Context) ([]*domain.Ride, error) {
	return c.history.List(ctx)
}

// LatestCompleted returns the newest completed ride in history.
func (c *RideLifecycleController) LatestCompleted(ctx context.Context) (*domain.Ride, error) {
	rides, err := c.history.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rides {
		if r.Status == domain.RideStatusCompleted {
			return r, nil
		}
	}
	return nil, domain.ErrNoCompletedRide
}

// transition applies a status change to the current ride. The change is made on a
// copy and only committed once a terminal ride has been archived. A non-empty
// rideID must name the current ride; check, when set, runs under the lock
// before the transition is validated.
func (c *RideLifecycleController) transition(ctx context.Context, rideID string, check func(*domain.Ride) error, to domain.RideStatus, apply func(*domain.Ride, time.Time)) (*domain.Ride, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil, domain.ErrNoCurrentRide
	}
	if rideID != "" && c.current.ID != rideID {
		return nil, domain.ErrRideMismatch
	}
	if check != nil {
		if err := check(c.current); err != nil {
			return nil, err
		}
	}

	from := c.current.Status
	if err := domain.ValidateTransition(from, to); err != nil {
		return nil, err
	}

	at := c.now()
	next := c.current.Clone()
	next.Status = to
	apply(next, at)

	if to.IsTerminal() {
		if err := c.history.Append(ctx, next); err != nil {
			return nil, err
		}
		c.current = nil
	} else {
		c.current = next
	}

	c.log.WithRideID(next.ID).
		WithField("from", from).
		WithField("to", to).
		Info("ride transitioned")
	c.publish(next, from, at)

	return next.Clone(), nil
}

func (c *RideLifecycleController) publish(ride *domain.Ride, previous domain.RideStatus, at time.Time) {
	if c.events == nil {
		return
	}
	c.events.Publish(domain.NewLifecycleEvent(ride, previous, at))
}
