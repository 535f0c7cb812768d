package tests

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"autoride/internal/domain"
	"autoride/internal/service"
)

func newController() (*service.RideLifecycleController, *MockHistoryRepository, *MockEventPublisher) {
	history := NewMockHistoryRepository()
	events := NewMockEventPublisher()
	return service.NewRideLifecycleController(history, events, nil), history, events
}

// driveToInProgress requests, accepts and starts a ride.
func driveToInProgress(t *testing.T, c *service.RideLifecycleController) *domain.Ride {
	t.Helper()
	ctx := context.Background()

	ride, err := c.RequestRide(ctx, rideInput("5"))
	if err != nil {
		t.Fatalf("RequestRide: %v", err)
	}
	if _, err := c.ConfirmAcceptance(ctx, "driver-1"); err != nil {
		t.Fatalf("ConfirmAcceptance: %v", err)
	}
	if _, err := c.StartTrip(ctx); err != nil {
		t.Fatalf("StartTrip: %v", err)
	}
	return ride
}

func TestRequestRide_ComputesExactFare(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()

	ride, err := c.RequestRide(context.Background(), rideInput("5.2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !ride.Fare.Equal(decimal.NewFromInt(103)) {
		t.Errorf("expected fare 103, got %s", ride.Fare)
	}
	if ride.Status != domain.RideStatusRequested {
		t.Errorf("expected REQUESTED, got %s", ride.Status)
	}
	if ride.ID == "" {
		t.Error("expected ride id")
	}
	if ride.RequestedAt.IsZero() {
		t.Error("expected RequestedAt to be set")
	}
}

func TestRequestRide_Validation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input service.RequestRideInput
		want  error
	}{
		{"empty pickup", service.RequestRideInput{Pickup: "", Drop: "B", DistanceKm: decimal.NewFromInt(1)}, domain.ErrEmptyPickup},
		{"blank pickup", service.RequestRideInput{Pickup: "   ", Drop: "B", DistanceKm: decimal.NewFromInt(1)}, domain.ErrEmptyPickup},
		{"empty drop", service.RequestRideInput{Pickup: "A", Drop: "", DistanceKm: decimal.NewFromInt(1)}, domain.ErrEmptyDrop},
		{"zero distance", service.RequestRideInput{Pickup: "A", Drop: "B", DistanceKm: decimal.Zero}, domain.ErrInvalidDistance},
		{"negative distance", service.RequestRideInput{Pickup: "A", Drop: "B", DistanceKm: decimal.NewFromInt(-2)}, domain.ErrInvalidDistance},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, _, events := newController()

			_, err := c.RequestRide(context.Background(), tc.input)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation category, got %v", err)
			}
			if c.Current() != nil {
				t.Error("expected no current ride")
			}
			if len(events.Events()) != 0 {
				t.Errorf("expected no events, got %d", len(events.Events()))
			}
		})
	}
}

func TestRequestRide_SecondRequestConflicts(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	ctx := context.Background()

	first, err := c.RequestRide(ctx, rideInput("2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.RequestRide(ctx, rideInput("3"))
	if !errors.Is(err, domain.ErrRideInFlight) {
		t.Errorf("expected ErrRideInFlight, got %v", err)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict category, got %v", err)
	}
	if current := c.Current(); current == nil || current.ID != first.ID {
		t.Error("expected first ride to remain current")
	}
}

func TestRequestRide_AllowedAfterCancel(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	ctx := context.Background()

	if _, err := c.RequestRide(ctx, rideInput("2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.CancelTrip(ctx, "changed my mind"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.RequestRide(ctx, rideInput("3")); err != nil {
		t.Errorf("expected new request after cancel, got %v", err)
	}
}

func TestStartTrip_BeforeAcceptanceFails(t *testing.T) {
	t.Parallel()

	c, _, events := newController()
	ctx := context.Background()

	if _, err := c.RequestRide(ctx, rideInput("2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := c.StartTrip(ctx)

	var transitionErr *domain.InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if transitionErr.From != domain.RideStatusRequested || transitionErr.To != domain.RideStatusInProgress {
		t.Errorf("unexpected transition %s -> %s", transitionErr.From, transitionErr.To)
	}
	if c.Current().Status != domain.RideStatusRequested {
		t.Errorf("expected status unchanged, got %s", c.Current().Status)
	}
	if len(events.Events()) != 1 {
		t.Errorf("expected only the request event, got %d", len(events.Events()))
	}
}

func TestCompleteTrip_FromAcceptedFails(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	ctx := context.Background()

	_, _ = c.RequestRide(ctx, rideInput("2"))
	_, _ = c.ConfirmAcceptance(ctx, "driver-1")

	_, err := c.CompleteTrip(ctx, "0xabc")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
}

func TestCancelTrip_InProgressFails(t *testing.T) {
	t.Parallel()

	c, history, _ := newController()
	driveToInProgress(t, c)

	_, err := c.CancelTrip(context.Background(), "too slow")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
	if c.Current().Status != domain.RideStatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", c.Current().Status)
	}
	if history.AppendCallCount != 0 {
		t.Errorf("expected nothing archived, got %d", history.AppendCallCount)
	}
}

func TestConfirmAcceptance_RequiresDriver(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	_, _ = c.RequestRide(context.Background(), rideInput("2"))

	_, err := c.ConfirmAcceptance(context.Background(), " ")
	if !errors.Is(err, domain.ErrInvalidDriverID) {
		t.Errorf("expected ErrInvalidDriverID, got %v", err)
	}
}

func TestTransitions_NoCurrentRide(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	ctx := context.Background()

	if _, err := c.ConfirmAcceptance(ctx, "d"); !errors.Is(err, domain.ErrNoCurrentRide) {
		t.Errorf("ConfirmAcceptance: expected ErrNoCurrentRide, got %v", err)
	}
	if _, err := c.StartTrip(ctx); !errors.Is(err, domain.ErrNoCurrentRide) {
		t.Errorf("StartTrip: expected ErrNoCurrentRide, got %v", err)
	}
	if _, err := c.CompleteTrip(ctx, ""); !errors.Is(err, domain.ErrNoCurrentRide) {
		t.Errorf("CompleteTrip: expected ErrNoCurrentRide, got %v", err)
	}
	if _, err := c.CancelTrip(ctx, ""); !errors.Is(err, domain.ErrNoCurrentRide) {
		t.Errorf("CancelTrip: expected ErrNoCurrentRide, got %v", err)
	}
}

func TestFullLifecycle_ArchivesAndEmitsInOrder(t *testing.T) {
	t.Parallel()

	c, _, events := newController()
	ctx := context.Background()
	ride := driveToInProgress(t, c)

	completed, err := c.CompleteTrip(ctx, "0xfeed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completed.TxHash != "0xfeed" {
		t.Errorf("expected tx hash 0xfeed, got %s", completed.TxHash)
	}
	if c.Current() != nil {
		t.Error("expected no current ride after completion")
	}

	history, err := c.History(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 || history[0].ID != ride.ID {
		t.Fatalf("expected ride archived, got %v", history)
	}
	if history[0].DriverID != "driver-1" {
		t.Errorf("expected driver-1, got %s", history[0].DriverID)
	}

	want := []struct{ from, to domain.RideStatus }{
		{"", domain.RideStatusRequested},
		{domain.RideStatusRequested, domain.RideStatusAccepted},
		{domain.RideStatusAccepted, domain.RideStatusInProgress},
		{domain.RideStatusInProgress, domain.RideStatusCompleted},
	}
	got := events.Events()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].PreviousState != w.from || got[i].NewState != w.to {
			t.Errorf("event %d: expected %s -> %s, got %s -> %s", i, w.from, w.to, got[i].PreviousState, got[i].NewState)
		}
		if got[i].RideID != ride.ID {
			t.Errorf("event %d: expected ride %s, got %s", i, ride.ID, got[i].RideID)
		}
	}
}

func TestFareImmutableAcrossTransitions(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	ctx := context.Background()
	ride := driveToInProgress(t, c)

	completed, err := c.CompleteTrip(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !completed.Fare.Equal(ride.Fare) {
		t.Errorf("expected fare %s, got %s", ride.Fare, completed.Fare)
	}
}

func TestArchiveFailure_LeavesRideCurrent(t *testing.T) {
	t.Parallel()

	c, history, events := newController()
	driveToInProgress(t, c)
	history.AppendError = errBoom

	_, err := c.CompleteTrip(context.Background(), "0x1")
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected archive error, got %v", err)
	}
	if current := c.Current(); current == nil || current.Status != domain.RideStatusInProgress {
		t.Error("expected ride to stay IN_PROGRESS")
	}
	if len(events.Events()) != 3 {
		t.Errorf("expected no completion event, got %d events", len(events.Events()))
	}
}

func TestRate_OnlyOnceAndInRange(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	ctx := context.Background()
	driveToInProgress(t, c)
	if _, err := c.CompleteTrip(ctx, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, rating := range []int{0, 6} {
		if _, err := c.Rate(ctx, rating, ""); !errors.Is(err, domain.ErrInvalidRating) {
			t.Errorf("rating %d: expected ErrInvalidRating, got %v", rating, err)
		}
	}

	rated, err := c.Rate(ctx, 4, "0xr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rated.Rating != 4 || rated.RatingTxHash != "0xr" {
		t.Errorf("unexpected rated ride %+v", rated)
	}

	if _, err := c.Rate(ctx, 5, ""); !errors.Is(err, domain.ErrAlreadyRated) {
		t.Errorf("expected ErrAlreadyRated, got %v", err)
	}

	history, _ := c.History(ctx)
	if history[0].Rating != 4 {
		t.Errorf("expected stored rating 4, got %d", history[0].Rating)
	}
}

func TestRate_RequiresCompletedLatest(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	ctx := context.Background()

	if _, err := c.Rate(ctx, 5, ""); !errors.Is(err, domain.ErrNothingToRate) {
		t.Errorf("empty history: expected ErrNothingToRate, got %v", err)
	}

	_, _ = c.RequestRide(ctx, rideInput("1"))
	_, _ = c.CancelTrip(ctx, "")

	if _, err := c.Rate(ctx, 5, ""); !errors.Is(err, domain.ErrNothingToRate) {
		t.Errorf("cancelled latest: expected ErrNothingToRate, got %v", err)
	}
}

func TestRecordRequestConfirmation_KeepsStatus(t *testing.T) {
	t.Parallel()

	c, _, events := newController()
	ctx := context.Background()
	ride, _ := c.RequestRide(ctx, rideInput("3"))

	if err := c.RecordRequestConfirmation(ctx, "other", "9", "0x1", nil); !errors.Is(err, domain.ErrRideMismatch) {
		t.Errorf("expected ErrRideMismatch, got %v", err)
	}

	if err := c.RecordRequestConfirmation(ctx, ride.ID, "9", "0x1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current := c.Current()
	if current.ChainRideID != "9" || current.TxHash != "0x1" || current.RequestTxHash != "0x1" {
		t.Errorf("unexpected bookkeeping %+v", current)
	}
	if current.Status != domain.RideStatusRequested {
		t.Errorf("expected REQUESTED, got %s", current.Status)
	}
	if len(events.Events()) != 1 {
		t.Errorf("expected no extra event, got %d", len(events.Events()))
	}
}

func TestCurrent_ReturnsCopy(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	_, _ = c.RequestRide(context.Background(), rideInput("3"))

	copy := c.Current()
	copy.Status = domain.RideStatusCompleted

	if c.Current().Status != domain.RideStatusRequested {
		t.Error("expected controller state to be unaffected by caller mutation")
	}
}

func TestEventTimestampsMatchTransitionTimes(t *testing.T) {
	t.Parallel()

	c, _, events := newController()
	ctx := context.Background()

	requested, _ := c.RequestRide(ctx, rideInput("5"))
	accepted, _ := c.ConfirmAcceptance(ctx, "driver-1")
	started, _ := c.StartTrip(ctx)
	completed, err := c.CompleteTrip(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct {
		state domain.RideStatus
		at    time.Time
	}{
		{domain.RideStatusRequested, requested.RequestedAt},
		{domain.RideStatusAccepted, accepted.AcceptedAt},
		{domain.RideStatusInProgress, started.StartedAt},
		{domain.RideStatusCompleted, completed.CompletedAt},
	}

	got := events.Events()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].NewState != w.state || !got[i].Timestamp.Equal(w.at) {
			t.Errorf("event %d: expected %s at %v, got %s at %v", i, w.state, w.at, got[i].NewState, got[i].Timestamp)
		}
	}
}

func TestCancelRide_OnlyCancelsNamedRide(t *testing.T) {
	t.Parallel()

	c, history, _ := newController()
	ctx := context.Background()

	ride, _ := c.RequestRide(ctx, rideInput("5"))

	if _, err := c.CancelRide(ctx, "other-ride", "stale"); !errors.Is(err, domain.ErrRideMismatch) {
		t.Errorf("expected ErrRideMismatch, got %v", err)
	}
	if current := c.Current(); current == nil || current.Status != domain.RideStatusRequested {
		t.Fatalf("expected ride to stay REQUESTED, got %+v", current)
	}

	cancelled, err := c.CancelRide(ctx, ride.ID, "rider left")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.RideStatusCancelled || atomic.LoadInt32(&history.AppendCallCount) != 1 {
		t.Errorf("expected archived cancelled ride, got %+v", cancelled)
	}

	if _, err := c.CancelRide(ctx, ride.ID, "again"); !errors.Is(err, domain.ErrNoCurrentRide) {
		t.Errorf("expected ErrNoCurrentRide, got %v", err)
	}
}

func TestAcceptPaidRequest_RequiresConfirmedRequest(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	ctx := context.Background()

	ride, _ := c.RequestRide(ctx, rideInput("5"))

	if _, err := c.AcceptPaidRequest(ctx, "driver-1"); !errors.Is(err, domain.ErrConfirmationPending) {
		t.Errorf("expected ErrConfirmationPending, got %v", err)
	}
	if err := c.RecordRequestConfirmation(ctx, ride.ID, "1", "0xabc", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	accepted, err := c.AcceptPaidRequest(ctx, "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.Status != domain.RideStatusAccepted || accepted.DriverID != "driver-1" {
		t.Errorf("unexpected accepted ride %+v", accepted)
	}
}
