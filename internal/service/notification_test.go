package service

import (
	"context"
	"testing"

	"autoride/internal/domain"
)

func TestBuildNotification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state    domain.RideStatus
		expected NotificationType
	}{
		{domain.RideStatusRequested, NotificationRideRequested},
		{domain.RideStatusAccepted, NotificationDriverAssigned},
		{domain.RideStatusInProgress, NotificationTripStarted},
		{domain.RideStatusCompleted, NotificationTripEnded},
		{domain.RideStatusCancelled, NotificationRideCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			n, ok := BuildNotification(domain.LifecycleEvent{RideID: "ride-1", ChainRideID: "3", NewState: tt.state})
			if !ok {
				t.Fatal("expected a notification")
			}
			if n.Type != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, n.Type)
			}
			if n.Data["chain_ride_id"] != "3" {
				t.Errorf("expected chain ride id in data, got %v", n.Data["chain_ride_id"])
			}
		})
	}
}

func TestBuildNotification_UnknownState(t *testing.T) {
	t.Parallel()

	if _, ok := BuildNotification(domain.LifecycleEvent{NewState: "PAUSED"}); ok {
		t.Error("expected no notification for unknown state")
	}
}

func TestNotificationService_Handle(t *testing.T) {
	t.Parallel()

	svc := NewNotificationService(nil)
	if svc.Name() != "notifications" {
		t.Errorf("expected notifications, got %s", svc.Name())
	}
	if err := svc.Handle(context.Background(), domain.LifecycleEvent{RideID: "r", NewState: domain.RideStatusCompleted}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
