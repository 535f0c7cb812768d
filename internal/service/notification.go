package service

import (
	"context"
	"fmt"

	"autoride/internal/domain"
	"autoride/internal/logger"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationRideRequested  NotificationType = "RIDE_REQUESTED"
	NotificationDriverAssigned NotificationType = "DRIVER_ASSIGNED"
	NotificationTripStarted    NotificationType = "TRIP_STARTED"
	NotificationTripEnded      NotificationType = "TRIP_ENDED"
	NotificationRideCancelled  NotificationType = "RIDE_CANCELLED"
)

// Notification is the passenger-facing message for a lifecycle event.
type Notification struct {
	Type    NotificationType
	Title   string
	Message string
	Data    map[string]interface{}
}

// NotificationService turns lifecycle events into passenger notifications.
// Delivery is a structured log line; push channels are not wired.
type NotificationService struct {
	log *logger.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(log *logger.Logger) *NotificationService {
	if log == nil {
		log = logger.Discard()
	}
	return &NotificationService{log: log.WithField("component", "notifications")}
}

func (s *NotificationService) Name() string { return "notifications" }

// Handle builds and sends the notification for event.
func (s *NotificationService) Handle(ctx context.Context, event domain.LifecycleEvent) error {
	n, ok := BuildNotification(event)
	if !ok {
		return nil
	}
	return s.send(ctx, n)
}

// BuildNotification returns the notification for event, if the new state has one.
func BuildNotification(event domain.LifecycleEvent) (Notification, bool) {
	data := map[string]interface{}{
		"ride_id": event.RideID,
		"status":  event.NewState,
	}
	if event.ChainRideID != "" {
		data["chain_ride_id"] = event.ChainRideID
	}

	switch event.NewState {
	case domain.RideStatusRequested:
		return Notification{
			Type:    NotificationRideRequested,
			Title:   "Ride Requested",
			Message: "Your ride request has been sent. Waiting for confirmation.",
			Data:    data,
		}, true
	case domain.RideStatusAccepted:
		return Notification{
			Type:    NotificationDriverAssigned,
			Title:   "Driver Assigned",
			Message: "A driver has accepted your ride and is on the way.",
			Data:    data,
		}, true
	case domain.RideStatusInProgress:
		return Notification{
			Type:    NotificationTripStarted,
			Title:   "Trip Started",
			Message: "Your trip has started. Enjoy your ride!",
			Data:    data,
		}, true
	case domain.RideStatusCompleted:
		return Notification{
			Type:    NotificationTripEnded,
			Title:   "Trip Completed",
			Message: "You have arrived. Please rate your ride.",
			Data:    data,
		}, true
	case domain.RideStatusCancelled:
		return Notification{
			Type:    NotificationRideCancelled,
			Title:   "Ride Cancelled",
			Message: fmt.Sprintf("Ride %s was cancelled.", event.RideID),
			Data:    data,
		}, true
	}
	return Notification{}, false
}

func (s *NotificationService) send(ctx context.Context, n Notification) error {
	s.log.WithFields(n.Data).
		WithField("type", n.Type).
		Infof("%s: %s", n.Title, n.Message)
	return nil
}
