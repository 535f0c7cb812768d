package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"autoride/internal/domain"
)

// Publisher publishes a raw message to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

var _ Publisher = (*RabbitMQ)(nil)

// RideTransitionMessage is the body published for each lifecycle event.
type RideTransitionMessage struct {
	RideID        string    `json:"ride_id"`
	ChainRideID   string    `json:"chain_ride_id,omitempty"`
	PreviousState string    `json:"previous_state,omitempty"`
	NewState      string    `json:"new_state"`
	Timestamp     time.Time `json:"timestamp"`
}

// RideEventPublisher publishes lifecycle events to a topic exchange
// with routing key ride.<status>.
type RideEventPublisher struct {
	publisher Publisher
	exchange  string
}

// NewRideEventPublisher creates a RideEventPublisher.
func NewRideEventPublisher(publisher Publisher, exchange string) *RideEventPublisher {
	return &RideEventPublisher{publisher: publisher, exchange: exchange}
}

// RoutingKey returns the routing key for a status, e.g. ride.in_progress.
func RoutingKey(status domain.RideStatus) string {
	return "ride." + strings.ToLower(string(status))
}

func (p *RideEventPublisher) Name() string { return "rabbitmq" }

// Handle publishes event.
func (p *RideEventPublisher) Handle(ctx context.Context, event domain.LifecycleEvent) error {
	body, err := json.Marshal(RideTransitionMessage{
		RideID:        event.RideID,
		ChainRideID:   event.ChainRideID,
		PreviousState: string(event.PreviousState),
		NewState:      string(event.NewState),
		Timestamp:     event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal ride transition: %w", err)
	}

	if err := p.publisher.Publish(ctx, p.exchange, RoutingKey(event.NewState), body); err != nil {
		return fmt.Errorf("publish ride transition: %w", err)
	}
	return nil
}
