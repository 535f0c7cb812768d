package service

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"autoride/internal/domain"
	"autoride/internal/logger"
)

// EventPublisher receives a lifecycle event after every successful transition.
type EventPublisher interface {
	Publish(event domain.LifecycleEvent)
}

// EventSink is one consumer of lifecycle events.
type EventSink interface {
	Name() string
	Handle(ctx context.Context, event domain.LifecycleEvent) error
}

const (
	eventBufferSize = 256
	sinkTimeout     = 5 * time.Second
)

// EventBus delivers events to every sink on a single goroutine,
// so sinks observe events in the order they were published.
type EventBus struct {
	sinks []EventSink
	log   *logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan domain.LifecycleEvent
	done   chan struct{}
}

// NewEventBus creates and starts an EventBus.
func NewEventBus(log *logger.Logger, sinks ...EventSink) *EventBus {
	if log == nil {
		log = logger.Discard()
	}
	b := &EventBus{
		sinks: sinks,
		log:   log.WithField("component", "events"),
		queue: make(chan domain.LifecycleEvent, eventBufferSize),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

// Publish queues event for delivery. Events published after Close are dropped.
func (b *EventBus) Publish(event domain.LifecycleEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.log.WithRideID(event.RideID).Warn("event bus closed, dropping event")
		return
	}
	b.queue <- event
}

// Close stops accepting events and waits for queued ones to be delivered.
func (b *EventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
}

func (b *EventBus) run() {
	defer close(b.done)

	for event := range b.queue {
		for _, sink := range b.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			if err := sink.Handle(ctx, event); err != nil {
				b.log.WithError(err).
					WithRideID(event.RideID).
					WithField("sink", sink.Name()).
					Warn("event sink failed")
			}
			cancel()
		}
	}
}

// NewRelicSink records every transition as a RideTransition custom event.
type NewRelicSink struct {
	app *newrelic.Application
}

// NewNewRelicSink creates a NewRelicSink.
func NewNewRelicSink(app *newrelic.Application) *NewRelicSink {
	return &NewRelicSink{app: app}
}

func (s *NewRelicSink) Name() string { return "newrelic" }

// Handle records the event.
func (s *NewRelicSink) Handle(ctx context.Context, event domain.LifecycleEvent) error {
	if s.app == nil {
		return nil
	}
	s.app.RecordCustomEvent("RideTransition", map[string]interface{}{
		"rideId":        event.RideID,
		"chainRideId":   event.ChainRideID,
		"previousState": string(event.PreviousState),
		"newState":      string(event.NewState),
		"timestamp":     event.Timestamp.UnixMilli(),
	})
	return nil
}
