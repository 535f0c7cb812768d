package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"autoride/internal/logger"
)

// ErrChannelUnavailable is returned when publishing without an open channel.
var ErrChannelUnavailable = errors.New("rabbitmq channel not available")

const (
	maxConnectAttempts = 5
	publishTimeout     = 5 * time.Second
)

// RabbitMQ holds one connection and channel to a broker.
type RabbitMQ struct {
	url  string
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRabbitMQ connects to url, retrying with backoff, and declares exchange as a durable topic exchange.
func NewRabbitMQ(ctx context.Context, url, exchange string, log *logger.Logger) (*RabbitMQ, error) {
	if log == nil {
		log = logger.Discard()
	}
	mq := &RabbitMQ{
		url: url,
		log: log.WithField("component", "rabbitmq"),
	}

	retryDelay := time.Second
	for attempt := 1; ; attempt++ {
		err := mq.connect(exchange)
		if err == nil {
			mq.log.WithField("attempt", attempt).Info("connected to rabbitmq")
			return mq, nil
		}

		mq.log.WithError(err).WithField("attempt", attempt).Warn("rabbitmq connection attempt failed")
		if attempt == maxConnectAttempts {
			return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxConnectAttempts, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
			retryDelay *= 2
		}
	}
}

func (mq *RabbitMQ) connect(exchange string) error {
	conn, err := amqp.Dial(mq.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	mq.mu.Lock()
	mq.conn = conn
	mq.ch = ch
	mq.mu.Unlock()
	return nil
}

// Publish sends a persistent JSON message.
func (mq *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	mq.mu.RLock()
	ch, closed := mq.ch, mq.closed
	mq.mu.RUnlock()

	if ch == nil || closed {
		return ErrChannelUnavailable
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		publishCtx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// Close closes the channel and connection.
func (mq *RabbitMQ) Close() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil
	}
	mq.closed = true

	var errs []error
	if mq.ch != nil {
		errs = append(errs, mq.ch.Close())
	}
	if mq.conn != nil {
		errs = append(errs, mq.conn.Close())
	}
	return errors.Join(errs...)
}
