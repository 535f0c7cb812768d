package app

import (
	"context"

	"autoride/internal/config"
	"autoride/internal/logger"
	"autoride/internal/mq"
)

// NewRabbitMQ connects the lifecycle event publisher. An empty URL disables it
// and returns nil.
func NewRabbitMQ(ctx context.Context, cfg config.RabbitMQConfig, log *logger.Logger) (*mq.RabbitMQ, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	return mq.NewRabbitMQ(ctx, cfg.URL, cfg.Exchange, log)
}
