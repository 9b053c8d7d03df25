// Package rabbitmq carries evaluation requests over RabbitMQ
package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"gitlab.com/fcv-2025.net/codegrader/internal/config"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
)

// Broker owns the connection and the two channels used for publishing and consuming
type Broker struct {
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	subCh  *amqp.Channel
	cfg    *config.AMQPConfig
	logger primary.Logger
}

// Connect dials the broker and declares the durable evaluation queue
func Connect(cfg *config.AMQPConfig, logger primary.Logger) (*Broker, error) {
	conn, err := amqp.Dial(cfg.Url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	b := &Broker{conn: conn, cfg: cfg, logger: logger}

	if b.pubCh, err = conn.Channel(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}
	if b.subCh, err = conn.Channel(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open consume channel: %w", err)
	}
	if _, err = b.pubCh.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}
	if err = b.subCh.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	logger.Info("Connected to amqp broker", "queue", cfg.Queue, "prefetch", cfg.Prefetch)
	return b, nil
}

// Dispatcher publishes to the evaluation queue
func (b *Broker) Dispatcher() *Dispatcher {
	return NewDispatcher(b.pubCh, b.cfg.Queue, b.logger)
}

// Consumer starts consuming the evaluation queue
func (b *Broker) Consumer(evaluate EvaluateFunc, pipeline *config.PipelineCfg) (*Consumer, error) {
	deliveries, err := b.subCh.Consume(b.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume queue %s: %w", b.cfg.Queue, err)
	}
	return NewConsumer(deliveries, evaluate, pipeline, b.logger), nil
}

func (b *Broker) Close() error {
	if err := b.subCh.Close(); err != nil {
		b.logger.Warn("Failed to close consume channel", "error", err)
	}
	if err := b.pubCh.Close(); err != nil {
		b.logger.Warn("Failed to close publish channel", "error", err)
	}
	return b.conn.Close()
}
