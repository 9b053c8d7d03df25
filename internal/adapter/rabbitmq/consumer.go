package rabbitmq

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"

	"gitlab.com/fcv-2025.net/codegrader/internal/config"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
)

// EvaluateFunc grades one submission; it must record its own failures
type EvaluateFunc func(ctx context.Context, submissionID uuid.UUID)

// Consumer evaluates queued submissions on a fixed number of workers.
// A delivery is acked once its evaluation returned; malformed ones are
// rejected without requeue. Deliveries interrupted by the consumer stopping
// are requeued for another consumer or the next start.
type Consumer struct {
	deliveries <-chan amqp.Delivery
	evaluate   EvaluateFunc
	cfg        *config.PipelineCfg
	logger     primary.Logger
}

func NewConsumer(deliveries <-chan amqp.Delivery, evaluate EvaluateFunc, cfg *config.PipelineCfg, logger primary.Logger) *Consumer {
	return &Consumer{
		deliveries: deliveries,
		evaluate:   evaluate,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks until ctx is done or the delivery channel is closed.
func (c *Consumer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(c.cfg.Workers)
	for i := 0; i < c.cfg.Workers; i++ {
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-c.deliveries:
					if !ok {
						return
					}
					c.handle(ctx, worker, d)
				}
			}
		}(i)
	}
	c.logger.Info("Evaluation consumer started", "workers", c.cfg.Workers)
	wg.Wait()
	c.logger.Info("Evaluation consumer stopped")
}

func (c *Consumer) handle(ctx context.Context, worker int, d amqp.Delivery) {
	var msg EvaluationMessage
	if err := jsoniter.Unmarshal(d.Body, &msg); err != nil || msg.SubmissionID == uuid.Nil {
		c.logger.Error("Dropping malformed evaluation message", "worker", worker, "messageId", d.MessageId, "error", err)
		if err := d.Reject(false); err != nil {
			c.logger.Warn("Failed to reject message", "messageId", d.MessageId, "error", err)
		}
		return
	}

	if ctx.Err() == nil {
		c.run(ctx, worker, msg.SubmissionID)
	}
	if ctx.Err() != nil {
		c.logger.Info("Requeueing interrupted evaluation", "submissionId", msg.SubmissionID)
		if err := d.Nack(false, true); err != nil {
			c.logger.Warn("Failed to requeue message", "submissionId", msg.SubmissionID, "error", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Warn("Failed to ack message", "submissionId", msg.SubmissionID, "error", err)
	}
}

func (c *Consumer) run(ctx context.Context, worker int, submissionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EvaluationTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Evaluation consumer recovered from panic",
				"worker", worker,
				"submissionId", submissionID,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	c.logger.Debug("Evaluating submission", "worker", worker, "submissionId", submissionID)
	c.evaluate(ctx, submissionID)
}
