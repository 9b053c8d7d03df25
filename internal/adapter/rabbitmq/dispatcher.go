package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

var _ secondary.EvaluationDispatcher = (*Dispatcher)(nil)

// EvaluationMessage is the body of one queued evaluation
type EvaluationMessage struct {
	SubmissionID uuid.UUID `json:"submissionId"`
	DispatchedAt time.Time `json:"dispatchedAt"`
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Dispatcher struct {
	ch     publisher
	queue  string
	logger primary.Logger
}

func NewDispatcher(ch publisher, queue string, logger primary.Logger) *Dispatcher {
	return &Dispatcher{
		ch:     ch,
		queue:  queue,
		logger: logger,
	}
}

// Dispatch publishes a persistent evaluation message on the default exchange
func (d *Dispatcher) Dispatch(ctx context.Context, submissionID uuid.UUID) error {
	body, err := jsoniter.Marshal(EvaluationMessage{SubmissionID: submissionID, DispatchedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation message: %w", err)
	}

	err = d.ch.PublishWithContext(ctx, "", d.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    submissionID.String(),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		d.logger.Error("Failed to publish evaluation", "submissionId", submissionID, "error", err)
		return fmt.Errorf("%w: failed to publish evaluation: %v", domain.ErrInfrastructure, err)
	}
	return nil
}
