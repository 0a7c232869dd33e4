package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/bioshop-backend/pkg/db/models"
	"github.com/angelmondragon/bioshop-backend/pkg/outbox/registry"
)

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictPark
)

// outcome is what happened to one row; settle persists it.
type outcome struct {
	verdict verdict
	reason  string
	err     error
	topic   string
}

// processBatch claims up to batchSize rows and settles each one in the same
// transaction. A publish failure on one row never aborts the rest.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, event, s.dispatch(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) outcome {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcome{verdict: verdictPark, reason: "unresolvable", err: err}
	}
	topic := resolved.Descriptor.Topic

	err = s.publish(ctx, event, resolved)
	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		return outcome{verdict: verdictPublished, topic: topic}
	case errors.As(err, &nonRetryable):
		return outcome{verdict: verdictPark, reason: "non_retryable", err: err, topic: topic}
	case event.AttemptCount+1 >= s.maxAttempts:
		return outcome{verdict: verdictPark, reason: "max_attempts", err: err, topic: topic}
	default:
		return outcome{verdict: verdictRetry, err: err, topic: topic}
	}
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, o outcome) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    string(event.EventType),
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount + 1,
		"topic":         o.topic,
	})
	eventType := string(event.EventType)

	switch o.verdict {
	case verdictPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		if s.metrics != nil {
			s.metrics.IncPublished(eventType)
		}
		s.logg.Info(ctx, "outbox event published")

	case verdictRetry:
		if err := s.repo.MarkFailedTx(tx, event.ID, o.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		if s.metrics != nil {
			s.metrics.IncFailed(eventType, false)
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", o.err.Error()), "outbox publish failed, will retry")

	case verdictPark:
		// Parked rows sit at the attempt ceiling and are never fetched again.
		cause := fmt.Errorf("%s: %w", o.reason, o.err)
		if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
			return fmt.Errorf("park %s: %w", event.ID, err)
		}
		if s.metrics != nil {
			s.metrics.IncFailed(eventType, true)
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"error":        o.err.Error(),
			"error_reason": o.reason,
		}), "outbox event parked")
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(ctx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("nil publish result for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}
