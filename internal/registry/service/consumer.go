package service

import (
	"context"
	"encoding/json"
	"fmt"

	"registrar/internal/platform/kafka"
	"registrar/internal/registry/models"
)

// consumerHandler adapts Persist to the broker consumer for one operation.
type consumerHandler[T models.Ref] struct {
	svc *Service[T]
	op  models.Operation
}

func (h consumerHandler[T]) Handle(ctx context.Context, msg *kafka.Message) error {
	var req models.BulkRequest[T]
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		// A malformed payload will never parse on redelivery; log via the
		// service logger and commit.
		h.svc.logger.Error("dropping malformed payload",
			"collection", h.svc.collection,
			"topic", msg.Topic,
			"error", err,
		)
		return nil
	}
	if err := h.svc.Persist(ctx, req, h.op); err != nil {
		return fmt.Errorf("persist %s from %s: %w", h.svc.collection, msg.Topic, err)
	}
	return nil
}

// TopicHandlers returns the consumer routing for this domain: exactly one
// logical consumer per topic, topics named per operation.
func (s *Service[T]) TopicHandlers() map[string]kafka.TopicHandler {
	return map[string]kafka.TopicHandler{
		s.topics.Create: consumerHandler[T]{svc: s, op: models.OpCreate},
		s.topics.Update: consumerHandler[T]{svc: s, op: models.OpUpdate},
		s.topics.Delete: consumerHandler[T]{svc: s, op: models.OpDelete},
	}
}
