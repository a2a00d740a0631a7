// Package service orchestrates the bulk entity lifecycle:
//
//	RECEIVED -> SYNC_VALIDATED -> CACHED -> ACKNOWLEDGED -> (published)
//	-> ASYNC_VALIDATED -> ENRICHED -> PERSISTED -> CACHE_RECONCILED
//
// The accept path validates cheaply, caches optimistically and acknowledges
// once the batch is durably queued. The consumer re-runs the full chain
// against current store state before persisting.
//
// Known consistency gap, kept deliberately: an entity that passes sync
// validation is acknowledged and visible to direct cache readers as a
// PENDING entry, yet async validation may still reject it because store
// state moved in between. Such entities never reach durable storage; their
// PENDING cache entries never satisfy repository lookups and are dropped
// during reconciliation, so the staleness window is bounded by the consumer
// lag, and each drop is logged and counted.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"registrar/internal/platform/metrics"
	"registrar/internal/registry/cache"
	"registrar/internal/registry/enrich"
	"registrar/internal/registry/models"
	"registrar/internal/registry/validate"
)

// Store is the slice of the repository the pipeline needs. Update returns
// the entities rejected by the row-version guard.
type Store[T models.Ref] interface {
	FindById(ctx context.Context, ids []string, idColumn string, includeDeleted bool) ([]T, error)
	Create(ctx context.Context, entities []T) error
	Update(ctx context.Context, entities []T) ([]T, error)
}

// Cache is the write side of the cache gateway.
type Cache[T models.Ref] interface {
	Put(ctx context.Context, entities []T, state cache.State)
	Drop(ctx context.Context, keys []string)
}

// Producer publishes the accepted payload verbatim to the broker.
type Producer interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Topics names the broker topics for one domain, one per operation.
type Topics struct {
	Create string
	Update string
	Delete string
}

// For returns the topic for an operation.
func (t Topics) For(op models.Operation) string {
	switch op {
	case models.OpCreate:
		return t.Create
	case models.OpUpdate:
		return t.Update
	default:
		return t.Delete
	}
}

// Service runs the pipeline for one entity type. The sync chain carries the
// fast in-memory checks; the async chain is the full set including
// store-backed and cross-service validators.
type Service[T models.Ref] struct {
	collection string
	store      Store[T]
	cache      Cache[T]
	producer   Producer
	syncChain  *validate.Chain[T]
	asyncChain *validate.Chain[T]
	enricher   *enrich.Enricher[T]
	topics     Topics
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// New wires a pipeline service. Both chains are explicit ordered lists
// constructed by the caller at startup.
func New[T models.Ref](
	collection string,
	store Store[T],
	cacheGateway Cache[T],
	producer Producer,
	syncChain *validate.Chain[T],
	asyncChain *validate.Chain[T],
	enricher *enrich.Enricher[T],
	topics Topics,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service[T] {
	return &Service[T]{
		collection: collection,
		store:      store,
		cache:      cacheGateway,
		producer:   producer,
		syncChain:  syncChain,
		asyncChain: asyncChain,
		enricher:   enricher,
		topics:     topics,
		logger:     logger,
		metrics:    m,
		tracer:     otel.Tracer("registrar/registry"),
	}
}

// Accept runs the synchronous half: fast validation, optimistic cache write,
// publish, acknowledge. The returned response is a 202-equivalent: accepted
// entities are durably queued, not yet committed. Only infrastructure
// failures return a Go error and abort the batch.
func (s *Service[T]) Accept(ctx context.Context, req models.BulkRequest[T], op models.Operation) (*models.BulkResponse, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registry.accept", trace.WithAttributes(
		attribute.String("collection", s.collection),
		attribute.String("operation", string(op)),
		attribute.Int("batch.size", len(req.Entities)),
	))
	defer span.End()

	valid, errs, err := s.syncChain.Run(ctx, req, op)
	if err != nil {
		return nil, fmt.Errorf("sync validate %s: %w", s.collection, err)
	}

	if len(valid) > 0 {
		// Optimistic write-behind: direct cache readers can observe the
		// PENDING entry before the row is durable. Repository lookups
		// ignore it.
		s.cache.Put(ctx, valid, cache.StatePending)

		// The partition key preserves ordering per tenant, so a
		// mixed-tenant batch becomes one record per tenant.
		order, groups := groupByTenant(valid)
		for _, tenant := range order {
			payload, err := json.Marshal(models.BulkRequest[T]{Metadata: req.Metadata, Entities: groups[tenant]})
			if err != nil {
				return nil, fmt.Errorf("encode %s batch: %w", s.collection, err)
			}
			if err := s.producer.Publish(ctx, s.topics.For(op), tenant, payload); err != nil {
				// The broker, unlike the cache, is a hard dependency:
				// nothing may be acknowledged that is not queued.
				return nil, fmt.Errorf("publish %s batch: %w", s.collection, err)
			}
		}
	}

	s.metrics.BatchesAccepted.WithLabelValues(s.collection, string(op)).Inc()
	s.countRejected(errs)
	s.metrics.AcceptDuration.WithLabelValues(s.collection, string(op)).Observe(time.Since(start).Seconds())

	return &models.BulkResponse{
		Metadata: req.Metadata,
		State:    models.StateAcknowledged,
		Accepted: len(valid),
		Errors:   Shape(errs),
	}, nil
}

// AcceptOne wraps a single entity into the bulk path.
func (s *Service[T]) AcceptOne(ctx context.Context, md models.RequestMetadata, entity T, op models.Operation) (*models.BulkResponse, error) {
	return s.Accept(ctx, models.BulkRequest[T]{Metadata: md, Entities: []T{entity}}, op)
}

// Persist runs the asynchronous half on the consumer: full validation
// against current store state, enrichment, durable write, cache
// reconciliation. A returned error means infrastructure failed and the
// record should be redelivered; validation rejections are final.
func (s *Service[T]) Persist(ctx context.Context, req models.BulkRequest[T], op models.Operation) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registry.persist", trace.WithAttributes(
		attribute.String("collection", s.collection),
		attribute.String("operation", string(op)),
		attribute.Int("batch.size", len(req.Entities)),
	))
	defer span.End()

	valid, errs, err := s.asyncChain.Run(ctx, req, op)
	if err != nil {
		return fmt.Errorf("async validate %s: %w", s.collection, err)
	}
	s.dropRejected(ctx, errs, "async validation rejected acknowledged entity")

	if len(valid) > 0 {
		switch op {
		case models.OpCreate:
			if err := s.enricher.Create(ctx, valid, req.Metadata); err != nil {
				return fmt.Errorf("enrich %s: %w", s.collection, err)
			}
			if err := s.store.Create(ctx, valid); err != nil {
				return fmt.Errorf("persist %s: %w", s.collection, err)
			}
		case models.OpUpdate, models.OpDelete:
			if err := s.backfillIds(ctx, valid); err != nil {
				return fmt.Errorf("resolve %s ids: %w", s.collection, err)
			}
			var enrichErr error
			if op == models.OpUpdate {
				enrichErr = s.enricher.Update(ctx, valid, req.Metadata)
			} else {
				enrichErr = s.enricher.Delete(ctx, valid, req.Metadata)
			}
			if enrichErr != nil {
				return fmt.Errorf("enrich %s: %w", s.collection, enrichErr)
			}
			conflicted, err := s.store.Update(ctx, valid)
			if err != nil {
				return fmt.Errorf("persist %s: %w", s.collection, err)
			}
			valid = s.dropConflicted(ctx, valid, conflicted)
		}
	}

	// Reconciliation bounds the optimistic entries' lifetime: survivors
	// become CONFIRMED, rejects were dropped above.
	s.cache.Put(ctx, valid, cache.StateConfirmed)

	s.metrics.BatchesPersisted.WithLabelValues(s.collection, string(op)).Inc()
	s.metrics.PersistDuration.WithLabelValues(s.collection, string(op)).Observe(time.Since(start).Seconds())
	return nil
}

// backfillIds stamps the server id onto entities addressed only by their
// clientReferenceId, so the row-version-guarded update targets the stored
// row. Validation has already established that every survivor resolves.
func (s *Service[T]) backfillIds(ctx context.Context, entities []T) error {
	var crids []string
	for _, entity := range entities {
		if entity.Base().Id == "" {
			crids = append(crids, entity.Base().ClientReferenceId)
		}
	}
	if len(crids) == 0 {
		return nil
	}

	stored, err := s.store.FindById(ctx, crids, "client_reference_id", true)
	if err != nil {
		return err
	}
	byCrid := make(map[string]string, len(stored))
	for _, entity := range stored {
		base := entity.Base()
		byCrid[base.ClientReferenceId] = base.Id
	}
	for _, entity := range entities {
		base := entity.Base()
		if base.Id == "" {
			base.Id = byCrid[base.ClientReferenceId]
		}
	}
	return nil
}

// groupByTenant splits a batch by tenant, keeping submission order within
// each group and first-appearance order across groups.
func groupByTenant[T models.Ref](entities []T) ([]string, map[string][]T) {
	groups := make(map[string][]T, 1)
	var order []string
	for _, entity := range entities {
		tenant := entity.Base().TenantId
		if _, ok := groups[tenant]; !ok {
			order = append(order, tenant)
		}
		groups[tenant] = append(groups[tenant], entity)
	}
	return order, groups
}

func (s *Service[T]) countRejected(errs models.ErrorMap[T]) {
	for _, entityErrs := range errs {
		for _, e := range entityErrs {
			s.metrics.EntitiesRejected.WithLabelValues(s.collection, e.Code).Inc()
		}
	}
}

func (s *Service[T]) dropRejected(ctx context.Context, errs models.ErrorMap[T], reason string) {
	if len(errs) == 0 {
		return
	}
	s.countRejected(errs)
	s.metrics.EntitiesDropped.WithLabelValues(s.collection).Add(float64(len(errs)))

	// The gateway writes entries under both identifiers; dropping must
	// cover both so no key outlives the rejection.
	keys := make([]string, 0, len(errs)*2)
	for entity, entityErrs := range errs {
		base := entity.Base()
		if base.Id != "" {
			keys = append(keys, base.Id)
		}
		if base.ClientReferenceId != "" && base.ClientReferenceId != base.Id {
			keys = append(keys, base.ClientReferenceId)
		}
		codes := make([]string, 0, len(entityErrs))
		for _, e := range entityErrs {
			codes = append(codes, e.Code)
		}
		s.logger.Warn(reason,
			"collection", s.collection,
			"clientReferenceId", base.ClientReferenceId,
			"codes", codes,
		)
	}
	s.cache.Drop(ctx, keys)
}

func (s *Service[T]) dropConflicted(ctx context.Context, valid, conflicted []T) []T {
	if len(conflicted) == 0 {
		return valid
	}
	rejected := models.ErrorMap[T]{}
	for _, entity := range conflicted {
		rejected[entity] = []models.Error{{
			Code:    models.CodeVersionMismatch,
			Message: "row version moved between validation and write",
			Type:    models.ErrorTypeNonRecoverable,
		}}
	}
	s.dropRejected(ctx, rejected, "row version guard rejected acknowledged entity")

	out := make([]T, 0, len(valid)-len(conflicted))
	for _, entity := range valid {
		if _, isConflicted := rejected[entity]; isConflicted {
			continue
		}
		out = append(out, entity)
	}
	return out
}
