// Package cache is the read-through/write-behind layer in front of the
// relational store. The authoritative state is always the store; the cache is
// bounded-staleness and best-effort, and every failure here degrades to a
// miss instead of failing the request.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"registrar/internal/platform/metrics"
	platformredis "registrar/internal/platform/redis"
	"registrar/internal/registry/models"
)

// State marks how far a cached entity has travelled through the pipeline.
// PENDING entries were written optimistically on the accept path and may
// still be rejected by async validation; CONFIRMED entries mirror a
// persisted row.
type State string

const (
	StatePending   State = "PENDING"
	StateConfirmed State = "CONFIRMED"
)

// Entry is one cached entity together with its persistence marker.
type Entry[T models.Persistable] struct {
	Entity T
	State  State
}

type envelope struct {
	State  State           `json:"state"`
	Entity json.RawMessage `json:"entity"`
}

// Gateway caches whole entities in a redis hash per collection, keyed by id
// or clientReferenceId. Writers always overwrite the whole value; there are
// no partial field patches, so concurrent puts are last-writer-wins per key.
type Gateway[T models.Persistable] struct {
	client     *platformredis.Client
	collection string
	ttl        time.Duration
	blank      func() T
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New builds a gateway for one collection. A nil client disables the cache;
// every read misses and every write is a no-op.
func New[T models.Persistable](client *platformredis.Client, collection string, ttl time.Duration, blank func() T, logger *slog.Logger, m *metrics.Metrics) *Gateway[T] {
	return &Gateway[T]{
		client:     client,
		collection: collection,
		ttl:        ttl,
		blank:      blank,
		logger:     logger,
		metrics:    m,
	}
}

// Collection returns the outer cache key.
func (g *Gateway[T]) Collection() string {
	return g.collection
}

// Get looks up the given keys and splits them into found entries and missing
// keys. Only CONFIRMED entries are served: a PENDING entry mirrors an
// acknowledged-but-unpersisted submission and must never satisfy a lookup
// that feeds validators, so it reads as a miss and the store stays
// authoritative. Cache unavailability reports every key as missing.
func (g *Gateway[T]) Get(ctx context.Context, keys []string) ([]Entry[T], []string) {
	if g.client == nil || len(keys) == 0 {
		return nil, keys
	}

	values, err := g.client.HMGet(ctx, g.collection, keys...).Result()
	if err != nil {
		g.degrade("get", err)
		return nil, keys
	}

	var found []Entry[T]
	var missing []string
	for i, raw := range values {
		s, ok := raw.(string)
		if !ok {
			missing = append(missing, keys[i])
			continue
		}
		entry, ok := g.decode(s)
		if !ok {
			missing = append(missing, keys[i])
			continue
		}
		found = append(found, entry)
	}

	g.metrics.CacheHits.WithLabelValues(g.collection).Add(float64(len(found)))
	g.metrics.CacheMisses.WithLabelValues(g.collection).Add(float64(len(missing)))
	return found, missing
}

// decode unwraps one stored envelope. Non-CONFIRMED entries and undecodable
// values both report as not found; only the latter counts as degradation.
func (g *Gateway[T]) decode(raw string) (Entry[T], bool) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		g.degrade("decode", err)
		return Entry[T]{}, false
	}
	if env.State != StateConfirmed {
		return Entry[T]{}, false
	}
	entity := g.blank()
	if err := json.Unmarshal(env.Entity, entity); err != nil {
		g.degrade("decode", err)
		return Entry[T]{}, false
	}
	return Entry[T]{Entity: entity, State: env.State}, true
}

// Put writes entities under both their server id and client reference id
// when present. Failures are logged and counted, never surfaced: the cache is
// an optimization, not a dependency.
func (g *Gateway[T]) Put(ctx context.Context, entities []T, state State) {
	if g.client == nil || len(entities) == 0 {
		return
	}

	pairs := make([]any, 0, len(entities)*4)
	for _, entity := range entities {
		base := entity.Base()
		payload, err := json.Marshal(entity)
		if err != nil {
			g.degrade("encode", err)
			continue
		}
		value, err := json.Marshal(envelope{State: state, Entity: payload})
		if err != nil {
			g.degrade("encode", err)
			continue
		}
		if base.Id != "" {
			pairs = append(pairs, base.Id, value)
		}
		if base.ClientReferenceId != "" && base.ClientReferenceId != base.Id {
			pairs = append(pairs, base.ClientReferenceId, value)
		}
	}
	if len(pairs) == 0 {
		return
	}

	if err := g.client.HSet(ctx, g.collection, pairs...).Err(); err != nil {
		g.degrade("put", err)
		return
	}
	if err := g.client.Expire(ctx, g.collection, g.ttl).Err(); err != nil {
		g.degrade("expire", err)
	}
}

// Drop removes entries for entities rejected after an optimistic put so
// clients stop observing values that will never be persisted.
func (g *Gateway[T]) Drop(ctx context.Context, keys []string) {
	if g.client == nil || len(keys) == 0 {
		return
	}
	if err := g.client.HDel(ctx, g.collection, keys...).Err(); err != nil {
		g.degrade("drop", err)
	}
}

func (g *Gateway[T]) degrade(op string, err error) {
	g.metrics.CacheFailures.WithLabelValues(g.collection).Inc()
	g.logger.Warn("cache degraded to store", "collection", g.collection, "op", op, "error", err)
}
