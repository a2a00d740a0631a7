// Package enrich stamps identity, audit and concurrency fields onto entities
// that passed validation. For a fixed input, clock and id generator the
// output is fully deterministic; there is no hidden state beyond those two
// explicit dependencies.
package enrich

import (
	"context"
	"time"

	"registrar/internal/idgen"
	"registrar/internal/registry/models"
)

// Hook lets a domain add its own enrichment after the common stamps: child
// sub-ids, denormalized ancestor paths and the like. Hooks that resolve
// parents may reach the store, so they take the request context.
type Hook[T models.Persistable] func(ctx context.Context, entities []T, md models.RequestMetadata, gen idgen.Generator, now int64) error

// Enricher applies the common enrichment for one entity type.
type Enricher[T models.Persistable] struct {
	gen   idgen.Generator
	clock func() time.Time
	hooks []Hook[T]
}

// Option configures an Enricher.
type Option[T models.Persistable] func(*Enricher[T])

// WithClock replaces the wall clock, for deterministic tests.
func WithClock[T models.Persistable](clock func() time.Time) Option[T] {
	return func(e *Enricher[T]) { e.clock = clock }
}

// WithHook appends a domain enrichment step. Hooks run in the order given,
// after the common stamps.
func WithHook[T models.Persistable](hook Hook[T]) Option[T] {
	return func(e *Enricher[T]) { e.hooks = append(e.hooks, hook) }
}

// New builds an Enricher around the given id generator.
func New[T models.Persistable](gen idgen.Generator, opts ...Option[T]) *Enricher[T] {
	e := &Enricher[T]{gen: gen, clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create assigns server ids to entities that lack one, initializes the row
// version and stamps full audit details.
func (e *Enricher[T]) Create(ctx context.Context, entities []T, md models.RequestMetadata) error {
	now := e.clock().UnixMilli()
	for _, entity := range entities {
		base := entity.Base()
		if base.Id == "" {
			base.Id = e.gen.NewId()
		}
		base.RowVersion = 1
		base.IsDeleted = false
		base.AuditDetails = models.AuditDetails{
			CreatedBy:        md.UserId,
			CreatedTime:      now,
			LastModifiedBy:   md.UserId,
			LastModifiedTime: now,
		}
	}
	return e.runHooks(ctx, entities, md, now)
}

// Update bumps the row version and refreshes the modification stamps,
// leaving creation stamps untouched.
func (e *Enricher[T]) Update(ctx context.Context, entities []T, md models.RequestMetadata) error {
	now := e.clock().UnixMilli()
	for _, entity := range entities {
		base := entity.Base()
		base.RowVersion++
		base.AuditDetails.LastModifiedBy = md.UserId
		base.AuditDetails.LastModifiedTime = now
	}
	return e.runHooks(ctx, entities, md, now)
}

// Delete marks entities soft-deleted. The clientReferenceId stays reserved
// forever; deletion is an update in disguise.
func (e *Enricher[T]) Delete(ctx context.Context, entities []T, md models.RequestMetadata) error {
	now := e.clock().UnixMilli()
	for _, entity := range entities {
		base := entity.Base()
		base.IsDeleted = true
		base.RowVersion++
		base.AuditDetails.LastModifiedBy = md.UserId
		base.AuditDetails.LastModifiedTime = now
	}
	return e.runHooks(ctx, entities, md, now)
}

func (e *Enricher[T]) runHooks(ctx context.Context, entities []T, md models.RequestMetadata, now int64) error {
	for _, hook := range e.hooks {
		if err := hook(ctx, entities, md, e.gen, now); err != nil {
			return err
		}
	}
	return nil
}
