// Package validate runs ordered, independent checks over a bulk request.
// Each validator returns a fresh partial entity-to-errors map; the chain
// merges them purely, so no mutable error state is shared across validators
// or across concurrent batches.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"registrar/internal/registry/models"
)

// Lookup is the slice of the store the stock validators need.
type Lookup[T models.Ref] interface {
	FindById(ctx context.Context, ids []string, idColumn string, includeDeleted bool) ([]T, error)
}

// Validator is one independent check. Validate returns a partial map holding
// only entities that failed this check; a non-nil error means infrastructure
// failed and the whole batch must abort, since no per-entity result is
// meaningful.
type Validator[T models.Ref] interface {
	Name() string
	Priority() int
	AppliesTo(op models.Operation) bool
	Validate(ctx context.Context, req models.BulkRequest[T], op models.Operation) (models.ErrorMap[T], error)
}

// Chain executes validators in ascending priority, ties broken by
// construction order. Every validator after the first sees only entities
// that have not failed an earlier, logically prerequisite check.
type Chain[T models.Ref] struct {
	validators []Validator[T]
	logger     *slog.Logger
}

// NewChain builds a chain from an explicit validator list. Ordering is fixed
// here, at construction, not discovered at runtime.
func NewChain[T models.Ref](logger *slog.Logger, validators ...Validator[T]) *Chain[T] {
	sorted := make([]Validator[T], len(validators))
	copy(sorted, validators)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Chain[T]{validators: sorted, logger: logger}
}

// Run validates the batch for the given operation. It returns the entities
// with zero accumulated errors and the merged error map; entities fail
// independently, one entity's failure never blocks its siblings.
func (c *Chain[T]) Run(ctx context.Context, req models.BulkRequest[T], op models.Operation) ([]T, models.ErrorMap[T], error) {
	errs := models.ErrorMap[T]{}
	first := true

	for _, v := range c.validators {
		if !v.AppliesTo(op) {
			continue
		}

		sub := req
		if !first {
			sub.Entities = notErroring(req.Entities, errs)
			if len(sub.Entities) == 0 {
				break
			}
		}
		first = false

		partial, err := v.Validate(ctx, sub, op)
		if err != nil {
			return nil, nil, fmt.Errorf("validator %s: %w", v.Name(), err)
		}
		if len(partial) > 0 {
			c.logger.Info("validator flagged entities",
				"validator", v.Name(),
				"operation", string(op),
				"flagged", len(partial),
			)
		}
		errs = models.Merge(errs, partial)
	}

	return notErroring(req.Entities, errs), errs, nil
}

func notErroring[T models.Ref](entities []T, errs models.ErrorMap[T]) []T {
	out := make([]T, 0, len(entities))
	for _, entity := range entities {
		if _, failed := errs[entity]; failed {
			continue
		}
		out = append(out, entity)
	}
	return out
}
