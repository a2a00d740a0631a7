package validate

import (
	"context"
	"fmt"

	"registrar/internal/registry/models"
)

// BoundaryLookup resolves which locality codes exist for a tenant. The
// implementation lives in internal/boundary and is bounded by a timeout.
type BoundaryLookup interface {
	ExistingCodes(ctx context.Context, tenantId string, codes []string) ([]string, error)
}

// Boundary checks that each entity's locality code exists in the boundary
// service. Entities are grouped by tenant and distinct code set so one
// lookup is issued per group rather than per entity. A failed or timed-out
// lookup fails only the affected group's entities with a RECOVERABLE error;
// the rest of the batch proceeds.
type Boundary[T models.Ref] struct {
	lookup BoundaryLookup
	code   func(T) string
}

// NewBoundary builds the validator; code extracts the locality code, an
// empty result exempting the entity from the check.
func NewBoundary[T models.Ref](lookup BoundaryLookup, code func(T) string) Boundary[T] {
	return Boundary[T]{lookup: lookup, code: code}
}

func (Boundary[T]) Name() string  { return "boundary-exists" }
func (Boundary[T]) Priority() int { return PriorityReferential }
func (Boundary[T]) AppliesTo(op models.Operation) bool {
	return appliesTo(op, models.OpCreate, models.OpUpdate)
}

func (v Boundary[T]) Validate(ctx context.Context, req models.BulkRequest[T], _ models.Operation) (models.ErrorMap[T], error) {
	type group struct {
		codes    map[string]struct{}
		entities []T
	}
	groups := make(map[string]*group)
	for _, entity := range req.Entities {
		code := v.code(entity)
		if code == "" {
			continue
		}
		tenant := entity.Base().TenantId
		g, ok := groups[tenant]
		if !ok {
			g = &group{codes: make(map[string]struct{})}
			groups[tenant] = g
		}
		g.codes[code] = struct{}{}
		g.entities = append(g.entities, entity)
	}

	errs := models.ErrorMap[T]{}
	for tenant, g := range groups {
		codes := make([]string, 0, len(g.codes))
		for code := range g.codes {
			codes = append(codes, code)
		}

		existing, err := v.lookup.ExistingCodes(ctx, tenant, codes)
		if err != nil {
			// External service trouble is the client's to retry, and only
			// for the entities that needed this lookup.
			for _, entity := range g.entities {
				errs[entity] = append(errs[entity], models.Error{
					Code:    models.CodeDependencyError,
					Message: "boundary service lookup failed",
					Type:    models.ErrorTypeRecoverable,
					Cause:   err.Error(),
				})
			}
			continue
		}

		known := make(map[string]struct{}, len(existing))
		for _, code := range existing {
			known[code] = struct{}{}
		}
		for _, entity := range g.entities {
			if _, ok := known[v.code(entity)]; !ok {
				errs[entity] = append(errs[entity], models.Error{
					Code:    models.CodeBoundaryMissing,
					Message: fmt.Sprintf("boundary %q does not exist for tenant %q", v.code(entity), tenant),
					Type:    models.ErrorTypeNonRecoverable,
				})
			}
		}
	}
	return errs, nil
}
