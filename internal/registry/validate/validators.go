package validate

import (
	"context"
	"fmt"

	"registrar/internal/registry/models"
)

// Priorities for the stock validators. Cheaper in-memory checks run before
// store-backed ones so a missing identity never reaches a lookup that would
// choke on it.
const (
	PriorityRequired    = 1
	PriorityIsDeleted   = 2
	PriorityUniqueness  = 3
	PriorityExistence   = 4
	PriorityRowVersion  = 5
	PriorityReferential = 6
)

func appliesTo(op models.Operation, ops ...models.Operation) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

// RequiredFields rejects create entities missing tenant or client reference
// identity, and update/delete entities with no resolvable identity at all.
type RequiredFields[T models.Ref] struct{}

func NewRequiredFields[T models.Ref]() RequiredFields[T] { return RequiredFields[T]{} }

func (RequiredFields[T]) Name() string  { return "required-fields" }
func (RequiredFields[T]) Priority() int { return PriorityRequired }
func (RequiredFields[T]) AppliesTo(models.Operation) bool {
	return true
}

func (RequiredFields[T]) Validate(_ context.Context, req models.BulkRequest[T], op models.Operation) (models.ErrorMap[T], error) {
	errs := models.ErrorMap[T]{}
	for _, entity := range req.Entities {
		base := entity.Base()
		if base.TenantId == "" {
			errs[entity] = append(errs[entity], models.Error{
				Code:    models.CodeRequiredField,
				Message: "tenantId is mandatory",
				Type:    models.ErrorTypeNonRecoverable,
			})
		}
		switch op {
		case models.OpCreate:
			if base.ClientReferenceId == "" {
				errs[entity] = append(errs[entity], models.Error{
					Code:    models.CodeRequiredField,
					Message: "clientReferenceId is mandatory",
					Type:    models.ErrorTypeNonRecoverable,
				})
			}
		case models.OpUpdate, models.OpDelete:
			if base.Id == "" && base.ClientReferenceId == "" {
				errs[entity] = append(errs[entity], models.Error{
					Code:    models.CodeNullId,
					Message: "either id or clientReferenceId is mandatory",
					Type:    models.ErrorTypeNonRecoverable,
				})
			}
		}
	}
	return errs, nil
}

// IsDeleted rejects updates that arrive with the soft-delete flag already
// set: a deleted entity cannot be mutated further through update.
type IsDeleted[T models.Ref] struct{}

func NewIsDeleted[T models.Ref]() IsDeleted[T] { return IsDeleted[T]{} }

func (IsDeleted[T]) Name() string  { return "is-deleted" }
func (IsDeleted[T]) Priority() int { return PriorityIsDeleted }
func (IsDeleted[T]) AppliesTo(op models.Operation) bool {
	return appliesTo(op, models.OpUpdate)
}

func (IsDeleted[T]) Validate(_ context.Context, req models.BulkRequest[T], _ models.Operation) (models.ErrorMap[T], error) {
	errs := models.ErrorMap[T]{}
	for _, entity := range req.Entities {
		if entity.Base().IsDeleted {
			errs[entity] = append(errs[entity], models.Error{
				Code:    models.CodeIsDeleted,
				Message: "deleted entity cannot be mutated",
				Type:    models.ErrorTypeNonRecoverable,
			})
		}
	}
	return errs, nil
}

// Unique rejects create entities whose clientReferenceId collides within the
// batch itself or against the store, soft-deleted rows included. The
// intra-batch check stops a batch from self-colliding before anything is
// persisted; the later occurrence loses.
type Unique[T models.Ref] struct {
	lookup Lookup[T]
}

func NewUnique[T models.Ref](lookup Lookup[T]) Unique[T] {
	return Unique[T]{lookup: lookup}
}

func (Unique[T]) Name() string  { return "unique-client-reference" }
func (Unique[T]) Priority() int { return PriorityUniqueness }
func (Unique[T]) AppliesTo(op models.Operation) bool {
	return appliesTo(op, models.OpCreate)
}

func (v Unique[T]) Validate(ctx context.Context, req models.BulkRequest[T], _ models.Operation) (models.ErrorMap[T], error) {
	errs := models.ErrorMap[T]{}

	seen := make(map[string]struct{}, len(req.Entities))
	crids := make([]string, 0, len(req.Entities))
	for _, entity := range req.Entities {
		crid := entity.Base().ClientReferenceId
		if _, dup := seen[crid]; dup {
			errs[entity] = append(errs[entity], models.Error{
				Code:    models.CodeDuplicateEntity,
				Message: fmt.Sprintf("clientReferenceId %q repeats within the batch", crid),
				Type:    models.ErrorTypeNonRecoverable,
			})
			continue
		}
		seen[crid] = struct{}{}
		crids = append(crids, crid)
	}

	stored, err := v.lookup.FindById(ctx, crids, "client_reference_id", true)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, len(stored))
	for _, entity := range stored {
		taken[entity.Base().ClientReferenceId] = struct{}{}
	}
	for _, entity := range req.Entities {
		if _, failed := errs[entity]; failed {
			continue
		}
		if _, exists := taken[entity.Base().ClientReferenceId]; exists {
			errs[entity] = append(errs[entity], models.Error{
				Code:    models.CodeDuplicateEntity,
				Message: fmt.Sprintf("clientReferenceId %q already exists", entity.Base().ClientReferenceId),
				Type:    models.ErrorTypeNonRecoverable,
			})
		}
	}
	return errs, nil
}

// NonExistent rejects update/delete entities whose id or clientReferenceId
// resolves to no stored row.
type NonExistent[T models.Ref] struct {
	lookup Lookup[T]
}

func NewNonExistent[T models.Ref](lookup Lookup[T]) NonExistent[T] {
	return NonExistent[T]{lookup: lookup}
}

func (NonExistent[T]) Name() string  { return "non-existent-entity" }
func (NonExistent[T]) Priority() int { return PriorityExistence }
func (NonExistent[T]) AppliesTo(op models.Operation) bool {
	return appliesTo(op, models.OpUpdate, models.OpDelete)
}

func (v NonExistent[T]) Validate(ctx context.Context, req models.BulkRequest[T], _ models.Operation) (models.ErrorMap[T], error) {
	stored, err := resolveStored(ctx, v.lookup, req.Entities)
	if err != nil {
		return nil, err
	}
	errs := models.ErrorMap[T]{}
	for _, entity := range req.Entities {
		if _, ok := stored[entity]; !ok {
			errs[entity] = append(errs[entity], models.Error{
				Code:    models.CodeNonExistentEntity,
				Message: "entity does not exist",
				Type:    models.ErrorTypeNonRecoverable,
			})
		}
	}
	return errs, nil
}

// RowVersion rejects update/delete entities whose submitted rowVersion does
// not equal the stored one. This is optimistic concurrency control, not a
// lock: the client must re-fetch and retry.
type RowVersion[T models.Ref] struct {
	lookup Lookup[T]
}

func NewRowVersion[T models.Ref](lookup Lookup[T]) RowVersion[T] {
	return RowVersion[T]{lookup: lookup}
}

func (RowVersion[T]) Name() string  { return "row-version" }
func (RowVersion[T]) Priority() int { return PriorityRowVersion }
func (RowVersion[T]) AppliesTo(op models.Operation) bool {
	return appliesTo(op, models.OpUpdate, models.OpDelete)
}

func (v RowVersion[T]) Validate(ctx context.Context, req models.BulkRequest[T], _ models.Operation) (models.ErrorMap[T], error) {
	stored, err := resolveStored(ctx, v.lookup, req.Entities)
	if err != nil {
		return nil, err
	}
	errs := models.ErrorMap[T]{}
	for _, entity := range req.Entities {
		current, ok := stored[entity]
		if !ok {
			continue // existence is a separate check
		}
		if current.Base().RowVersion != entity.Base().RowVersion {
			errs[entity] = append(errs[entity], models.Error{
				Code: models.CodeVersionMismatch,
				Message: fmt.Sprintf("stored rowVersion %d does not match submitted %d",
					current.Base().RowVersion, entity.Base().RowVersion),
				Type: models.ErrorTypeNonRecoverable,
			})
		}
	}
	return errs, nil
}

// resolveStored fetches the authoritative copies for a batch, preferring the
// server id and falling back to the client reference id, with at most one
// store query per id column.
func resolveStored[T models.Ref](ctx context.Context, lookup Lookup[T], entities []T) (map[T]T, error) {
	var ids, crids []string
	for _, entity := range entities {
		base := entity.Base()
		if base.Id != "" {
			ids = append(ids, base.Id)
		} else if base.ClientReferenceId != "" {
			crids = append(crids, base.ClientReferenceId)
		}
	}

	byId := make(map[string]T)
	byCrid := make(map[string]T)
	if len(ids) > 0 {
		stored, err := lookup.FindById(ctx, ids, "id", true)
		if err != nil {
			return nil, err
		}
		for _, entity := range stored {
			byId[entity.Base().Id] = entity
		}
	}
	if len(crids) > 0 {
		stored, err := lookup.FindById(ctx, crids, "client_reference_id", true)
		if err != nil {
			return nil, err
		}
		for _, entity := range stored {
			byCrid[entity.Base().ClientReferenceId] = entity
		}
	}

	out := make(map[T]T, len(entities))
	for _, entity := range entities {
		base := entity.Base()
		if base.Id != "" {
			if stored, ok := byId[base.Id]; ok {
				out[entity] = stored
			}
			continue
		}
		if stored, ok := byCrid[base.ClientReferenceId]; ok {
			out[entity] = stored
		}
	}
	return out, nil
}
