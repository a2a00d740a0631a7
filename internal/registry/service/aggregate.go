package service

import (
	"sort"

	"registrar/internal/registry/models"
)

// Shape turns the merged error map into the client-visible per-entity
// outcome list, ordered by clientReferenceId for a stable response. Entities
// absent from the list were accepted; no entity is ever silently skipped
// without an attributable error.
func Shape[T models.Ref](errs models.ErrorMap[T]) []models.EntityError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]models.EntityError, 0, len(errs))
	for entity, entityErrs := range errs {
		out = append(out, models.EntityError{
			ClientReferenceId: entity.Base().ClientReferenceId,
			Errors:            entityErrs,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ClientReferenceId < out[j].ClientReferenceId
	})
	return out
}

// Recoverable reports whether every error attached to the entity is
// recoverable, meaning an unchanged retry may succeed.
func Recoverable(errs []models.Error) bool {
	for _, e := range errs {
		if e.Type != models.ErrorTypeRecoverable {
			return false
		}
	}
	return len(errs) > 0
}
