package models

// ErrorType classifies a validation error for the client. NON_RECOVERABLE
// means the request must change; RECOVERABLE means an unchanged retry may
// succeed.
type ErrorType string

const (
	ErrorTypeRecoverable    ErrorType = "RECOVERABLE"
	ErrorTypeNonRecoverable ErrorType = "NON_RECOVERABLE"
)

// Stock error codes produced by the built-in validators.
const (
	CodeNullId            = "NULL_ID"
	CodeRequiredField     = "REQUIRED_FIELD_MISSING"
	CodeNonExistentEntity = "NON_EXISTENT_ENTITY"
	CodeDuplicateEntity   = "DUPLICATE_ENTITY"
	CodeVersionMismatch   = "VERSION_MISMATCH"
	CodeIsDeleted         = "ENTITY_DELETED"
	CodeBoundaryMissing   = "BOUNDARY_NOT_FOUND"
	CodeDependencyError   = "DEPENDENCY_ERROR"
)

// Error is a structured validation failure. It is created by exactly one
// validator and attached to exactly one entity for the duration of one
// request; it is data, never a Go error.
type Error struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Type    ErrorType `json:"type"`
	Cause   string    `json:"cause,omitempty"`
}

// ErrorMap accumulates ordered per-entity errors, keyed by entity identity
// (the pointer) so two batch entries with the same clientReferenceId keep
// separate outcomes.
type ErrorMap[T comparable] map[T][]Error

// Merge combines partial maps into a fresh map without mutating any input.
// Error order within an entity follows the order the maps are given, which
// is the validator execution order.
func Merge[T comparable](maps ...ErrorMap[T]) ErrorMap[T] {
	out := make(ErrorMap[T])
	for _, m := range maps {
		for entity, errs := range m {
			out[entity] = append(out[entity], errs...)
		}
	}
	return out
}
