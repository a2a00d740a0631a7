package stock

import (
	"context"
	"fmt"

	"registrar/internal/registry/models"
	"registrar/internal/registry/validate"
)

// Quantity rejects movements with a non-positive quantity or an unknown
// transaction type. Purely in-memory, so it runs on both the accept and the
// persist path.
type Quantity struct{}

func (Quantity) Name() string  { return "stock-quantity" }
func (Quantity) Priority() int { return validate.PriorityIsDeleted }
func (Quantity) AppliesTo(op models.Operation) bool {
	return op == models.OpCreate || op == models.OpUpdate
}

func (Quantity) Validate(_ context.Context, req models.BulkRequest[*Stock], _ models.Operation) (models.ErrorMap[*Stock], error) {
	errs := models.ErrorMap[*Stock]{}
	for _, s := range req.Entities {
		if s.Quantity <= 0 {
			errs[s] = append(errs[s], models.Error{
				Code:    models.CodeRequiredField,
				Message: fmt.Sprintf("quantity must be positive, got %d", s.Quantity),
				Type:    models.ErrorTypeNonRecoverable,
			})
		}
		switch s.TransactionType {
		case TransactionReceived, TransactionDispatched:
		default:
			errs[s] = append(errs[s], models.Error{
				Code:    models.CodeRequiredField,
				Message: fmt.Sprintf("unknown transaction type %q", s.TransactionType),
				Type:    models.ErrorTypeNonRecoverable,
			})
		}
	}
	return errs, nil
}
