// Package stock instantiates the bulk pipeline for the stock transaction
// registry.
package stock

import "registrar/internal/registry/models"

// Transaction types for stock movements.
const (
	TransactionReceived   = "RECEIVED"
	TransactionDispatched = "DISPATCHED"
)

// Stock is one stock movement record.
type Stock struct {
	models.Entity
	ProductId          string `json:"productId"`
	FacilityId         string `json:"facilityId"`
	Quantity           int64  `json:"quantity"`
	TransactionType    string `json:"transactionType"`
	TransactingPartyId string `json:"transactingPartyId,omitempty"`
	ReferenceId        string `json:"referenceId,omitempty"`
}

// SearchCriteria is the stock search surface.
type SearchCriteria struct {
	models.SearchCriteria
	ProductId       string `json:"productId,omitempty"`
	FacilityId      string `json:"facilityId,omitempty"`
	TransactionType string `json:"transactionType,omitempty"`
	ReferenceId     string `json:"referenceId,omitempty"`
}
