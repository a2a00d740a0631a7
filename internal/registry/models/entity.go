package models

import "encoding/json"

// AuditDetails carries who/when stamps. Times are epoch milliseconds.
type AuditDetails struct {
	CreatedBy        string `json:"createdBy"`
	CreatedTime      int64  `json:"createdTime"`
	LastModifiedBy   string `json:"lastModifiedBy"`
	LastModifiedTime int64  `json:"lastModifiedTime"`
}

// Entity is the common identity, tenancy, audit and concurrency-control core
// every registry record embeds. Id is empty until the async consumer persists
// the record; ClientReferenceId is client-assigned and unique per tenant
// across all time, including soft-deleted rows.
type Entity struct {
	Id                string          `json:"id,omitempty"`
	ClientReferenceId string          `json:"clientReferenceId"`
	TenantId          string          `json:"tenantId"`
	RowVersion        int             `json:"rowVersion"`
	IsDeleted         bool            `json:"isDeleted"`
	AuditDetails      AuditDetails    `json:"auditDetails"`
	AdditionalFields  json.RawMessage `json:"additionalFields,omitempty"`
}

// Base returns the embedded core so generic code can read and mutate identity
// and audit fields without reflection. Every domain entity gets this method
// for free through embedding.
func (e *Entity) Base() *Entity {
	return e
}

// Persistable is the constraint satisfied by every domain entity pointer. The
// single accessor replaces the reflective get-id-method lookups the pipeline
// would otherwise need.
type Persistable interface {
	Base() *Entity
}

// Ref constrains generic pipeline code that maps entities by identity: any
// Persistable that is also comparable, which every domain entity pointer is.
type Ref interface {
	Persistable
	comparable
}

// Key returns the preferred cache/store key: the server id when assigned,
// otherwise the client reference id.
func (e *Entity) Key() string {
	if e.Id != "" {
		return e.Id
	}
	return e.ClientReferenceId
}

// SearchCriteria is the sparse core criteria shared by every registry. Every
// populated field becomes an AND-ed predicate; absent fields are omitted.
type SearchCriteria struct {
	Ids                []string `json:"ids,omitempty"`
	ClientReferenceIds []string `json:"clientReferenceIds,omitempty"`
	TenantId           string   `json:"tenantId"`
	Limit              int      `json:"limit"`
	Offset             int      `json:"offset"`
	LastChangedSince   int64    `json:"lastChangedSince,omitempty"`
	IncludeDeleted     bool     `json:"includeDeleted,omitempty"`
}

// Core lets generic code reach the shared criteria inside domain criteria
// structs that embed SearchCriteria.
func (c *SearchCriteria) Core() *SearchCriteria {
	return c
}

// Criteria is the constraint for domain search criteria.
type Criteria interface {
	Core() *SearchCriteria
}
