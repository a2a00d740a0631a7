package models

// Operation names a bulk lifecycle operation.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// BatchState tracks a submitted batch through the pipeline. ACKNOWLEDGED is
// terminal from the client's point of view; everything after happens on the
// consumer.
type BatchState string

const (
	StateReceived       BatchState = "RECEIVED"
	StateSyncValidated  BatchState = "SYNC_VALIDATED"
	StateCached         BatchState = "CACHED"
	StateAcknowledged   BatchState = "ACKNOWLEDGED"
	StateAsyncValidated BatchState = "ASYNC_VALIDATED"
	StateEnriched       BatchState = "ENRICHED"
	StatePersisted      BatchState = "PERSISTED"
	StateReconciled     BatchState = "CACHE_RECONCILED"
)

// RequestMetadata identifies the caller and the request. It is echoed in
// every response and feeds the audit stamps.
type RequestMetadata struct {
	ApiId     string `json:"apiId"`
	MessageId string `json:"msgId"`
	UserId    string `json:"userId"`
	Timestamp int64  `json:"ts"`
}

// BulkRequest is the payload accepted by the API and re-published verbatim to
// the broker for the async consumer.
type BulkRequest[T Persistable] struct {
	Metadata RequestMetadata `json:"requestInfo"`
	Entities []T             `json:"entities"`
}

// SingleRequest wraps one entity for the convenience endpoints; the service
// converts it to a single-element bulk request.
type SingleRequest[T Persistable] struct {
	Metadata RequestMetadata `json:"requestInfo"`
	Entity   T               `json:"entity"`
}

// SearchRequest pairs request metadata with domain criteria.
type SearchRequest[C Criteria] struct {
	Metadata RequestMetadata `json:"requestInfo"`
	Criteria C               `json:"criteria"`
}

// EntityError attributes a list of errors to one submitted entity.
type EntityError struct {
	ClientReferenceId string  `json:"clientReferenceId"`
	Errors            []Error `json:"errors"`
}

// BulkResponse is the immediate acknowledgment for a bulk submission.
// Accepted counts entities that passed synchronous validation and were
// queued; Errors carries per-entity outcomes for the rest.
type BulkResponse struct {
	Metadata RequestMetadata `json:"responseInfo"`
	State    BatchState      `json:"state"`
	Accepted int             `json:"accepted"`
	Errors   []EntityError   `json:"errors,omitempty"`
}

// SearchResponse carries one page of results plus the total match count
// computed over the same predicate set.
type SearchResponse[T Persistable] struct {
	Metadata   RequestMetadata `json:"responseInfo"`
	Entities   []T             `json:"entities"`
	TotalCount int64           `json:"totalCount"`
}
