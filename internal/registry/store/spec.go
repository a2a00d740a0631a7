// Package store provides the generic relational repository behind every
// registry: cache-first reads, compiled search with a shared-predicate count,
// batched writes guarded by row versions, and single-query child hydration.
package store

import (
	"database/sql"
	"encoding/json"

	"registrar/internal/registry/models"
)

// TableSpec binds one entity type to its table. Columns lists only the
// domain columns beyond the shared core set; NewRow returns a fresh entity
// plus scan destinations aligned with Columns, and Values returns insert
// values in the same order.
type TableSpec[T models.Persistable] struct {
	Table   string
	Columns []string
	NewRow  func() (T, []any)
	Values  func(T) []any
}

// coreColumns is the shared column set every registry table carries, in the
// order the repository selects and inserts them.
var coreColumns = []string{
	"id",
	"client_reference_id",
	"tenant_id",
	"row_version",
	"is_deleted",
	"additional_fields",
	"created_by",
	"created_time",
	"last_modified_by",
	"last_modified_time",
}

func (s TableSpec[T]) allColumns() []string {
	cols := make([]string, 0, len(coreColumns)+len(s.Columns))
	cols = append(cols, coreColumns...)
	cols = append(cols, s.Columns...)
	return cols
}

func coreValues(e *models.Entity) []any {
	var af any
	if len(e.AdditionalFields) > 0 {
		af = string(e.AdditionalFields)
	}
	return []any{
		e.Id,
		e.ClientReferenceId,
		e.TenantId,
		e.RowVersion,
		e.IsDeleted,
		af,
		e.AuditDetails.CreatedBy,
		e.AuditDetails.CreatedTime,
		e.AuditDetails.LastModifiedBy,
		e.AuditDetails.LastModifiedTime,
	}
}

// scanRow scans the current row into a fresh entity. The destination order
// mirrors allColumns.
func (s TableSpec[T]) scanRow(rows *sql.Rows) (T, error) {
	entity, domainDest := s.NewRow()
	e := entity.Base()
	var af sql.NullString
	dest := make([]any, 0, len(coreColumns)+len(domainDest))
	dest = append(dest,
		&e.Id,
		&e.ClientReferenceId,
		&e.TenantId,
		&e.RowVersion,
		&e.IsDeleted,
		&af,
		&e.AuditDetails.CreatedBy,
		&e.AuditDetails.CreatedTime,
		&e.AuditDetails.LastModifiedBy,
		&e.AuditDetails.LastModifiedTime,
	)
	dest = append(dest, domainDest...)
	if err := rows.Scan(dest...); err != nil {
		return entity, err
	}
	if af.Valid {
		e.AdditionalFields = json.RawMessage(af.String)
	}
	return entity, nil
}
