package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"registrar/pkg/platform/sentinel"
)

// ChildSpec binds a one-to-many child table to its row type. Children are
// always fetched with a single query scoped to the parent id set, never one
// query per parent row.
type ChildSpec[C any] struct {
	Table        string
	ParentColumn string
	Columns      []string
	NewRow       func() (*C, []any)
	Values       func(C) []any
	ParentKey    func(C) string
}

// HydrateChildren fetches all child rows for the given parents in one query
// and groups them by parent key, ready to attach.
func HydrateChildren[C any](ctx context.Context, db *sql.DB, spec ChildSpec[C], parentIds []string) (map[string][]C, error) {
	out := make(map[string][]C)
	if len(parentIds) == 0 {
		return out, nil
	}

	sqlText, args, err := sq.Select(spec.Columns...).
		From(spec.Table).
		Where(sq.Eq{spec.ParentColumn: parentIds}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrQueryBuild, err)
	}

	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("hydrate %s: %w", spec.Table, err)
	}
	defer rows.Close()

	for rows.Next() {
		child, dest := spec.NewRow()
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.Table, err)
		}
		key := spec.ParentKey(*child)
		out[key] = append(out[key], *child)
	}
	return out, rows.Err()
}

// InsertChildren appends child rows in one statement within the caller's
// transaction.
func InsertChildren[C any](ctx context.Context, tx *sql.Tx, spec ChildSpec[C], children []C) error {
	if len(children) == 0 {
		return nil
	}
	builder := sq.Insert(spec.Table).
		Columns(spec.Columns...).
		PlaceholderFormat(sq.Dollar)
	for _, child := range children {
		builder = builder.Values(spec.Values(child)...)
	}
	sqlText, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", sentinel.ErrQueryBuild, err)
	}
	if _, err := tx.ExecContext(ctx, sqlText, args...); err != nil {
		return fmt.Errorf("insert %s: %w", spec.Table, err)
	}
	return nil
}

// ReplaceChildren swaps the child rows of the given parents: one delete
// scoped to the parent id set, then one batched insert.
func ReplaceChildren[C any](ctx context.Context, tx *sql.Tx, spec ChildSpec[C], parentIds []string, children []C) error {
	if len(parentIds) == 0 {
		return nil
	}
	sqlText, args, err := sq.Delete(spec.Table).
		Where(sq.Eq{spec.ParentColumn: parentIds}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", sentinel.ErrQueryBuild, err)
	}
	if _, err := tx.ExecContext(ctx, sqlText, args...); err != nil {
		return fmt.Errorf("delete %s: %w", spec.Table, err)
	}
	return InsertChildren(ctx, tx, spec, children)
}
