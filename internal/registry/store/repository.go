package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"

	"registrar/internal/registry/cache"
	"registrar/internal/registry/models"
	"registrar/internal/registry/query"
	"registrar/pkg/platform/sentinel"
	platformstrings "registrar/pkg/platform/strings"
)

// Repository composes the query compiler, the cache gateway and the
// relational store for one entity type. Domain stores embed it and layer
// child-table handling on top.
type Repository[T models.Persistable, C models.Criteria] struct {
	db       *sql.DB
	cache    *cache.Gateway[T]
	compiler *query.Compiler[C]
	spec     TableSpec[T]
	logger   *slog.Logger
}

// NewRepository builds a repository. The cache gateway may be backed by a nil
// redis client, in which case every read goes straight to the store.
func NewRepository[T models.Persistable, C models.Criteria](
	db *sql.DB,
	gateway *cache.Gateway[T],
	compiler *query.Compiler[C],
	spec TableSpec[T],
	logger *slog.Logger,
) *Repository[T, C] {
	return &Repository[T, C]{
		db:       db,
		cache:    gateway,
		compiler: compiler,
		spec:     spec,
		logger:   logger,
	}
}

// DB exposes the underlying handle for domain stores that run child-table
// statements inside the same transaction.
func (r *Repository[T, C]) DB() *sql.DB {
	return r.db
}

// FindById resolves ids (or clientReferenceIds, per idColumn) cache-first.
// Ids found in the cache are removed from the working set before the store
// query is issued, and store results are backfilled into the cache.
func (r *Repository[T, C]) FindById(ctx context.Context, ids []string, idColumn string, includeDeleted bool) ([]T, error) {
	working := platformstrings.DedupeAndTrim(ids)
	if len(working) == 0 {
		return nil, nil
	}

	entries, missing := r.cache.Get(ctx, working)
	found := make([]T, 0, len(working))
	for _, entry := range entries {
		if entry.Entity.Base().IsDeleted && !includeDeleted {
			continue
		}
		found = append(found, entry.Entity)
	}
	if len(missing) == 0 {
		return found, nil
	}

	builder := sq.Select(r.spec.allColumns()...).
		From(r.spec.Table).
		Where(sq.Eq{idColumn: missing}).
		PlaceholderFormat(sq.Dollar)
	if !includeDeleted {
		builder = builder.Where(sq.Eq{"is_deleted": false})
	}
	stored, err := r.queryRows(ctx, builder)
	if err != nil {
		return nil, err
	}

	r.cache.Put(ctx, stored, cache.StateConfirmed)
	return dedupeEntities(append(found, stored...)), nil
}

// Search compiles the criteria once and runs the shared predicate set twice:
// a count without pagination, then the page itself. The count is computed
// once per request, not once per page.
func (r *Repository[T, C]) Search(ctx context.Context, crit C) ([]T, int64, error) {
	pred, err := r.compiler.Compile(crit)
	if err != nil {
		return nil, 0, err
	}
	core := crit.Core()

	countSQL, countArgs, err := sq.Select("COUNT(*)").
		From(r.spec.Table).
		Where(pred).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", sentinel.ErrQueryBuild, err)
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", r.spec.Table, err)
	}

	page := sq.Select(r.spec.allColumns()...).
		From(r.spec.Table).
		Where(pred).
		OrderBy("created_time ASC", "id ASC").
		PlaceholderFormat(sq.Dollar)
	if core.Limit > 0 {
		page = page.Limit(uint64(core.Limit))
	}
	if core.Offset > 0 {
		page = page.Offset(uint64(core.Offset))
	}
	entities, err := r.queryRows(ctx, page)
	if err != nil {
		return nil, 0, err
	}
	return entities, total, nil
}

// Create inserts the batch in one statement inside one transaction.
func (r *Repository[T, C]) Create(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := r.CreateTx(ctx, tx, entities); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// CreateTx inserts the batch using the caller's transaction so domain stores
// can persist child rows atomically with their parents.
func (r *Repository[T, C]) CreateTx(ctx context.Context, tx *sql.Tx, entities []T) error {
	builder := sq.Insert(r.spec.Table).
		Columns(r.spec.allColumns()...).
		PlaceholderFormat(sq.Dollar)
	for _, entity := range entities {
		values := coreValues(entity.Base())
		values = append(values, r.spec.Values(entity)...)
		builder = builder.Values(values...)
	}
	sqlText, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", sentinel.ErrQueryBuild, err)
	}
	if _, err := tx.ExecContext(ctx, sqlText, args...); err != nil {
		return fmt.Errorf("insert %s: %w", r.spec.Table, err)
	}
	return nil
}

// Update writes each entity guarded by its previous row version. Rows whose
// stored version moved on are rejected and returned as conflicted; sibling
// rows in the batch still succeed.
func (r *Repository[T, C]) Update(ctx context.Context, entities []T) ([]T, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	conflicted, err := r.UpdateTx(ctx, tx, entities)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return conflicted, nil
}

// UpdateTx is Update within the caller's transaction.
func (r *Repository[T, C]) UpdateTx(ctx context.Context, tx *sql.Tx, entities []T) ([]T, error) {
	var conflicted []T
	for _, entity := range entities {
		base := entity.Base()
		setMap := sq.Eq{}
		values := coreValues(base)
		for i, col := range coreColumns {
			switch col {
			case "id", "client_reference_id", "tenant_id", "created_by", "created_time":
				continue
			}
			setMap[col] = values[i]
		}
		domainValues := r.spec.Values(entity)
		for i, col := range r.spec.Columns {
			setMap[col] = domainValues[i]
		}

		sqlText, args, err := sq.Update(r.spec.Table).
			SetMap(setMap).
			Where(sq.Eq{"id": base.Id, "row_version": base.RowVersion - 1}).
			PlaceholderFormat(sq.Dollar).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sentinel.ErrQueryBuild, err)
		}
		res, err := tx.ExecContext(ctx, sqlText, args...)
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", r.spec.Table, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", r.spec.Table, err)
		}
		if affected == 0 {
			r.logger.Warn("row version conflict",
				"table", r.spec.Table,
				"id", base.Id,
				"rowVersion", base.RowVersion-1,
			)
			conflicted = append(conflicted, entity)
		}
	}
	return conflicted, nil
}

func (r *Repository[T, C]) queryRows(ctx context.Context, builder sq.SelectBuilder) ([]T, error) {
	sqlText, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrQueryBuild, err)
	}
	rows, err := r.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.spec.Table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		entity, err := r.spec.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.spec.Table, err)
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

func dedupeEntities[T models.Persistable](in []T) []T {
	seen := make(map[string]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, entity := range in {
		key := entity.Base().Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, entity)
	}
	return out
}
