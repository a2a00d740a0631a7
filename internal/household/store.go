package household

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"registrar/internal/registry/cache"
	"registrar/internal/registry/models"
	"registrar/internal/registry/query"
	"registrar/internal/registry/store"
)

const (
	tableName       = "household"
	memberTableName = "household_member"
)

func tableSpec() store.TableSpec[*Household] {
	return store.TableSpec[*Household]{
		Table:   tableName,
		Columns: []string{"locality_code", "member_count"},
		NewRow: func() (*Household, []any) {
			h := &Household{}
			return h, []any{&h.LocalityCode, &h.MemberCount}
		},
		Values: func(h *Household) []any {
			return []any{h.LocalityCode, h.MemberCount}
		},
	}
}

func memberSpec() store.ChildSpec[Member] {
	return store.ChildSpec[Member]{
		Table:        memberTableName,
		ParentColumn: "household_id",
		Columns:      []string{"id", "client_reference_id", "household_id", "individual_id", "is_head_of_household"},
		NewRow: func() (*Member, []any) {
			m := &Member{}
			return m, []any{&m.Id, &m.ClientReferenceId, &m.HouseholdId, &m.IndividualId, &m.IsHeadOfHousehold}
		},
		Values: func(m Member) []any {
			return []any{m.Id, m.ClientReferenceId, m.HouseholdId, m.IndividualId, m.IsHeadOfHousehold}
		},
		ParentKey: func(m Member) string { return m.HouseholdId },
	}
}

func compiler() *query.Compiler[*SearchCriteria] {
	return query.NewCompiler(
		query.Eq("locality_code", func(c *SearchCriteria) string { return c.LocalityCode }),
	)
}

// Store is the household repository: the generic repository plus member
// child-table handling done atomically with the parent rows.
type Store struct {
	*store.Repository[*Household, *SearchCriteria]
	members store.ChildSpec[Member]
}

// NewStore builds the household store.
func NewStore(db *sql.DB, gateway *cache.Gateway[*Household], logger *slog.Logger) *Store {
	return &Store{
		Repository: store.NewRepository(db, gateway, compiler(), tableSpec(), logger),
		members:    memberSpec(),
	}
}

// Create inserts households and their members in one transaction.
func (s *Store) Create(ctx context.Context, households []*Household) error {
	if len(households) == 0 {
		return nil
	}
	tx, err := s.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := s.CreateTx(ctx, tx, households); err != nil {
		tx.Rollback()
		return err
	}
	if err := store.InsertChildren(ctx, tx, s.members, collectMembers(households)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Update applies the row-version-guarded parent updates and replaces the
// member rows of the households that survived the guard.
func (s *Store) Update(ctx context.Context, households []*Household) ([]*Household, error) {
	if len(households) == 0 {
		return nil, nil
	}
	tx, err := s.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	conflicted, err := s.UpdateTx(ctx, tx, households)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	conflictedSet := make(map[*Household]struct{}, len(conflicted))
	for _, h := range conflicted {
		conflictedSet[h] = struct{}{}
	}
	var survivors []*Household
	for _, h := range households {
		if _, ok := conflictedSet[h]; !ok {
			survivors = append(survivors, h)
		}
	}

	parentIds := make([]string, 0, len(survivors))
	for _, h := range survivors {
		parentIds = append(parentIds, h.Id)
	}
	if err := store.ReplaceChildren(ctx, tx, s.members, parentIds, collectMembers(survivors)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return conflicted, nil
}

// Search runs the compiled search and hydrates members with one batched
// query over the result page's household ids.
func (s *Store) Search(ctx context.Context, crit *SearchCriteria) ([]*Household, int64, error) {
	households, total, err := s.Repository.Search(ctx, crit)
	if err != nil {
		return nil, 0, err
	}
	if err := s.hydrate(ctx, households); err != nil {
		return nil, 0, err
	}
	return households, total, nil
}

func (s *Store) hydrate(ctx context.Context, households []*Household) error {
	if len(households) == 0 {
		return nil
	}
	ids := make([]string, 0, len(households))
	for _, h := range households {
		ids = append(ids, h.Id)
	}
	grouped, err := store.HydrateChildren(ctx, s.DB(), s.members, ids)
	if err != nil {
		return err
	}
	for _, h := range households {
		h.Members = grouped[h.Id]
	}
	return nil
}

func collectMembers(households []*Household) []Member {
	var out []Member
	for _, h := range households {
		out = append(out, h.Members...)
	}
	return out
}

var _ models.Persistable = (*Household)(nil)
