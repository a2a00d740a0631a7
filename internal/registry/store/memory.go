package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"registrar/internal/registry/models"
	"registrar/pkg/platform/sentinel"
	platformstrings "registrar/pkg/platform/strings"
)

// Memory is the in-memory twin of the postgres repository. It backs unit
// tests and local runs without a database, and enforces the same invariants:
// clientReferenceId unique across all time including soft-deleted rows, and
// optimistic row-version checks on update.
type Memory[T models.Persistable] struct {
	mu     sync.RWMutex
	rows   map[string]T // by server id
	byCrid map[string]string
	blank  func() T
}

// NewMemory builds an empty in-memory store.
func NewMemory[T models.Persistable](blank func() T) *Memory[T] {
	return &Memory[T]{
		rows:   make(map[string]T),
		byCrid: make(map[string]string),
		blank:  blank,
	}
}

func (m *Memory[T]) clone(entity T) T {
	raw, err := json.Marshal(entity)
	if err != nil {
		panic(fmt.Sprintf("memory store clone: %v", err))
	}
	out := m.blank()
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("memory store clone: %v", err))
	}
	return out
}

// FindById mirrors Repository.FindById without the cache layer.
func (m *Memory[T]) FindById(_ context.Context, ids []string, idColumn string, includeDeleted bool) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []T
	for _, id := range platformstrings.DedupeAndTrim(ids) {
		key := id
		if idColumn == "client_reference_id" {
			mapped, ok := m.byCrid[id]
			if !ok {
				continue
			}
			key = mapped
		}
		entity, ok := m.rows[key]
		if !ok {
			continue
		}
		if entity.Base().IsDeleted && !includeDeleted {
			continue
		}
		out = append(out, m.clone(entity))
	}
	return out, nil
}

// Create stores the batch. A clientReferenceId collision is the store-level
// unique constraint acting as the final arbiter behind the advisory
// uniqueness validator.
func (m *Memory[T]) Create(_ context.Context, entities []T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entity := range entities {
		base := entity.Base()
		if _, exists := m.byCrid[base.ClientReferenceId]; exists {
			return fmt.Errorf("client reference id %q: %w", base.ClientReferenceId, sentinel.ErrConflict)
		}
	}
	for _, entity := range entities {
		base := entity.Base()
		m.rows[base.Id] = m.clone(entity)
		m.byCrid[base.ClientReferenceId] = base.Id
	}
	return nil
}

// Update applies each entity whose previous row version matches the stored
// one; the rest are returned as conflicted without mutating the stored row.
func (m *Memory[T]) Update(_ context.Context, entities []T) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var conflicted []T
	for _, entity := range entities {
		base := entity.Base()
		stored, ok := m.rows[base.Id]
		if !ok || stored.Base().RowVersion != base.RowVersion-1 {
			conflicted = append(conflicted, entity)
			continue
		}
		m.rows[base.Id] = m.clone(entity)
	}
	return conflicted, nil
}

// Search filters on the core criteria plus an optional domain match func,
// orders by creation time then id, and pages like the SQL repository.
func (m *Memory[T]) Search(_ context.Context, crit models.SearchCriteria, match func(T) bool) ([]T, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := toSet(crit.Ids)
	crids := toSet(crit.ClientReferenceIds)

	var all []T
	for _, entity := range m.rows {
		base := entity.Base()
		if base.TenantId != crit.TenantId {
			continue
		}
		if base.IsDeleted && !crit.IncludeDeleted {
			continue
		}
		if len(ids) > 0 {
			if _, ok := ids[base.Id]; !ok {
				continue
			}
		}
		if len(crids) > 0 {
			if _, ok := crids[base.ClientReferenceId]; !ok {
				continue
			}
		}
		if crit.LastChangedSince > 0 && base.AuditDetails.LastModifiedTime < crit.LastChangedSince {
			continue
		}
		if match != nil && !match(entity) {
			continue
		}
		all = append(all, m.clone(entity))
	}

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].Base(), all[j].Base()
		if a.AuditDetails.CreatedTime != b.AuditDetails.CreatedTime {
			return a.AuditDetails.CreatedTime < b.AuditDetails.CreatedTime
		}
		return a.Id < b.Id
	})

	total := int64(len(all))
	if crit.Offset > 0 {
		if crit.Offset >= len(all) {
			return nil, total, nil
		}
		all = all[crit.Offset:]
	}
	if crit.Limit > 0 && crit.Limit < len(all) {
		all = all[:crit.Limit]
	}
	return all, total, nil
}

func toSet(in []string) map[string]struct{} {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(in))
	for _, v := range in {
		out[v] = struct{}{}
	}
	return out
}
