package project

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"registrar/internal/idgen"
	"registrar/internal/platform/kafka"
	"registrar/internal/platform/metrics"
	platformredis "registrar/internal/platform/redis"
	"registrar/internal/registry/cache"
	"registrar/internal/registry/enrich"
	"registrar/internal/registry/handler"
	"registrar/internal/registry/models"
	"registrar/internal/registry/query"
	"registrar/internal/registry/service"
	"registrar/internal/registry/store"
	"registrar/internal/registry/validate"
)

const collection = "project"

// Deps is everything the project module needs from the platform.
type Deps struct {
	DB             *sql.DB
	Redis          *platformredis.Client
	Producer       service.Producer
	Boundary       validate.BoundaryLookup
	IDGen          idgen.Generator
	CacheTTL       time.Duration
	SearchLimitMax int
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Module bundles the project pipeline.
type Module struct {
	Store   *store.Repository[*Project, *SearchCriteria]
	Service *service.Service[*Project]
	handler *handler.Handler[*Project, *SearchCriteria]
}

func tableSpec() store.TableSpec[*Project] {
	return store.TableSpec[*Project]{
		Table:   "project",
		Columns: []string{"name", "project_type_id", "parent_id", "hierarchy", "start_date", "end_date", "locality_code"},
		NewRow: func() (*Project, []any) {
			p := &Project{}
			return p, []any{&p.Name, &p.ProjectTypeId, &p.ParentId, &p.Hierarchy, &p.StartDate, &p.EndDate, &p.LocalityCode}
		},
		Values: func(p *Project) []any {
			return []any{p.Name, p.ProjectTypeId, p.ParentId, p.Hierarchy, p.StartDate, p.EndDate, p.LocalityCode}
		},
	}
}

func compiler() *query.Compiler[*SearchCriteria] {
	return query.NewCompiler(
		query.Eq("name", func(c *SearchCriteria) string { return c.Name }),
		query.Eq("project_type_id", func(c *SearchCriteria) string { return c.ProjectTypeId }),
		query.Eq("parent_id", func(c *SearchCriteria) string { return c.ParentId }),
		query.Eq("locality_code", func(c *SearchCriteria) string { return c.LocalityCode }),
		query.GtOrEq("start_date", func(c *SearchCriteria) int64 { return c.StartDate }),
	)
}

// New wires the project module. The hierarchy hook resolves parents at
// enrichment time, preferring siblings in the same batch over a store
// round-trip.
func New(deps Deps) *Module {
	logger := deps.Logger.With("collection", collection)

	gateway := cache.New(deps.Redis, collection, deps.CacheTTL,
		func() *Project { return &Project{} }, logger, deps.Metrics)
	repo := store.NewRepository(deps.DB, gateway, compiler(), tableSpec(), logger)

	syncChain := validate.NewChain[*Project](logger,
		validate.NewRequiredFields[*Project](),
		validate.NewIsDeleted[*Project](),
	)
	asyncChain := validate.NewChain[*Project](logger,
		validate.NewRequiredFields[*Project](),
		validate.NewIsDeleted[*Project](),
		validate.NewUnique[*Project](repo),
		validate.NewNonExistent[*Project](repo),
		validate.NewRowVersion[*Project](repo),
		validate.NewBoundary[*Project](deps.Boundary, func(p *Project) string { return p.LocalityCode }),
	)

	enricher := enrich.New(deps.IDGen, enrich.WithHook(hierarchyHook(repo)))

	svc := service.New[*Project](collection, repo, gateway, deps.Producer,
		syncChain, asyncChain, enricher,
		service.Topics{
			Create: "registrar-project-create",
			Update: "registrar-project-update",
			Delete: "registrar-project-delete",
		},
		logger, deps.Metrics,
	)

	return &Module{
		Store:   repo,
		Service: svc,
		handler: handler.New[*Project, *SearchCriteria](collection, svc, repo,
			func() *SearchCriteria { return &SearchCriteria{} },
			deps.SearchLimitMax, logger),
	}
}

// Register mounts the project routes.
func (m *Module) Register(r chi.Router) {
	m.handler.Register(r)
}

// TopicHandlers returns the consumer routing for the project topics.
func (m *Module) TopicHandlers() map[string]kafka.TopicHandler {
	return m.Service.TopicHandlers()
}

// hierarchyHook stamps the denormalized ancestor path: the parent's path
// extended with the parent's own id. Roots get an empty path. Parents are
// resolved from the batch first so a parent and its children can arrive
// together, then from the store in one batched lookup.
func hierarchyHook(lookup validate.Lookup[*Project]) enrich.Hook[*Project] {
	return func(ctx context.Context, projects []*Project, _ models.RequestMetadata, _ idgen.Generator, _ int64) error {
		inBatch := make(map[string]*Project, len(projects))
		for _, p := range projects {
			inBatch[p.Id] = p
		}

		var missing []string
		for _, p := range projects {
			if p.ParentId == "" {
				p.Hierarchy = ""
				continue
			}
			if _, ok := inBatch[p.ParentId]; !ok {
				missing = append(missing, p.ParentId)
			}
		}

		stored := make(map[string]*Project, len(missing))
		if len(missing) > 0 {
			parents, err := lookup.FindById(ctx, missing, "id", false)
			if err != nil {
				return fmt.Errorf("resolve project parents: %w", err)
			}
			for _, p := range parents {
				stored[p.Id] = p
			}
		}

		// Children may share a batch with their parent, in any order, so
		// paths are stamped depth-first with memoization.
		stamped := make(map[string]bool, len(projects))
		var stamp func(p *Project, walking map[string]bool) error
		stamp = func(p *Project, walking map[string]bool) error {
			if stamped[p.Id] || p.ParentId == "" {
				stamped[p.Id] = true
				return nil
			}
			if walking[p.Id] {
				return fmt.Errorf("project hierarchy cycle through %s", p.Id)
			}
			walking[p.Id] = true

			parent, inThisBatch := inBatch[p.ParentId]
			if !inThisBatch {
				var ok bool
				if parent, ok = stored[p.ParentId]; !ok {
					return fmt.Errorf("project %s references unknown parent %s", p.Key(), p.ParentId)
				}
			} else if err := stamp(parent, walking); err != nil {
				return err
			}

			if parent.Hierarchy == "" {
				p.Hierarchy = parent.Id
			} else {
				p.Hierarchy = parent.Hierarchy + "." + parent.Id
			}
			stamped[p.Id] = true
			return nil
		}
		for _, p := range projects {
			if err := stamp(p, map[string]bool{}); err != nil {
				return err
			}
		}
		return nil
	}
}
