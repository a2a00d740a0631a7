package individual

import (
	"database/sql"
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
	"registrar/internal/registry/query"
	"registrar/internal/registry/service"
	"registrar/internal/registry/store"
	"registrar/internal/registry/validate"
)

const collection = "individual"

// Deps is everything the individual module needs from the platform.
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

// Module bundles the individual pipeline.
type Module struct {
	Store   *store.Repository[*Individual, *SearchCriteria]
	Service *service.Service[*Individual]
	handler *handler.Handler[*Individual, *SearchCriteria]
}

func tableSpec() store.TableSpec[*Individual] {
	return store.TableSpec[*Individual]{
		Table:   "individual",
		Columns: []string{"given_name", "family_name", "date_of_birth", "gender", "mobile_number", "locality_code"},
		NewRow: func() (*Individual, []any) {
			i := &Individual{}
			return i, []any{&i.GivenName, &i.FamilyName, &i.DateOfBirth, &i.Gender, &i.MobileNumber, &i.LocalityCode}
		},
		Values: func(i *Individual) []any {
			return []any{i.GivenName, i.FamilyName, i.DateOfBirth, i.Gender, i.MobileNumber, i.LocalityCode}
		},
	}
}

func compiler() *query.Compiler[*SearchCriteria] {
	return query.NewCompiler(
		query.Eq("given_name", func(c *SearchCriteria) string { return c.GivenName }),
		query.Eq("mobile_number", func(c *SearchCriteria) string { return c.MobileNumber }),
		query.Eq("locality_code", func(c *SearchCriteria) string { return c.LocalityCode }),
	)
}

// New wires the individual module.
func New(deps Deps) *Module {
	logger := deps.Logger.With("collection", collection)

	gateway := cache.New(deps.Redis, collection, deps.CacheTTL,
		func() *Individual { return &Individual{} }, logger, deps.Metrics)
	repo := store.NewRepository(deps.DB, gateway, compiler(), tableSpec(), logger)

	syncChain := validate.NewChain[*Individual](logger,
		validate.NewRequiredFields[*Individual](),
		validate.NewIsDeleted[*Individual](),
	)
	asyncChain := validate.NewChain[*Individual](logger,
		validate.NewRequiredFields[*Individual](),
		validate.NewIsDeleted[*Individual](),
		validate.NewUnique[*Individual](repo),
		validate.NewNonExistent[*Individual](repo),
		validate.NewRowVersion[*Individual](repo),
		validate.NewBoundary[*Individual](deps.Boundary, func(i *Individual) string { return i.LocalityCode }),
	)

	svc := service.New[*Individual](collection, repo, gateway, deps.Producer,
		syncChain, asyncChain, enrich.New[*Individual](deps.IDGen),
		service.Topics{
			Create: "registrar-individual-create",
			Update: "registrar-individual-update",
			Delete: "registrar-individual-delete",
		},
		logger, deps.Metrics,
	)

	return &Module{
		Store:   repo,
		Service: svc,
		handler: handler.New[*Individual, *SearchCriteria](collection, svc, repo,
			func() *SearchCriteria { return &SearchCriteria{} },
			deps.SearchLimitMax, logger),
	}
}

// Register mounts the individual routes.
func (m *Module) Register(r chi.Router) {
	m.handler.Register(r)
}

// TopicHandlers returns the consumer routing for the individual topics.
func (m *Module) TopicHandlers() map[string]kafka.TopicHandler {
	return m.Service.TopicHandlers()
}
