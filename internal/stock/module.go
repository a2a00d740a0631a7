package stock

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

const collection = "stock"

// Deps is everything the stock module needs from the platform.
type Deps struct {
	DB             *sql.DB
	Redis          *platformredis.Client
	Producer       service.Producer
	IDGen          idgen.Generator
	CacheTTL       time.Duration
	SearchLimitMax int
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Module bundles the stock pipeline.
type Module struct {
	Store   *store.Repository[*Stock, *SearchCriteria]
	Service *service.Service[*Stock]
	handler *handler.Handler[*Stock, *SearchCriteria]
}

func tableSpec() store.TableSpec[*Stock] {
	return store.TableSpec[*Stock]{
		Table:   "stock",
		Columns: []string{"product_id", "facility_id", "quantity", "transaction_type", "transacting_party_id", "reference_id"},
		NewRow: func() (*Stock, []any) {
			s := &Stock{}
			return s, []any{&s.ProductId, &s.FacilityId, &s.Quantity, &s.TransactionType, &s.TransactingPartyId, &s.ReferenceId}
		},
		Values: func(s *Stock) []any {
			return []any{s.ProductId, s.FacilityId, s.Quantity, s.TransactionType, s.TransactingPartyId, s.ReferenceId}
		},
	}
}

func compiler() *query.Compiler[*SearchCriteria] {
	return query.NewCompiler(
		query.Eq("product_id", func(c *SearchCriteria) string { return c.ProductId }),
		query.Eq("facility_id", func(c *SearchCriteria) string { return c.FacilityId }),
		query.Eq("transaction_type", func(c *SearchCriteria) string { return c.TransactionType }),
		query.Eq("reference_id", func(c *SearchCriteria) string { return c.ReferenceId }),
	)
}

// New wires the stock module. Stock records carry no locality, so the
// boundary check does not apply; the quantity rule stands in as the domain
// validator.
func New(deps Deps) *Module {
	logger := deps.Logger.With("collection", collection)

	gateway := cache.New(deps.Redis, collection, deps.CacheTTL,
		func() *Stock { return &Stock{} }, logger, deps.Metrics)
	repo := store.NewRepository(deps.DB, gateway, compiler(), tableSpec(), logger)

	syncChain := validate.NewChain[*Stock](logger,
		validate.NewRequiredFields[*Stock](),
		validate.NewIsDeleted[*Stock](),
		Quantity{},
	)
	asyncChain := validate.NewChain[*Stock](logger,
		validate.NewRequiredFields[*Stock](),
		validate.NewIsDeleted[*Stock](),
		Quantity{},
		validate.NewUnique[*Stock](repo),
		validate.NewNonExistent[*Stock](repo),
		validate.NewRowVersion[*Stock](repo),
	)

	svc := service.New[*Stock](collection, repo, gateway, deps.Producer,
		syncChain, asyncChain, enrich.New[*Stock](deps.IDGen),
		service.Topics{
			Create: "registrar-stock-create",
			Update: "registrar-stock-update",
			Delete: "registrar-stock-delete",
		},
		logger, deps.Metrics,
	)

	return &Module{
		Store:   repo,
		Service: svc,
		handler: handler.New[*Stock, *SearchCriteria](collection, svc, repo,
			func() *SearchCriteria { return &SearchCriteria{} },
			deps.SearchLimitMax, logger),
	}
}

// Register mounts the stock routes.
func (m *Module) Register(r chi.Router) {
	m.handler.Register(r)
}

// TopicHandlers returns the consumer routing for the stock topics.
func (m *Module) TopicHandlers() map[string]kafka.TopicHandler {
	return m.Service.TopicHandlers()
}
