package household

import (
	"context"
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
	"registrar/internal/registry/models"
	"registrar/internal/registry/service"
	"registrar/internal/registry/validate"
)

const collection = "household"

// Deps is everything the household module needs from the platform.
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

// Module bundles the household pipeline: store, service and HTTP surface.
type Module struct {
	Store   *Store
	Service *service.Service[*Household]
	handler *handler.Handler[*Household, *SearchCriteria]
}

// New wires the household module. The sync chain carries only in-memory
// checks so the accept path never touches the store; the async chain re-runs
// everything against current state.
func New(deps Deps) *Module {
	logger := deps.Logger.With("collection", collection)

	gateway := cache.New(deps.Redis, collection, deps.CacheTTL,
		func() *Household { return &Household{} }, logger, deps.Metrics)
	store := NewStore(deps.DB, gateway, logger)

	syncChain := validate.NewChain[*Household](logger,
		validate.NewRequiredFields[*Household](),
		validate.NewIsDeleted[*Household](),
	)
	asyncChain := validate.NewChain[*Household](logger,
		validate.NewRequiredFields[*Household](),
		validate.NewIsDeleted[*Household](),
		validate.NewUnique[*Household](store),
		validate.NewNonExistent[*Household](store),
		validate.NewRowVersion[*Household](store),
		validate.NewBoundary[*Household](deps.Boundary, func(h *Household) string { return h.LocalityCode }),
	)

	enricher := enrich.New(deps.IDGen, enrich.WithHook(memberHook))

	svc := service.New[*Household](collection, store, gateway, deps.Producer,
		syncChain, asyncChain, enricher,
		service.Topics{
			Create: "registrar-household-create",
			Update: "registrar-household-update",
			Delete: "registrar-household-delete",
		},
		logger, deps.Metrics,
	)

	return &Module{
		Store:   store,
		Service: svc,
		handler: handler.New[*Household, *SearchCriteria](collection, svc, store,
			func() *SearchCriteria { return &SearchCriteria{} },
			deps.SearchLimitMax, logger),
	}
}

// Register mounts the household routes.
func (m *Module) Register(r chi.Router) {
	m.handler.Register(r)
}

// TopicHandlers returns the consumer routing for the household topics.
func (m *Module) TopicHandlers() map[string]kafka.TopicHandler {
	return m.Service.TopicHandlers()
}

// memberHook stamps member sub-ids and back-references and keeps the
// denormalized member count honest.
func memberHook(_ context.Context, households []*Household, _ models.RequestMetadata, gen idgen.Generator, _ int64) error {
	for _, h := range households {
		for i := range h.Members {
			m := &h.Members[i]
			if m.Id == "" {
				m.Id = gen.NewId()
			}
			m.HouseholdId = h.Id
		}
		h.MemberCount = len(h.Members)
	}
	return nil
}
