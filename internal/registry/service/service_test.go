package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"registrar/internal/idgen"
	"registrar/internal/platform/metrics"
	"registrar/internal/registry/cache"
	"registrar/internal/registry/enrich"
	"registrar/internal/registry/models"
	"registrar/internal/registry/store"
	"registrar/internal/registry/validate"
)

type testEntity struct {
	models.Entity
	Label string `json:"label"`
}

// fakeCache records puts and drops per state.
type fakeCache struct {
	pending   []string
	confirmed []string
	dropped   []string
}

func (f *fakeCache) Put(_ context.Context, entities []*testEntity, state cache.State) {
	for _, e := range entities {
		if state == cache.StatePending {
			f.pending = append(f.pending, e.Key())
		} else {
			f.confirmed = append(f.confirmed, e.Key())
		}
	}
}

func (f *fakeCache) Drop(_ context.Context, keys []string) {
	f.dropped = append(f.dropped, keys...)
}

// fakeProducer captures published payloads.
type fakeProducer struct {
	topics   []string
	keys     []string
	payloads [][]byte
	err      error
}

func (f *fakeProducer) Publish(_ context.Context, topic, key string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, key)
	f.payloads = append(f.payloads, payload)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.Memory[*testEntity]
	cache    *fakeCache
	producer *fakeProducer
	svc      *Service[*testEntity]
	md       models.RequestMetadata
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

var testMetrics = metrics.NewWith(prometheus.NewRegistry())

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory(func() *testEntity { return &testEntity{} })
	s.cache = &fakeCache{}
	s.producer = &fakeProducer{}
	s.md = models.RequestMetadata{UserId: "user-1"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	syncChain := validate.NewChain[*testEntity](logger,
		validate.NewRequiredFields[*testEntity](),
		validate.NewIsDeleted[*testEntity](),
	)
	asyncChain := validate.NewChain[*testEntity](logger,
		validate.NewRequiredFields[*testEntity](),
		validate.NewIsDeleted[*testEntity](),
		validate.NewUnique[*testEntity](s.store),
		validate.NewNonExistent[*testEntity](s.store),
		validate.NewRowVersion[*testEntity](s.store),
	)
	enricher := enrich.New[*testEntity](&idgen.Sequence{Prefix: "id"})

	s.svc = New[*testEntity]("test", s.store, s.cache, s.producer,
		syncChain, asyncChain, enricher,
		Topics{Create: "test-create", Update: "test-update", Delete: "test-delete"},
		logger, testMetrics,
	)
}

func (s *ServiceSuite) entity(crid string) *testEntity {
	return &testEntity{Entity: models.Entity{ClientReferenceId: crid, TenantId: "t1"}}
}

func (s *ServiceSuite) bulk(entities ...*testEntity) models.BulkRequest[*testEntity] {
	return models.BulkRequest[*testEntity]{Metadata: s.md, Entities: entities}
}

func (s *ServiceSuite) persisted(crid string) *testEntity {
	found, err := s.store.FindById(s.ctx, []string{crid}, "client_reference_id", true)
	s.Require().NoError(err)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

func (s *ServiceSuite) TestAccept() {
	s.Run("partial failure: valid entities queue, invalid get errors", func() {
		good1, good2 := s.entity("a"), s.entity("b")
		bad := &testEntity{Entity: models.Entity{ClientReferenceId: "c"}} // no tenant

		resp, err := s.svc.Accept(s.ctx, s.bulk(good1, bad, good2), models.OpCreate)
		s.Require().NoError(err)

		s.Equal(models.StateAcknowledged, resp.State)
		s.Equal(2, resp.Accepted)
		s.Require().Len(resp.Errors, 1)
		s.Equal("c", resp.Errors[0].ClientReferenceId)
		s.Equal(models.CodeRequiredField, resp.Errors[0].Errors[0].Code)

		s.ElementsMatch([]string{"a", "b"}, s.cache.pending)
		s.Require().Len(s.producer.payloads, 1)
		s.Equal("test-create", s.producer.topics[0])
		s.Equal("t1", s.producer.keys[0])

		var published models.BulkRequest[*testEntity]
		s.Require().NoError(json.Unmarshal(s.producer.payloads[0], &published))
		s.Len(published.Entities, 2) // invalid entity never reaches the broker
		s.Equal(s.md, published.Metadata)
	})

	s.Run("fully invalid batch publishes nothing", func() {
		bad := &testEntity{}
		resp, err := s.svc.Accept(s.ctx, s.bulk(bad), models.OpCreate)
		s.Require().NoError(err)
		s.Zero(resp.Accepted)
		s.Empty(s.producer.payloads)
		s.Empty(s.cache.pending)
	})

	s.Run("mixed-tenant batch publishes one record per tenant", func() {
		before := len(s.producer.payloads)
		t1a, t1b := s.entity("m1"), s.entity("m2")
		t2 := &testEntity{Entity: models.Entity{ClientReferenceId: "m3", TenantId: "t2"}}

		resp, err := s.svc.Accept(s.ctx, s.bulk(t1a, t2, t1b), models.OpCreate)
		s.Require().NoError(err)
		s.Equal(3, resp.Accepted)

		s.Require().Len(s.producer.payloads, before+2)
		s.Equal([]string{"t1", "t2"}, s.producer.keys[before:])

		var first, second models.BulkRequest[*testEntity]
		s.Require().NoError(json.Unmarshal(s.producer.payloads[before], &first))
		s.Require().NoError(json.Unmarshal(s.producer.payloads[before+1], &second))
		s.Len(first.Entities, 2)
		s.Require().Len(second.Entities, 1)
		s.Equal("t2", second.Entities[0].TenantId)
	})

	s.Run("broker failure aborts, nothing acknowledged", func() {
		s.producer.err = errors.New("broker down")
		_, err := s.svc.Accept(s.ctx, s.bulk(s.entity("a")), models.OpCreate)
		s.Require().Error(err)
	})
}

func (s *ServiceSuite) TestAcceptOne() {
	resp, err := s.svc.AcceptOne(s.ctx, s.md, s.entity("solo"), models.OpCreate)
	s.Require().NoError(err)
	s.Equal(1, resp.Accepted)
	s.Len(s.producer.payloads, 1)
}

func (s *ServiceSuite) TestPersistCreate() {
	s.Run("enriches, stores and confirms the cache", func() {
		entity := s.entity("a")
		s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(entity), models.OpCreate))

		stored := s.persisted("a")
		s.Require().NotNil(stored)
		s.Equal("id-1", stored.Id)
		s.Equal(1, stored.RowVersion)
		s.Equal("user-1", stored.AuditDetails.CreatedBy)
		s.Contains(s.cache.confirmed, "id-1")
	})

	s.Run("async rejection drops the optimistic cache entry", func() {
		original := s.entity("dup")
		s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(original), models.OpCreate))

		replay := s.entity("dup")
		fresh := s.entity("fresh")
		s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(replay, fresh), models.OpCreate))

		s.Contains(s.cache.dropped, "dup")
		s.Require().NotNil(s.persisted("fresh")) // sibling survives
	})
}

func (s *ServiceSuite) TestPersistUpdate() {
	seed := func(crid string) *testEntity {
		s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(s.entity(crid)), models.OpCreate))
		return s.persisted(crid)
	}

	s.Run("bumps version and rewrites the row", func() {
		stored := seed("a")
		change := &testEntity{Entity: stored.Entity, Label: "changed"}
		s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(change), models.OpUpdate))

		after := s.persisted("a")
		s.Equal("changed", after.Label)
		s.Equal(2, after.RowVersion)
	})

	s.Run("resolves the row when addressed by clientReferenceId only", func() {
		stored := seed("c")

		change := s.entity("c") // no server id, the client never saw one
		change.RowVersion = stored.RowVersion
		change.Label = "by-crid"
		s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(change), models.OpUpdate))

		after := s.persisted("c")
		s.Equal("by-crid", after.Label)
		s.Equal(stored.RowVersion+1, after.RowVersion)
		s.NotContains(s.cache.dropped, "c")
		s.Contains(s.cache.confirmed, stored.Id)
	})

	s.Run("stale row version is rejected before the write", func() {
		stored := seed("b")
		current := &testEntity{Entity: stored.Entity, Label: "wins"}
		s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(current), models.OpUpdate))

		stale := &testEntity{Entity: stored.Entity, Label: "loses"}
		s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(stale), models.OpUpdate))

		after := s.persisted("b")
		s.Equal("wins", after.Label)
		s.Contains(s.cache.dropped, stored.Id)
	})
}

func (s *ServiceSuite) TestPersistDelete() {
	s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(s.entity("a")), models.OpCreate))
	stored := s.persisted("a")

	tombstone := &testEntity{Entity: stored.Entity}
	s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(tombstone), models.OpDelete))

	after := s.persisted("a")
	s.True(after.IsDeleted)
	s.Equal(2, after.RowVersion)

	s.Run("clientReferenceId stays reserved after delete", func() {
		err := s.svc.Persist(s.ctx, s.bulk(s.entity("a")), models.OpCreate)
		s.Require().NoError(err) // rejection is per-entity, not an infra error
		s.Contains(s.cache.dropped, "a")
	})

	s.Run("delete addressed by clientReferenceId only", func() {
		s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(s.entity("z")), models.OpCreate))
		live := s.persisted("z")

		tombstone := s.entity("z")
		tombstone.RowVersion = live.RowVersion
		s.Require().NoError(s.svc.Persist(s.ctx, s.bulk(tombstone), models.OpDelete))

		after := s.persisted("z")
		s.True(after.IsDeleted)
		s.Equal(live.RowVersion+1, after.RowVersion)
	})
}
