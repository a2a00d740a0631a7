//go:build integration

package household

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"registrar/internal/platform/metrics"
	"registrar/internal/registry/cache"
	"registrar/internal/registry/models"
	"registrar/pkg/testutil/containers"
)

type StoreIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *Store
	ctx      context.Context
}

func TestStoreIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(StoreIntegrationSuite))
}

var integrationMetrics = metrics.NewWith(prometheus.NewRegistry())

func (s *StoreIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgres(s.T())

	schema, err := os.ReadFile("../../schema/schema.sql")
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(s.ctx, string(schema))
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway := cache.New(nil, "household", 0, func() *Household { return &Household{} }, logger, integrationMetrics)
	s.store = NewStore(s.postgres.DB, gateway, logger)
}

func (s *StoreIntegrationSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "household_member", "household"))
}

func (s *StoreIntegrationSuite) household(n int, members int) *Household {
	h := &Household{
		Entity: models.Entity{
			Id:                fmt.Sprintf("h-%02d", n),
			ClientReferenceId: fmt.Sprintf("crid-%02d", n),
			TenantId:          "t1",
			RowVersion:        1,
			AuditDetails:      models.AuditDetails{CreatedBy: "u1", CreatedTime: int64(1000 + n), LastModifiedBy: "u1", LastModifiedTime: int64(1000 + n)},
		},
		LocalityCode: "LOC-1",
		MemberCount:  members,
	}
	for i := 0; i < members; i++ {
		h.Members = append(h.Members, Member{
			Id:                fmt.Sprintf("m-%02d-%d", n, i),
			ClientReferenceId: fmt.Sprintf("crid-m-%02d-%d", n, i),
			HouseholdId:       h.Id,
			IndividualId:      fmt.Sprintf("i-%d", i),
			IsHeadOfHousehold: i == 0,
		})
	}
	return h
}

func (s *StoreIntegrationSuite) TestCreateAndSearch() {
	s.Require().NoError(s.store.Create(s.ctx, []*Household{
		s.household(0, 2),
		s.household(1, 0),
	}))

	found, total, err := s.store.Search(s.ctx, &SearchCriteria{
		SearchCriteria: models.SearchCriteria{TenantId: "t1", Limit: 10},
	})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Require().Len(found, 2)

	s.Run("members hydrate in one page-scoped query", func() {
		s.Len(found[0].Members, 2)
		s.True(found[0].Members[0].IsHeadOfHousehold)
		s.Empty(found[1].Members)
	})

	s.Run("locality predicate narrows", func() {
		none, total, err := s.store.Search(s.ctx, &SearchCriteria{
			SearchCriteria: models.SearchCriteria{TenantId: "t1", Limit: 10},
			LocalityCode:   "LOC-404",
		})
		s.Require().NoError(err)
		s.Empty(none)
		s.Zero(total)
	})
}

func (s *StoreIntegrationSuite) TestFindById() {
	s.Require().NoError(s.store.Create(s.ctx, []*Household{s.household(0, 1)}))

	byId, err := s.store.FindById(s.ctx, []string{"h-00"}, "id", false)
	s.Require().NoError(err)
	s.Require().Len(byId, 1)
	s.Equal("crid-00", byId[0].ClientReferenceId)

	byCrid, err := s.store.FindById(s.ctx, []string{"crid-00"}, "client_reference_id", false)
	s.Require().NoError(err)
	s.Len(byCrid, 1)
}

func (s *StoreIntegrationSuite) TestUpdateReplacesMembers() {
	original := s.household(0, 2)
	s.Require().NoError(s.store.Create(s.ctx, []*Household{original}))

	next := s.household(0, 1)
	next.RowVersion = 2
	next.Members[0].Id = "m-new"
	next.Members[0].ClientReferenceId = "crid-m-new"
	conflicted, err := s.store.Update(s.ctx, []*Household{next})
	s.Require().NoError(err)
	s.Empty(conflicted)

	found, _, err := s.store.Search(s.ctx, &SearchCriteria{
		SearchCriteria: models.SearchCriteria{TenantId: "t1", Limit: 10},
	})
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Require().Len(found[0].Members, 1)
	s.Equal("m-new", found[0].Members[0].Id)
	s.Equal(2, found[0].RowVersion)
}

func (s *StoreIntegrationSuite) TestRowVersionGuard() {
	s.Require().NoError(s.store.Create(s.ctx, []*Household{s.household(0, 0), s.household(1, 0)}))

	current := s.household(0, 0)
	current.RowVersion = 2
	stale := s.household(1, 0)
	stale.RowVersion = 5 // stored is 1, guard wants 4

	conflicted, err := s.store.Update(s.ctx, []*Household{current, stale})
	s.Require().NoError(err)
	s.Require().Len(conflicted, 1)
	s.Equal("h-01", conflicted[0].Id)

	survivors, err := s.store.FindById(s.ctx, []string{"h-00"}, "id", false)
	s.Require().NoError(err)
	s.Equal(2, survivors[0].RowVersion)
}

func (s *StoreIntegrationSuite) TestUniqueConstraint() {
	s.Require().NoError(s.store.Create(s.ctx, []*Household{s.household(0, 0)}))

	dup := s.household(9, 0)
	dup.ClientReferenceId = "crid-00"
	err := s.store.Create(s.ctx, []*Household{dup})
	s.Require().Error(err)
}
