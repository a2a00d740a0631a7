package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"registrar/internal/registry/models"
)

// boundaryEntity extends the test entity with a locality code.
type boundaryEntity struct {
	testEntity
	Locality string
}

func newBoundaryEntity(tenant, crid, locality string) *boundaryEntity {
	return &boundaryEntity{
		testEntity: testEntity{Entity: models.Entity{TenantId: tenant, ClientReferenceId: crid}},
		Locality:   locality,
	}
}

// fakeBoundary records lookups and serves a fixed code set per tenant.
type fakeBoundary struct {
	known  map[string][]string
	failOn map[string]bool
	calls  []string
}

func (f *fakeBoundary) ExistingCodes(_ context.Context, tenantId string, codes []string) ([]string, error) {
	f.calls = append(f.calls, tenantId)
	if f.failOn[tenantId] {
		return nil, errors.New("boundary timeout")
	}
	return f.known[tenantId], nil
}

type BoundarySuite struct {
	suite.Suite
	ctx context.Context
}

func TestBoundarySuite(t *testing.T) {
	suite.Run(t, new(BoundarySuite))
}

func (s *BoundarySuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *BoundarySuite) validator(lookup BoundaryLookup) Boundary[*boundaryEntity] {
	return NewBoundary[*boundaryEntity](lookup, func(e *boundaryEntity) string { return e.Locality })
}

func (s *BoundarySuite) TestGrouping() {
	s.Run("one lookup per tenant, not per entity", func() {
		fake := &fakeBoundary{known: map[string][]string{"t1": {"LOC-1", "LOC-2"}}}
		v := s.validator(fake)

		errs, err := v.Validate(s.ctx, models.BulkRequest[*boundaryEntity]{Entities: []*boundaryEntity{
			newBoundaryEntity("t1", "a", "LOC-1"),
			newBoundaryEntity("t1", "b", "LOC-2"),
			newBoundaryEntity("t1", "c", "LOC-1"),
		}}, models.OpCreate)
		s.Require().NoError(err)
		s.Empty(errs)
		s.Len(fake.calls, 1)
	})

	s.Run("entities without a locality are exempt", func() {
		fake := &fakeBoundary{}
		v := s.validator(fake)

		errs, err := v.Validate(s.ctx, models.BulkRequest[*boundaryEntity]{Entities: []*boundaryEntity{
			newBoundaryEntity("t1", "a", ""),
		}}, models.OpCreate)
		s.Require().NoError(err)
		s.Empty(errs)
		s.Empty(fake.calls)
	})
}

func (s *BoundarySuite) TestOutcomes() {
	s.Run("unknown code is non-recoverable", func() {
		fake := &fakeBoundary{known: map[string][]string{"t1": {"LOC-1"}}}
		v := s.validator(fake)

		bad := newBoundaryEntity("t1", "a", "LOC-404")
		errs, err := v.Validate(s.ctx, models.BulkRequest[*boundaryEntity]{
			Entities: []*boundaryEntity{bad},
		}, models.OpCreate)
		s.Require().NoError(err)
		s.Require().Len(errs[bad], 1)
		s.Equal(models.CodeBoundaryMissing, errs[bad][0].Code)
		s.Equal(models.ErrorTypeNonRecoverable, errs[bad][0].Type)
	})

	s.Run("lookup failure fails only that tenant's group, recoverably", func() {
		fake := &fakeBoundary{
			known:  map[string][]string{"t2": {"LOC-1"}},
			failOn: map[string]bool{"t1": true},
		}
		v := s.validator(fake)

		affected := newBoundaryEntity("t1", "a", "LOC-1")
		unaffected := newBoundaryEntity("t2", "b", "LOC-1")
		errs, err := v.Validate(s.ctx, models.BulkRequest[*boundaryEntity]{
			Entities: []*boundaryEntity{affected, unaffected},
		}, models.OpCreate)
		s.Require().NoError(err)

		s.Require().Len(errs[affected], 1)
		s.Equal(models.CodeDependencyError, errs[affected][0].Code)
		s.Equal(models.ErrorTypeRecoverable, errs[affected][0].Type)
		s.NotContains(errs, unaffected)
	})
}
