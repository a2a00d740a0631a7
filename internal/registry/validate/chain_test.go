package validate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"registrar/internal/registry/models"
)

type testEntity struct {
	models.Entity
}

func newEntity(crid string) *testEntity {
	return &testEntity{Entity: models.Entity{ClientReferenceId: crid, TenantId: "t1"}}
}

func request(entities ...*testEntity) models.BulkRequest[*testEntity] {
	return models.BulkRequest[*testEntity]{Entities: entities}
}

// fakeValidator records which entities it saw and flags a configured subset.
type fakeValidator struct {
	name     string
	priority int
	ops      []models.Operation
	flag     map[string]bool
	err      error
	saw      [][]string
}

func (f *fakeValidator) Name() string  { return f.name }
func (f *fakeValidator) Priority() int { return f.priority }
func (f *fakeValidator) AppliesTo(op models.Operation) bool {
	if len(f.ops) == 0 {
		return true
	}
	for _, o := range f.ops {
		if o == op {
			return true
		}
	}
	return false
}

func (f *fakeValidator) Validate(_ context.Context, req models.BulkRequest[*testEntity], _ models.Operation) (models.ErrorMap[*testEntity], error) {
	var crids []string
	for _, e := range req.Entities {
		crids = append(crids, e.ClientReferenceId)
	}
	f.saw = append(f.saw, crids)
	if f.err != nil {
		return nil, f.err
	}
	errs := models.ErrorMap[*testEntity]{}
	for _, e := range req.Entities {
		if f.flag[e.ClientReferenceId] {
			errs[e] = append(errs[e], models.Error{
				Code: f.name, Type: models.ErrorTypeNonRecoverable,
			})
		}
	}
	return errs, nil
}

type ChainSuite struct {
	suite.Suite
	logger *slog.Logger
	ctx    context.Context
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func (s *ChainSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ctx = context.Background()
}

func (s *ChainSuite) TestOrdering() {
	s.Run("runs in ascending priority regardless of construction order", func() {
		second := &fakeValidator{name: "second", priority: 5}
		first := &fakeValidator{name: "first", priority: 1}
		chain := NewChain[*testEntity](s.logger, second, first)

		_, _, err := chain.Run(s.ctx, request(newEntity("a")), models.OpCreate)
		s.Require().NoError(err)
		s.NotEmpty(first.saw)
		s.NotEmpty(second.saw)
	})

	s.Run("ties keep construction order", func() {
		// Both flag the same entity; the skip filter means only the
		// validator that ran first leaves an error, exposing the order.
		a := &fakeValidator{name: "a", priority: 3, flag: map[string]bool{"x": true}}
		b := &fakeValidator{name: "b", priority: 3, flag: map[string]bool{"x": true}}
		chain := NewChain[*testEntity](s.logger, b, a)

		e := newEntity("x")
		_, errs, err := chain.Run(s.ctx, request(e), models.OpCreate)
		s.Require().NoError(err)
		s.Require().Len(errs[e], 1)
		s.Equal("b", errs[e][0].Code)
	})
}

func (s *ChainSuite) TestSkipFilter() {
	s.Run("later validators never see entities flagged earlier", func() {
		first := &fakeValidator{name: "first", priority: 1, flag: map[string]bool{"bad": true}}
		second := &fakeValidator{name: "second", priority: 2}
		chain := NewChain[*testEntity](s.logger, first, second)

		good, bad := newEntity("good"), newEntity("bad")
		valid, errs, err := chain.Run(s.ctx, request(good, bad), models.OpCreate)
		s.Require().NoError(err)

		s.Equal([]string{"good", "bad"}, first.saw[0])
		s.Equal([]string{"good"}, second.saw[0])
		s.Equal([]*testEntity{good}, valid)
		s.Len(errs[bad], 1)
	})

	s.Run("stops early when every entity has failed", func() {
		first := &fakeValidator{name: "first", priority: 1, flag: map[string]bool{"a": true, "b": true}}
		second := &fakeValidator{name: "second", priority: 2}
		chain := NewChain[*testEntity](s.logger, first, second)

		valid, _, err := chain.Run(s.ctx, request(newEntity("a"), newEntity("b")), models.OpCreate)
		s.Require().NoError(err)
		s.Empty(valid)
		s.Empty(second.saw)
	})

	s.Run("inapplicable validators are skipped entirely", func() {
		updateOnly := &fakeValidator{name: "update-only", priority: 1, ops: []models.Operation{models.OpUpdate}}
		chain := NewChain[*testEntity](s.logger, updateOnly)

		_, _, err := chain.Run(s.ctx, request(newEntity("a")), models.OpCreate)
		s.Require().NoError(err)
		s.Empty(updateOnly.saw)
	})
}

func (s *ChainSuite) TestErrorAccumulation() {
	s.Run("same-priority validators both attach errors to one entity", func() {
		a := &fakeValidator{name: "a", priority: 1, flag: map[string]bool{"x": true}}
		b := &fakeValidator{name: "b", priority: 1, flag: map[string]bool{"x": true}}
		chain := NewChain[*testEntity](s.logger, a, b)

		e := newEntity("x")
		_, errs, err := chain.Run(s.ctx, request(e), models.OpCreate)
		s.Require().NoError(err)

		// The skip filter applies from the second validator on, so only the
		// first validator's error lands.
		s.Len(errs[e], 1)
		s.Equal("a", errs[e][0].Code)
	})

	s.Run("infrastructure error aborts the whole batch", func() {
		broken := &fakeValidator{name: "broken", priority: 1, err: errors.New("store down")}
		chain := NewChain[*testEntity](s.logger, broken)

		valid, errs, err := chain.Run(s.ctx, request(newEntity("a")), models.OpCreate)
		s.Require().Error(err)
		s.Contains(err.Error(), "broken")
		s.Nil(valid)
		s.Nil(errs)
	})
}

func (s *ChainSuite) TestIdempotence() {
	first := &fakeValidator{name: "first", priority: 1, flag: map[string]bool{"bad": true}}
	chain := NewChain[*testEntity](s.logger, first)

	good, bad := newEntity("good"), newEntity("bad")
	req := request(good, bad)

	valid1, errs1, err := chain.Run(s.ctx, req, models.OpCreate)
	s.Require().NoError(err)
	valid2, errs2, err := chain.Run(s.ctx, req, models.OpCreate)
	s.Require().NoError(err)

	s.Equal(valid1, valid2)
	s.Equal(errs1, errs2)
}
