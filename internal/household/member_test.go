package household

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"registrar/internal/idgen"
	"registrar/internal/registry/models"
)

type MemberHookSuite struct {
	suite.Suite
	ctx context.Context
	gen *idgen.Sequence
}

func TestMemberHookSuite(t *testing.T) {
	suite.Run(t, new(MemberHookSuite))
}

func (s *MemberHookSuite) SetupTest() {
	s.ctx = context.Background()
	s.gen = &idgen.Sequence{Prefix: "m"}
}

func (s *MemberHookSuite) TestStamping() {
	h := &Household{
		Entity: models.Entity{Id: "h1", ClientReferenceId: "crid-h1", TenantId: "t1"},
		Members: []Member{
			{ClientReferenceId: "crid-m1", IndividualId: "i1", IsHeadOfHousehold: true},
			{Id: "preassigned", ClientReferenceId: "crid-m2", IndividualId: "i2"},
		},
	}

	s.Require().NoError(memberHook(s.ctx, []*Household{h}, models.RequestMetadata{}, s.gen, 0))

	s.Run("assigns sub-ids only where missing", func() {
		s.Equal("m-1", h.Members[0].Id)
		s.Equal("preassigned", h.Members[1].Id)
	})

	s.Run("back-references the parent", func() {
		s.Equal("h1", h.Members[0].HouseholdId)
		s.Equal("h1", h.Members[1].HouseholdId)
	})

	s.Run("recomputes the member count", func() {
		s.Equal(2, h.MemberCount)
	})
}

func (s *MemberHookSuite) TestEmptyHousehold() {
	h := &Household{Entity: models.Entity{Id: "h1"}, MemberCount: 5}
	s.Require().NoError(memberHook(s.ctx, []*Household{h}, models.RequestMetadata{}, s.gen, 0))
	s.Zero(h.MemberCount)
}
