package cache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"registrar/internal/platform/metrics"
	"registrar/internal/registry/models"
)

type testEntity struct {
	models.Entity
}

type DisabledGatewaySuite struct {
	suite.Suite
	gateway *Gateway[*testEntity]
	ctx     context.Context
}

func TestDisabledGatewaySuite(t *testing.T) {
	suite.Run(t, new(DisabledGatewaySuite))
}

// A nil client disables the cache; every operation must be a safe no-op so
// the pipeline runs unchanged without redis.
func (s *DisabledGatewaySuite) SetupTest() {
	s.ctx = context.Background()
	s.gateway = New(nil, "widget", time.Hour,
		func() *testEntity { return &testEntity{} },
		slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.NewWith(prometheus.NewRegistry()))
}

func (s *DisabledGatewaySuite) TestAllOperationsDegrade() {
	keys := []string{"a", "b"}

	found, missing := s.gateway.Get(s.ctx, keys)
	s.Empty(found)
	s.Equal(keys, missing)

	s.NotPanics(func() {
		s.gateway.Put(s.ctx, []*testEntity{{Entity: models.Entity{Id: "a"}}}, StatePending)
		s.gateway.Drop(s.ctx, keys)
	})
}

// Only CONFIRMED entries may satisfy lookups: a PENDING entry mirrors an
// unpersisted submission, and serving it would let a batch collide with its
// own optimistic cache write during async validation.
func TestDecodeServesOnlyConfirmed(t *testing.T) {
	g := New(nil, "widget", time.Hour,
		func() *testEntity { return &testEntity{} },
		slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.NewWith(prometheus.NewRegistry()))

	payload := func(state State) string {
		entity, err := json.Marshal(&testEntity{Entity: models.Entity{Id: "a", ClientReferenceId: "crid-a", TenantId: "t1"}})
		require.NoError(t, err)
		raw, err := json.Marshal(envelope{State: state, Entity: entity})
		require.NoError(t, err)
		return string(raw)
	}

	entry, ok := g.decode(payload(StateConfirmed))
	require.True(t, ok)
	require.Equal(t, "a", entry.Entity.Id)
	require.Equal(t, StateConfirmed, entry.State)

	_, ok = g.decode(payload(StatePending))
	require.False(t, ok, "optimistic accept-path entries must read as misses")

	_, ok = g.decode("{not json")
	require.False(t, ok)
}
