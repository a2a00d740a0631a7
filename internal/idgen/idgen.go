// Package idgen abstracts server id generation so enrichment stays
// deterministic for a fixed generator.
package idgen

import (
	"strconv"

	"github.com/google/uuid"
)

// Generator produces server-assigned entity ids.
type Generator interface {
	NewId() string
}

// UUID is the production generator.
type UUID struct{}

func NewUUID() UUID { return UUID{} }

func (UUID) NewId() string { return uuid.NewString() }

// Sequence is a deterministic generator for tests: prefix-1, prefix-2, ...
type Sequence struct {
	Prefix string
	n      int
}

func (s *Sequence) NewId() string {
	s.n++
	return s.Prefix + "-" + strconv.Itoa(s.n)
}
