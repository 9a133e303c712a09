package strategy

import (
	"sync/atomic"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
)

// roundRobinStrategy cycles through the candidate list. The cursor only
// ever advances; the index is taken modulo the size of the list it is
// given, so a shrinking healthy subset does not reset the rotation.
type roundRobinStrategy struct {
	current atomic.Uint64
}

func (rb *roundRobinStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	n := rb.current.Add(1)

	index := (n - 1) % uint64(len(backends))

	return backends[index]
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}
