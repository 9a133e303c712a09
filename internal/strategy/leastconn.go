package strategy

import (
	"github.com/angeloszaimis/relay-balancer/internal/backend"
)

type leastConnStrategy struct {
}

// SelectBackend returns the backend with the fewest active connections.
// Ties go to the earliest backend in the given order.
func (l *leastConnStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	bestBackend := backends[0]
	bestConns := bestBackend.ActiveConnections()

	for _, b := range backends[1:] {
		activeConns := b.ActiveConnections()
		if activeConns < bestConns {
			bestConns = activeConns
			bestBackend = b
		}
	}

	return bestBackend
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}
