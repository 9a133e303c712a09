package loadbalancer

import (
	"errors"
	"sync"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
	"github.com/angeloszaimis/relay-balancer/internal/strategy"
)

// ErrEmptyPool is returned by Select when the pool holds no backends.
var ErrEmptyPool = errors.New("backend pool is empty")

// Pool is the ordered, fixed set of backends plus the selection state
// shared by every relay: the round-robin cursor and the sticky map.
// Both are only touched while mu is held.
//
// Sticky entries are created lazily and never expire.
type Pool struct {
	backends []*backend.Backend

	mutex      sync.Mutex
	strategies map[strategy.Algorithm]strategy.Strategy
	sticky     map[string]string
}

// NewPool builds a pool over backends in the given order.
func NewPool(backends ...*backend.Backend) *Pool {
	return &Pool{
		backends: backends,
		strategies: make(map[strategy.Algorithm]strategy.Strategy),
		sticky: make(map[string]string),
	}
}

// Backends returns the backends in pool order. The slice must not be
// modified.
func (p *Pool) Backends() []*backend.Backend {
	return p.backends
}

// Len returns the number of backends.
func (p *Pool) Len() int {
	return len(p.backends)
}

// Lookup finds a backend by name.
func (p *Pool) Lookup(name string) (*backend.Backend, bool) {
	for _, b := range p.backends {
		if b.Name() == name {
			return b, true
		}
	}
	return nil, false
}

// Candidates returns the healthy backends in pool order. When none is
// healthy it falls back to the whole pool.
func (p *Pool) Candidates() []*backend.Backend {
	healthy := p.filterHealthyBackends()
	if len(healthy) == 0 {
		return p.backends
	}
	return healthy
}

// Select picks a backend for clientID. With sticky set, an existing mapping
// wins as long as its backend is still a candidate; otherwise the algorithm
// decides and the mapping is overwritten. The only error is ErrEmptyPool.
func (p *Pool) Select(alg strategy.Algorithm, sticky bool, clientID string) (*backend.Backend, error) {
	if len(p.backends) == 0 {
		return nil, ErrEmptyPool
	}

	candidates := p.Candidates()

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if sticky {
		if name, ok := p.sticky[clientID]; ok {
			for _, b := range candidates {
				if b.Name() == name {
					return b, nil
				}
			}
		}
	}

	chosen := candidates[0]
	if strat := p.strategyFor(alg); strat != nil {
		if b := strat.SelectBackend(candidates); b != nil {
			chosen = b
		}
	}

	if sticky {
		p.sticky[clientID] = chosen.Name()
	}

	return chosen, nil
}

// strategyFor returns the pool's instance for alg, building it on first
// use so per-algorithm state such as the round-robin cursor lives as long as
// the pool. Unknown algorithms yield nil. Callers hold p.mutex.
func (p *Pool) strategyFor(alg strategy.Algorithm) strategy.Strategy {
	if strat, ok := p.strategies[alg]; ok {
		return strat
	}
	strat, err := strategy.New(alg)
	if err != nil {
		return nil
	}
	p.strategies[alg] = strat
	return strat
}

// StickyTarget returns the backend name clientID is pinned to, if any.
func (p *Pool) StickyTarget(clientID string) (string, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	name, ok := p.sticky[clientID]
	return name, ok
}

func (p *Pool) filterHealthyBackends() []*backend.Backend {
	healthy := make([]*backend.Backend, 0, len(p.backends))

	for _, b := range p.backends {
		if b.IsHealthy() {
			healthy = append(healthy, b)
		}
	}

	return healthy
}
