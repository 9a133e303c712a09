package strategy

import (
	"fmt"
	"strings"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
)

// Algorithm names a selection algorithm.
type Algorithm string

const (
	RoundRobin Algorithm = "round-robin"
	LeastConn  Algorithm = "least-conn"
)

type Strategy interface {
	SelectBackend(backends []*backend.Backend) *backend.Backend
}

// ParseAlgorithm maps user input, including the short aliases accepted by
// the control surface, to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rr", "roundrobin", "round-robin", "round_robin":
		return RoundRobin, nil
	case "least", "leastconn", "least-conn", "least_conn", "least-connections":
		return LeastConn, nil
	default:
		return "", fmt.Errorf("unknown algorithm %q", name)
	}
}

// New returns a fresh strategy instance for the algorithm.
func New(alg Algorithm) (Strategy, error) {
	switch alg {
	case RoundRobin:
		return NewRoundRobinStrategy(), nil
	case LeastConn:
		return NewLeastConnStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", alg)
	}
}
