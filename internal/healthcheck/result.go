package healthcheck

import (
	"time"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
)

// Status classifies a check outcome.
type Status int

const (
	StatusUp Status = iota
	StatusTimeout
	StatusRefused
	StatusProtocolMismatch
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUp:
		return "up"
	case StatusTimeout:
		return "timeout"
	case StatusRefused:
		return "refused"
	case StatusProtocolMismatch:
		return "protocol_mismatch"
	default:
		return "error"
	}
}

// Result is the outcome of probing one backend once.
type Result struct {
	Backend   *backend.Backend
	Status    Status
	Err       error
	Latency   time.Duration
	CheckedAt time.Time
}

// Healthy reports whether the check counts as a success.
func (r Result) Healthy() bool {
	return r.Status == StatusUp
}
