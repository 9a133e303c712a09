package backend

import (
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// Backend represents one upstream server the balancer can route to.
// Identity fields are fixed at construction; health and connection
// counters are updated concurrently through atomics.
type Backend struct {
	host string
	port int
	name string

	healthy           atomic.Bool
	activeConnections atomic.Int64
	lastChecked       atomic.Int64
}

// New creates a Backend for host:port. An empty name defaults to the
// address. The backend starts healthy until its first check.
func New(host string, port int, name string) *Backend {
	b := &Backend{
		host: host,
		port: port,
		name: name,
	}
	if b.name == "" {
		b.name = b.Address()
	}
	b.healthy.Store(true)

	return b
}

// Host returns the backend host.
func (b *Backend) Host() string {
	return b.host
}

// Port returns the backend port.
func (b *Backend) Port() int {
	return b.port
}

// Name returns the identifier of the backend, unique within a pool.
func (b *Backend) Name() string {
	return b.name
}

// Address returns host:port suitable for net.Dial.
func (b *Backend) Address() string {
	return net.JoinHostPort(b.host, strconv.Itoa(b.port))
}

// IsHealthy returns the last known health status.
func (b *Backend) IsHealthy() bool {
	return b.healthy.Load()
}

// SetHealthy updates the backend's health status.
// Returns true if the status changed, false if it was already in that state.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	return b.healthy.Swap(healthy) != healthy
}

// MarkChecked records the time of the latest check.
func (b *Backend) MarkChecked(at time.Time) {
	b.lastChecked.Store(at.UnixNano())
}

// LastChecked returns the time of the latest check, or the zero time if the
// backend has never been checked.
func (b *Backend) LastChecked() time.Time {
	ns := b.lastChecked.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// IncrementConn increments the active connection count.
func (b *Backend) IncrementConn() {
	b.activeConnections.Add(1)
}

// DecrementConn decrements the active connection count. It never goes
// below zero.
func (b *Backend) DecrementConn() {
	for {
		cur := b.activeConnections.Load()
		if cur <= 0 {
			return
		}
		if b.activeConnections.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// ActiveConnections returns the current number of active connections.
func (b *Backend) ActiveConnections() int64 {
	return b.activeConnections.Load()
}

func (b *Backend) String() string {
	return b.name
}
