package acceptor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
	"github.com/angeloszaimis/relay-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/relay-balancer/internal/metrics"
	"github.com/angeloszaimis/relay-balancer/internal/relay"
	"github.com/angeloszaimis/relay-balancer/internal/strategy"
)

const DefaultPollInterval = time.Second

// Accept errors that are neither timeouts nor a closed listener (EMFILE and
// friends) are retried after a delay that starts at minAcceptBackoff and
// doubles up to maxAcceptBackoff.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// deadlineListener is a listener whose Accept can be bounded in time.
type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

type Options struct {
	Address   string
	Algorithm strategy.Algorithm
	Sticky    bool
	// PollInterval bounds each Accept so Stop and context cancellation are
	// noticed promptly.
	PollInterval time.Duration
	Relay        relay.Options
}

type Acceptor struct {
	address      string
	pollInterval time.Duration
	pool         *loadbalancer.Pool
	relay        *relay.Relay
	logger       *slog.Logger

	algorithm atomic.Value
	sticky    atomic.Bool
	stopped   atomic.Bool

	boundAddr atomic.Value
	ready     chan struct{}

	// mu orders Serve's start against Shutdown so relays are only added
	// to inflight while serving is open.
	mu       sync.Mutex
	serving  chan struct{}
	inflight sync.WaitGroup
}

func New(pool *loadbalancer.Pool, opts Options, logger *slog.Logger, collector *metrics.Collector) *Acceptor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Algorithm == "" {
		opts.Algorithm = strategy.RoundRobin
	}

	a := &Acceptor{
		address:      opts.Address,
		pollInterval: opts.PollInterval,
		pool:         pool,
		logger:       logger.With(slog.String("component", "acceptor")),
		ready:        make(chan struct{}),
	}
	a.algorithm.Store(opts.Algorithm)
	a.sticky.Store(opts.Sticky)
	a.relay = relay.New(a, opts.Relay, logger, collector)

	return a
}

// Route implements relay.Router over the pool with the current settings.
func (a *Acceptor) Route(clientID string) (*backend.Backend, error) {
	return a.pool.Select(a.Algorithm(), a.Sticky(), clientID)
}

func (a *Acceptor) Algorithm() strategy.Algorithm {
	return a.algorithm.Load().(strategy.Algorithm)
}

// SetAlgorithm switches selection for every request routed afterwards.
func (a *Acceptor) SetAlgorithm(alg strategy.Algorithm) {
	if prev := a.algorithm.Swap(alg); prev != alg {
		a.logger.Info("Switched selection algorithm",
			slog.String("from", string(prev.(strategy.Algorithm))),
			slog.String("to", string(alg)))
	}
}

func (a *Acceptor) Sticky() bool {
	return a.sticky.Load()
}

func (a *Acceptor) SetSticky(enabled bool) {
	if a.sticky.Swap(enabled) != enabled {
		a.logger.Info("Sticky sessions toggled", slog.Bool("enabled", enabled))
	}
}

// Ready is closed once the listener is bound.
func (a *Acceptor) Ready() <-chan struct{} {
	return a.ready
}

// Addr returns the bound listener address, or nil before Ready.
func (a *Acceptor) Addr() net.Addr {
	addr, _ := a.boundAddr.Load().(net.Addr)
	return addr
}

// Serve listens and accepts until Stop is called or ctx is cancelled. It
// returns nil on a cooperative stop. Connections already handed to a relay
// keep running; use Shutdown to wait for them.
func (a *Acceptor) Serve(ctx context.Context) error {
	done, ok := a.beginServing()
	if !ok {
		return nil
	}
	defer close(done)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.address, err)
	}
	defer ln.Close()

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("listen on %s: unexpected listener %T", a.address, ln)
	}

	a.boundAddr.Store(ln.Addr())
	close(a.ready)

	a.logger.Info("Load balancer listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("algorithm", string(a.Algorithm())),
		slog.Bool("sticky", a.Sticky()),
		slog.Int("backends", a.pool.Len()))

	return a.acceptLoop(ctx, tcpLn)
}

// beginServing registers a running Serve. It reports false once Shutdown
// has started, in which case nothing may be added to inflight.
func (a *Acceptor) beginServing() (chan struct{}, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped.Load() {
		return nil, false
	}
	a.serving = make(chan struct{})
	return a.serving, true
}

func (a *Acceptor) acceptLoop(ctx context.Context, ln deadlineListener) error {
	var backoff time.Duration

	for !a.stopped.Load() && ctx.Err() == nil {
		if err := ln.SetDeadline(time.Now().Add(a.pollInterval)); err != nil {
			return fmt.Errorf("set accept deadline: %w", err)
		}

		conn, err := ln.Accept()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				continue
			case errors.Is(err, net.ErrClosed):
				return nil
			}

			backoff = nextBackoff(backoff)
			a.logger.Warn("Accept failed",
				slog.Any("err", err),
				slog.Duration("retry_in", backoff))
			sleep(ctx, backoff)
			continue
		}
		backoff = 0

		a.inflight.Add(1)
		go func() {
			defer a.inflight.Done()
			a.relay.Handle(conn)
		}()
	}

	a.logger.Info("Load balancer stopped accepting")
	return nil
}

func nextBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptBackoff
	}
	return min(prev*2, maxAcceptBackoff)
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Stop asks Serve to return after its current accept poll.
func (a *Acceptor) Stop() {
	a.stopped.Store(true)
}

// Shutdown stops accepting and waits for in-flight relays until ctx ends.
// A Serve that has not started yet will return without accepting.
func (a *Acceptor) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.Stop()
	serving := a.serving
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if serving != nil {
			<-serving
		}
		a.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight relays: %w", ctx.Err())
	}
}
