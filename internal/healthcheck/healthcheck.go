package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
	"github.com/angeloszaimis/relay-balancer/internal/metrics"
)

// Mode selects how a backend is checked.
type Mode string

const (
	// ModeTCP only checks that a connection can be opened.
	ModeTCP Mode = "tcp"
	// ModeHTTP requires a 2xx answer on the health path.
	ModeHTTP Mode = "http"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 2 * time.Second
	DefaultPath     = "/health"
)

var errUnexpectedStatus = errors.New("unexpected health status")

// Options configures a Checker. Zero values fall back to the defaults.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Mode     Mode
	Path     string
}

// Checker checks a fixed set of backends on an interval.
type Checker struct {
	backends  []*backend.Backend
	interval  time.Duration
	timeout   time.Duration
	mode      Mode
	path      string
	client    *http.Client
	dialer    *net.Dialer
	logger    *slog.Logger
	collector *metrics.Collector
}

func NewChecker(backends []*backend.Backend, opts Options, logger *slog.Logger, collector *metrics.Collector) *Checker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Mode == "" {
		opts.Mode = ModeHTTP
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}

	return &Checker{
		backends: backends,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		mode:     opts.Mode,
		path:     opts.Path,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		dialer:    &net.Dialer{Timeout: opts.Timeout},
		logger:    logger,
		collector: collector,
	}
}

// Run checks all backends immediately and then once per interval until ctx
// is cancelled. Cancellation is observed between cycles; a cycle in flight
// always completes.
func (c *Checker) Run(ctx context.Context) {
	c.logger.Info("Health checker started",
		slog.Int("backends", len(c.backends)),
		slog.String("mode", string(c.mode)),
		slog.Duration("interval", c.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health checker stopped")
			return
		case <-timer.C:
			c.CheckAll(ctx)
			timer.Reset(c.interval)
		}
	}
}

// CheckAll runs one check cycle and applies the results. The returned slice
// is in pool order.
func (c *Checker) CheckAll(ctx context.Context) []Result {
	checkCtx := context.WithoutCancel(ctx)
	results := make([]Result, len(c.backends))

	var g errgroup.Group
	for i, b := range c.backends {
		g.Go(func() error {
			results[i] = c.Check(checkCtx, b)
			c.apply(results[i])
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Check tests a single backend without touching its state.
func (c *Checker) Check(ctx context.Context, b *backend.Backend) Result {
	start := time.Now()

	var err error
	switch c.mode {
	case ModeTCP:
		err = c.checkTCP(ctx, b)
	default:
		err = c.checkHTTP(ctx, b)
	}

	return Result{
		Backend:   b,
		Status:    classify(err),
		Err:       err,
		Latency:   time.Since(start),
		CheckedAt: time.Now(),
	}
}

func (c *Checker) checkTCP(ctx context.Context, b *backend.Backend) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", b.Address())
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Checker) checkHTTP(ctx context.Context, b *backend.Backend) error {
	healthURL := url.URL{Scheme: "http", Host: b.Address(), Path: c.path}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return err
	}
	req.Close = true

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %d", errUnexpectedStatus, res.StatusCode)
	}

	return nil
}

func (c *Checker) apply(r Result) {
	b := r.Backend
	healthy := r.Healthy()

	b.MarkChecked(r.CheckedAt)
	changed := b.SetHealthy(healthy)

	if !healthy {
		c.logger.Debug("Health check failed",
			slog.String("server", b.Name()),
			slog.String("status", r.Status.String()),
			slog.Any("err", r.Err))
	}

	if !changed {
		return
	}

	if healthy {
		c.logger.Info("Server is back up",
			slog.String("server", b.Name()),
			slog.Duration("latency", r.Latency))
	} else {
		c.logger.Warn("Server is down",
			slog.String("server", b.Name()),
			slog.String("status", r.Status.String()))
	}

	c.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventHealthChanged,
		Timestamp: r.CheckedAt,
		Backend:   b.Name(),
		Healthy:   healthy,
	})
}

func classify(err error) Status {
	if err == nil {
		return StatusUp
	}

	if errors.Is(err, errUnexpectedStatus) {
		return StatusProtocolMismatch
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return StatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return StatusRefused
	}

	// The transport reports unparsable replies as plain errors wrapped in
	// *url.Error once the connection itself succeeded.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var opErr *net.OpError
		if !errors.As(err, &opErr) {
			return StatusProtocolMismatch
		}
	}

	return StatusError
}
