package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
	"github.com/angeloszaimis/relay-balancer/internal/metrics"
)

// Router picks the backend for a client. Implementations read the current
// algorithm and sticky setting at call time.
type Router interface {
	Route(clientID string) (*backend.Backend, error)
}

type Relay struct {
	router    Router
	opts      Options
	logger    *slog.Logger
	collector *metrics.Collector
}

func New(router Router, opts Options, logger *slog.Logger, collector *metrics.Collector) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		router:    router,
		opts:      opts.withDefaults(),
		logger:    logger.With(slog.String("component", "relay")),
		collector: collector,
	}
}

// exchange carries the per-connection state through Handle.
type exchange struct {
	conn     net.Conn
	clientID string
	state    State
	logger   *slog.Logger
}

func (e *exchange) enter(s State) {
	e.logger.Debug("Relay state",
		slog.String("from", e.state.String()),
		slog.String("to", s.String()))
	e.state = s
}

// Handle runs one complete exchange on conn and closes it. Every failure is
// contained to this connection.
func (r *Relay) Handle(conn net.Conn) {
	ex := &exchange{
		conn:     conn,
		clientID: clientIP(conn.RemoteAddr()),
		state:    StateAccepted,
		logger:   r.logger.With(slog.String("client", conn.RemoteAddr().String())),
	}

	defer conn.Close()
	defer func() {
		if rec := recover(); rec != nil {
			ex.logger.Error("Unhandled relay failure",
				slog.Any("panic", rec),
				slog.String("state", ex.state.String()))
			r.fail(ex, fmt.Errorf("panic: %v", rec))
		}
	}()

	if err := r.serve(ex); err != nil {
		r.fail(ex, err)
		return
	}
	ex.enter(StateClosed)
}

func (r *Relay) serve(ex *exchange) error {
	ex.enter(StateReadingRequest)
	request, err := ReadRequest(ex.conn, r.opts)
	if err != nil {
		return err
	}

	b, err := r.router.Route(ex.clientID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoBackend, err)
	}
	ex.enter(StateBackendSelected)
	ex.logger = ex.logger.With(slog.String("server", b.Name()))
	r.collector.Emit(metrics.MetricEvent{
		Type:    metrics.EventBackendSelected,
		Backend: b.Name(),
	})

	b.IncrementConn()
	defer b.DecrementConn()

	ex.enter(StateForwarding)
	start := time.Now()
	response, err := Forward(b, request, r.opts)
	if err != nil {
		ex.enter(StateBackendUnreachable)
		if b.SetHealthy(false) {
			ex.logger.Warn("Server is down", slog.Any("err", err))
			r.collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventHealthChanged,
				Backend: b.Name(),
				Healthy: false,
			})
		}
		return err
	}

	ex.enter(StateRelayingResponse)
	if err := ex.conn.SetWriteDeadline(time.Now().Add(r.opts.ClientTimeout)); err != nil {
		return fmt.Errorf("%w: %w", errClientWrite, err)
	}
	if _, err := ex.conn.Write(response); err != nil {
		return fmt.Errorf("%w: %w", errClientWrite, err)
	}

	elapsed := time.Since(start)
	code := statusCode(response)
	ex.logger.Info("Relayed request",
		slog.Int("status", code),
		slog.Int("bytes", len(response)),
		slog.Duration("duration", elapsed))
	r.collector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Backend:    b.Name(),
		Duration:   elapsed,
		StatusCode: code,
	})
	return nil
}

// fail reports err to metrics and, when the failure has a status, answers
// the client with a synthesized response.
func (r *Relay) fail(ex *exchange, err error) {
	f := classify(err)
	r.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventRelayError,
		ErrorKind: f.kind,
	})

	switch {
	case errors.Is(err, ErrRequestTimeout):
		ex.enter(StateRequestTimeout)
	case errors.Is(err, ErrRequestTooLarge):
		ex.enter(StateRequestTooLarge)
	}

	if f.status == 0 {
		ex.logger.Debug("Closing connection", slog.String("kind", f.kind), slog.Any("err", err))
		ex.enter(StateClosed)
		return
	}

	switch {
	case f.kind == "internal":
		ex.logger.Error("Relay failed", slog.Any("err", err))
	case f.status >= 500:
		ex.logger.Warn("Relay failed", slog.String("kind", f.kind), slog.Any("err", err))
	default:
		ex.logger.Info("Rejected request", slog.String("kind", f.kind), slog.Any("err", err))
	}

	ex.enter(StateErrorResponse)
	_ = ex.conn.SetWriteDeadline(time.Now().Add(r.opts.ClientTimeout))
	if _, werr := ex.conn.Write(errorResponse(f.status)); werr != nil {
		ex.logger.Debug("Could not send error response", slog.Any("err", werr))
	}
	ex.enter(StateClosed)
}

// clientIP returns the host part of addr, used as the sticky key.
func clientIP(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
