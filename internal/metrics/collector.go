package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
)

type EventType string

const (
	EventBackendSelected   EventType = "backend_selected"
	EventResponseCompleted EventType = "response_completed"
	EventHealthChanged     EventType = "health_changed"
	EventRelayError        EventType = "relay_error"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Backend    string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
	ErrorKind  string
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// TrackBackends exposes live connection counts and the current health flag
// of each backend, read at scrape time. Call once, before serving traffic.
func (c *Collector) TrackBackends(backends []*backend.Backend) {
	for _, b := range backends {
		c.metrics.TrackBackend(b)
	}
}

// Emit queues an event without blocking. Events are dropped when the
// buffer is full. A nil collector is a no-op.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventBackendSelected:
		c.metrics.RecordBackendSelection(event.Backend)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Backend, event.Duration, event.StatusCode)

	case EventHealthChanged:
		c.metrics.RecordHealthChange(event.Backend, event.Healthy)

	case EventRelayError:
		c.metrics.RecordRelayError(event.ErrorKind)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}
