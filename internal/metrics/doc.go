// Package metrics provides metrics collection for the load balancer.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Backend selection counts
//   - Relayed response status codes and durations
//   - Relay failures by kind
//   - Health transitions per backend
//
// Health status and live connection counts are gauges that read the
// backend atomics at scrape time, so they never depend on delivered events.
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the request path. Emit never blocks: events are dropped when the
// buffer is full. On shutdown queued events are drained.
//
// Values are stored in Prometheus collectors on a private registry and
// served by Handler.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.TrackBackends(pool.Backends())
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Backend:    "BE-1",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
package metrics
