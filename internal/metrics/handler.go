package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.metrics.Registry(), promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and custom exporters.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.metrics.Registry()
}
