package main

import (
	"log/slog"

	"github.com/angeloszaimis/relay-balancer/internal/acceptor"
	"github.com/angeloszaimis/relay-balancer/internal/admin"
	"github.com/angeloszaimis/relay-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/relay-balancer/internal/metrics"
)

// newAdminAPI exposes the acceptor's live settings, the pool state and the
// collector's registry on the admin server.
func newAdminAPI(acc *acceptor.Acceptor, pool *loadbalancer.Pool, collector *metrics.Collector, log *slog.Logger) *admin.API {
	return admin.NewAPI(acc, pool, collector.Handler(), log)
}
