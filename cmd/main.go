package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/angeloszaimis/relay-balancer/config"
	"github.com/angeloszaimis/relay-balancer/internal/acceptor"
	"github.com/angeloszaimis/relay-balancer/internal/admin"
	"github.com/angeloszaimis/relay-balancer/internal/backend"
	"github.com/angeloszaimis/relay-balancer/internal/healthcheck"
	"github.com/angeloszaimis/relay-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/relay-balancer/internal/metrics"
	"github.com/angeloszaimis/relay-balancer/internal/relay"
	"github.com/angeloszaimis/relay-balancer/internal/strategy"
	"github.com/angeloszaimis/relay-balancer/pkg/logger"
)

const (
	metricsBufferSize = 1000
	shutdownTimeout   = 10 * time.Second
)

func main() {
	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, loader, cfg, log); err != nil {
		log.Error("Load balancer stopped with errors", slog.Any("err", err))
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled or a server
// fails, then shuts everything down.
func run(ctx context.Context, loader *config.Loader, cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	backends := buildBackends(cfg)
	pool := loadbalancer.NewPool(backends...)

	collector := metrics.NewCollector(metricsBufferSize, log.With(slog.String("component", "metrics")))
	collector.TrackBackends(backends)

	checker := healthcheck.NewChecker(backends, healthOptions(cfg),
		log.With(slog.String("component", "healthcheck")), collector)

	acc := acceptor.New(pool, acceptorOptions(cfg), log, collector)

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		var err error
		adminSrv, err = admin.NewServer(cfg.Admin.Address, newAdminAPI(acc, pool, collector, log))
		if err != nil {
			return err
		}
	}

	if loader != nil && loader.Watch(func(c *config.Config) { applySelection(acc, c, log) }) {
		log.Info("Watching config file for selection changes")
	}

	collector.Start(ctx)
	go checker.Run(ctx)

	errCh := make(chan error, 2)
	go func() {
		errCh <- acc.Serve(ctx)
	}()
	if adminSrv != nil {
		go func() {
			errCh <- adminSrv.Serve()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errCh:
		if runErr != nil {
			log.Error("Server failed", slog.Any("err", runErr))
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	err := multierr.Append(runErr, acc.Shutdown(shutdownCtx))
	if adminSrv != nil {
		err = multierr.Append(err, adminSrv.Shutdown(shutdownCtx))
	}
	return err
}

func buildBackends(cfg *config.Config) []*backend.Backend {
	backends := make([]*backend.Backend, 0, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		backends = append(backends, backend.New(bc.Host, bc.Port, bc.DisplayName()))
	}
	return backends
}

func healthOptions(cfg *config.Config) healthcheck.Options {
	return healthcheck.Options{
		Interval: cfg.HealthCheck.Interval,
		Timeout:  cfg.HealthCheck.Timeout,
		Mode:     healthcheck.Mode(cfg.HealthCheck.Mode),
		Path:     cfg.HealthCheck.Path,
	}
}

func acceptorOptions(cfg *config.Config) acceptor.Options {
	alg, err := strategy.ParseAlgorithm(cfg.Strategy.Type)
	if err != nil {
		alg = strategy.RoundRobin
	}

	return acceptor.Options{
		Address:      cfg.Server.Address,
		Algorithm:    alg,
		Sticky:       cfg.Strategy.Sticky,
		PollInterval: cfg.Acceptor.PollInterval,
		Relay: relay.Options{
			ClientTimeout:  cfg.Relay.ClientTimeout,
			BackendTimeout: cfg.Relay.BackendTimeout,
			MaxHeaderBytes: cfg.Relay.MaxHeaderBytes,
			MaxBodyBytes:   cfg.Relay.MaxBodyBytes,
			PollInterval:   cfg.Relay.PollInterval,
			IdleGap:        cfg.Relay.IdleGap,
		},
	}
}

// applySelection applies the live-reloadable part of a changed config.
// Everything else needs a restart.
func applySelection(acc *acceptor.Acceptor, cfg *config.Config, log *slog.Logger) {
	alg, err := strategy.ParseAlgorithm(cfg.Strategy.Type)
	if err != nil {
		log.Warn("Ignoring unknown algorithm from config", slog.String("algorithm", cfg.Strategy.Type))
		return
	}
	acc.SetAlgorithm(alg)
	acc.SetSticky(cfg.Strategy.Sticky)
}
