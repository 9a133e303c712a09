// Backend starts one or more demo upstream servers for trying the balancer
// locally. Each answers every GET with a greeting naming itself, reports
// the size of POST bodies and serves /health.
//
// Usage:
//
//	go run ./scripts/backend -count 3 -port 9001
//
// The servers are named BE-1, BE-2, ... on consecutive ports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/relay-balancer/pkg/logger"
)

func main() {
	host := flag.String("host", "127.0.0.1", "interface to bind")
	port := flag.Int("port", 9001, "port of the first backend")
	count := flag.Int("count", 3, "number of backends to start")
	flag.Parse()

	log := logger.New("info", false, "dev")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for i := range *count {
		id := fmt.Sprintf("BE-%d", i+1)
		addr := net.JoinHostPort(*host, strconv.Itoa(*port+i))
		g.Go(func() error {
			return serve(ctx, addr, id, log)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("backend failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, addr, id string, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newHandler(id, log.With(slog.String("backend", id))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting backend", slog.String("backend", id), slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", id, err)
	}
	return nil
}
