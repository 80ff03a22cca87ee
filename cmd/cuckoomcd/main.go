// cuckoomcd is the cache server binary: it wires together configuration,
// logging, metrics, the cuckoo table, the request dispatcher and the TCP
// front end, wiring a prometheus.Registry and the storage engine into an
// http.ServeMux for metrics the same way a library example wires its own
// cache instance into a demo server — here the "application" being
// demonstrated is the cache server itself.
//
// © 2025 cuckoomc authors. MIT License.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cuckoomc/cuckoomc/internal/config"
	"github.com/cuckoomc/cuckoomc/internal/dispatch"
	"github.com/cuckoomc/cuckoomc/internal/logger"
	"github.com/cuckoomc/cuckoomc/internal/metrics"
	"github.com/cuckoomc/cuckoomc/internal/server"
	"github.com/cuckoomc/cuckoomc/pkg/engine"
)

// Exit codes follow the startup contract: 0 normal, 64 usage (including a
// successful -h), 65 bad config, 78 a config that only fails once every
// individual flag has already validated.
const (
	exitOK             = 0
	exitUsage          = 64
	exitBadConfig      = 65
	exitPostValidation = 78
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitUsage
		}
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, config.ErrBadConfig) {
			return exitBadConfig
		}
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitPostValidation
	}

	log, err := logger.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		return exitPostValidation
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()

	// sink's liveFn closes over table before table exists: metrics.New
	// needs a callback to poll table.Len() for its gauge, but the table's
	// own construction needs the sink already built to pass via
	// WithMetrics. The closure defers the table.Len() call until the first
	// scrape, by which point table is assigned below.
	var table *engine.Table
	sink := metrics.New(reg, func() float64 {
		if table == nil {
			return 0
		}
		return float64(table.Len())
	})

	table, err = engine.NewTable(cfg.ItemSize, cfg.Nitem, engine.WithPolicy(cfg.Policy), engine.WithMetrics(sink))
	if err != nil {
		log.Error("failed to build table", zap.Error(err))
		return exitPostValidation
	}
	defer table.Close()

	d := dispatch.New(table, dispatch.WithVersion(cfg.Version), dispatch.WithStatsSource(sink))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort), d, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx)
	}()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		registerPprof(mux)
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			log.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			_ = metricsSrv.Close()
		}()
	}

	if err := <-errCh; err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return exitPostValidation
	}
	return exitOK
}

// registerPprof wires the standard runtime profiling handlers onto the
// metrics mux so cuckoomc-inspect can pull heap and goroutine snapshots from
// a running instance without a separate debug listener.
func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
