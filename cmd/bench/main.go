// Command bench (slotbench) drives synthetic workloads against the buffer pool
// and the journal, and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/slotpool/config"
	pmet "github.com/IvanBrykalov/slotpool/metrics/prom"
	pebblestore "github.com/IvanBrykalov/slotpool/storage/pebble"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath  string
	dataDir     string
	metricsAddr string
	pprofAddr   string
	logLevel    string
	workers     int
	duration    time.Duration
	seed        int64
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:          "slotbench",
		Short:        "Synthetic workloads for the slotpool buffer pool and journal",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", os.Getenv("SLOTPOOL_CONFIG"), "JSON config file (optional)")
	pf.StringVar(&f.dataDir, "data-dir", "", "Pebble directory (empty = temporary, removed on exit)")
	pf.StringVar(&f.metricsAddr, "http", "", "serve Prometheus metrics at addr (e.g. :8080)")
	pf.StringVar(&f.pprofAddr, "pprof", "", "serve pprof at addr (e.g. :6060)")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug|info|warn|error")
	pf.IntVar(&f.workers, "workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	pf.DurationVar(&f.duration, "duration", 10*time.Second, "benchmark duration")
	pf.Int64Var(&f.seed, "seed", time.Now().UnixNano(), "random seed")

	root.AddCommand(newPoolCmd(f), newJournalCmd(f))
	return root
}

// env is the runtime shared by the workloads.
type env struct {
	cfg     config.Config
	log     *zap.Logger
	reg     *prometheus.Registry
	mgr     *pebblestore.Manager
	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// setup resolves configuration, builds the logger and metrics registry,
// opens Pebble and starts the optional HTTP endpoints.
func setup(f *rootFlags) (*env, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	config.FromEnv(&cfg)
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.metricsAddr != "" {
		cfg.MetricsAddr = f.metricsAddr
	}

	e := &env{cfg: cfg, reg: prometheus.NewRegistry()}
	if f.dataDir != "" {
		e.cfg.Storage.DataDir = f.dataDir
	} else {
		dir, err := os.MkdirTemp("", "slotbench-*")
		if err != nil {
			return nil, err
		}
		e.cfg.Storage.DataDir = dir
		e.closers = append(e.closers, func() { _ = os.RemoveAll(dir) })
	}
	if err := e.cfg.Validate(); err != nil {
		e.Close()
		return nil, err
	}

	log, err := e.cfg.Log.Build()
	if err != nil {
		e.Close()
		return nil, err
	}
	e.log = log
	e.closers = append(e.closers, func() { _ = log.Sync() })
	// Pebble logs through the standard library logger.
	undo := zap.RedirectStdLog(log)
	e.closers = append(e.closers, undo)

	e.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sopts, err := e.cfg.StorageOptions(log.Named("storage"))
	if err != nil {
		e.Close()
		return nil, err
	}
	sopts.Metrics = pmet.NewStorage(e.reg, "slotpool", "storage", nil)
	mgr, err := pebblestore.Open(sopts)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	e.mgr = mgr
	e.closers = append(e.closers, func() {
		if err := mgr.Close(); err != nil {
			log.Warn("close storage", zap.Error(err))
		}
	})

	if f.pprofAddr != "" {
		go func() {
			log.Info("pprof: serving", zap.String("addr", f.pprofAddr))
			log.Info("pprof stopped", zap.Error(http.ListenAndServe(f.pprofAddr, nil)))
		}()
	}
	if addr := e.cfg.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{Registry: e.reg}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("metrics: serving", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", zap.Error(err))
			}
		}()
		e.closers = append(e.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}
	return e, nil
}

// runContext is canceled by SIGINT/SIGTERM or after d.
func runContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}
}

func workerCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
