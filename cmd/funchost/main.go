package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opentalon/funchost/internal/config"
	"github.com/opentalon/funchost/internal/description"
	"github.com/opentalon/funchost/internal/discovery"
	"github.com/opentalon/funchost/internal/host"
	"github.com/opentalon/funchost/internal/logging"
	"github.com/opentalon/funchost/internal/scheduler"
	"github.com/opentalon/funchost/internal/script"
	"github.com/opentalon/funchost/internal/state/cache"
	"github.com/opentalon/funchost/internal/state/store"
	"github.com/opentalon/funchost/internal/version"
)

type options struct {
	configPath string
	root       string
	watch      bool
	timers     bool
	invoke     string
	input      string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to config file")
	flag.StringVar(&opts.root, "root", "", "script root (overrides config root)")
	flag.BoolVar(&opts.watch, "watch", false, "re-resolve functions when the script root changes")
	flag.BoolVar(&opts.timers, "timers", false, "fire timer-triggered functions on their schedules")
	flag.StringVar(&opts.invoke, "invoke", "", "invoke the named function once and exit")
	flag.StringVar(&opts.input, "input", "", "trigger payload for -invoke")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}
	if opts.root != "" {
		cfg.Root = opts.root
	}
	if opts.watch {
		cfg.Watch.Enabled = true
	}
	if opts.timers {
		cfg.Timers.Enabled = true
	}
	if cfg.Root == "" {
		return nil, errors.New("script root is required (-root or root in config)")
	}
	return cfg, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, logCloser := logging.New(cfg.Log)
	defer logCloser.Close()
	logging.Setup(logger)
	logger.Info("starting", "version", version.Get().Version, "root", cfg.Root)

	engines := script.DefaultRegistry()
	for ext, cmd := range cfg.Scripts {
		if err := engines.Override(ext, cmd); err != nil {
			return err
		}
	}
	providers, err := description.ProvidersFromConfig(cfg.Providers, cfg.Root, engines)
	if err != nil {
		return err
	}

	registrars, closeState, err := openState(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeState()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	h := host.New(description.NewPipeline(providers...),
		host.WithWorkers(cfg.Resolve.Workers),
		host.WithLogger(logger),
		host.WithMetrics(host.NewMetrics(reg)),
		host.WithRegistrars(registrars...),
	)

	failed := reload(ctx, h, cfg.Root, logger, out)

	if opts.invoke != "" {
		res, err := h.Invoke(ctx, opts.invoke, opts.input)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Output)
		for _, name := range sortedKeys(res.Bindings) {
			fmt.Fprintf(out, "binding %s=%s\n", name, res.Bindings[name])
		}
		return nil
	}

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics, reg, logger)
		defer shutdown(srv)
	}

	if !cfg.Watch.Enabled && !cfg.Timers.Enabled {
		if failed > 0 {
			return fmt.Errorf("%d function(s) failed to load", failed)
		}
		return nil
	}

	var timers *scheduler.Scheduler
	if cfg.Timers.Enabled {
		timers = scheduler.New(h, logger, cfg.Timers.StatusDir)
		defer timers.Stop()
		timers.Sync(h.List())
	}

	if !cfg.Watch.Enabled {
		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	}

	w, err := discovery.NewWatcher(cfg.Root, cfg.Watch.DebounceDuration(), logger, func(ctx context.Context) {
		reload(ctx, h, cfg.Root, logger, out)
		if timers != nil {
			timers.Sync(h.List())
		}
	})
	if err != nil {
		return err
	}
	logger.Info("watching for changes", "root", cfg.Root)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}

// reload discovers and loads all functions, prints a summary and returns
// the number of folders that failed.
func reload(ctx context.Context, h *host.Host, root string, logger *slog.Logger, out io.Writer) int {
	folders, errs := discovery.LoadDir(root)
	for _, err := range errs {
		logger.Warn("skipping function folder", "error", err)
		fmt.Fprintf(out, "FAIL %v\n", err)
	}
	failed := len(errs)
	for _, o := range h.Load(ctx, folders) {
		if o.Err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", o.Function, o.Err)
			continue
		}
		d := o.Registration.Descriptor
		fmt.Fprintf(out, "ok   %s (%s, %s)\n", d.Name, d.Trigger().Type, o.Registration.ID)
	}
	fmt.Fprintf(out, "%d function(s) registered, %d failed\n", len(h.List()), failed)
	return failed
}

func openState(ctx context.Context, cfg *config.Config) ([]host.Registrar, func(), error) {
	var (
		registrars []host.Registrar
		closers    []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	var (
		db  *store.DB
		err error
	)
	switch cfg.State.Driver {
	case "sqlite":
		db, err = store.Open(cfg.State.DataDir)
	case "postgres":
		db, err = store.OpenPostgres(cfg.State.DSN)
	}
	if err != nil {
		return nil, nil, err
	}
	if db != nil {
		closers = append(closers, db.Close)
		registrars = append(registrars, store.NewRegistrationStore(db))
	}

	if cfg.Redis.Enabled() {
		mirror, err := cache.Dial(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, mirror.Close)
		registrars = append(registrars, mirror)
	}
	return registrars, closeAll, nil
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "listen", cfg.Listen, "path", cfg.Path)
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
