// Package app wires the scan pipeline together and runs the service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"github.com/axescan/axescan/internal/axe"
	"github.com/axescan/axescan/internal/browser"
	"github.com/axescan/axescan/internal/evidence"
	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/metrics"
	"github.com/axescan/axescan/internal/navigator"
	"github.com/axescan/axescan/internal/pagemeta"
	"github.com/axescan/axescan/internal/ratelimit"
	"github.com/axescan/axescan/internal/scanner"
	"github.com/axescan/axescan/internal/server"
	"github.com/axescan/axescan/internal/store"
)

// Application owns the wired components and their lifecycles.
type Application struct {
	cfg     *Config
	logger  logging.Logger
	store   store.Store
	orch    *scanner.Orchestrator
	server  *server.Server
	limiter ratelimit.Store
	cron    *cron.Cron
}

// New wires every component from cfg. The returned Application is not yet
// running; call Run.
func New(ctx context.Context, cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("axescan")
	}

	store.RegisterDefaultBackends()
	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sink, err := buildEvidenceSink(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	axeCfg := cfg.Axe
	if sink == nil {
		// No sink means no evidence capture, never a failed scan.
		axeCfg.CaptureEvidence = false
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	manager := browser.NewManager(cfg.Browser, logger)
	nav := navigator.New(cfg.Navigator, logger)
	runner := axe.NewRunner(buildScriptSource(cfg), sink, axeCfg, logger)
	inspector := pagemeta.New(logger)

	factory := scanner.SessionFactoryFunc(func(ctx context.Context) (scanner.Session, error) {
		session, err := manager.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		return session, nil
	})

	orch := scanner.New(cfg.Scanner, st, factory, nav, runner, inspector, m, logger)

	var limiter ratelimit.Store = ratelimit.Unlimited{}
	var memLimiter *ratelimit.MemoryStore
	if cfg.RateLimitEnabled {
		memLimiter = ratelimit.NewMemoryStore(cfg.RateLimit)
		limiter = memLimiter
	}

	srv := server.New(cfg.Server, orch, limiter, registry, logger)

	a := &Application{
		cfg:     cfg,
		logger:  logger.With(logging.Field{Key: "component", Value: "app"}),
		store:   st,
		orch:    orch,
		server:  srv,
		limiter: limiter,
		cron:    cron.New(),
	}
	a.scheduleJanitor(ctx, memLimiter)
	return a, nil
}

// scheduleJanitor reaps scans stuck in pending (crashed worker, lost store
// write) and sweeps idle rate-limit buckets.
func (a *Application) scheduleJanitor(ctx context.Context, memLimiter *ratelimit.MemoryStore) {
	_, err := a.cron.AddFunc("@every 1m", func() {
		sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		ids, err := a.store.FailStalePending(sweepCtx, a.cfg.StalePendingAfter, "scan abandoned: exceeded pending deadline")
		if err != nil {
			a.logger.Error("stale scan sweep failed", logging.Field{Key: "error", Value: err.Error()})
		} else if len(ids) > 0 {
			a.logger.Warn("failed stale pending scans",
				logging.Field{Key: "count", Value: len(ids)},
				logging.Field{Key: "scan_ids", Value: ids})
		}

		if memLimiter != nil {
			memLimiter.Sweep()
		}
	})
	if err != nil {
		a.logger.Error("scheduling janitor", logging.Field{Key: "error", Value: err.Error()})
	}
}

// Run starts workers, the janitor and the HTTP server, then blocks until ctx
// is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	a.orch.Start(ctx)
	a.cron.Start()

	httpSrv := a.server.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", logging.Field{Key: "addr", Value: a.cfg.Server.ListenAddr})
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http shutdown", logging.Field{Key: "error", Value: err.Error()})
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Close()
			return fmt.Errorf("http server: %w", err)
		}
	}

	a.Close()
	return nil
}

// Close stops background work and releases the store.
func (a *Application) Close() {
	a.cron.Stop()
	a.orch.Stop()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", logging.Field{Key: "error", Value: err.Error()})
	}
}

func buildEvidenceSink(cfg *Config, logger logging.Logger) (evidence.Sink, error) {
	switch cfg.Evidence.Backend {
	case "":
		return nil, nil
	case "fs":
		dir := cfg.Evidence.Dir
		if dir == "" {
			dir = "evidence"
		}
		return evidence.NewFSSink(dir)
	case "s3":
		sink, err := evidence.NewMinioSink(cfg.Evidence.S3Endpoint, cfg.Evidence.S3AccessKey,
			cfg.Evidence.S3SecretKey, cfg.Evidence.S3UseSSL, cfg.Evidence.S3Bucket)
		if err != nil {
			// Evidence is best-effort everywhere else too; degrade instead
			// of refusing to start.
			logger.Warn("object-storage evidence sink unavailable, capture disabled",
				logging.Field{Key: "error", Value: err.Error()})
			return nil, nil
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown evidence backend %q", cfg.Evidence.Backend)
	}
}

func buildScriptSource(cfg *Config) axe.ScriptSource {
	if cfg.AxeScriptPath != "" {
		return axe.FileSource{Path: cfg.AxeScriptPath}
	}
	return axe.NewCDNSource(cfg.AxeScriptURL, nil)
}
