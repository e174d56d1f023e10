// Package scanner orchestrates the scan pipeline: freshness check, pending
// record, queued background execution, and the single terminal write.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/metrics"
	"github.com/axescan/axescan/internal/model"
	"github.com/axescan/axescan/internal/score"
	"github.com/axescan/axescan/internal/store"
	"github.com/axescan/axescan/internal/urlnorm"
)

// Session is one live browser session. The context carries the page target
// for chromedp actions.
type Session interface {
	Context() context.Context
	Close()
}

// SessionFactory launches browser sessions.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// SessionFactoryFunc adapts a function to SessionFactory.
type SessionFactoryFunc func(ctx context.Context) (Session, error)

func (f SessionFactoryFunc) NewSession(ctx context.Context) (Session, error) { return f(ctx) }

// Navigator drives the page to a target URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// RuleRunner executes the accessibility rule engine against the loaded page.
type RuleRunner interface {
	Run(ctx context.Context, scanID string) (*model.Findings, error)
}

// Inspector extracts metadata from the rendered page. Best-effort; failures
// never fail a scan.
type Inspector interface {
	Inspect(ctx context.Context) (*model.PageMeta, error)
}

// Config controls orchestration policy.
type Config struct {
	// FreshnessWindow is how far back a completed scan of the same URL is
	// reused instead of scanning again.
	FreshnessWindow time.Duration

	// Workers is the number of concurrent scan executors.
	Workers int

	// QueueSize is the execution queue capacity. A full queue rejects new
	// work instead of blocking initiation.
	QueueSize int
}

func DefaultConfig() Config {
	return Config{
		FreshnessWindow: 15 * time.Minute,
		Workers:         2,
		QueueSize:       32,
	}
}

func (c Config) withDefaults() Config {
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = 15 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
	return c
}

// InitiateResult is the synchronous answer to a scan request.
type InitiateResult struct {
	ScanID      string           `json:"scan_id"`
	Status      model.ScanStatus `json:"status"`
	Cached      bool             `json:"cached"`
	LastScanned *time.Time       `json:"last_scanned,omitempty"`
}

// Orchestrator owns the scan lifecycle. It is the only writer of terminal
// scan state.
type Orchestrator struct {
	cfg       Config
	store     store.Store
	sessions  SessionFactory
	navigator Navigator
	runner    RuleRunner
	inspector Inspector
	metrics   *metrics.Metrics
	logger    logging.Logger

	queue *queue
}

func New(cfg Config, st store.Store, sessions SessionFactory, nav Navigator, runner RuleRunner, inspector Inspector, m *metrics.Metrics, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	cfg = cfg.withDefaults()
	o := &Orchestrator{
		cfg:       cfg,
		store:     st,
		sessions:  sessions,
		navigator: nav,
		runner:    runner,
		inspector: inspector,
		metrics:   m,
		logger:    logger.With(logging.Field{Key: "component", Value: "scanner"}),
	}
	o.queue = newQueue(cfg.QueueSize)
	return o
}

// Start launches the worker pool. Workers run until Stop is called or ctx is
// cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.queue.start(ctx, o.cfg.Workers, o.runJob)
}

// Stop drains the queue and waits for in-flight scans to finish.
func (o *Orchestrator) Stop() {
	o.queue.stop()
}

// Initiate requests a scan of rawURL. A completed scan of the same URL
// within the freshness window is returned instead of starting new work.
func (o *Orchestrator) Initiate(ctx context.Context, rawURL string, principal *string) (*InitiateResult, error) {
	target, err := validateURL(rawURL)
	if err != nil {
		return nil, err
	}

	// Freshness check and pending insert are deliberately not transactional;
	// two racing requests for one URL may both scan. Duplicate work, not
	// corruption.
	recent, err := o.store.FindRecentCompleted(ctx, target, o.cfg.FreshnessWindow)
	if err != nil {
		return nil, fmt.Errorf("freshness lookup: %w", err)
	}
	if recent != nil {
		o.metrics.ScanInitiated(true)
		return &InitiateResult{
			ScanID:      recent.ID,
			Status:      recent.Status,
			Cached:      true,
			LastScanned: recent.CompletedAt,
		}, nil
	}

	scan := &model.Scan{
		ID:        uuid.NewString(),
		URL:       target,
		Status:    model.StatusPending,
		Principal: principal,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.Create(ctx, scan); err != nil {
		return nil, fmt.Errorf("create scan record: %w", err)
	}

	if !o.queue.enqueue(job{scanID: scan.ID, url: target}) {
		// No capacity: close out the record now so the caller never waits on
		// a scan that will not run.
		if _, err := o.store.Fail(ctx, scan.ID, "scan queue full", time.Now().UTC()); err != nil {
			o.logger.Error("failed to record queue-full failure",
				logging.Field{Key: "scan_id", Value: scan.ID},
				logging.Field{Key: "error", Value: err.Error()})
		}
		return nil, &QueueFullError{ScanID: scan.ID}
	}
	o.metrics.QueueDepthInc()
	o.metrics.ScanInitiated(false)

	o.logger.Info("scan queued",
		logging.Field{Key: "scan_id", Value: scan.ID},
		logging.Field{Key: "url", Value: target})
	return &InitiateResult{ScanID: scan.ID, Status: model.StatusPending}, nil
}

// Get returns the scan record for polling callers.
func (o *Orchestrator) Get(ctx context.Context, scanID string) (*model.Scan, error) {
	return o.store.Get(ctx, scanID)
}

// List returns up to limit scans, newest first.
func (o *Orchestrator) List(ctx context.Context, limit int) ([]*model.Scan, error) {
	return o.store.ListRecent(ctx, limit)
}

func (o *Orchestrator) runJob(ctx context.Context, j job) {
	o.metrics.QueueDepthDec()
	start := time.Now()
	status := o.execute(ctx, j)
	o.metrics.ScanFinished(string(status), time.Since(start))
}

// execute runs the pipeline for one scan and writes its terminal state.
// Pipeline errors become a failed record; only store unavailability escapes
// into the log as an infrastructure fault.
func (o *Orchestrator) execute(ctx context.Context, j job) model.ScanStatus {
	logger := o.logger.With(
		logging.Field{Key: "scan_id", Value: j.scanID},
		logging.Field{Key: "url", Value: j.url})

	session, err := o.sessions.NewSession(ctx)
	if err != nil {
		return o.fail(ctx, logger, j.scanID, err)
	}
	defer session.Close()
	pageCtx := session.Context()

	if err := o.navigator.Navigate(pageCtx, j.url); err != nil {
		return o.fail(ctx, logger, j.scanID, err)
	}

	findings, err := o.runner.Run(pageCtx, j.scanID)
	if err != nil {
		return o.fail(ctx, logger, j.scanID, err)
	}

	var meta *model.PageMeta
	if o.inspector != nil {
		if meta, err = o.inspector.Inspect(pageCtx); err != nil {
			logger.Warn("page metadata extraction failed",
				logging.Field{Key: "error", Value: err.Error()})
			meta = nil
		}
	}

	result := score.Compute(findings.Violations, findings.Passes)
	applied, err := o.store.Complete(ctx, j.scanID, result, findings, meta, time.Now().UTC())
	if err != nil {
		// Nothing left to write the failure to. Surface it as an
		// infrastructure fault and let the janitor reap the record.
		logger.Error("store unavailable, scan result lost",
			logging.Field{Key: "error", Value: err.Error()})
		return model.StatusFailed
	}
	if !applied {
		logger.Warn("scan already terminal, result discarded")
		return model.StatusCompleted
	}

	logger.Info("scan completed",
		logging.Field{Key: "score", Value: result},
		logging.Field{Key: "violations", Value: len(findings.Violations)},
		logging.Field{Key: "passes", Value: len(findings.Passes)})
	return model.StatusCompleted
}

func (o *Orchestrator) fail(ctx context.Context, logger logging.Logger, scanID string, cause error) model.ScanStatus {
	reason := failureReason(cause)
	logger.Warn("scan failed", logging.Field{Key: "reason", Value: reason})

	applied, err := o.store.Fail(ctx, scanID, reason, time.Now().UTC())
	if err != nil {
		logger.Error("store unavailable, scan failure not recorded",
			logging.Field{Key: "error", Value: err.Error()})
	} else if !applied {
		logger.Warn("scan already terminal, failure discarded")
	}
	return model.StatusFailed
}

// validateURL canonicalizes the target so equivalent spellings share one
// freshness-cache key. Only absolute http(s) URLs are accepted.
func validateURL(raw string) (string, error) {
	canonical, err := urlnorm.Canonicalize(raw)
	if err != nil {
		return "", &InvalidInputError{URL: raw, Reason: err.Error()}
	}
	return canonical, nil
}
