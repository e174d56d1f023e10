// Package axe injects the axe-core rule engine into a loaded page, runs it
// in the page's execution context, and normalizes the result.
package axe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/axescan/axescan/internal/evidence"
	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/model"
)

// UnavailableError means no usable rule-engine script could be loaded into
// the page.
type UnavailableError struct {
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("rule engine unavailable: %v", e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// ExecutionError means the rule engine threw or rejected while running
// in-page.
type ExecutionError struct {
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("rule engine execution: %v", e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Config controls the runner.
type Config struct {
	// CaptureEvidence enables best-effort per-node screenshots.
	CaptureEvidence bool

	// ScreenshotTimeout bounds each individual element screenshot.
	ScreenshotTimeout time.Duration
}

// DefaultConfig returns runner defaults with evidence capture off.
func DefaultConfig() Config {
	return Config{ScreenshotTimeout: 5 * time.Second}
}

func (c Config) withDefaults() Config {
	if c.ScreenshotTimeout <= 0 {
		c.ScreenshotTimeout = 5 * time.Second
	}
	return c
}

// Runner executes the rule engine against pages that have already been
// navigated.
type Runner struct {
	source ScriptSource
	sink   evidence.Sink
	cfg    Config
	logger logging.Logger
}

// NewRunner creates a Runner. sink may be nil, which disables evidence
// capture regardless of configuration. A nil logger defaults to a nop logger.
func NewRunner(source ScriptSource, sink evidence.Sink, cfg Config, logger logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Runner{
		source: source,
		sink:   sink,
		cfg:    cfg.withDefaults(),
		logger: logger.With(logging.Field{Key: "component", Value: "axe"}),
	}
}

// Raw result shapes as the engine reports them.
type axeNode struct {
	Target []string `json:"target"`
	HTML   string   `json:"html"`
}

type axeFinding struct {
	ID          string    `json:"id"`
	Impact      string    `json:"impact"`
	Description string    `json:"description"`
	Nodes       []axeNode `json:"nodes"`
}

type axeResult struct {
	Violations []axeFinding `json:"violations"`
	Passes     []axeFinding `json:"passes"`
}

const runExpr = `axe.run(document, {resultTypes: ['violations', 'passes']})` +
	`.then(r => ({violations: r.violations, passes: r.passes}))`

// Run ensures the engine is present in the page behind ctx, executes it, and
// returns normalized findings. Both result slices are non-nil on success.
// When evidence capture is enabled and scanID is non-empty, violation nodes
// are screenshotted best-effort, de-duplicated by target selector.
func (r *Runner) Run(ctx context.Context, scanID string) (*model.Findings, error) {
	if err := r.ensureEngine(ctx); err != nil {
		return nil, err
	}

	var raw axeResult
	err := chromedp.Run(ctx, chromedp.Evaluate(runExpr, &raw, awaitPromise))
	if err != nil {
		return nil, &ExecutionError{Cause: err}
	}

	findings := normalize(raw)

	if r.cfg.CaptureEvidence && r.sink != nil && scanID != "" && len(findings.Violations) > 0 {
		r.captureEvidence(ctx, scanID, findings)
	}
	return findings, nil
}

// ensureEngine makes window.axe available, injecting the script body as a
// script tag when the page does not already carry the engine.
func (r *Runner) ensureEngine(ctx context.Context) error {
	var present bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(`typeof window.axe !== 'undefined'`, &present)); err != nil {
		return &UnavailableError{Cause: err}
	}
	if present {
		return nil
	}

	script, err := r.source.Script(ctx)
	if err != nil {
		return &UnavailableError{Cause: err}
	}

	var injected bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(injectExpr(script), &injected)); err != nil {
		return &UnavailableError{Cause: err}
	}
	if !injected {
		return &UnavailableError{Cause: errors.New("injected script did not define window.axe")}
	}
	return nil
}

// injectExpr wraps a script body in a script-tag injection that reports
// whether the engine became available.
func injectExpr(script string) string {
	// json.Marshal produces a valid JS string literal for the body.
	quoted, _ := json.Marshal(script)
	return fmt.Sprintf(`(() => {
		const s = document.createElement('script');
		s.type = 'text/javascript';
		s.textContent = %s;
		document.head.appendChild(s);
		return typeof window.axe !== 'undefined';
	})()`, quoted)
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// normalize converts raw engine output to the model types. Absent lists
// become empty slices so callers never see nil.
func normalize(raw axeResult) *model.Findings {
	f := &model.Findings{
		Violations: make([]model.Violation, 0, len(raw.Violations)),
		Passes:     make([]model.Pass, 0, len(raw.Passes)),
	}

	for _, v := range raw.Violations {
		f.Violations = append(f.Violations, model.Violation{
			RuleID:      v.ID,
			Impact:      normalizeImpact(v.Impact),
			Description: v.Description,
			Nodes:       normalizeNodes(v.Nodes),
		})
	}
	for _, p := range raw.Passes {
		f.Passes = append(f.Passes, model.Pass{
			RuleID:      p.ID,
			Description: p.Description,
			Nodes:       normalizeNodes(p.Nodes),
		})
	}
	return f
}

func normalizeImpact(impact string) model.Impact {
	switch model.Impact(impact) {
	case model.ImpactCritical, model.ImpactSerious, model.ImpactModerate, model.ImpactMinor:
		return model.Impact(impact)
	default:
		// The engine reports no impact on some findings; score them as minor.
		return model.ImpactMinor
	}
}

func normalizeNodes(nodes []axeNode) []model.Node {
	out := make([]model.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, model.Node{
			// Target is a selector path; multiple segments mean nested frames.
			Target: strings.Join(n.Target, " "),
			HTML:   n.HTML,
		})
	}
	return out
}

// captureEvidence screenshots each violation node, skipping selectors already
// captured within this run. Per-node failures are logged and swallowed;
// evidence must never fail a scan.
func (r *Runner) captureEvidence(ctx context.Context, scanID string, findings *model.Findings) {
	seen := make(map[string]struct{})

	for vi := range findings.Violations {
		nodes := findings.Violations[vi].Nodes
		for ni := range nodes {
			sel := nodes[ni].Target
			if sel == "" {
				continue
			}
			if _, dup := seen[sel]; dup {
				continue
			}
			seen[sel] = struct{}{}

			var buf []byte
			tctx, cancel := context.WithTimeout(ctx, r.cfg.ScreenshotTimeout)
			err := chromedp.Run(tctx, chromedp.Screenshot(sel, &buf, chromedp.ByQuery))
			cancel()
			if err != nil {
				r.logger.Warn("element screenshot failed",
					logging.Field{Key: "scan_id", Value: scanID},
					logging.Field{Key: "selector", Value: sel},
					logging.Field{Key: "error", Value: err.Error()})
				continue
			}

			ref, err := r.sink.Put(ctx, evidence.Key(scanID, sel), buf)
			if err != nil {
				r.logger.Warn("storing evidence failed",
					logging.Field{Key: "scan_id", Value: scanID},
					logging.Field{Key: "selector", Value: sel},
					logging.Field{Key: "error", Value: err.Error()})
				continue
			}
			nodes[ni].EvidenceRef = ref
		}
	}
}
