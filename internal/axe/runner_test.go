package axe_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/axescan/axescan/internal/axe"
	"github.com/axescan/axescan/internal/browser"
	"github.com/axescan/axescan/internal/evidence"
	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/model"
	"github.com/axescan/axescan/internal/navigator"
)

// fakeEngine mimics the engine's surface: window.axe.run returning a promise.
const fakeEngine = `window.axe = {
	run: function() {
		return Promise.resolve({
			violations: [{
				id: 'image-alt',
				impact: 'critical',
				description: 'Images must have alternate text',
				nodes: [
					{target: ['#pic1'], html: '<img id="pic1">'},
					{target: ['#pic2'], html: '<img id="pic2">'}
				]
			}],
			passes: [
				{id: 'document-title', description: 'Documents must have a title', nodes: [{target: ['html']}]}
			]
		});
	}
};`

const throwingEngine = `window.axe = {
	run: function() { return Promise.reject(new Error('engine exploded')); }
};`

func loadTestPage(t *testing.T) context.Context {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>fixture</title></head><body>
			<img id="pic1" src="data:image/gif;base64,R0lGODlhAQABAAAAACw=">
			<img id="pic2" src="data:image/gif;base64,R0lGODlhAQABAAAAACw=">
		</body></html>`)
	}))
	t.Cleanup(srv.Close)

	m := browser.NewManager(browser.DefaultConfig(), logging.NopLogger{})
	sess, err := m.NewSession(context.Background())
	if err != nil {
		t.Skipf("skipping: environment cannot launch a browser: %v", err)
	}
	t.Cleanup(sess.Close)

	nav := navigator.New(navigator.DefaultConfig(), logging.NopLogger{})
	if err := nav.Navigate(sess.Context(), srv.URL); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	return sess.Context()
}

func TestRunner_RunNormalizesFindings(t *testing.T) {
	page := loadTestPage(t)

	r := axe.NewRunner(axe.StaticSource(fakeEngine), nil, axe.DefaultConfig(), logging.NopLogger{})
	findings, err := r.Run(page, "scan-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(findings.Violations) != 1 || len(findings.Passes) != 1 {
		t.Fatalf("got %d violations / %d passes", len(findings.Violations), len(findings.Passes))
	}
	v := findings.Violations[0]
	if v.RuleID != "image-alt" || v.Impact != model.ImpactCritical || len(v.Nodes) != 2 {
		t.Errorf("unexpected violation: %+v", v)
	}
}

func TestRunner_EvidenceCaptureSetsRefs(t *testing.T) {
	page := loadTestPage(t)

	sink, err := evidence.NewFSSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := axe.DefaultConfig()
	cfg.CaptureEvidence = true

	r := axe.NewRunner(axe.StaticSource(fakeEngine), sink, cfg, logging.NopLogger{})
	findings, err := r.Run(page, "scan-ev")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, n := range findings.Violations[0].Nodes {
		if n.EvidenceRef == "" {
			t.Errorf("node %q missing evidence ref", n.Target)
		}
	}
}

func TestRunner_EngineRejectionIsExecutionError(t *testing.T) {
	page := loadTestPage(t)

	r := axe.NewRunner(axe.StaticSource(throwingEngine), nil, axe.DefaultConfig(), logging.NopLogger{})
	_, err := r.Run(page, "scan-1")
	if err == nil {
		t.Fatal("expected execution error")
	}
	var execErr *axe.ExecutionError
	if !errors.As(err, &execErr) {
		t.Errorf("expected *ExecutionError, got %T: %v", err, err)
	}
}

func TestRunner_SourceFailureIsUnavailable(t *testing.T) {
	page := loadTestPage(t)

	r := axe.NewRunner(axe.FileSource{Path: "/nonexistent/axe.js"}, nil, axe.DefaultConfig(), logging.NopLogger{})
	_, err := r.Run(page, "scan-1")
	if err == nil {
		t.Fatal("expected unavailable error")
	}
	var unavailable *axe.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("expected *UnavailableError, got %T: %v", err, err)
	}
}
