// Package browser manages headless browser sessions for page scanning.
// Each scan owns exactly one session; leaking one exhausts the host, so
// Close must run on every exit path.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/axescan/axescan/internal/logging"
)

// SessionError reports a failure to launch or attach to a browser.
type SessionError struct {
	Cause error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("browser session: %v", e.Cause)
}

func (e *SessionError) Unwrap() error { return e.Cause }

// Manager launches sessions according to its configured launch profile.
type Manager struct {
	cfg    Config
	logger logging.Logger
}

// NewManager creates a session manager. A nil logger defaults to a nop logger.
func NewManager(cfg Config, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Manager{
		cfg:    cfg.withDefaults(),
		logger: logger.With(logging.Field{Key: "component", Value: "browser"}),
	}
}

// Session is one live browser with a single tab. The tab's chromedp context
// is the execution target for navigation, script evaluation and screenshots.
type Session struct {
	ctx           context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	logger        logging.Logger
	closeOnce     sync.Once
}

// NewSession launches a browser and opens its tab. Failures surface as
// *SessionError; no page-level work should be attempted after one.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, m.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:           browserCtx,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		logger:        m.logger,
	}

	// The first Run starts the browser process; launch failures (missing
	// binary, resource exhaustion) surface here rather than on navigation.
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(m.cfg.ViewportWidth), int64(m.cfg.ViewportHeight)),
		page.SetBypassCSP(true),
	)
	if err != nil {
		s.Close()
		return nil, &SessionError{Cause: err}
	}

	m.logger.Debug("browser session started",
		logging.Field{Key: "profile", Value: string(m.cfg.Profile)})
	return s, nil
}

// Context returns the chromedp context of the session's tab.
func (s *Session) Context() context.Context { return s.ctx }

// Close tears the browser down. Safe to call more than once; only the first
// call does anything.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
		s.logger.Debug("browser session closed")
	})
}

// allocatorOptions builds the exec-allocator flag set for the configured
// profile. Both profiles disable web security and same-origin isolation: the
// rule engine is injected into arbitrary third-party pages and a page's own
// CSP must not block it (SetBypassCSP covers the document, these flags cover
// cross-origin frames and fetches).
func (m *Manager) allocatorOptions() []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption

	switch m.cfg.Profile {
	case ProfileServerless:
		opts = []chromedp.ExecAllocatorOption{
			chromedp.ExecPath(m.cfg.ExecPath),
			chromedp.NoFirstRun,
			chromedp.NoDefaultBrowserCheck,
			chromedp.Headless,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("no-zygote", true),
			chromedp.Flag("single-process", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		}
	default:
		opts = append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if m.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
		}
	}

	opts = append(opts,
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("allow-running-insecure-content", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("window-size", fmt.Sprintf("%d,%d", m.cfg.ViewportWidth, m.cfg.ViewportHeight)),
	)
	return opts
}
