// Package navigator drives a browser tab to a target URL using a tiered wait
// strategy. Network-idle is fastest on simple pages but never fires on pages
// with long-polling or analytics traffic, so a DOM-content-loaded tier backs
// it up.
package navigator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/axescan/axescan/internal/logging"
)

// NavigationError means the page failed to load under both wait tiers. The
// orchestrator records it as a scan failure; navigation is not retried within
// a scan attempt.
type NavigationError struct {
	URL   string
	Cause error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Cause)
}

func (e *NavigationError) Unwrap() error { return e.Cause }

// Config holds the per-tier time budgets.
type Config struct {
	// NetworkIdleTimeout bounds the first tier.
	NetworkIdleTimeout time.Duration

	// IdleAfter is how long the network must stay quiet before the first
	// tier considers the page loaded.
	IdleAfter time.Duration

	// DOMContentTimeout bounds the fallback tier.
	DOMContentTimeout time.Duration

	// SettleDelay runs after the fallback tier succeeds, giving
	// late-rendering dynamic content a chance to appear.
	SettleDelay time.Duration
}

// DefaultConfig returns the standard tier budgets.
func DefaultConfig() Config {
	return Config{
		NetworkIdleTimeout: 30 * time.Second,
		IdleAfter:          2 * time.Second,
		DOMContentTimeout:  45 * time.Second,
		SettleDelay:        2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NetworkIdleTimeout <= 0 {
		c.NetworkIdleTimeout = d.NetworkIdleTimeout
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = d.IdleAfter
	}
	if c.DOMContentTimeout <= 0 {
		c.DOMContentTimeout = d.DOMContentTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = d.SettleDelay
	}
	return c
}

// Navigator loads pages into chromedp tab contexts.
type Navigator struct {
	cfg    Config
	logger logging.Logger
}

// New creates a Navigator. A nil logger defaults to a nop logger.
func New(cfg Config, logger logging.Logger) *Navigator {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Navigator{
		cfg:    cfg.withDefaults(),
		logger: logger.With(logging.Field{Key: "component", Value: "navigator"}),
	}
}

// Navigate loads url in the tab behind ctx. Tier 1 waits for network idle;
// on timeout or error tier 2 re-navigates and waits for the DOM to be ready,
// then allows a short settle delay. Failure of both tiers yields a
// *NavigationError.
func (n *Navigator) Navigate(ctx context.Context, url string) error {
	if err := n.waitNetworkIdleTier(ctx, url); err == nil {
		return nil
	} else {
		n.logger.Debug("network-idle tier failed, falling back to dom-content-loaded",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
	}

	if err := n.waitDOMContentTier(ctx, url); err != nil {
		return &NavigationError{URL: url, Cause: err}
	}
	return nil
}

func (n *Navigator) waitNetworkIdleTier(ctx context.Context, url string) error {
	tctx, cancel := context.WithTimeout(ctx, n.cfg.NetworkIdleTimeout)
	defer cancel()

	idle := waitNetworkIdle(tctx, n.cfg.IdleAfter)

	if err := chromedp.Run(tctx, network.Enable(), chromedp.Navigate(url)); err != nil {
		return err
	}

	select {
	case <-idle:
		return nil
	case <-tctx.Done():
		return tctx.Err()
	}
}

func (n *Navigator) waitDOMContentTier(ctx context.Context, url string) error {
	tctx, cancel := context.WithTimeout(ctx, n.cfg.DOMContentTimeout)
	defer cancel()

	err := chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return err
	}

	select {
	case <-time.After(n.cfg.SettleDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitNetworkIdle returns a channel that closes once no request has been in
// flight for idleAfter. The timer also starts immediately, so a page that
// never issues a request still reaches idle.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	idleCh := make(chan struct{})

	var (
		activeReqs int32
		timerMu    sync.Mutex
		timer      *time.Timer
		once       sync.Once
	)

	startTimer := func() {
		timerMu.Lock()
		defer timerMu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleCh) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})

	startTimer()
	return idleCh
}
