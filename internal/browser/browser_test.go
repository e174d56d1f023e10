package browser

import (
	"context"
	"testing"

	"github.com/axescan/axescan/internal/logging"
)

func TestConfigDefaults_Local(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	if cfg.Profile != ProfileLocal {
		t.Errorf("profile: got %q, want %q", cfg.Profile, ProfileLocal)
	}
	if cfg.ViewportWidth != 1920 || cfg.ViewportHeight != 1080 {
		t.Errorf("viewport: got %dx%d, want 1920x1080", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	if cfg.ExecPath != "" {
		t.Errorf("local profile should not force an exec path, got %q", cfg.ExecPath)
	}
}

func TestConfigDefaults_Serverless(t *testing.T) {
	t.Parallel()

	cfg := Config{Profile: ProfileServerless}.withDefaults()
	if cfg.ExecPath == "" {
		t.Error("serverless profile requires a fixed exec path")
	}
	if cfg.ViewportWidth != 1280 || cfg.ViewportHeight != 720 {
		t.Errorf("viewport: got %dx%d, want 1280x720", cfg.ViewportWidth, cfg.ViewportHeight)
	}
}

func TestAllocatorOptions_ProfilesDiffer(t *testing.T) {
	t.Parallel()

	local := NewManager(Config{Profile: ProfileLocal}, logging.NopLogger{})
	serverless := NewManager(Config{Profile: ProfileServerless}, logging.NopLogger{})

	if len(local.allocatorOptions()) == 0 || len(serverless.allocatorOptions()) == 0 {
		t.Fatal("both profiles must produce allocator options")
	}
	// Serverless builds its flag set from scratch; local extends the
	// chromedp defaults, which are considerably larger.
	if len(serverless.allocatorOptions()) >= len(local.allocatorOptions()) {
		t.Errorf("serverless flag set (%d) should be smaller than local (%d)",
			len(serverless.allocatorOptions()), len(local.allocatorOptions()))
	}
}

// TestNewSession_LaunchAndClose exercises a real browser launch. Skipped in
// environments without a usable browser binary.
func TestNewSession_LaunchAndClose(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig(), logging.NopLogger{})
	sess, err := m.NewSession(context.Background())
	if err != nil {
		t.Skipf("skipping: environment cannot launch a browser: %v", err)
	}
	if sess.Context() == nil {
		t.Fatal("session context is nil")
	}

	sess.Close()
	// A second Close must be a no-op, not a panic.
	sess.Close()
}
