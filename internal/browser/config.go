package browser

// Profile names a browser launch strategy. The profile is an explicit
// configuration value injected at startup; callers of NewSession never choose
// it per scan.
type Profile string

const (
	// ProfileLocal launches a full local browser installation with the
	// standard chromedp flag set.
	ProfileLocal Profile = "local"

	// ProfileServerless launches a minimal binary at a fixed executable path
	// with the reduced flag set constrained environments require.
	ProfileServerless Profile = "serverless"
)

// Config controls how browser sessions are launched.
type Config struct {
	Profile Profile

	// ExecPath overrides browser executable resolution. Required for the
	// serverless profile, optional for local.
	ExecPath string

	// Viewport dimensions for the session's tab. Zero values take the
	// profile default.
	ViewportWidth  int
	ViewportHeight int
}

// DefaultConfig returns the local-profile defaults.
func DefaultConfig() Config {
	return Config{Profile: ProfileLocal}
}

func (c Config) withDefaults() Config {
	if c.Profile == "" {
		c.Profile = ProfileLocal
	}
	if c.Profile == ProfileServerless && c.ExecPath == "" {
		c.ExecPath = "/usr/bin/chromium-browser"
	}
	if c.ViewportWidth == 0 || c.ViewportHeight == 0 {
		if c.Profile == ProfileServerless {
			c.ViewportWidth, c.ViewportHeight = 1280, 720
		} else {
			c.ViewportWidth, c.ViewportHeight = 1920, 1080
		}
	}
	return c
}
