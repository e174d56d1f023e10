package axe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

// DefaultCDNURL resolves the latest compatible engine build.
const DefaultCDNURL = "https://cdn.jsdelivr.net/npm/axe-core@4/axe.min.js"

// ScriptSource yields an executable rule-engine script body. How a body is
// obtained (pinned file, remote latest) is the source's concern; the Runner
// only requires that some compatible version loads.
type ScriptSource interface {
	Script(ctx context.Context) (string, error)
}

// CDNSource fetches the engine from a CDN and caches the body for the
// process lifetime.
type CDNSource struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	cached string
}

// NewCDNSource builds a CDN-backed source. Empty url means DefaultCDNURL; a
// nil client gets a 30s-timeout default.
func NewCDNSource(url string, client *http.Client) *CDNSource {
	if url == "" {
		url = DefaultCDNURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CDNSource{url: url, client: client}
}

func (s *CDNSource) Script(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("create script request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch rule engine script: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch rule engine script: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read rule engine script: %w", err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("fetch rule engine script: empty body from %s", s.url)
	}

	s.cached = string(body)
	return s.cached, nil
}

// FileSource reads a bundled engine script from disk, for pinned-version and
// air-gapped deployments.
type FileSource struct {
	Path string
}

func (s FileSource) Script(context.Context) (string, error) {
	body, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read rule engine script: %w", err)
	}
	return string(body), nil
}

// StaticSource serves a fixed script body. Used in tests.
type StaticSource string

func (s StaticSource) Script(context.Context) (string, error) { return string(s), nil }
