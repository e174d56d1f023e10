// Package evidence stores captured violation screenshots. Capture is
// best-effort throughout; a missing or failing sink degrades to "no evidence",
// never to a failed scan.
package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaolacci/murmur3"
)

// Sink persists one PNG under a generated key and returns a stable reference
// to it.
type Sink interface {
	Put(ctx context.Context, key string, png []byte) (ref string, err error)
}

// Key derives the object key for a screenshot of the element at selector
// within a scan. The selector hash doubles as the per-run de-duplication key:
// identical selectors map to identical keys.
func Key(scanID, selector string) string {
	return fmt.Sprintf("scans/%s/%016x.png", scanID, murmur3.Sum64([]byte(selector)))
}

// FSSink writes evidence under a root directory. Suitable for single-instance
// deployments and tests.
type FSSink struct {
	root string
}

// NewFSSink creates the root directory if needed.
func NewFSSink(root string) (*FSSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence root: %w", err)
	}
	return &FSSink{root: root}, nil
}

func (s *FSSink) Put(_ context.Context, key string, png []byte) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create evidence dir: %w", err)
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write evidence: %w", err)
	}
	return path, nil
}
