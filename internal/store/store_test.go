package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/model"
	"github.com/axescan/axescan/internal/store"
)

// backends lists the store implementations exercised by the conformance
// tests. Postgres is covered by the same interface but needs a live server,
// so it is not run here.
func backends(t *testing.T) map[string]store.Store {
	t.Helper()

	sqliteStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "scans.db"), logging.NopLogger{})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]store.Store{
		"memory": store.NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func newPendingScan(url string) *model.Scan {
	return &model.Scan{
		ID:        uuid.NewString(),
		URL:       url,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func sampleFindings() *model.Findings {
	return &model.Findings{
		Violations: []model.Violation{{
			RuleID:      "image-alt",
			Impact:      model.ImpactCritical,
			Description: "Images must have alternate text",
			Nodes:       []model.Node{{Target: "img", HTML: `<img src="a.png">`}},
		}},
		Passes: []model.Pass{{RuleID: "document-title", Description: "Documents must have a title", Nodes: []model.Node{{Target: "html"}}}},
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			scan := newPendingScan("https://example.com")
			if err := s.Create(ctx, scan); err != nil {
				t.Fatalf("Create: %v", err)
			}

			got, err := s.Get(ctx, scan.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.URL != scan.URL || got.Status != model.StatusPending {
				t.Errorf("got url=%q status=%q, want url=%q status=pending", got.URL, got.Status, scan.URL)
			}
			if got.Score != nil || got.CompletedAt != nil {
				t.Errorf("pending scan should have nil score and completed_at")
			}
		})
	}
}

func TestGetUnknownID(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, uuid.NewString())
			if !errors.Is(err, store.ErrNotFound) {
				t.Errorf("Get unknown id: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestCompleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			scan := newPendingScan("https://example.com/page")
			if err := s.Create(ctx, scan); err != nil {
				t.Fatalf("Create: %v", err)
			}

			findings := sampleFindings()
			meta := &model.PageMeta{Title: "Example", Lang: "en", Description: "A page"}
			now := time.Now().UTC()
			ok, err := s.Complete(ctx, scan.ID, 82, findings, meta, now)
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if !ok {
				t.Fatal("Complete returned false for a pending scan")
			}

			got, err := s.Get(ctx, scan.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Status != model.StatusCompleted {
				t.Errorf("status = %q, want completed", got.Status)
			}
			if got.Score == nil || *got.Score != 82 {
				t.Errorf("score = %v, want 82", got.Score)
			}
			if got.CompletedAt == nil {
				t.Fatal("completed_at not set")
			}
			if got.Findings == nil || len(got.Findings.Violations) != 1 || len(got.Findings.Passes) != 1 {
				t.Fatalf("findings not round-tripped: %+v", got.Findings)
			}
			v := got.Findings.Violations[0]
			if v.RuleID != "image-alt" || v.Impact != model.ImpactCritical || len(v.Nodes) != 1 {
				t.Errorf("violation not round-tripped: %+v", v)
			}
			if got.Meta == nil || got.Meta.Title != "Example" || got.Meta.Lang != "en" {
				t.Errorf("meta not round-tripped: %+v", got.Meta)
			}
		})
	}
}

func TestTerminalWriteGuard(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			scan := newPendingScan("https://example.com/guard")
			if err := s.Create(ctx, scan); err != nil {
				t.Fatalf("Create: %v", err)
			}
			now := time.Now().UTC()

			ok, err := s.Complete(ctx, scan.ID, 100, &model.Findings{Violations: []model.Violation{}, Passes: []model.Pass{}}, nil, now)
			if err != nil || !ok {
				t.Fatalf("first Complete: ok=%v err=%v", ok, err)
			}

			// Second terminal write of either kind must be a no-op.
			ok, err = s.Fail(ctx, scan.ID, "late failure", now.Add(time.Second))
			if err != nil {
				t.Fatalf("Fail after Complete: %v", err)
			}
			if ok {
				t.Error("Fail overwrote a completed scan")
			}
			ok, err = s.Complete(ctx, scan.ID, 0, nil, nil, now.Add(time.Second))
			if err != nil {
				t.Fatalf("second Complete: %v", err)
			}
			if ok {
				t.Error("second Complete overwrote a completed scan")
			}

			got, err := s.Get(ctx, scan.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Status != model.StatusCompleted || got.Score == nil || *got.Score != 100 {
				t.Errorf("terminal state changed: status=%q score=%v", got.Status, got.Score)
			}
		})
	}
}

func TestFail(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			scan := newPendingScan("https://unreachable.invalid")
			if err := s.Create(ctx, scan); err != nil {
				t.Fatalf("Create: %v", err)
			}

			ok, err := s.Fail(ctx, scan.ID, "navigation failed: host unreachable", time.Now().UTC())
			if err != nil || !ok {
				t.Fatalf("Fail: ok=%v err=%v", ok, err)
			}

			got, err := s.Get(ctx, scan.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Status != model.StatusFailed {
				t.Errorf("status = %q, want failed", got.Status)
			}
			if got.Error == "" {
				t.Error("failure reason not recorded")
			}
			if got.Score != nil {
				t.Error("failed scan should not carry a score")
			}
		})
	}
}

func TestFindRecentCompleted(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const url = "https://example.com/cached"
			now := time.Now().UTC()

			fresh := newPendingScan(url)
			if err := s.Create(ctx, fresh); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, err := s.Complete(ctx, fresh.ID, 90, &model.Findings{Violations: []model.Violation{}, Passes: []model.Pass{}}, nil, now.Add(-5*time.Minute)); err != nil {
				t.Fatalf("Complete: %v", err)
			}

			stale := newPendingScan(url)
			if err := s.Create(ctx, stale); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, err := s.Complete(ctx, stale.ID, 50, &model.Findings{Violations: []model.Violation{}, Passes: []model.Pass{}}, nil, now.Add(-40*time.Minute)); err != nil {
				t.Fatalf("Complete: %v", err)
			}

			got, err := s.FindRecentCompleted(ctx, url, 15*time.Minute)
			if err != nil {
				t.Fatalf("FindRecentCompleted: %v", err)
			}
			if got == nil {
				t.Fatal("expected the fresh scan, got nil")
			}
			if got.ID != fresh.ID {
				t.Errorf("got scan %s, want fresh scan %s", got.ID, fresh.ID)
			}

			// Other URLs and windows that exclude every completion return nil.
			if got, err := s.FindRecentCompleted(ctx, "https://example.com/other", 15*time.Minute); err != nil || got != nil {
				t.Errorf("unknown url: got %v, %v; want nil, nil", got, err)
			}
			if got, err := s.FindRecentCompleted(ctx, url, time.Minute); err != nil || got != nil {
				t.Errorf("narrow window: got %v, %v; want nil, nil", got, err)
			}
		})
	}
}

func TestFindRecentCompletedIgnoresNonCompleted(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const url = "https://example.com/pendingonly"
			if err := s.Create(ctx, newPendingScan(url)); err != nil {
				t.Fatalf("Create: %v", err)
			}
			failed := newPendingScan(url)
			if err := s.Create(ctx, failed); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, err := s.Fail(ctx, failed.ID, "boom", time.Now().UTC()); err != nil {
				t.Fatalf("Fail: %v", err)
			}

			got, err := s.FindRecentCompleted(ctx, url, time.Hour)
			if err != nil {
				t.Fatalf("FindRecentCompleted: %v", err)
			}
			if got != nil {
				t.Errorf("got %+v, want nil for url with no completed scans", got)
			}
		})
	}
}

func TestListRecent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().UTC().Add(-time.Hour)
			var ids []string
			for i := 0; i < 5; i++ {
				scan := newPendingScan("https://example.com/list")
				scan.CreatedAt = base.Add(time.Duration(i) * time.Minute)
				if err := s.Create(ctx, scan); err != nil {
					t.Fatalf("Create: %v", err)
				}
				ids = append(ids, scan.ID)
			}

			got, err := s.ListRecent(ctx, 3)
			if err != nil {
				t.Fatalf("ListRecent: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("got %d scans, want 3", len(got))
			}
			// Newest first.
			for i, want := range []string{ids[4], ids[3], ids[2]} {
				if got[i].ID != want {
					t.Errorf("position %d: got %s, want %s", i, got[i].ID, want)
				}
			}
		})
	}
}

func TestFailStalePending(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			stale := newPendingScan("https://example.com/stale")
			stale.CreatedAt = time.Now().UTC().Add(-10 * time.Minute)
			if err := s.Create(ctx, stale); err != nil {
				t.Fatalf("Create: %v", err)
			}
			fresh := newPendingScan("https://example.com/fresh")
			if err := s.Create(ctx, fresh); err != nil {
				t.Fatalf("Create: %v", err)
			}

			ids, err := s.FailStalePending(ctx, 2*time.Minute, "scan abandoned after restart")
			if err != nil {
				t.Fatalf("FailStalePending: %v", err)
			}
			if len(ids) != 1 || ids[0] != stale.ID {
				t.Fatalf("got ids %v, want [%s]", ids, stale.ID)
			}

			got, err := s.Get(ctx, stale.ID)
			if err != nil {
				t.Fatalf("Get stale: %v", err)
			}
			if got.Status != model.StatusFailed {
				t.Errorf("stale scan status = %q, want failed", got.Status)
			}
			got, err = s.Get(ctx, fresh.ID)
			if err != nil {
				t.Fatalf("Get fresh: %v", err)
			}
			if got.Status != model.StatusPending {
				t.Errorf("fresh scan status = %q, want pending", got.Status)
			}
		})
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	store.RegisterDefaultBackends()
	ctx := context.Background()

	s, err := store.Open(ctx, store.Config{Backend: "memory"}, logging.NopLogger{})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	s.Close()

	s, err = store.Open(ctx, store.Config{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "scans.db")}, logging.NopLogger{})
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	s.Close()

	if _, err := store.Open(ctx, store.Config{Backend: "bogus"}, logging.NopLogger{}); err == nil {
		t.Error("Open accepted an unregistered backend")
	}
}

func TestMemoryStoreReturnsClones(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	scan := newPendingScan("https://example.com/clone")
	if err := s.Create(ctx, scan); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Complete(ctx, scan.ID, 70, sampleFindings(), nil, time.Now().UTC()); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := s.Get(ctx, scan.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Findings.Violations[0].RuleID = "mutated"
	*got.Score = 0

	again, err := s.Get(ctx, scan.ID)
	if err != nil {
		t.Fatalf("Get again: %v", err)
	}
	if again.Findings.Violations[0].RuleID != "image-alt" || *again.Score != 70 {
		t.Error("caller mutation leaked into stored state")
	}
}
