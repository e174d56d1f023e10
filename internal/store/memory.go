package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/axescan/axescan/internal/model"
)

// MemoryStore keeps scans in process memory. Used in tests and for
// throwaway local runs; everything is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	scans map[string]*model.Scan
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scans: make(map[string]*model.Scan)}
}

func (s *MemoryStore) Create(_ context.Context, scan *model.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scans[scan.ID]; exists {
		return fmt.Errorf("scan %s already exists", scan.ID)
	}
	s.scans[scan.ID] = cloneScan(scan)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scan, ok := s.scans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneScan(scan), nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, score int, findings *model.Findings, meta *model.PageMeta, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[id]
	if !ok || scan.Status != model.StatusPending {
		return false, nil
	}
	scan.Status = model.StatusCompleted
	scan.Score = &score
	scan.Findings = findings
	scan.Meta = meta
	t := completedAt.UTC()
	scan.CompletedAt = &t
	return true, nil
}

func (s *MemoryStore) Fail(_ context.Context, id string, reason string, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[id]
	if !ok || scan.Status != model.StatusPending {
		return false, nil
	}
	scan.Status = model.StatusFailed
	scan.Error = reason
	t := completedAt.UTC()
	scan.CompletedAt = &t
	return true, nil
}

func (s *MemoryStore) FindRecentCompleted(_ context.Context, url string, window time.Duration) (*model.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().Add(-window)

	var best *model.Scan
	for _, scan := range s.scans {
		if scan.URL != url || scan.Status != model.StatusCompleted {
			continue
		}
		if scan.CompletedAt == nil || scan.CompletedAt.Before(cutoff) {
			continue
		}
		if best == nil || scan.CompletedAt.After(*best.CompletedAt) {
			best = scan
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneScan(best), nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]*model.Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Scan, 0, len(s.scans))
	for _, scan := range s.scans {
		out = append(out, cloneScan(scan))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) FailStalePending(_ context.Context, olderThan time.Duration, reason string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	now := time.Now().UTC()

	var ids []string
	for id, scan := range s.scans {
		if scan.Status != model.StatusPending || !scan.CreatedAt.Before(cutoff) {
			continue
		}
		scan.Status = model.StatusFailed
		scan.Error = reason
		t := now
		scan.CompletedAt = &t
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }

// cloneScan copies the scan so callers cannot mutate stored state.
func cloneScan(in *model.Scan) *model.Scan {
	out := *in
	if in.Score != nil {
		v := *in.Score
		out.Score = &v
	}
	if in.Principal != nil {
		v := *in.Principal
		out.Principal = &v
	}
	if in.CompletedAt != nil {
		v := *in.CompletedAt
		out.CompletedAt = &v
	}
	if in.Findings != nil {
		f := model.Findings{
			Violations: append([]model.Violation(nil), in.Findings.Violations...),
			Passes:     append([]model.Pass(nil), in.Findings.Passes...),
		}
		out.Findings = &f
	}
	if in.Meta != nil {
		m := *in.Meta
		out.Meta = &m
	}
	return &out
}
