// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/model"
	"github.com/axescan/axescan/internal/store"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ErrorMessages returns a copy of the recorded error messages.
func (l *DummyLogger) ErrorMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Errors...)
}

// WarnMessages returns a copy of the recorded warning messages.
func (l *DummyLogger) WarnMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Warns...)
}

// ─── Store ─────────────────────────────────────────────────────────────

// FlakyStore wraps an inner store and fails selected operations, for
// exercising persistence-failure paths. Zero error fields delegate to the
// inner store.
type FlakyStore struct {
	Inner store.Store

	CreateErr   error
	GetErr      error
	CompleteErr error
	FailErr     error
	FindErr     error
	ListErr     error
	StaleErr    error
}

func (s *FlakyStore) Create(ctx context.Context, scan *model.Scan) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	return s.Inner.Create(ctx, scan)
}

func (s *FlakyStore) Get(ctx context.Context, id string) (*model.Scan, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	return s.Inner.Get(ctx, id)
}

func (s *FlakyStore) Complete(ctx context.Context, id string, score int, findings *model.Findings, meta *model.PageMeta, completedAt time.Time) (bool, error) {
	if s.CompleteErr != nil {
		return false, s.CompleteErr
	}
	return s.Inner.Complete(ctx, id, score, findings, meta, completedAt)
}

func (s *FlakyStore) Fail(ctx context.Context, id string, reason string, completedAt time.Time) (bool, error) {
	if s.FailErr != nil {
		return false, s.FailErr
	}
	return s.Inner.Fail(ctx, id, reason, completedAt)
}

func (s *FlakyStore) FindRecentCompleted(ctx context.Context, url string, window time.Duration) (*model.Scan, error) {
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	return s.Inner.FindRecentCompleted(ctx, url, window)
}

func (s *FlakyStore) ListRecent(ctx context.Context, limit int) ([]*model.Scan, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return s.Inner.ListRecent(ctx, limit)
}

func (s *FlakyStore) FailStalePending(ctx context.Context, olderThan time.Duration, reason string) ([]string, error) {
	if s.StaleErr != nil {
		return nil, s.StaleErr
	}
	return s.Inner.FailStalePending(ctx, olderThan, reason)
}

func (s *FlakyStore) Close() error { return s.Inner.Close() }
