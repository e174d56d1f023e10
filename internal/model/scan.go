package model

import "time"

// ScanStatus is the lifecycle state of a scan. Transitions are one-way:
// pending -> completed or pending -> failed. Nothing leaves a terminal state.
type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
)

// Terminal reports whether s is a terminal status.
func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Scan is the central record of one accessibility scan of one URL.
//
// Invariants maintained by the store and orchestrator:
//   - Score is non-nil iff Status is completed.
//   - CompletedAt is non-nil iff Status is terminal.
//   - Error is non-empty only when Status is failed.
//   - URL never changes after creation.
type Scan struct {
	// ID is the scan's unique identifier (UUID), assigned before persistence.
	ID string `json:"id"`

	// URL is the target that was (or will be) scanned.
	URL string `json:"url"`

	// Status is the lifecycle state.
	Status ScanStatus `json:"status"`

	// Score is the weighted accessibility score in [0,100], present only on
	// completed scans.
	Score *int `json:"score,omitempty"`

	// Principal identifies the owning principal, nil for anonymous scans.
	Principal *string `json:"principal,omitempty"`

	// Findings is the raw rule-engine payload, set once on completion.
	Findings *Findings `json:"findings,omitempty"`

	// Meta holds rendered-page metadata captured during the scan.
	Meta *PageMeta `json:"meta,omitempty"`

	// Error holds the failure reason when Status is failed.
	Error string `json:"error,omitempty"`

	// CreatedAt is when the pending record was created.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is set exactly once, on the transition into a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PageMeta is best-effort metadata extracted from the rendered page.
type PageMeta struct {
	Title       string `json:"title,omitempty"`
	Lang        string `json:"lang,omitempty"`
	Description string `json:"description,omitempty"`
}
