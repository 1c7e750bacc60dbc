// Package outcome provides the durable record of resolution attempts.
// Every automated attempt to resolve a tracked work item gets exactly
// one row here, keyed by the work item's tracker ID, and moves through
// a fixed lifecycle:
//
//	PENDING --resolve--> RESOLVED --merge--> MERGED
//	PENDING --fail-----> FAILED
//	RESOLVED --close---> CLOSED
//
// MERGED, CLOSED and FAILED are terminal. FAILED and CLOSED attempts
// may be reset to PENDING by a fresh RecordAttempt call (a deliberate
// retry); MERGED is permanently terminal.
package outcome

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an Attempt.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusResolved Status = "RESOLVED"
	StatusMerged   Status = "MERGED"
	StatusClosed   Status = "CLOSED"
	StatusFailed   Status = "FAILED"
)

// Terminal reports whether no further automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusMerged || s == StatusClosed || s == StatusFailed
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusResolved, StatusMerged, StatusClosed, StatusFailed:
		return true
	}
	return false
}

// Attempt is one tracked effort to resolve a single work item.
type Attempt struct {
	WorkItemID   int64      `json:"work_item_id"`
	Category     string     `json:"category"`
	Status       Status     `json:"status"`
	ChangeRef    int64      `json:"change_ref,omitempty"` // pull request number, 0 until RESOLVED
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`
	FilesChanged int        `json:"files_changed,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`

	// Derived at write time from timestamp deltas, never recomputed.
	TimeToResolveMinutes float64 `json:"time_to_resolve_minutes,omitempty"`
	TimeToMergeMinutes   float64 `json:"time_to_merge_minutes,omitempty"`
}

// CategoryStats is the aggregate view of one category's attempts over a
// lookback window. Always recomputed from the attempt rows, never
// persisted, so counters cannot drift.
type CategoryStats struct {
	Category          string  `json:"category"`
	Total             int     `json:"total"`
	Pending           int     `json:"pending"`
	Resolved          int     `json:"resolved"`
	Merged            int     `json:"merged"`
	Closed            int     `json:"closed"`
	Failed            int     `json:"failed"`
	SuccessRate       float64 `json:"success_rate"` // (resolved + merged) / total
	MergeRate         float64 `json:"merge_rate"`   // merged / total
	AvgResolveMinutes float64 `json:"avg_resolve_minutes"`
	AvgMergeMinutes   float64 `json:"avg_merge_minutes"`
}

// Sentinel errors for the state machine. Callers test with errors.Is.
var (
	// ErrInvalidTransition means a caller requested a state change the
	// lifecycle graph does not permit. Always a caller bug, never retried.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyTerminal means RecordAttempt targeted a work item whose
	// attempt is already MERGED.
	ErrAlreadyTerminal = errors.New("attempt already merged")

	// ErrNotFound means no attempt row exists for the work item.
	ErrNotFound = errors.New("attempt not found")
)

func invalidTransition(workItemID int64, from Status, op string) error {
	return fmt.Errorf("%w: cannot %s attempt %d in status %s", ErrInvalidTransition, op, workItemID, from)
}
