// Package reconcile closes the gap between locally recorded RESOLVED
// attempts and their true state on the external review platform. It is
// the only component that talks to that platform, through a single
// injected lookup capability.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"issuenerd/internal/logging"
	"issuenerd/internal/outcome"
)

// ChangeStatus is the externally observed state of a reviewable change.
type ChangeStatus string

const (
	ChangeMerged    ChangeStatus = "MERGED"
	ChangeClosed    ChangeStatus = "CLOSED"
	ChangeStillOpen ChangeStatus = "STILL_OPEN"
	ChangeNotFound  ChangeStatus = "NOT_FOUND"
)

// StatusLookup resolves a change reference against the external
// platform. It is the entire contract with that platform; no other
// calls cross the boundary.
type StatusLookup func(ctx context.Context, changeRef int64) (ChangeStatus, error)

// RunReport summarizes a single reconciliation pass.
type RunReport struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Examined  int           `json:"examined"`
	Merged    int           `json:"merged"`
	Closed    int           `json:"closed"`
	StillOpen int           `json:"still_open"`
	NotFound  int           `json:"not_found"`
	Errored   int           `json:"errored"`
}

// Job reconciles RESOLVED attempts against the external platform.
type Job struct {
	store         *outcome.Store
	lookup        StatusLookup
	minAge        time.Duration
	lookupTimeout time.Duration
}

// NewJob builds a reconciliation job. minAge filters out attempts
// resolved more recently than the window (zero examines everything);
// lookupTimeout bounds each external call, defaulting to 10s.
func NewJob(store *outcome.Store, lookup StatusLookup, minAge, lookupTimeout time.Duration) (*Job, error) {
	if store == nil {
		return nil, fmt.Errorf("reconcile: store is required")
	}
	if lookup == nil {
		return nil, fmt.Errorf("reconcile: status lookup is required")
	}
	if lookupTimeout <= 0 {
		lookupTimeout = 10 * time.Second
	}
	return &Job{
		store:         store,
		lookup:        lookup,
		minAge:        minAge,
		lookupTimeout: lookupTimeout,
	}, nil
}

// Run performs one reconciliation pass. Each RESOLVED attempt old
// enough to examine gets one lookup; MERGED and CLOSED results are
// applied to the store, STILL_OPEN and transient lookup failures are
// left for the next run, and NOT_FOUND is logged without guessing a
// terminal state. Re-running with unchanged external state writes
// nothing, so the job is safe to schedule repeatedly.
func (j *Job) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	timer := logging.StartTimer(logging.CategoryReconcile, "Run")
	defer timer.Stop()

	attempts, err := j.store.ListPendingResolved(j.minAge)
	if err != nil {
		return nil, fmt.Errorf("list resolved attempts: %w", err)
	}
	logging.Reconcile("[%s] Reconciling %d resolved attempts", report.RunID, len(attempts))

	for _, att := range attempts {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(report.StartedAt)
			return report, err
		}
		report.Examined++
		j.reconcileOne(ctx, att, report)
	}

	report.Duration = time.Since(report.StartedAt)
	logging.Reconcile("[%s] Done: %d examined, %d merged, %d closed, %d still open, %d not found, %d errored",
		report.RunID, report.Examined, report.Merged, report.Closed,
		report.StillOpen, report.NotFound, report.Errored)
	return report, nil
}

func (j *Job) reconcileOne(ctx context.Context, att *outcome.Attempt, report *RunReport) {
	log := logging.Get(logging.CategoryReconcile)

	lookupCtx, cancel := context.WithTimeout(ctx, j.lookupTimeout)
	status, err := j.lookup(lookupCtx, att.ChangeRef)
	cancel()
	if err != nil {
		// Transient: a slow or unreachable platform must not block the
		// rest of the batch. The attempt stays RESOLVED for next run.
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("[%s] Lookup timed out for change %d (work item %d), leaving for next run",
				report.RunID, att.ChangeRef, att.WorkItemID)
			report.StillOpen++
			return
		}
		log.Warn("[%s] Lookup failed for change %d (work item %d): %v",
			report.RunID, att.ChangeRef, att.WorkItemID, err)
		report.Errored++
		return
	}

	switch status {
	case ChangeMerged:
		if _, err := j.store.MarkMerged(att.WorkItemID); err != nil {
			log.Error("[%s] Failed to mark work item %d merged: %v", report.RunID, att.WorkItemID, err)
			report.Errored++
			return
		}
		report.Merged++
	case ChangeClosed:
		if _, err := j.store.MarkClosed(att.WorkItemID); err != nil {
			log.Error("[%s] Failed to mark work item %d closed: %v", report.RunID, att.WorkItemID, err)
			report.Errored++
			return
		}
		report.Closed++
	case ChangeStillOpen:
		report.StillOpen++
	case ChangeNotFound:
		// The change artifact may have been deleted. Do not guess a
		// terminal state.
		log.Warn("[%s] Change %d for work item %d not found on platform, leaving RESOLVED",
			report.RunID, att.ChangeRef, att.WorkItemID)
		report.NotFound++
	default:
		log.Error("[%s] Unknown change status %q for work item %d", report.RunID, status, att.WorkItemID)
		report.Errored++
	}
}
