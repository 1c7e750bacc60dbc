package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"issuenerd/internal/outcome"
)

func newTestStore(t *testing.T) *outcome.Store {
	t.Helper()
	store, err := outcome.NewStore(filepath.Join(t.TempDir(), "attempts.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustResolve(t *testing.T, store *outcome.Store, id, changeRef int64) {
	t.Helper()
	if _, err := store.RecordAttempt(id, "feature"); err != nil {
		t.Fatalf("RecordAttempt(%d): %v", id, err)
	}
	if _, err := store.MarkResolved(id, changeRef, 1); err != nil {
		t.Fatalf("MarkResolved(%d): %v", id, err)
	}
}

// tableLookup serves statuses from a map and counts calls.
func tableLookup(statuses map[int64]ChangeStatus, calls *int) StatusLookup {
	return func(ctx context.Context, changeRef int64) (ChangeStatus, error) {
		if calls != nil {
			*calls++
		}
		st, ok := statuses[changeRef]
		if !ok {
			return ChangeNotFound, nil
		}
		return st, nil
	}
}

func TestRunAppliesExternalState(t *testing.T) {
	store := newTestStore(t)
	mustResolve(t, store, 1, 10)
	mustResolve(t, store, 2, 20)
	mustResolve(t, store, 3, 30)
	mustResolve(t, store, 4, 40)

	job, err := NewJob(store, tableLookup(map[int64]ChangeStatus{
		10: ChangeMerged,
		20: ChangeClosed,
		30: ChangeStillOpen,
		// 40 missing: NOT_FOUND
	}, nil), 0, time.Second)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" {
		t.Error("missing run ID")
	}
	if report.Examined != 4 || report.Merged != 1 || report.Closed != 1 ||
		report.StillOpen != 1 || report.NotFound != 1 || report.Errored != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	wantStatus := map[int64]outcome.Status{
		1: outcome.StatusMerged,
		2: outcome.StatusClosed,
		3: outcome.StatusResolved,
		4: outcome.StatusResolved,
	}
	for id, want := range wantStatus {
		att, err := store.Get(id)
		if err != nil {
			t.Fatalf("Get(%d): %v", id, err)
		}
		if att.Status != want {
			t.Errorf("work item %d: status %s, want %s", id, att.Status, want)
		}
	}
}

func TestRunIdempotent(t *testing.T) {
	store := newTestStore(t)
	mustResolve(t, store, 1, 10)
	mustResolve(t, store, 2, 20)

	var calls int
	job, err := NewJob(store, tableLookup(map[int64]ChangeStatus{
		10: ChangeMerged,
		20: ChangeClosed,
	}, &calls), 0, time.Second)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	first, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Merged != 1 || first.Closed != 1 {
		t.Fatalf("first report: %+v", first)
	}

	// Second pass with unchanged external state sees nothing left in
	// RESOLVED and writes nothing.
	callsBefore := calls
	second, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Examined != 0 || second.Merged != 0 || second.Closed != 0 {
		t.Fatalf("second report: %+v", second)
	}
	if calls != callsBefore {
		t.Errorf("second run performed %d lookups, want 0", calls-callsBefore)
	}
}

func TestRunLookupTimeoutLeavesAttempt(t *testing.T) {
	store := newTestStore(t)
	mustResolve(t, store, 1, 10)

	slow := func(ctx context.Context, changeRef int64) (ChangeStatus, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	job, err := NewJob(store, slow, 0, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StillOpen != 1 || report.Errored != 0 {
		t.Fatalf("timeout should count as still open: %+v", report)
	}

	att, err := store.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if att.Status != outcome.StatusResolved {
		t.Errorf("status = %s, want RESOLVED after timeout", att.Status)
	}
}

func TestRunLookupErrorDoesNotFailBatch(t *testing.T) {
	store := newTestStore(t)
	mustResolve(t, store, 1, 10)
	mustResolve(t, store, 2, 20)

	flaky := func(ctx context.Context, changeRef int64) (ChangeStatus, error) {
		if changeRef == 10 {
			return "", fmt.Errorf("platform unavailable")
		}
		return ChangeMerged, nil
	}
	job, err := NewJob(store, flaky, 0, time.Second)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Errored != 1 || report.Merged != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	att, err := store.Get(2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if att.Status != outcome.StatusMerged {
		t.Errorf("work item 2 status = %s, want MERGED", att.Status)
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	store := newTestStore(t)
	mustResolve(t, store, 1, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := NewJob(store, tableLookup(nil, nil), 0, time.Second)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	report, err := job.Run(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
	if report == nil || report.Examined != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestNewJobValidation(t *testing.T) {
	store := newTestStore(t)
	if _, err := NewJob(nil, tableLookup(nil, nil), 0, time.Second); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewJob(store, nil, 0, time.Second); err == nil {
		t.Error("expected error for nil lookup")
	}
}
