package outcome

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"issuenerd/internal/logging"
)

// Store is the sqlite-backed attempt store. A single connection plus a
// process-wide mutex serializes read-modify-write cycles, so two
// concurrent transitions for the same work item cannot both succeed.
// Aggregation reads may observe a snapshot slightly behind concurrent
// writes; that is acceptable for analytics.
type Store struct {
	db             *sql.DB
	mu             sync.RWMutex
	dbPath         string
	strictTerminal bool
}

// NewStore initializes the SQLite database at the given path.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewStore")
	defer timer.Stop()

	logging.Store("Initializing attempt store at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	store := &Store{db: db, dbPath: path}
	if err := store.ensureSchema(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("Attempt store initialization complete")
	return store, nil
}

// SetStrictTerminal controls how RecordAttempt treats a MERGED attempt:
// soft (log and return the existing row, the default) or strict
// (return ErrAlreadyTerminal).
func (s *Store) SetStrictTerminal(strict bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strictTerminal = strict
}

// ensureSchema creates the attempt tables if they don't exist.
func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		work_item_id INTEGER PRIMARY KEY,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		change_ref INTEGER,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME,
		merged_at DATETIME,
		files_changed INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		time_to_resolve_minutes REAL,
		time_to_merge_minutes REAL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_status ON attempts(status);
	CREATE INDEX IF NOT EXISTS idx_attempts_category ON attempts(category);
	CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);

	CREATE TABLE IF NOT EXISTS archived_attempts (
		work_item_id INTEGER PRIMARY KEY,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		change_ref INTEGER,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME,
		merged_at DATETIME,
		files_changed INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		time_to_resolve_minutes REAL,
		time_to_merge_minutes REAL,
		archived_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_archived_attempts_archived ON archived_attempts(archived_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

const attemptColumns = `work_item_id, category, status, change_ref, created_at,
	resolved_at, merged_at, files_changed, error_message,
	time_to_resolve_minutes, time_to_merge_minutes`

func scanAttempt(scan func(dest ...any) error) (*Attempt, error) {
	var a Attempt
	var changeRef sql.NullInt64
	var resolvedAt, mergedAt sql.NullTime
	var errMsg sql.NullString
	var ttr, ttm sql.NullFloat64

	err := scan(&a.WorkItemID, &a.Category, &a.Status, &changeRef, &a.CreatedAt,
		&resolvedAt, &mergedAt, &a.FilesChanged, &errMsg, &ttr, &ttm)
	if err != nil {
		return nil, err
	}

	if changeRef.Valid {
		a.ChangeRef = changeRef.Int64
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		a.ResolvedAt = &t
	}
	if mergedAt.Valid {
		t := mergedAt.Time.UTC()
		a.MergedAt = &t
	}
	if errMsg.Valid {
		a.ErrorMessage = errMsg.String
	}
	if ttr.Valid {
		a.TimeToResolveMinutes = ttr.Float64
	}
	if ttm.Valid {
		a.TimeToMergeMinutes = ttm.Float64
	}
	a.CreatedAt = a.CreatedAt.UTC()

	return &a, nil
}

func getAttempt(q querier, workItemID int64) (*Attempt, error) {
	row := q.QueryRow(`SELECT `+attemptColumns+` FROM attempts WHERE work_item_id = ?`, workItemID)
	a, err := scanAttempt(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: work item %d", ErrNotFound, workItemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt %d: %w", workItemID, err)
	}
	return a, nil
}

// RecordAttempt creates a PENDING attempt for the work item, or resets
// an existing one back to PENDING for a retry. The category is fixed at
// first creation; a reset keeps the original even if the item's labels
// have changed since, so already-aggregated periods stay stable.
func (s *Store) RecordAttempt(workItemID int64, category string) (*Attempt, error) {
	timer := logging.StartTimer(logging.CategoryStore, "RecordAttempt")
	defer timer.Stop()

	if workItemID <= 0 {
		return nil, fmt.Errorf("work item id must be positive, got %d", workItemID)
	}
	if category == "" {
		return nil, fmt.Errorf("category is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	existing, err := getAttempt(tx, workItemID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	if existing != nil {
		if existing.Status == StatusMerged {
			if s.strictTerminal {
				logging.Get(logging.CategoryStore).Error("Re-attempt rejected for merged work item %d", workItemID)
				return nil, fmt.Errorf("%w: work item %d", ErrAlreadyTerminal, workItemID)
			}
			logging.Get(logging.CategoryStore).Warn("Ignoring re-attempt for merged work item %d", workItemID)
			return existing, nil
		}

		logging.Store("Resetting attempt for work item %d (was %s) to PENDING", workItemID, existing.Status)
		_, err = tx.Exec(`
			UPDATE attempts SET
				status = ?, change_ref = NULL, created_at = ?,
				resolved_at = NULL, merged_at = NULL, files_changed = 0,
				error_message = NULL, time_to_resolve_minutes = NULL,
				time_to_merge_minutes = NULL
			WHERE work_item_id = ?`,
			StatusPending, now, workItemID)
		if err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to reset attempt %d: %v", workItemID, err)
			return nil, fmt.Errorf("failed to reset attempt: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit attempt reset: %w", err)
		}

		return &Attempt{
			WorkItemID: workItemID,
			Category:   existing.Category,
			Status:     StatusPending,
			CreatedAt:  now,
		}, nil
	}

	logging.StoreDebug("Recording new attempt: work_item=%d category=%s", workItemID, category)
	_, err = tx.Exec(`
		INSERT INTO attempts (work_item_id, category, status, created_at)
		VALUES (?, ?, ?, ?)`,
		workItemID, category, StatusPending, now)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to insert attempt %d: %v", workItemID, err)
		return nil, fmt.Errorf("failed to insert attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit attempt insert: %w", err)
	}

	return &Attempt{
		WorkItemID: workItemID,
		Category:   category,
		Status:     StatusPending,
		CreatedAt:  now,
	}, nil
}

// MarkResolved transitions a PENDING attempt to RESOLVED, recording the
// change artifact and computing time_to_resolve_minutes.
func (s *Store) MarkResolved(workItemID, changeRef int64, filesChanged int) (*Attempt, error) {
	timer := logging.StartTimer(logging.CategoryStore, "MarkResolved")
	defer timer.Stop()

	if changeRef <= 0 {
		return nil, fmt.Errorf("change ref must be positive, got %d", changeRef)
	}
	if filesChanged < 0 {
		return nil, fmt.Errorf("files changed must be non-negative, got %d", filesChanged)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transition(workItemID, "resolve", StatusPending, func(a *Attempt, tx *sql.Tx) error {
		now := time.Now().UTC()
		ttr := now.Sub(a.CreatedAt).Minutes()

		_, err := tx.Exec(`
			UPDATE attempts SET
				status = ?, change_ref = ?, resolved_at = ?,
				files_changed = ?, time_to_resolve_minutes = ?
			WHERE work_item_id = ?`,
			StatusResolved, changeRef, now, filesChanged, ttr, workItemID)
		if err != nil {
			return err
		}

		a.Status = StatusResolved
		a.ChangeRef = changeRef
		a.ResolvedAt = &now
		a.FilesChanged = filesChanged
		a.TimeToResolveMinutes = ttr
		return nil
	})
}

// MarkFailed transitions a PENDING attempt to FAILED.
func (s *Store) MarkFailed(workItemID int64, errorMessage string) (*Attempt, error) {
	timer := logging.StartTimer(logging.CategoryStore, "MarkFailed")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transition(workItemID, "fail", StatusPending, func(a *Attempt, tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE attempts SET status = ?, error_message = ?
			WHERE work_item_id = ?`,
			StatusFailed, errorMessage, workItemID)
		if err != nil {
			return err
		}

		a.Status = StatusFailed
		a.ErrorMessage = errorMessage
		return nil
	})
}

// MarkMerged transitions a RESOLVED attempt to MERGED, recording
// merged_at and time_to_merge_minutes.
func (s *Store) MarkMerged(workItemID int64) (*Attempt, error) {
	timer := logging.StartTimer(logging.CategoryStore, "MarkMerged")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transition(workItemID, "merge", StatusResolved, func(a *Attempt, tx *sql.Tx) error {
		if a.ChangeRef == 0 {
			return invalidTransition(workItemID, a.Status, "merge (no change ref)")
		}

		now := time.Now().UTC()
		ttm := now.Sub(a.CreatedAt).Minutes()

		_, err := tx.Exec(`
			UPDATE attempts SET status = ?, merged_at = ?, time_to_merge_minutes = ?
			WHERE work_item_id = ?`,
			StatusMerged, now, ttm, workItemID)
		if err != nil {
			return err
		}

		a.Status = StatusMerged
		a.MergedAt = &now
		a.TimeToMergeMinutes = ttm
		return nil
	})
}

// MarkClosed transitions a RESOLVED attempt to CLOSED (the change
// artifact was closed without merging).
func (s *Store) MarkClosed(workItemID int64) (*Attempt, error) {
	timer := logging.StartTimer(logging.CategoryStore, "MarkClosed")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transition(workItemID, "close", StatusResolved, func(a *Attempt, tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE attempts SET status = ? WHERE work_item_id = ?`,
			StatusClosed, workItemID)
		if err != nil {
			return err
		}

		a.Status = StatusClosed
		return nil
	})
}

// transition loads the attempt, verifies the required current status,
// and applies the update inside one transaction. Callers hold s.mu.
func (s *Store) transition(workItemID int64, op string, required Status, apply func(*Attempt, *sql.Tx) error) (*Attempt, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	a, err := getAttempt(tx, workItemID)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Transition %s failed for work item %d: %v", op, workItemID, err)
		return nil, err
	}

	if a.Status != required {
		logging.Get(logging.CategoryStore).Error("Illegal %s on work item %d: status=%s", op, workItemID, a.Status)
		return nil, invalidTransition(workItemID, a.Status, op)
	}

	if err := apply(a, tx); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to %s attempt %d: %v", op, workItemID, err)
		return nil, fmt.Errorf("failed to %s attempt %d: %w", op, workItemID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s for attempt %d: %w", op, workItemID, err)
	}

	logging.Store("Attempt %d: %s -> %s", workItemID, required, a.Status)
	return a, nil
}

// Get returns the attempt for a work item, or ErrNotFound.
func (s *Store) Get(workItemID int64) (*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAttempt(s.db, workItemID)
}

// ListPendingResolved returns attempts in RESOLVED status awaiting
// reconciliation, oldest first. When maxAge > 0, only attempts resolved
// at least maxAge ago are returned.
func (s *Store) ListPendingResolved(maxAge time.Duration) ([]*Attempt, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListPendingResolved")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE status = ?`
	args := []any{StatusResolved}
	if maxAge > 0 {
		query += ` AND resolved_at <= ?`
		args = append(args, time.Now().UTC().Add(-maxAge))
	}
	query += ` ORDER BY resolved_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to list resolved attempts: %v", err)
		return nil, fmt.Errorf("failed to list resolved attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attempts: %w", err)
	}

	logging.StoreDebug("ListPendingResolved: %d attempts awaiting reconciliation", len(attempts))
	return attempts, nil
}

// Recent returns the most recently created attempts, newest first.
func (s *Store) Recent(limit int) ([]*Attempt, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Recent")
	defer timer.Stop()

	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT `+attemptColumns+` FROM attempts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to list recent attempts: %v", err)
		return nil, fmt.Errorf("failed to list recent attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attempts: %w", err)
	}

	return attempts, nil
}

const aggregateQuery = `
	SELECT category,
		COUNT(*),
		SUM(CASE WHEN status = 'PENDING' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'RESOLVED' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'MERGED' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'CLOSED' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END),
		AVG(time_to_resolve_minutes),
		AVG(time_to_merge_minutes)
	FROM attempts`

func scanStats(scan func(dest ...any) error) (*CategoryStats, error) {
	var st CategoryStats
	var avgResolve, avgMerge sql.NullFloat64

	err := scan(&st.Category, &st.Total, &st.Pending, &st.Resolved, &st.Merged,
		&st.Closed, &st.Failed, &avgResolve, &avgMerge)
	if err != nil {
		return nil, err
	}

	if avgResolve.Valid {
		st.AvgResolveMinutes = avgResolve.Float64
	}
	if avgMerge.Valid {
		st.AvgMergeMinutes = avgMerge.Float64
	}
	if st.Total > 0 {
		st.SuccessRate = float64(st.Resolved+st.Merged) / float64(st.Total)
		st.MergeRate = float64(st.Merged) / float64(st.Total)
	}

	return &st, nil
}

// Aggregate recomputes CategoryStats for one category within the
// lookback window. A zero since means no window.
func (s *Store) Aggregate(category string, since time.Time) (*CategoryStats, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Aggregate")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := aggregateQuery + ` WHERE category = ?`
	args := []any{category}
	if !since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` GROUP BY category`

	row := s.db.QueryRow(query, args...)
	st, err := scanStats(row.Scan)
	if err == sql.ErrNoRows {
		return &CategoryStats{Category: category}, nil
	}
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to aggregate category %s: %v", category, err)
		return nil, fmt.Errorf("failed to aggregate category %s: %w", category, err)
	}
	return st, nil
}

// AggregateAll recomputes CategoryStats for every category with at
// least one attempt in the lookback window.
func (s *Store) AggregateAll(since time.Time) (map[string]*CategoryStats, error) {
	timer := logging.StartTimer(logging.CategoryStore, "AggregateAll")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := aggregateQuery
	var args []any
	if !since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` GROUP BY category`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to aggregate attempts: %v", err)
		return nil, fmt.Errorf("failed to aggregate attempts: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]*CategoryStats)
	for rows.Next() {
		st, err := scanStats(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats[st.Category] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats: %w", err)
	}

	logging.FeedbackDebug("AggregateAll: %d categories with data", len(stats))
	return stats, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
