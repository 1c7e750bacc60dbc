package outcome

import (
	"fmt"
	"time"

	"issuenerd/internal/logging"
)

// MaintenanceConfig configures retention cleanup operations. Zero
// windows disable the corresponding step, so the default policy keeps
// the full attempt history forever.
type MaintenanceConfig struct {
	ArchiveOlderThanDays int  // Archive terminal attempts created more than N days ago
	PurgeOlderThanDays   int  // Permanently delete archived attempts older than N days
	VacuumDatabase       bool // Run VACUUM to reclaim space
}

// MaintenanceStats reports results of maintenance operations.
type MaintenanceStats struct {
	AttemptsArchived int
	AttemptsPurged   int
	DatabaseVacuumed bool
}

// ArchiveOldAttempts moves terminal attempts (MERGED, CLOSED, FAILED)
// created more than olderThanDays ago into the archive table. Attempts
// still in PENDING or RESOLVED are never archived; they belong to the
// live state machine. Returns the number of attempts archived.
func (s *Store) ArchiveOldAttempts(olderThanDays int) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ArchiveOldAttempts")
	defer timer.Stop()

	if olderThanDays <= 0 {
		return 0, fmt.Errorf("archive window must be positive, got %d days", olderThanDays)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	archivedAt := time.Now().UTC()

	logging.Store("Archiving terminal attempts created before %s", cutoff.Format(time.RFC3339))

	tx, err := s.db.Begin()
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to start archive transaction: %v", err)
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT OR REPLACE INTO archived_attempts
			(work_item_id, category, status, change_ref, created_at,
			 resolved_at, merged_at, files_changed, error_message,
			 time_to_resolve_minutes, time_to_merge_minutes, archived_at)
		SELECT work_item_id, category, status, change_ref, created_at,
			   resolved_at, merged_at, files_changed, error_message,
			   time_to_resolve_minutes, time_to_merge_minutes, ?
		FROM attempts
		WHERE status IN (?, ?, ?) AND created_at < ?`,
		archivedAt, StatusMerged, StatusClosed, StatusFailed, cutoff)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to copy attempts to archive: %v", err)
		return 0, fmt.Errorf("failed to copy attempts to archive: %w", err)
	}

	archived, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count archived attempts: %w", err)
	}

	_, err = tx.Exec(`
		DELETE FROM attempts
		WHERE status IN (?, ?, ?) AND created_at < ?`,
		StatusMerged, StatusClosed, StatusFailed, cutoff)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to delete archived attempts: %v", err)
		return 0, fmt.Errorf("failed to delete archived attempts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to commit archive transaction: %v", err)
		return 0, fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	logging.Store("Archived %d attempts", archived)
	return int(archived), nil
}

// PurgeOldArchived permanently deletes archived attempts older than
// olderThanDays. Returns the number of rows deleted.
func (s *Store) PurgeOldArchived(olderThanDays int) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PurgeOldArchived")
	defer timer.Stop()

	if olderThanDays <= 0 {
		return 0, fmt.Errorf("purge window must be positive, got %d days", olderThanDays)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	result, err := s.db.Exec(`DELETE FROM archived_attempts WHERE created_at < ?`, cutoff)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to purge archived attempts: %v", err)
		return 0, fmt.Errorf("failed to purge archived attempts: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged attempts: %w", err)
	}

	logging.Store("Purged %d archived attempts", purged)
	return int(purged), nil
}

// ArchivedCount returns the number of rows in the archive table.
func (s *Store) ArchivedCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM archived_attempts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count archived attempts: %w", err)
	}
	return count, nil
}

// MaintenanceCleanup performs the periodic retention pass: archive,
// purge, optional vacuum. Steps with a zero window are skipped.
func (s *Store) MaintenanceCleanup(config MaintenanceConfig) (MaintenanceStats, error) {
	timer := logging.StartTimer(logging.CategoryStore, "MaintenanceCleanup")
	defer timer.Stop()

	logging.Store("Starting maintenance cleanup cycle")
	stats := MaintenanceStats{}

	if config.ArchiveOlderThanDays > 0 {
		archived, err := s.ArchiveOldAttempts(config.ArchiveOlderThanDays)
		if err != nil {
			logging.Get(logging.CategoryStore).Error("Archival failed during maintenance: %v", err)
			return stats, fmt.Errorf("archival failed: %w", err)
		}
		stats.AttemptsArchived = archived
	}

	if config.PurgeOlderThanDays > 0 {
		purged, err := s.PurgeOldArchived(config.PurgeOlderThanDays)
		if err != nil {
			logging.Get(logging.CategoryStore).Error("Purge failed during maintenance: %v", err)
			return stats, fmt.Errorf("purge failed: %w", err)
		}
		stats.AttemptsPurged = purged
	}

	if config.VacuumDatabase {
		s.mu.Lock()
		_, err := s.db.Exec("VACUUM")
		s.mu.Unlock()
		if err != nil {
			logging.Get(logging.CategoryStore).Error("VACUUM failed: %v", err)
			return stats, fmt.Errorf("vacuum failed: %w", err)
		}
		stats.DatabaseVacuumed = true
	}

	logging.Store("Maintenance complete: archived=%d, purged=%d, vacuumed=%v",
		stats.AttemptsArchived, stats.AttemptsPurged, stats.DatabaseVacuumed)
	return stats, nil
}
