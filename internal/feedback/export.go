package feedback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"issuenerd/internal/logging"
	"issuenerd/internal/outcome"
)

// ExportCategory is the per-category slice of an export document.
type ExportCategory struct {
	Total             int     `json:"total"`
	Resolved          int     `json:"resolved"`
	Merged            int     `json:"merged"`
	Failed            int     `json:"failed"`
	SuccessRate       float64 `json:"success_rate"`
	AvgResolveMinutes float64 `json:"avg_resolve_minutes"`
}

// ExportDocument is the machine-readable snapshot written by Export.
// Stable field names so downstream tooling can depend on them.
type ExportDocument struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Since       time.Time                 `json:"since,omitempty"`
	Categories  map[string]ExportCategory `json:"categories"`
	Guidance    *Guidance                 `json:"guidance"`
	Recent      []*outcome.Attempt        `json:"recent_attempts,omitempty"`
}

// Export builds a JSON-serializable snapshot of stats, guidance, and
// recent attempts over the given window.
func (a *Analyzer) Export(since time.Time, recentLimit int) (*ExportDocument, error) {
	timer := logging.StartTimer(logging.CategoryExport, "Export")
	defer timer.Stop()

	stats, err := a.ComputeStats(since)
	if err != nil {
		return nil, err
	}
	guidance := a.buildGuidance(stats, since)

	recent, err := a.store.Recent(recentLimit)
	if err != nil {
		return nil, err
	}

	doc := &ExportDocument{
		GeneratedAt: guidance.GeneratedAt,
		Since:       since,
		Categories:  make(map[string]ExportCategory, len(stats)),
		Guidance:    guidance,
		Recent:      recent,
	}
	for cat, st := range stats {
		doc.Categories[cat] = ExportCategory{
			Total:             st.Total,
			Resolved:          st.Resolved,
			Merged:            st.Merged,
			Failed:            st.Failed,
			SuccessRate:       st.SuccessRate,
			AvgResolveMinutes: st.AvgResolveMinutes,
		}
	}
	return doc, nil
}

// WriteExport writes the export document to path as indented JSON,
// creating parent directories as needed.
func (a *Analyzer) WriteExport(path string, since time.Time, recentLimit int) error {
	doc, err := a.Export(since, recentLimit)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logging.Get(logging.CategoryExport).Error("Failed to write export to %s: %v", path, err)
		return fmt.Errorf("write export: %w", err)
	}

	cats := make([]string, 0, len(doc.Categories))
	for c := range doc.Categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	logging.Export("Wrote export to %s (%d categories)", path, len(cats))
	return nil
}
