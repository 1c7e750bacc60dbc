package feedback

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"issuenerd/internal/logging"
)

// Report renders a human-readable markdown summary of the attempt
// history: per-category metrics, the current guidance, and the most
// recent attempts. recentLimit bounds the attempt list; <= 0 uses the
// store default.
func (a *Analyzer) Report(since time.Time, recentLimit int) (string, error) {
	timer := logging.StartTimer(logging.CategoryExport, "Report")
	defer timer.Stop()

	stats, err := a.ComputeStats(since)
	if err != nil {
		return "", err
	}
	guidance := a.buildGuidance(stats, since)

	recent, err := a.store.Recent(recentLimit)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("# Resolution Feedback Report\n\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", guidance.GeneratedAt.Format(time.RFC3339)))
	if !since.IsZero() {
		b.WriteString(fmt.Sprintf("Window: since %s\n\n", since.UTC().Format(time.RFC3339)))
	}

	if guidance.ColdStart {
		b.WriteString("No attempt history yet. Generation proceeds unweighted until outcomes accumulate.\n")
		return b.String(), nil
	}

	b.WriteString("## Category Performance\n\n")
	b.WriteString("| Category | Attempts | Merged | Failed | Success | Avg Resolve (min) |\n")
	b.WriteString("|----------|----------|--------|--------|---------|-------------------|\n")

	categories := make([]string, 0, len(stats))
	for cat := range stats {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	for _, cat := range categories {
		st := stats[cat]
		b.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %.0f%% | %.1f |\n",
			cat, st.Total, st.Merged, st.Failed, st.SuccessRate*100, st.AvgResolveMinutes))
	}

	b.WriteString("\n## Generation Guidance\n\n")
	for _, cw := range guidance.Weights {
		b.WriteString(fmt.Sprintf("- **%s**: weight %.2f (confidence %.2f, share %.0f%%)\n",
			cw.Category, cw.Weight, cw.Confidence, cw.SharePercent))
	}
	if len(guidance.HighPriority) > 0 {
		b.WriteString(fmt.Sprintf("\nHigh priority: %s\n", strings.Join(guidance.HighPriority, ", ")))
	}
	if len(guidance.LowPriority) > 0 {
		b.WriteString(fmt.Sprintf("Low priority: %s\n", strings.Join(guidance.LowPriority, ", ")))
	}
	for _, note := range guidance.Notes {
		b.WriteString(fmt.Sprintf("\n> %s\n", note))
	}

	if len(recent) > 0 {
		b.WriteString("\n## Recent Attempts\n\n")
		for _, att := range recent {
			line := fmt.Sprintf("- #%d [%s] %s", att.WorkItemID, att.Category, att.Status)
			if att.ChangeRef != 0 {
				line += fmt.Sprintf(" (PR #%d)", att.ChangeRef)
			}
			if att.ErrorMessage != "" {
				line += fmt.Sprintf(": %s", att.ErrorMessage)
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String(), nil
}
