package feedback

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"issuenerd/internal/classify"
	"issuenerd/internal/outcome"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, *outcome.Store) {
	t.Helper()
	store, err := outcome.NewStore(filepath.Join(t.TempDir(), "attempts.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	analyzer, err := NewAnalyzer(store, classify.Default(), DefaultParams())
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return analyzer, store
}

func mustMerge(t *testing.T, store *outcome.Store, id int64, category string) {
	t.Helper()
	if _, err := store.RecordAttempt(id, category); err != nil {
		t.Fatalf("RecordAttempt(%d): %v", id, err)
	}
	time.Sleep(2 * time.Millisecond) // measurable resolve duration
	if _, err := store.MarkResolved(id, id*10, 2); err != nil {
		t.Fatalf("MarkResolved(%d): %v", id, err)
	}
	if _, err := store.MarkMerged(id); err != nil {
		t.Fatalf("MarkMerged(%d): %v", id, err)
	}
}

func mustFail(t *testing.T, store *outcome.Store, id int64, category string) {
	t.Helper()
	if _, err := store.RecordAttempt(id, category); err != nil {
		t.Fatalf("RecordAttempt(%d): %v", id, err)
	}
	if _, err := store.MarkFailed(id, "build broke"); err != nil {
		t.Fatalf("MarkFailed(%d): %v", id, err)
	}
}

func TestComputeWeight_MonotonicInRate(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	prev := -1.0
	for rate := 0.0; rate <= 1.0; rate += 0.1 {
		w := analyzer.ComputeWeight(rate, 10)
		if w <= prev {
			t.Fatalf("weight not increasing: rate=%.1f weight=%.4f prev=%.4f", rate, w, prev)
		}
		prev = w
	}
}

func TestComputeWeight_Values(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	cases := []struct {
		rate    float64
		samples int
		want    float64
	}{
		{0.0, 5, math.Exp(0) / math.E},
		{0.8, 5, math.Exp(1.2) / math.E},
		{1.0, 5, math.Exp(1.5) / math.E},
		{0.5, 0, 0.5}, // no samples, neutral
	}
	for _, tc := range cases {
		got := analyzer.ComputeWeight(tc.rate, tc.samples)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ComputeWeight(%.1f, %d) = %.6f, want %.6f", tc.rate, tc.samples, got, tc.want)
		}
	}
}

func TestComputeWeight_ConfidenceDamping(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	const rate = 0.8
	base := math.Exp(rate*1.5) / math.E

	// With one sample the weight sits strictly between neutral and the
	// full-confidence value.
	partial := analyzer.ComputeWeight(rate, 1)
	if partial <= 0.5 || partial >= base {
		t.Fatalf("partial-confidence weight %.4f not in (0.5, %.4f)", partial, base)
	}

	// Weight approaches base monotonically as samples accumulate, and
	// saturates at the full-confidence threshold.
	prev := analyzer.ComputeWeight(rate, 0)
	for n := 1; n <= 5; n++ {
		w := analyzer.ComputeWeight(rate, n)
		if w <= prev {
			t.Fatalf("weight not increasing with samples: n=%d w=%.4f prev=%.4f", n, w, prev)
		}
		prev = w
	}
	for _, n := range []int{5, 10, 100} {
		if got := analyzer.ComputeWeight(rate, n); math.Abs(got-base) > 1e-9 {
			t.Errorf("ComputeWeight(%.1f, %d) = %.6f, want base %.6f", rate, n, got, base)
		}
	}
}

func TestBuildGuidance_ColdStart(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	g, err := analyzer.BuildGuidance(time.Time{})
	if err != nil {
		t.Fatalf("BuildGuidance: %v", err)
	}
	if !g.ColdStart {
		t.Fatal("expected cold start with empty store")
	}
	if len(g.HighPriority) != 0 || len(g.LowPriority) != 0 {
		t.Fatalf("cold start should not partition: high=%v low=%v", g.HighPriority, g.LowPriority)
	}
	for _, cw := range g.Weights {
		if cw.Weight != 0.5 {
			t.Errorf("category %s: cold-start weight %.2f, want 0.5", cw.Category, cw.Weight)
		}
	}
}

func TestBuildGuidance_Partitions(t *testing.T) {
	analyzer, store := newTestAnalyzer(t)

	for i := int64(1); i <= 5; i++ {
		mustMerge(t, store, i, "feature")
	}
	for i := int64(10); i < 15; i++ {
		mustFail(t, store, i, "bug")
	}

	g, err := analyzer.BuildGuidance(time.Time{})
	if err != nil {
		t.Fatalf("BuildGuidance: %v", err)
	}
	if g.ColdStart {
		t.Fatal("unexpected cold start")
	}

	if g.Weight("feature") <= g.Weight("bug") {
		t.Fatalf("feature weight %.4f should exceed bug weight %.4f", g.Weight("feature"), g.Weight("bug"))
	}
	if len(g.Weights) == 0 || g.Weights[0].Category != "feature" {
		t.Fatalf("expected feature ranked first, got %+v", g.Weights)
	}

	var shareSum float64
	for _, cw := range g.Weights {
		shareSum += cw.SharePercent
	}
	if math.Abs(shareSum-100) > 1e-6 {
		t.Errorf("shares sum to %.4f, want 100", shareSum)
	}

	if !contains(g.HighPriority, "feature") {
		t.Errorf("feature missing from high priority: %v", g.HighPriority)
	}
	if !contains(g.LowPriority, "bug") {
		t.Errorf("bug missing from low priority: %v", g.LowPriority)
	}
}

func TestBuildGuidance_FastHint(t *testing.T) {
	analyzer, store := newTestAnalyzer(t)

	for i := int64(1); i <= 3; i++ {
		mustMerge(t, store, i, "documentation")
	}

	g, err := analyzer.BuildGuidance(time.Time{})
	if err != nil {
		t.Fatalf("BuildGuidance: %v", err)
	}
	if g.FastestCategory != "documentation" {
		t.Fatalf("FastestCategory = %q, want documentation", g.FastestCategory)
	}
	if g.FastestAvgMinutes <= 0 {
		t.Errorf("FastestAvgMinutes = %v, want > 0", g.FastestAvgMinutes)
	}
}

func TestExportRoundTrip(t *testing.T) {
	analyzer, store := newTestAnalyzer(t)

	mustMerge(t, store, 1, "feature")
	mustFail(t, store, 2, "bug")

	path := filepath.Join(t.TempDir(), "export", "feedback.json")
	if err := analyzer.WriteExport(path, time.Time{}, 10); err != nil {
		t.Fatalf("WriteExport: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if doc.GeneratedAt.IsZero() {
		t.Error("generated_at missing")
	}
	if got := doc.Categories["feature"]; got.Total != 1 || got.Merged != 1 || got.SuccessRate != 1.0 {
		t.Errorf("feature export = %+v", got)
	}
	if got := doc.Categories["bug"]; got.Failed != 1 || got.SuccessRate != 0.0 {
		t.Errorf("bug export = %+v", got)
	}
	if doc.Guidance == nil || doc.Guidance.ColdStart {
		t.Errorf("guidance missing or cold start: %+v", doc.Guidance)
	}
	if len(doc.Recent) != 2 {
		t.Errorf("recent attempts = %d, want 2", len(doc.Recent))
	}
}

func TestReportContents(t *testing.T) {
	analyzer, store := newTestAnalyzer(t)

	mustMerge(t, store, 1, "feature")

	out, err := analyzer.Report(time.Time{}, 10)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	for _, want := range []string{"Category Performance", "Generation Guidance", "feature", "Recent Attempts"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReportColdStart(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	out, err := analyzer.Report(time.Time{}, 10)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !strings.Contains(out, "No attempt history") {
		t.Errorf("cold-start report missing notice:\n%s", out)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
