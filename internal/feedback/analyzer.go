package feedback

import (
	"fmt"
	"math"
	"sort"
	"time"

	"issuenerd/internal/classify"
	"issuenerd/internal/logging"
	"issuenerd/internal/outcome"
)

// Analyzer reads aggregated statistics from the outcome store and
// produces per-category metrics, weighted generation guidance, and
// report text. Stateless apart from its injected collaborators.
type Analyzer struct {
	store      *outcome.Store
	classifier *classify.Classifier
	params     Params
}

// NewAnalyzer builds an Analyzer. The classifier supplies the category
// universe so unseen categories still appear in guidance at neutral
// weight instead of being excluded.
func NewAnalyzer(store *outcome.Store, classifier *classify.Classifier, params Params) (*Analyzer, error) {
	if store == nil {
		return nil, fmt.Errorf("outcome store is required")
	}
	if classifier == nil {
		classifier = classify.Default()
	}
	if params.FullConfidenceSamples <= 0 || params.ExponentScale <= 0 {
		return nil, fmt.Errorf("invalid weighting params: %+v", params)
	}
	return &Analyzer{store: store, classifier: classifier, params: params}, nil
}

// ComputeStats returns per-category stats for the lookback window.
// Categories with no attempts are omitted rather than reported as
// zero, so guidance is never biased against unseen categories.
func (a *Analyzer) ComputeStats(since time.Time) (Stats, error) {
	timer := logging.StartTimer(logging.CategoryFeedback, "ComputeStats")
	defer timer.Stop()

	stats, err := a.store.AggregateAll(since)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	for cat, st := range stats {
		if st.Total == 0 {
			delete(stats, cat)
		}
	}
	return stats, nil
}

// ComputeWeight converts a category's observed success rate and sample
// size into a generation weight.
//
//	confidence  = min(1, n / FullConfidenceSamples)
//	base_weight = exp(rate * ExponentScale) / e
//	weight      = base_weight*confidence + NeutralWeight*(1-confidence)
//
// The exponential rewards high success rates super-linearly; the
// confidence blend pulls low-sample categories toward neutral so a
// single outcome cannot dominate. At n >= FullConfidenceSamples the
// weight equals base_weight exactly.
func (a *Analyzer) ComputeWeight(successRate float64, sampleSize int) float64 {
	confidence := math.Min(1.0, float64(sampleSize)/a.params.FullConfidenceSamples)
	base := math.Exp(successRate*a.params.ExponentScale) / math.E
	return base*confidence + a.params.NeutralWeight*(1-confidence)
}

// BuildGuidance aggregates the window and converts the result into a
// Guidance object. An empty store is the normal cold-start condition,
// not an error: every category comes back at neutral weight with empty
// priority partitions.
func (a *Analyzer) BuildGuidance(since time.Time) (*Guidance, error) {
	timer := logging.StartTimer(logging.CategoryFeedback, "BuildGuidance")
	defer timer.Stop()

	stats, err := a.ComputeStats(since)
	if err != nil {
		return nil, err
	}
	return a.buildGuidance(stats, since), nil
}

func (a *Analyzer) buildGuidance(stats Stats, since time.Time) *Guidance {
	g := &Guidance{
		GeneratedAt: time.Now().UTC(),
		Since:       since,
		ColdStart:   true,
	}

	// Category universe: everything the classifier can produce plus
	// anything present in the data (older rule sets may have recorded
	// categories the current rules no longer emit).
	seen := make(map[string]bool)
	var categories []string
	for _, cat := range a.classifier.Categories() {
		if !seen[cat] {
			seen[cat] = true
			categories = append(categories, cat)
		}
	}
	for cat := range stats {
		if !seen[cat] {
			seen[cat] = true
			categories = append(categories, cat)
		}
	}
	sort.Strings(categories)

	for _, cat := range categories {
		cw := CategoryWeight{
			Category: cat,
			Weight:   a.params.NeutralWeight,
		}
		if st, ok := stats[cat]; ok && st.Total > 0 {
			g.ColdStart = false
			cw.SuccessRate = st.SuccessRate
			cw.SampleSize = st.Total
			cw.Confidence = math.Min(1.0, float64(st.Total)/a.params.FullConfidenceSamples)
			cw.Weight = a.ComputeWeight(st.SuccessRate, st.Total)
		}
		g.Weights = append(g.Weights, cw)
	}

	// Stable sort by weight descending; the alphabetical pre-order is
	// the tie-break for equal weights.
	sort.SliceStable(g.Weights, func(i, j int) bool {
		return g.Weights[i].Weight > g.Weights[j].Weight
	})

	var sum float64
	for _, cw := range g.Weights {
		sum += cw.Weight
	}
	if sum > 0 {
		for i := range g.Weights {
			g.Weights[i].SharePercent = 100 * g.Weights[i].Weight / sum
		}
	}

	if g.ColdStart {
		logging.Feedback("BuildGuidance: cold start, all categories neutral")
		return g
	}

	mean := sum / float64(len(g.Weights))
	for _, cw := range g.Weights {
		if cw.Weight > mean {
			g.HighPriority = append(g.HighPriority, cw.Category)
		} else {
			g.LowPriority = append(g.LowPriority, cw.Category)
		}
	}

	a.addFastHint(g, stats)
	a.addNotes(g, stats)

	logging.Feedback("BuildGuidance: %d categories, %d high priority, fastest=%q",
		len(g.Weights), len(g.HighPriority), g.FastestCategory)
	return g
}

// addFastHint surfaces the category that historically resolves fastest,
// among categories with enough samples to mean anything.
func (a *Analyzer) addFastHint(g *Guidance, stats Stats) {
	best := ""
	bestMinutes := math.Inf(1)
	for cat, st := range stats {
		if st.Total < a.params.FastHintMinSamples || st.AvgResolveMinutes <= 0 {
			continue
		}
		if st.AvgResolveMinutes < bestMinutes {
			best = cat
			bestMinutes = st.AvgResolveMinutes
		}
	}
	if best != "" {
		g.FastestCategory = best
		g.FastestAvgMinutes = bestMinutes
	}
}

// addNotes emits the free-text fragments the generation prompt splices
// into its instructions.
func (a *Analyzer) addNotes(g *Guidance, stats Stats) {
	if len(g.HighPriority) > 0 {
		top := g.HighPriority[0]
		if st, ok := stats[top]; ok {
			g.Notes = append(g.Notes, fmt.Sprintf(
				"%s work has the strongest track record (%.0f%% success over %d attempts); favor it.",
				top, st.SuccessRate*100, st.Total))
		}
	}
	for _, cat := range g.LowPriority {
		st, ok := stats[cat]
		if !ok || st.Total < a.params.FastHintMinSamples {
			continue
		}
		if st.SuccessRate < a.params.NeutralWeight {
			g.Notes = append(g.Notes, fmt.Sprintf(
				"%s attempts succeed only %.0f%% of the time (%d attempts); generate fewer until results improve.",
				cat, st.SuccessRate*100, st.Total))
			break
		}
	}
	if g.FastestCategory != "" {
		g.Notes = append(g.Notes, fmt.Sprintf(
			"%s items resolve fastest (avg %.0f minutes); good fill-in work.",
			g.FastestCategory, g.FastestAvgMinutes))
	}
}
