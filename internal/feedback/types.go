// Package feedback turns the raw attempt history into per-category
// metrics and weighted generation guidance. Everything here is a pure
// computation over the outcome store's aggregates; the store is the
// only state.
package feedback

import (
	"time"

	"issuenerd/internal/outcome"
)

// Params holds the weighting constants. They are passed in explicitly
// (no ambient state) so two analyzers with different tuning can coexist.
type Params struct {
	// FullConfidenceSamples is the sample count at which a category's
	// observed success rate is trusted fully.
	FullConfidenceSamples float64 `yaml:"full_confidence_samples"`

	// ExponentScale controls how super-linearly high success rates are
	// rewarded: base_weight = exp(rate * ExponentScale) / e.
	ExponentScale float64 `yaml:"exponent_scale"`

	// NeutralWeight is the weight low-sample and unseen categories are
	// pulled toward, so one lucky or unlucky outcome cannot dominate.
	NeutralWeight float64 `yaml:"neutral_weight"`

	// FastHintMinSamples is the minimum sample count for a category to
	// qualify for the fast-resolution hint.
	FastHintMinSamples int `yaml:"fast_hint_min_samples"`
}

// DefaultParams returns the tuning used in production.
func DefaultParams() Params {
	return Params{
		FullConfidenceSamples: 5.0,
		ExponentScale:         1.5,
		NeutralWeight:         0.5,
		FastHintMinSamples:    3,
	}
}

// CategoryWeight is one category's entry in the guidance, ordered by
// weight descending.
type CategoryWeight struct {
	Category     string  `json:"category"`
	Weight       float64 `json:"weight"`
	Confidence   float64 `json:"confidence"`
	SharePercent float64 `json:"share_percent"` // normalized recommended distribution
	SuccessRate  float64 `json:"success_rate"`
	SampleSize   int     `json:"sample_size"`
}

// Guidance is the weighted recommendation object consumed by the
// work-item generation side before it constructs its next batch.
type Guidance struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Since       time.Time        `json:"since,omitempty"`
	Weights     []CategoryWeight `json:"weights"`

	// Partition around the mean weight. Both empty on cold start.
	HighPriority []string `json:"high_priority"`
	LowPriority  []string `json:"low_priority"`

	// Fast-resolution hint: set when some category with enough samples
	// resolves measurably fastest.
	FastestCategory   string  `json:"fastest_category,omitempty"`
	FastestAvgMinutes float64 `json:"fastest_avg_minutes,omitempty"`

	// Free-text fragments the generation prompt can splice in.
	Notes []string `json:"notes,omitempty"`

	// ColdStart is true when no category has any data; generation
	// should fall back to its default unweighted behavior.
	ColdStart bool `json:"cold_start"`
}

// Weight returns the guidance weight for a category, or the neutral
// default when the category is not present.
func (g *Guidance) Weight(category string) float64 {
	for _, w := range g.Weights {
		if w.Category == category {
			return w.Weight
		}
	}
	return DefaultParams().NeutralWeight
}

// Stats is the per-category aggregate view handed to guidance building.
type Stats = map[string]*outcome.CategoryStats
