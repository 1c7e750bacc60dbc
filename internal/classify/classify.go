// Package classify maps a work item's label set to exactly one
// canonical category. The mapping is a fixed, ordered priority list:
// the first rule with a matching label wins, so an item labeled both
// "bug" and "feature" is always a bug. Unrecognized label sets fall
// back to "other". Pure computation, no I/O.
package classify

import (
	"fmt"
	"strings"
)

// CategoryOther is the fallback category for unrecognized label sets.
const CategoryOther = "other"

// Rule maps a set of equivalent labels to one category. Rules are
// evaluated in order; earlier rules take priority.
type Rule struct {
	Category string   `yaml:"category"`
	Labels   []string `yaml:"labels"`
}

// DefaultRules returns the built-in priority order: bug, security,
// performance, feature, documentation, refactor, test, chore.
func DefaultRules() []Rule {
	return []Rule{
		{Category: "bug", Labels: []string{"bug", "defect", "regression", "bugfix"}},
		{Category: "security", Labels: []string{"security", "vulnerability", "cve"}},
		{Category: "performance", Labels: []string{"performance", "optimization", "perf"}},
		{Category: "feature", Labels: []string{"feature", "enhancement", "feature-request"}},
		{Category: "documentation", Labels: []string{"documentation", "docs", "readme"}},
		{Category: "refactor", Labels: []string{"refactor", "refactoring", "cleanup", "tech-debt"}},
		{Category: "test", Labels: []string{"test", "tests", "testing", "coverage"}},
		{Category: "chore", Labels: []string{"chore", "ci", "build", "dependencies"}},
	}
}

// Classifier holds an ordered rule list with a precomputed lookup.
type Classifier struct {
	rules []Rule
	// label -> rule index, lowest index wins
	priority map[string]int
}

// New builds a Classifier from an ordered rule list.
func New(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("at least one rule is required")
	}

	priority := make(map[string]int)
	for i, rule := range rules {
		if rule.Category == "" {
			return nil, fmt.Errorf("rule %d has empty category", i)
		}
		if rule.Category == CategoryOther {
			return nil, fmt.Errorf("rule %d uses reserved category %q", i, CategoryOther)
		}
		for _, label := range rule.Labels {
			key := normalize(label)
			if key == "" {
				return nil, fmt.Errorf("rule %d (%s) has empty label", i, rule.Category)
			}
			if _, seen := priority[key]; !seen {
				priority[key] = i
			}
		}
	}

	return &Classifier{rules: rules, priority: priority}, nil
}

// Default returns a Classifier with the built-in rules.
func Default() *Classifier {
	c, err := New(DefaultRules())
	if err != nil {
		// DefaultRules is static and valid; reaching here is a bug.
		panic(err)
	}
	return c
}

// Classify returns the category for a label set. Same input always
// yields the same output regardless of label order.
func (c *Classifier) Classify(labels []string) string {
	best := len(c.rules)
	for _, label := range labels {
		if idx, ok := c.priority[normalize(label)]; ok && idx < best {
			best = idx
		}
	}
	if best == len(c.rules) {
		return CategoryOther
	}
	return c.rules[best].Category
}

// Categories returns every category the classifier can produce, in
// priority order, with the fallback last.
func (c *Classifier) Categories() []string {
	out := make([]string, 0, len(c.rules)+1)
	for _, rule := range c.rules {
		out = append(out, rule.Category)
	}
	return append(out, CategoryOther)
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Classify applies the default rules. Convenience for callers that do
// not carry a configured Classifier.
func Classify(labels []string) string {
	return Default().Classify(labels)
}
