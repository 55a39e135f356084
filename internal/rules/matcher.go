package rules

import (
	"context"
	"fmt"

	"github.com/irisdrone/echallan/internal/detection"
	"github.com/irisdrone/echallan/internal/models"
)

// Lookup resolves the active rules for one violation class.
type Lookup interface {
	ActiveRulesForClass(ctx context.Context, class string) ([]models.Rule, error)
}

// Match is one rule triggered by one detection.
type Match struct {
	Rule      models.Rule
	Detection detection.Detection
}

// Matcher pairs detections with the rules they trigger.
type Matcher struct {
	rules  Lookup
	dedupe bool
}

// NewMatcher creates a Matcher. With dedupe set, a rule triggered by
// several detections of one event is counted once.
func NewMatcher(rules Lookup, dedupe bool) *Matcher {
	return &Matcher{rules: rules, dedupe: dedupe}
}

// Applies reports whether det meets rule's confidence threshold. The
// threshold is inclusive.
func Applies(rule models.Rule, det detection.Detection) bool {
	return det.Confidence >= rule.MinConfidence
}

// Match returns the triggered rules in detection order, then rule_id order.
// Detections without a class are skipped. A rule matched by more than one
// detection appears once per detection unless dedupe is on.
func (m *Matcher) Match(ctx context.Context, dets []detection.Detection) ([]Match, error) {
	var matches []Match
	seen := make(map[string]bool)
	for _, det := range dets {
		if det.Class == "" {
			continue
		}
		rules, err := m.rules.ActiveRulesForClass(ctx, det.Class)
		if err != nil {
			return nil, fmt.Errorf("load rules for %q: %w", det.Class, err)
		}
		for _, rule := range rules {
			if !Applies(rule, det) {
				continue
			}
			if m.dedupe {
				if seen[rule.RuleID] {
					continue
				}
				seen[rule.RuleID] = true
			}
			matches = append(matches, Match{Rule: rule, Detection: det})
		}
	}
	return matches, nil
}

// Billable keeps the matches that carry a positive penalty. Zero-penalty
// rules are informational and never bill on their own.
func Billable(matches []Match) []Match {
	var out []Match
	for _, m := range matches {
		if m.Rule.Penalty.IsPositive() {
			out = append(out, m)
		}
	}
	return out
}
