// Package rules applies user-defined classification rules to transaction
// descriptions. Rules run before any AI fallback: they are free,
// deterministic and carry full confidence.
package rules

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

// Match reports whether the rule pattern matches the description.
// Matching is case-insensitive. A regex that does not compile never
// matches; a broken rule must not take down the batch.
func Match(rule domain.ClassificationRule, description string) bool {
	desc := strings.ToLower(description)
	pattern := strings.ToLower(rule.Pattern)

	switch rule.MatchType {
	case domain.MatchContains:
		return strings.Contains(desc, pattern)
	case domain.MatchStartsWith:
		return strings.HasPrefix(desc, pattern)
	case domain.MatchEndsWith:
		return strings.HasSuffix(desc, pattern)
	case domain.MatchRegex:
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(desc)
	default:
		return false
	}
}

// Classify finds the first active rule matching the description.
// Rules are evaluated in descending priority; ties keep their input
// order. The returned usage event records the application for the
// caller to persist. ok is false when nothing matched.
func Classify(description string, ruleset []domain.ClassificationRule) (domain.ClassificationRule, domain.RuleUsage, bool) {
	ordered := make([]domain.ClassificationRule, 0, len(ruleset))
	for _, r := range ruleset {
		if r.Active {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	for _, rule := range ordered {
		if Match(rule, description) {
			usage := domain.RuleUsage{RuleID: rule.ID, AppliedAt: time.Now().UTC()}
			return rule, usage, true
		}
	}
	return domain.ClassificationRule{}, domain.RuleUsage{}, false
}

// Result converts a matched rule into a classification result. Rule
// hits always carry confidence 1.0.
func Result(rule domain.ClassificationRule, categoryName string) domain.ClassificationResult {
	return domain.ClassificationResult{
		CategoryID:   rule.CategoryID,
		CategoryName: categoryName,
		Confidence:   1.0,
		Source:       domain.SourceRule,
		Reasoning:    "Classificado por regra: " + rule.Name,
	}
}
