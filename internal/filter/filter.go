package filter

import (
	"strings"

	"github.com/webscout/deal-weaver/internal/models"
)

// Evaluate reports whether a variant satisfies every criterion of a
// filter. All criteria are conjunctive: one failing criterion
// disqualifies the variant regardless of the others.
func Evaluate(v models.Variant, criteria models.FilterCriteria) bool {
	if v.DiscountPercentage < criteria.DiscountThreshold {
		return false
	}
	if criteria.MaxPrice > 0 && v.BestPrice > criteria.MaxPrice {
		return false
	}
	if len(criteria.Keywords) > 0 && !matchesKeyword(v.DisplayName, criteria.Keywords) {
		return false
	}
	if len(criteria.IncludedCategories) > 0 && !matchesAnyCategory(v.Categories, criteria.IncludedCategories) {
		return false
	}
	if len(criteria.ExcludedCategories) > 0 && matchesAnyCategory(v.Categories, criteria.ExcludedCategories) {
		return false
	}
	return true
}

// FindMatchingFilters returns every filter the variant satisfies,
// preserving input order. The caller treats the first match as
// canonical for attribution.
func FindMatchingFilters(v models.Variant, filters []models.Filter) []models.Filter {
	var matched []models.Filter
	for _, f := range filters {
		if Evaluate(v, f.Criteria) {
			matched = append(matched, f)
		}
	}
	return matched
}

// matchesKeyword reports whether the display name contains at least
// one keyword, case-folded
func matchesKeyword(displayName string, keywords []string) bool {
	name := strings.ToLower(displayName)
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(name, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// matchesAnyCategory reports whether any raw variant category
// fuzzy-matches any filter category via the alias table
func matchesAnyCategory(rawCategories, filterCategories []string) bool {
	for _, raw := range rawCategories {
		for _, want := range filterCategories {
			if categoryMatches(raw, want) {
				return true
			}
		}
	}
	return false
}
