package filter

import "strings"

// categoryAliases maps a canonical category to the names sites use
// for it. Matching is case-insensitive substring in both directions,
// so "Men's Running Shoes" matches "footwear".
var categoryAliases = map[string][]string{
	"shoes":       {"footwear", "sneakers", "boots", "sandals"},
	"apparel":     {"clothing", "clothes", "wear", "garments"},
	"electronics": {"electronic", "tech", "gadgets"},
	"computers":   {"laptops", "notebooks", "desktops", "pc"},
	"phones":      {"smartphones", "mobile", "cell phones"},
	"outdoor":     {"camping", "hiking", "outdoors"},
	"sports":      {"sporting goods", "athletics", "fitness"},
	"home":        {"household", "home goods", "furniture"},
	"kitchen":     {"cookware", "appliances"},
	"toys":        {"games", "toy"},
	"beauty":      {"cosmetics", "personal care"},
	"jewelry":     {"jewellery", "accessories"},
}

// expandAliases returns the category itself plus its canonical alias
// set, all lower-cased
func expandAliases(category string) []string {
	lowered := strings.ToLower(strings.TrimSpace(category))
	expanded := []string{lowered}
	if aliases, ok := categoryAliases[lowered]; ok {
		expanded = append(expanded, aliases...)
	}
	// The category may itself be an alias of a canonical name
	for canonical, aliases := range categoryAliases {
		for _, alias := range aliases {
			if alias == lowered {
				expanded = append(expanded, canonical)
			}
		}
	}
	return expanded
}

// categoryMatches reports whether a raw site category fuzzy-matches a
// filter category through the alias table
func categoryMatches(raw, want string) bool {
	rawLower := strings.ToLower(strings.TrimSpace(raw))
	if rawLower == "" {
		return false
	}
	for _, candidate := range expandAliases(want) {
		if candidate == "" {
			continue
		}
		if strings.Contains(rawLower, candidate) || strings.Contains(candidate, rawLower) {
			return true
		}
	}
	return false
}
