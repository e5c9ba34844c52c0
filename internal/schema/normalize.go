package schema

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var nonPriceChars = regexp.MustCompile(`[^0-9.,\-]`)

// NormalizePrice converts the price shapes seen in the wild into a
// float: plain numbers, {centAmount, fractionDigits} structures, and
// strings like "$29.99". Returns false when no price can be read.
func NormalizePrice(v any) (float64, bool) {
	switch p := v.(type) {
	case float64:
		return p, true
	case int:
		return float64(p), true
	case string:
		cleaned := nonPriceChars.ReplaceAllString(p, "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
		if cleaned == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case map[string]any:
		cents, ok := NormalizePrice(p["centAmount"])
		if !ok {
			return 0, false
		}
		digits := 2.0
		if d, ok := NormalizePrice(p["fractionDigits"]); ok {
			digits = d
		}
		return cents / math.Pow(10, digits), true
	default:
		return 0, false
	}
}

// NormalizeCategories accepts a bare string, an array of strings, or
// an array of objects exposing displayName|name|category
func NormalizeCategories(v any) []string {
	switch c := v.(type) {
	case string:
		if c == "" {
			return nil
		}
		return []string{c}
	case []any:
		var categories []string
		for _, item := range c {
			switch entry := item.(type) {
			case string:
				if entry != "" {
					categories = append(categories, entry)
				}
			case map[string]any:
				if name, ok := ResolvePath(entry, "displayName|name|category").(string); ok && name != "" {
					categories = append(categories, name)
				}
			}
		}
		return categories
	default:
		return nil
	}
}

// NormalizeStock interprets a stock signal at the page level. An
// absent signal defaults to false here; the variant pipeline defaults
// missing signals to true instead, which is intentional — an explicit
// product-level "out of stock" is authoritative, an unannotated
// variant is assumed purchasable.
func NormalizeStock(v any) bool {
	switch s := v.(type) {
	case bool:
		return s
	case float64:
		return s > 0
	case string:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "instock", "in_stock", "in stock", "true", "yes", "available", "1":
			return true
		default:
			return false
		}
	default:
		return false
	}
}
