package schema

import (
	"strconv"
	"strings"
)

// ResolvePath looks up a value inside a decoded JSON tree using dot
// notation. Numeric segments index arrays. Pipe-separated alternatives
// are tried left to right and the first non-null, non-empty result
// wins, e.g. "productId|repositoryId|id".
func ResolvePath(root any, path string) any {
	if path == "" {
		return nil
	}

	for _, alt := range strings.Split(path, "|") {
		if v := resolveSegments(root, strings.TrimSpace(alt)); !isEmpty(v) {
			return v
		}
	}
	return nil
}

func resolveSegments(root any, path string) any {
	current := root
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil
		}
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			current = node[idx]
		default:
			return nil
		}
	}
	return current
}

// isEmpty reports whether a resolved value counts as a miss for the
// purposes of fallback chains
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}
