package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// extractJSONLD scans all application/ld+json scripts and returns the
// first object (or @graph member) whose @type matches wantType
func extractJSONLD(raw []byte, wantType string) (any, error) {
	if wantType == "" {
		wantType = "Product"
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var found any
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			// Malformed blocks are common on real pages, keep scanning
			return true
		}
		if match := findTypedObject(payload, wantType); match != nil {
			found = match
			return false
		}
		return true
	})

	if found == nil {
		return nil, fmt.Errorf("no ld+json object of type %q found", wantType)
	}
	return found, nil
}

// findTypedObject matches top-level objects, arrays of objects, and
// @graph members against the wanted @type
func findTypedObject(payload any, wantType string) any {
	switch node := payload.(type) {
	case map[string]any:
		if typeMatches(node["@type"], wantType) {
			return node
		}
		if graph, ok := node["@graph"].([]any); ok {
			return findTypedObject(graph, wantType)
		}
	case []any:
		for _, item := range node {
			if obj, ok := item.(map[string]any); ok && typeMatches(obj["@type"], wantType) {
				return obj
			}
		}
	}
	return nil
}

// typeMatches handles both string and array @type values
func typeMatches(v any, wantType string) bool {
	switch t := v.(type) {
	case string:
		return t == wantType
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == wantType {
				return true
			}
		}
	}
	return false
}
