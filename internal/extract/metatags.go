package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// extractMetaTags collects all <meta name|property, content> pairs
// into a flat map
func extractMetaTags(raw []byte) (any, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	tags := make(map[string]any)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key, ok := s.Attr("name")
		if !ok {
			key, ok = s.Attr("property")
		}
		if !ok || key == "" {
			return
		}
		if content, ok := s.Attr("content"); ok {
			tags[key] = content
		}
	})

	return tags, nil
}
