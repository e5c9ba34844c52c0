package extract

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/webscout/deal-weaver/internal/schema"
)

// extractHTMLDOM splits raw HTML into per-item chunks located by a
// simple tag+class/id selector and applies one capture-group regex per
// configured field inside each chunk. Chunk boundaries are found by
// depth-aware tag counting rather than naive slicing, since sibling
// cards can appear elsewhere on the page (sidebars, carousels).
// Zero matched chunks is not an error: it yields an empty tree.
func extractHTMLDOM(raw []byte, cfg schema.ExtractionConfig) (any, error) {
	fieldRes := make(map[string]*regexp.Regexp, len(cfg.HTMLFields))
	for field, pattern := range cfg.HTMLFields {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad regex for field %q: %w", field, err)
		}
		fieldRes[field] = re
	}

	region := string(raw)
	if cfg.ContainerSelector != "" {
		narrowed, err := firstChunk(region, cfg.ContainerSelector)
		if err != nil {
			return nil, err
		}
		if narrowed == "" {
			logrus.Debugf("html-dom: container %q not found, page yields no items", cfg.ContainerSelector)
			return map[string]any{"products": []any{}}, nil
		}
		region = narrowed
	}

	chunks, err := chunkBySelector(region, cfg.ItemSelector)
	if err != nil {
		return nil, err
	}

	var items []any
	for _, chunk := range chunks {
		item := make(map[string]any, len(fieldRes))
		for field, re := range fieldRes {
			if m := re.FindStringSubmatch(chunk); m != nil {
				value := m[0]
				if len(m) > 1 {
					value = m[1]
				}
				item[field] = strings.TrimSpace(html.UnescapeString(value))
			}
		}
		// Chunks without a product id are navigation or filler cards
		if id, _ := item["productId"].(string); id != "" {
			items = append(items, item)
		}
	}

	if len(items) == 0 {
		logrus.Debugf("html-dom: selector %q matched %d chunks, none with a product id", cfg.ItemSelector, len(chunks))
		return map[string]any{"products": []any{}}, nil
	}
	return map[string]any{"products": items}, nil
}

// simpleSelector is a parsed "tag.class" / "tag#id" / ".class" selector
type simpleSelector struct {
	tag   string
	attr  string // "class" or "id"
	value string
}

func parseSimpleSelector(sel string) (simpleSelector, error) {
	var parsed simpleSelector
	switch {
	case strings.Contains(sel, "."):
		parts := strings.SplitN(sel, ".", 2)
		parsed = simpleSelector{tag: parts[0], attr: "class", value: parts[1]}
	case strings.Contains(sel, "#"):
		parts := strings.SplitN(sel, "#", 2)
		parsed = simpleSelector{tag: parts[0], attr: "id", value: parts[1]}
	default:
		return parsed, fmt.Errorf("selector %q must contain a class or id", sel)
	}
	if parsed.tag == "" {
		parsed.tag = "div"
	}
	if parsed.value == "" {
		return parsed, fmt.Errorf("selector %q has an empty %s", sel, parsed.attr)
	}
	return parsed, nil
}

// openTagRegex matches an opening tag carrying the wanted class or id
func openTagRegex(sel simpleSelector) *regexp.Regexp {
	pattern := fmt.Sprintf(`(?is)<%s\b[^>]*\b%s\s*=\s*"[^"]*\b%s\b[^"]*"[^>]*>`,
		regexp.QuoteMeta(sel.tag), sel.attr, regexp.QuoteMeta(sel.value))
	return regexp.MustCompile(pattern)
}

// chunkBySelector returns every region opened by a tag matching the
// selector, each closed by its nesting-aware matching end tag
func chunkBySelector(doc, selector string) ([]string, error) {
	sel, err := parseSimpleSelector(selector)
	if err != nil {
		return nil, err
	}

	var chunks []string
	searchFrom := 0
	re := openTagRegex(sel)
	for {
		loc := re.FindStringIndex(doc[searchFrom:])
		if loc == nil {
			break
		}
		start := searchFrom + loc[0]
		end := matchClosingTag(doc, start, sel.tag)
		if end < 0 {
			// Unbalanced markup: take the rest of the document once
			chunks = append(chunks, doc[start:])
			break
		}
		chunks = append(chunks, doc[start:end])
		searchFrom = end
	}
	return chunks, nil
}

// firstChunk narrows a document to the first region matching the
// selector, using the same depth-aware technique
func firstChunk(doc, selector string) (string, error) {
	chunks, err := chunkBySelector(doc, selector)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}
	return chunks[0], nil
}

// matchClosingTag returns the index just past the end tag that closes
// the tag opened at start, counting nested same-name tags
func matchClosingTag(doc string, start int, tag string) int {
	lower := strings.ToLower(doc)
	tag = strings.ToLower(tag)
	openToken := "<" + tag
	closeToken := "</" + tag

	depth := 0
	i := start
	for i < len(lower) {
		nextOpen := findTagToken(lower, openToken, i)
		nextClose := findTagToken(lower, closeToken, i)
		if nextClose < 0 {
			return -1
		}
		if nextOpen >= 0 && nextOpen < nextClose {
			depth++
			i = nextOpen + len(openToken)
			continue
		}
		depth--
		i = nextClose + len(closeToken)
		if depth == 0 {
			gt := strings.IndexByte(lower[nextClose:], '>')
			if gt < 0 {
				return -1
			}
			return nextClose + gt + 1
		}
	}
	return -1
}

// findTagToken finds token at a tag-name boundary, so "<div" does not
// match "<divider"
func findTagToken(lower, token string, from int) int {
	for {
		idx := strings.Index(lower[from:], token)
		if idx < 0 {
			return -1
		}
		abs := from + idx
		after := abs + len(token)
		if after >= len(lower) {
			return -1
		}
		switch lower[after] {
		case ' ', '\t', '\n', '\r', '>', '/':
			return abs
		}
		from = abs + 1
	}
}
