package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractScriptJSON locates a script element by id ("#product-data")
// or a single attribute selector ("[data-role=state]") and parses its
// text content as JSON
func extractScriptJSON(raw []byte, selector string) (any, error) {
	if selector == "" {
		return nil, fmt.Errorf("script-json requires a selector")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	sel := selector
	if !strings.HasPrefix(sel, "script") {
		sel = "script" + sel
	}

	node := doc.Find(sel).First()
	if node.Length() == 0 {
		return nil, fmt.Errorf("no script element matches %q", selector)
	}

	var tree any
	if err := json.Unmarshal([]byte(node.Text()), &tree); err != nil {
		return nil, fmt.Errorf("script %q is not valid JSON: %w", selector, err)
	}
	return tree, nil
}
