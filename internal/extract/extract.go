package extract

import (
	"fmt"

	"github.com/webscout/deal-weaver/internal/schema"
)

// Extract runs the configured extraction strategy over a raw HTML
// payload and returns a generic decoded tree for the schema engine.
// The api-json method has no HTML side and is handled by the fetcher.
func Extract(raw []byte, cfg schema.ExtractionConfig) (any, error) {
	switch cfg.Method {
	case schema.MethodScriptJSON:
		return extractScriptJSON(raw, cfg.Selector)
	case schema.MethodJSONLD:
		return extractJSONLD(raw, cfg.JSONLDType)
	case schema.MethodMetaTags:
		return extractMetaTags(raw)
	case schema.MethodHTMLDOM:
		return extractHTMLDOM(raw, cfg)
	default:
		return nil, fmt.Errorf("extraction method %q has no HTML adapter", cfg.Method)
	}
}
