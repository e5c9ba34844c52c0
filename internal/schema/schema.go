package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extraction methods understood by the engine
const (
	MethodScriptJSON = "script-json"
	MethodJSONLD     = "json-ld"
	MethodMetaTags   = "meta-tags"
	MethodHTMLDOM    = "html-dom"
	MethodAPIJSON    = "api-json"
)

// Pagination policies
const (
	PaginationHTML          = "html"
	PaginationAPITotal      = "api-total"
	PaginationAPISequential = "api-sequential"
)

// ProductPageSchema is the declarative extraction recipe for one website
type ProductPageSchema struct {
	Extraction ExtractionConfig `json:"extraction"`
	Paths      PathConfig       `json:"paths"`
}

// ExtractionConfig selects an extraction method and its parameters
type ExtractionConfig struct {
	Method            string            `json:"method"`
	Selector          string            `json:"selector,omitempty"`
	JSONLDType        string            `json:"jsonLdType,omitempty"`
	APIURL            string            `json:"apiUrl,omitempty"`
	APIMethod         string            `json:"apiMethod,omitempty"`
	APIParams         map[string]string `json:"apiParams,omitempty"`
	APIHeaders        map[string]string `json:"apiHeaders,omitempty"`
	APIBody           map[string]any    `json:"apiBody,omitempty"`
	ItemSelector      string            `json:"itemSelector,omitempty"`
	ContainerSelector string            `json:"containerSelector,omitempty"`
	HTMLFields        map[string]string `json:"htmlFields,omitempty"`
	Login             *LoginConfig      `json:"login,omitempty"`
	Pagination        *PaginationConfig `json:"pagination,omitempty"`
}

// LoginConfig describes an optional form login performed before scraping
type LoginConfig struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// PaginationConfig describes how additional pages are requested
type PaginationConfig struct {
	Type              string `json:"type"`
	TotalPath         string `json:"totalPath,omitempty"`
	PageSize          int    `json:"pageSize,omitempty"`
	MaxPages          int    `json:"maxPages,omitempty"`
	PageParam         string `json:"pageParam,omitempty"`
	OffsetParam       string `json:"offsetParam,omitempty"`
	LimitParam        string `json:"limitParam,omitempty"`
	ParamsInBody      bool   `json:"paramsInBody,omitempty"`
	CursorTemplate    string `json:"cursorTemplate,omitempty"`
	PageCountSelector string `json:"pageCountSelector,omitempty"`
}

// PathConfig maps canonical field names to source paths inside the
// extracted tree. Paths use dot notation with pipe-separated fallbacks.
type PathConfig struct {
	ProductsArray string            `json:"productsArray"`
	SingleProduct string            `json:"singleProduct,omitempty"`
	VariantsArray string            `json:"variantsArray,omitempty"`
	Fields        map[string]string `json:"fields"`
}

// ValidationError reports every schema violation found during parsing
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid product page schema: %s", strings.Join(e.Violations, "; "))
}

var knownMethods = map[string]bool{
	MethodScriptJSON: true,
	MethodJSONLD:     true,
	MethodMetaTags:   true,
	MethodHTMLDOM:    true,
	MethodAPIJSON:    true,
}

// ParseSchemaJSON parses and validates a schema document.
// On any violation it returns a ValidationError and no partial schema.
func ParseSchemaJSON(data []byte) (*ProductPageSchema, error) {
	var s ProductPageSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}

	var violations []string

	if !knownMethods[s.Extraction.Method] {
		violations = append(violations, fmt.Sprintf("extraction.method %q is not a known method", s.Extraction.Method))
	}
	if s.Extraction.Method == MethodAPIJSON && s.Extraction.APIURL == "" {
		violations = append(violations, "extraction.apiUrl is required for api-json")
	}
	if s.Extraction.Method == MethodHTMLDOM {
		if s.Extraction.ItemSelector == "" {
			violations = append(violations, "extraction.itemSelector is required for html-dom")
		}
		if len(s.Extraction.HTMLFields) == 0 {
			violations = append(violations, "extraction.htmlFields requires at least one entry for html-dom")
		}
	}
	if s.Paths.ProductsArray == "" {
		violations = append(violations, "paths.productsArray is required")
	}
	for _, field := range []string{"productId", "displayName", "listPrice"} {
		if s.Paths.Fields[field] == "" {
			violations = append(violations, fmt.Sprintf("paths.fields.%s is required", field))
		}
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return &s, nil
}
