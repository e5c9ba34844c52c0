package extract

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/webscout/deal-weaver/internal/schema"
)

// DefaultSchema is the extraction recipe used for sites without a
// custom schema: a Next.js __NEXT_DATA__ state blob with the field
// names most storefront frameworks emit. Missing stock signals here
// default to "in stock" through the variant pipeline, unlike the
// page-level meta-tag/DOM normalizer.
func DefaultSchema() *schema.ProductPageSchema {
	return &schema.ProductPageSchema{
		Extraction: schema.ExtractionConfig{
			Method:   schema.MethodScriptJSON,
			Selector: "#__NEXT_DATA__",
		},
		Paths: schema.PathConfig{
			ProductsArray: "props.pageProps.products|props.pageProps.searchResults.products|props.pageProps.initialState.search.products",
			SingleProduct: "props.pageProps.product|props.pageProps.productData",
			VariantsArray: "variants|skus|childSKUs",
			Fields: map[string]string{
				"productId":   "productId|repositoryId|id",
				"skuId":       "skuId|sku|id",
				"displayName": "displayName|name|title",
				"description": "description|longDescription",
				"brand":       "brand.name|brand|manufacturer",
				"listPrice":   "listPrice|price.listPrice|prices.list",
				"msrp":        "msrp|price.msrp",
				"activePrice": "activePrice|price.activePrice|prices.current",
				"salePrice":   "salePrice|price.salePrice|prices.sale",
				"imageUrl":    "primaryImage|image.url|imageUrl",
				"productUrl":  "url|productUrl|seo.url",
				"categories":  "categories|breadcrumbs",
				"inStock":     "inStock|availability.inStock",
			},
		},
	}
}

var digitsRe = regexp.MustCompile(`\d+`)

// PageCountHint reads a listing's total page count from the document.
// Returns 1 when the selector is empty or nothing matches.
func PageCountHint(raw []byte, selector string) int {
	if selector == "" {
		return 1
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return 1
	}

	text := strings.TrimSpace(doc.Find(selector).Last().Text())
	if m := digitsRe.FindString(text); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n >= 1 {
			return n
		}
	}
	return 1
}
