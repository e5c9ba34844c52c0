package schema

import (
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/webscout/deal-weaver/internal/models"
)

// placeholder prices below this value are treated as absent
const minRealPrice = 0.5

// BuildVariants turns the generic tree produced by an extraction
// adapter into canonical variants using the schema's path config.
// Items without a usable product id or reference price are dropped.
func BuildVariants(root any, paths PathConfig) []models.Variant {
	products := resolveProducts(root, paths)
	if len(products) == 0 {
		logrus.Debugf("schema: no products resolved at %q", paths.ProductsArray)
		return nil
	}

	var variants []models.Variant
	for _, product := range products {
		items := resolveVariantItems(product, paths)
		for _, item := range items {
			if v, ok := buildVariant(item, product, paths.Fields); ok {
				variants = append(variants, v)
			}
		}
	}
	return variants
}

// resolveProducts locates the product list, falling back to the
// single-product path when the page carries one product only
func resolveProducts(root any, paths PathConfig) []any {
	switch resolved := ResolvePath(root, paths.ProductsArray).(type) {
	case []any:
		if len(resolved) > 0 {
			return resolved
		}
	case map[string]any:
		return []any{resolved}
	}

	if paths.SingleProduct != "" {
		if single, ok := ResolvePath(root, paths.SingleProduct).(map[string]any); ok {
			return []any{single}
		}
	}
	return nil
}

// resolveVariantItems returns the per-SKU items of one product, or the
// product itself when the feed has no variant dimension
func resolveVariantItems(product any, paths PathConfig) []any {
	if paths.VariantsArray != "" {
		if items, ok := ResolvePath(product, paths.VariantsArray).([]any); ok && len(items) > 0 {
			return items
		}
	}
	return []any{product}
}

func buildVariant(item, product any, fields map[string]string) (models.Variant, bool) {
	productID := asString(resolveField(item, product, fields["productId"]))
	if productID == "" {
		return models.Variant{}, false
	}

	listPrice, hasList := NormalizePrice(resolveField(item, product, fields["listPrice"]))
	msrp, hasMSRP := NormalizePrice(resolveField(item, product, fields["msrp"]))
	activePrice, hasActive := NormalizePrice(resolveField(item, product, fields["activePrice"]))
	salePrice, hasSale := NormalizePrice(resolveField(item, product, fields["salePrice"]))

	// Fall back through msrp and the candidate prices before giving up
	// on an item without a usable list price
	if !hasList || listPrice <= 0 {
		switch {
		case hasMSRP && msrp > 0:
			listPrice = msrp
		case hasActive && activePrice >= minRealPrice:
			listPrice = activePrice
		case hasSale && salePrice >= minRealPrice:
			listPrice = salePrice
		default:
			return models.Variant{}, false
		}
	}

	// An MSRP above the feed's list price becomes the reference for
	// discount math, so MSRP-based discounts are still computed when
	// the feed's "list price" is actually a current price
	reference := listPrice
	if hasMSRP && msrp > listPrice {
		reference = msrp
	}
	if reference <= 0 {
		return models.Variant{}, false
	}

	best := listPrice
	switch {
	case hasActive && activePrice > 0 && hasSale && salePrice > 0:
		best = activePrice
		if salePrice < best {
			best = salePrice
		}
	case hasActive && activePrice > 0:
		best = activePrice
	case hasSale && salePrice > 0:
		best = salePrice
	}
	// Corrupt feeds sometimes report a "sale" price above list
	if best > reference {
		best = listPrice
	}

	v := models.Variant{
		ProductID:          productID,
		SKUID:              asString(resolveField(item, product, fields["skuId"])),
		DisplayName:        asString(resolveField(item, product, fields["displayName"])),
		Description:        asString(resolveField(item, product, fields["description"])),
		Brand:              asString(resolveField(item, product, fields["brand"])),
		ListPrice:          listPrice,
		ActivePrice:        activePrice,
		SalePrice:          salePrice,
		BestPrice:          best,
		DiscountPercentage: models.ComputeDiscount(reference, best),
		ImageURL:           asString(resolveField(item, product, fields["imageUrl"])),
		ProductURL:         asString(resolveField(item, product, fields["productUrl"])),
		Categories:         NormalizeCategories(resolveField(item, product, fields["categories"])),
		InStock:            resolveStock(item, product, fields["inStock"]),
	}
	return v, true
}

// resolveField tries the variant item first, then the parent product
func resolveField(item, product any, path string) any {
	if path == "" {
		return nil
	}
	if v := ResolvePath(item, path); v != nil {
		return v
	}
	if product != nil {
		return ResolvePath(product, path)
	}
	return nil
}

// resolveStock prefers an explicit product-level signal, then the
// variant-level one, and assumes purchasable when neither is present
func resolveStock(item, product any, path string) bool {
	if path == "" {
		return true
	}
	if v := ResolvePath(product, path); v != nil {
		return NormalizeStock(v)
	}
	if v := ResolvePath(item, path); v != nil {
		return NormalizeStock(v)
	}
	return true
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		return ""
	}
}
