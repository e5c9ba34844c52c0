package models

import (
	"math"
	"time"
)

// Variant represents a single purchasable SKU observed on a page
type Variant struct {
	ProductID          string
	SKUID              string
	DisplayName        string
	Description        string
	Brand              string
	ListPrice          float64
	ActivePrice        float64
	SalePrice          float64
	BestPrice          float64
	DiscountPercentage float64
	ImageURL           string
	ProductURL         string
	Categories         []string
	InStock            bool
}

// CompositeID returns the variant identity key: productId, or
// productId:skuId when the SKU distinguishes variants of one product
func (v *Variant) CompositeID() string {
	return CompositeID(v.ProductID, v.SKUID)
}

// DedupKey returns the new-deal emission key. It is intentionally
// coarser than CompositeID so that other SKUs of an already-alerted
// product do not re-trigger.
func (v *Variant) DedupKey() string {
	return v.ProductID
}

// CompositeID builds the variant identity key from its parts
func CompositeID(productID, skuID string) string {
	if skuID == "" {
		return productID
	}
	return productID + ":" + skuID
}

// ComputeDiscount returns the discount percentage of best against the
// reference price, rounded to 2 decimals. Negative when best exceeds
// the reference. A reference of 0 must be rejected by the caller.
func ComputeDiscount(reference, best float64) float64 {
	return Round2(((reference - best) / reference) * 100)
}

// Round2 rounds to 2 decimals, half away from zero
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FilterCriteria is a user-configured matching rule
type FilterCriteria struct {
	DiscountThreshold  float64  `json:"discountThreshold"`
	MaxPrice           float64  `json:"maxPrice,omitempty"`
	Keywords           []string `json:"keywords,omitempty"`
	IncludedCategories []string `json:"includedCategories,omitempty"`
	ExcludedCategories []string `json:"excludedCategories,omitempty"`
}

// Filter is a stored filter record wrapping its criteria
type Filter struct {
	ID       int64
	Name     string
	Criteria FilterCriteria
	Active   bool
}

// Website is a configured target site
type Website struct {
	ID            int64
	Name          string
	BaseURL       string
	ProductSchema string // raw schema JSON, empty means default extraction
	AuthToken     string // encrypted, empty means no auth
	Active        bool
}

// ScrapeURL is one monitored URL of a website
type ScrapeURL struct {
	ID           int64
	WebsiteID    int64
	URL          string
	Status       string
	LastError    string
	ProductCount int
	ScrapedAt    time.Time
}

// URL scrape statuses
const (
	URLStatusOK    = "ok"
	URLStatusError = "error"
)

// Deal is a confirmed new-deal record
type Deal struct {
	ID        int64
	WebsiteID int64
	FilterID  int64
	Variant   Variant
	CreatedAt time.Time
}

// URLResult reports the outcome of one processed URL
type URLResult struct {
	URLID     int64
	Status    string
	Error     string
	Count     int
	ScrapedAt time.Time
}

// JobError is a URL-level failure recorded during a run
type JobError struct {
	URL     string
	Message string
}

// JobResult is the aggregate outcome of one scrape run
type JobResult struct {
	TotalProductsEncountered int
	NewDealsFound            int
	Duration                 time.Duration
	Errors                   []JobError
}
