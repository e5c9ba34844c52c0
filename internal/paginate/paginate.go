package paginate

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/webscout/deal-weaver/internal/extract"
	"github.com/webscout/deal-weaver/internal/fetch"
	"github.com/webscout/deal-weaver/internal/models"
	"github.com/webscout/deal-weaver/internal/schema"
)

// PageFetcher is the fetch surface the driver needs
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	FetchJSON(ctx context.Context, r fetch.APIRequest) (any, http.Header, error)
}

// Canceller exposes the cooperative cancellation flag
type Canceller interface {
	CancelRequested() bool
}

// Options carry the driver defaults; schema pagination config
// overrides page size and max pages per site
type Options struct {
	MaxPages    int
	PageSize    int
	BatchSize   int
	BatchDelay  time.Duration
	PageRetries int
	RetryDelay  time.Duration
}

// Driver implements the three pagination policies: HTML listing
// page numbers, API offsets with a known total (fetched in bounded
// concurrent batches), and API offsets walked sequentially until an
// empty page.
type Driver struct {
	fetcher PageFetcher
	opts    Options
}

// NewDriver creates a pagination driver, applying defaults for
// unspecified options
func NewDriver(fetcher PageFetcher, opts Options) *Driver {
	if opts.MaxPages == 0 {
		opts.MaxPages = 20
	}
	if opts.PageSize == 0 {
		opts.PageSize = 50
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 5
	}
	if opts.PageRetries == 0 {
		opts.PageRetries = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Second
	}
	return &Driver{fetcher: fetcher, opts: opts}
}

func (d *Driver) pageSize(cfg *schema.PaginationConfig) int {
	if cfg != nil && cfg.PageSize > 0 {
		return cfg.PageSize
	}
	return d.opts.PageSize
}

func (d *Driver) maxPages(cfg *schema.PaginationConfig) int {
	if cfg != nil && cfg.MaxPages > 0 {
		return cfg.MaxPages
	}
	return d.opts.MaxPages
}

// FetchHTMLPages retrieves a listing page and, when the page-count
// hint asks for more, pages 2..min(hint, maxPages) via a page-number
// query parameter. Cancellation is checked before each page fetch.
func (d *Driver) FetchHTMLPages(ctx context.Context, pageURL string, cfg *schema.PaginationConfig, cancel Canceller) ([][]byte, []models.JobError) {
	var pages [][]byte
	var errs []models.JobError

	first, err := d.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, []models.JobError{{URL: pageURL, Message: err.Error()}}
	}
	pages = append(pages, first)

	if cfg == nil {
		return pages, nil
	}

	hint := extract.PageCountHint(first, cfg.PageCountSelector)
	total := hint
	if max := d.maxPages(cfg); total > max {
		total = max
	}

	pageParam := cfg.PageParam
	if pageParam == "" {
		pageParam = "pageNo"
	}

	for pageNo := 2; pageNo <= total; pageNo++ {
		if cancel != nil && cancel.CancelRequested() {
			logrus.Info("pagination: cancellation observed, stopping listing walk")
			break
		}
		target := withQueryParam(pageURL, pageParam, strconv.Itoa(pageNo))
		raw, err := d.fetcher.Fetch(ctx, target)
		if err != nil {
			errs = append(errs, models.JobError{URL: target, Message: err.Error()})
			continue
		}
		pages = append(pages, raw)
	}
	return pages, errs
}

// FetchAPIPages retrieves all pages of a JSON API listing. When the
// first response discloses a total at cfg.TotalPath the remaining
// pages are fetched in bounded concurrent batches; otherwise the
// driver falls back to the sequential policy.
func (d *Driver) FetchAPIPages(ctx context.Context, req fetch.APIRequest, cfg *schema.PaginationConfig, productsPath string, cancel Canceller) ([]any, []models.JobError) {
	first, _, err := d.fetcher.FetchJSON(ctx, d.pagedRequest(req, cfg, 0))
	if err != nil {
		return nil, []models.JobError{{URL: req.URL, Message: err.Error()}}
	}

	payloads := []any{first}
	if cfg == nil {
		return payloads, nil
	}

	total, ok := resolveTotal(first, cfg.TotalPath)
	if !ok {
		// Unknown total: walk offsets until an empty page
		rest, errs := d.fetchSequential(ctx, req, cfg, productsPath, cancel)
		return append(payloads, rest...), errs
	}

	size := d.pageSize(cfg)
	pages := int(math.Ceil(float64(total) / float64(size)))
	if max := d.maxPages(cfg); pages > max {
		pages = max
	}
	if pages <= 1 {
		return payloads, nil
	}

	// Page 1 is already consumed for the total; fetch the remainder
	rest, errs := d.fetchBatched(ctx, req, cfg, 2, pages, cancel)
	return append(payloads, rest...), errs
}

// fetchBatched retrieves pages firstPage..lastPage in fixed-size
// concurrent windows. Results keep page order; each page retries
// independently and failures become page-level errors.
func (d *Driver) fetchBatched(ctx context.Context, req fetch.APIRequest, cfg *schema.PaginationConfig, firstPage, lastPage int, cancel Canceller) ([]any, []models.JobError) {
	size := d.pageSize(cfg)
	results := make([]any, lastPage-firstPage+1)
	var errsMu sync.Mutex
	var errs []models.JobError

	for batchStart := firstPage; batchStart <= lastPage; batchStart += d.opts.BatchSize {
		if cancel != nil && cancel.CancelRequested() {
			logrus.Info("pagination: cancellation observed, stopping batch walk")
			break
		}

		batchEnd := batchStart + d.opts.BatchSize - 1
		if batchEnd > lastPage {
			batchEnd = lastPage
		}

		var wg sync.WaitGroup
		for pageNo := batchStart; pageNo <= batchEnd; pageNo++ {
			wg.Add(1)
			go func(pageNo int) {
				defer wg.Done()
				offset := (pageNo - 1) * size
				payload, err := d.fetchPageWithRetry(ctx, d.pagedRequest(req, cfg, offset))
				if err != nil {
					errsMu.Lock()
					errs = append(errs, models.JobError{
						URL:     fmt.Sprintf("%s (page %d)", req.URL, pageNo),
						Message: err.Error(),
					})
					errsMu.Unlock()
					return
				}
				results[pageNo-firstPage] = payload
			}(pageNo)
		}
		wg.Wait()

		// Short inter-batch delay to throttle load
		if batchEnd < lastPage && d.opts.BatchDelay > 0 {
			select {
			case <-time.After(d.opts.BatchDelay):
			case <-ctx.Done():
				return compact(results), errs
			}
		}
	}
	return compact(results), errs
}

// fetchSequential walks offsets until a page yields no items, the
// page cap is hit, or cancellation is observed
func (d *Driver) fetchSequential(ctx context.Context, req fetch.APIRequest, cfg *schema.PaginationConfig, productsPath string, cancel Canceller) ([]any, []models.JobError) {
	size := d.pageSize(cfg)
	maxPages := d.maxPages(cfg)

	var payloads []any
	var errs []models.JobError
	for pageNo := 2; pageNo <= maxPages; pageNo++ {
		if cancel != nil && cancel.CancelRequested() {
			logrus.Info("pagination: cancellation observed, stopping sequential walk")
			break
		}
		if d.opts.BatchDelay > 0 {
			select {
			case <-time.After(d.opts.BatchDelay):
			case <-ctx.Done():
				return payloads, errs
			}
		}

		offset := (pageNo - 1) * size
		payload, _, err := d.fetcher.FetchJSON(ctx, d.pagedRequest(req, cfg, offset))
		if err != nil {
			errs = append(errs, models.JobError{
				URL:     fmt.Sprintf("%s (page %d)", req.URL, pageNo),
				Message: err.Error(),
			})
			break
		}
		if countItems(payload, productsPath) == 0 {
			break
		}
		payloads = append(payloads, payload)
	}
	return payloads, errs
}

// fetchPageWithRetry retries one page with linear backoff before
// recording it as a page-level error
func (d *Driver) fetchPageWithRetry(ctx context.Context, req fetch.APIRequest) (any, error) {
	var lastErr error
	for attempt := 1; attempt <= d.opts.PageRetries; attempt++ {
		payload, _, err := d.fetcher.FetchJSON(ctx, req)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < d.opts.PageRetries {
			select {
			case <-time.After(time.Duration(attempt) * d.opts.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("page failed after %d attempts: %w", d.opts.PageRetries, lastErr)
}

// pagedRequest clones the base request with pagination parameters in
// the body or query per schema configuration. A cursor template lets
// the offset be formatted into an arbitrary string value.
func (d *Driver) pagedRequest(base fetch.APIRequest, cfg *schema.PaginationConfig, offset int) fetch.APIRequest {
	if cfg == nil {
		return base
	}

	offsetParam := cfg.OffsetParam
	if offsetParam == "" {
		offsetParam = "offset"
	}
	offsetValue := strconv.Itoa(offset)
	if cfg.CursorTemplate != "" {
		offsetValue = strings.ReplaceAll(cfg.CursorTemplate, "{offset}", offsetValue)
	}

	req := base
	if cfg.ParamsInBody {
		req.Body = make(map[string]any, len(base.Body)+2)
		for k, v := range base.Body {
			req.Body[k] = v
		}
		req.Body[offsetParam] = offsetValue
		if cfg.LimitParam != "" {
			req.Body[cfg.LimitParam] = d.pageSize(cfg)
		}
		return req
	}

	req.Params = make(map[string]string, len(base.Params)+2)
	for k, v := range base.Params {
		req.Params[k] = v
	}
	req.Params[offsetParam] = offsetValue
	if cfg.LimitParam != "" {
		req.Params[cfg.LimitParam] = strconv.Itoa(d.pageSize(cfg))
	}
	return req
}

// resolveTotal reads the disclosed item total from the first response
func resolveTotal(payload any, totalPath string) (int, bool) {
	if totalPath == "" {
		return 0, false
	}
	switch total := schema.ResolvePath(payload, totalPath).(type) {
	case float64:
		if total > 0 {
			return int(total), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(total)); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

// countItems counts the product entries of one page
func countItems(payload any, productsPath string) int {
	if items, ok := schema.ResolvePath(payload, productsPath).([]any); ok {
		return len(items)
	}
	return 0
}

// compact drops nil slots left by failed pages, preserving order
func compact(results []any) []any {
	var out []any
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// withQueryParam appends or replaces one query parameter on a URL
func withQueryParam(rawURL, key, value string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	query.Set(key, value)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
