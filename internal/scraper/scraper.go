// Package scraper runs scrape jobs: it walks the configured websites,
// extracts variants through each site's schema, applies the active
// filters and emits new deals.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/webscout/deal-weaver/internal/config"
	"github.com/webscout/deal-weaver/internal/extract"
	"github.com/webscout/deal-weaver/internal/fetch"
	"github.com/webscout/deal-weaver/internal/filter"
	"github.com/webscout/deal-weaver/internal/models"
	"github.com/webscout/deal-weaver/internal/notify"
	"github.com/webscout/deal-weaver/internal/paginate"
	"github.com/webscout/deal-weaver/internal/progress"
	"github.com/webscout/deal-weaver/internal/schema"
	"github.com/webscout/deal-weaver/internal/secret"
	"github.com/webscout/deal-weaver/internal/seen"
)

// ErrAlreadyRunning is returned when a second job is started while one
// is still in flight
var ErrAlreadyRunning = errors.New("a scrape job is already running")

// Store is the persistence surface a job run depends on
type Store interface {
	GetActiveWebsites() ([]models.Website, error)
	GetWebsite(id int64) (*models.Website, error)
	GetURLs(websiteID int64) ([]models.ScrapeURL, error)
	GetActiveFilters() ([]models.Filter, error)
	UpdateURLStatus(urlID int64, result models.URLResult) error
	InsertDeal(websiteID, filterID int64, v models.Variant) (int64, error)
	CreateNotification(dealID int64) (int64, error)
	MarkNotificationSent(notificationID int64) error
}

// PageFetcher is the HTTP surface a job run depends on
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	FetchJSON(ctx context.Context, r fetch.APIRequest) (any, http.Header, error)
	Login(cfg schema.LoginConfig) error
}

// Archiver is an optional long-term deal sink
type Archiver interface {
	ArchiveDeal(ctx context.Context, websiteID int64, v models.Variant) error
}

// Deps bundles the collaborators injected into a Service. Decryptor
// and Archive are optional.
type Deps struct {
	Store     Store
	Fetcher   PageFetcher
	SeenStore seen.Store
	Progress  *progress.Tracker
	Notifier  notify.Dispatcher
	Decryptor secret.Decryptor
	Archive   Archiver
}

// Service orchestrates scrape jobs. Only one job runs at a time.
type Service struct {
	cfg       *config.Config
	store     Store
	fetcher   PageFetcher
	pages     *paginate.Driver
	seen      *seen.Tracker
	progress  *progress.Tracker
	notifier  notify.Dispatcher
	decryptor secret.Decryptor
	archive   Archiver

	mu      sync.Mutex
	running bool
}

// New creates a scrape service from its configuration and collaborators
func New(cfg *config.Config, deps Deps) *Service {
	return &Service{
		cfg:     cfg,
		store:   deps.Store,
		fetcher: deps.Fetcher,
		pages: paginate.NewDriver(deps.Fetcher, paginate.Options{
			MaxPages:   cfg.MaxPages,
			PageSize:   cfg.PageSize,
			BatchSize:  cfg.BatchConcurrency,
			BatchDelay: time.Duration(cfg.BatchDelayMs) * time.Millisecond,
		}),
		seen:      seen.NewTracker(deps.SeenStore),
		progress:  deps.Progress,
		notifier:  deps.Notifier,
		decryptor: deps.Decryptor,
		archive:   deps.Archive,
	}
}

// pendingDeal couples a deal with its stored notification row so the
// batch flush can mark deliveries
type pendingDeal struct {
	deal           models.Deal
	notificationID int64
}

// Run executes one scrape job. When websiteID is positive only that
// website is scraped, otherwise every active one. A second call while
// a job is in flight returns ErrAlreadyRunning.
func (s *Service) Run(ctx context.Context, websiteID int64) (*models.JobResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	s.progress.Start()

	if purged, err := s.seen.PurgeExpired(); err != nil {
		logrus.Warnf("Failed to purge expired seen rows: %v", err)
	} else if purged > 0 {
		logrus.Debugf("Purged %d expired seen rows", purged)
	}

	websites, err := s.targetWebsites(websiteID)
	if err != nil {
		s.progress.MarkError(err.Error())
		return nil, err
	}
	filters, err := s.store.GetActiveFilters()
	if err != nil {
		err = fmt.Errorf("failed to load filters: %w", err)
		s.progress.MarkError(err.Error())
		return nil, err
	}

	result := &models.JobResult{}
	if len(websites) == 0 || len(filters) == 0 {
		logrus.Info("Nothing to do: no active websites or no active filters")
		result.Duration = time.Since(start)
		s.progress.MarkDone()
		return result, nil
	}

	for _, w := range websites {
		if s.cancelled(ctx) {
			break
		}
		s.scrapeWebsite(ctx, w, filters, result)
	}

	result.Duration = time.Since(start)
	if s.cancelled(ctx) {
		s.progress.MarkCancelled()
		logrus.Infof("Job cancelled after %s: %d products seen, %d new deals",
			result.Duration.Round(time.Millisecond), result.TotalProductsEncountered, result.NewDealsFound)
	} else {
		s.progress.MarkDone()
		logrus.Infof("Job finished in %s: %d products seen, %d new deals, %d errors",
			result.Duration.Round(time.Millisecond), result.TotalProductsEncountered, result.NewDealsFound, len(result.Errors))
	}
	return result, nil
}

func (s *Service) targetWebsites(websiteID int64) ([]models.Website, error) {
	if websiteID > 0 {
		w, err := s.store.GetWebsite(websiteID)
		if err != nil {
			return nil, fmt.Errorf("failed to load website %d: %w", websiteID, err)
		}
		if w == nil {
			return nil, fmt.Errorf("website %d not found", websiteID)
		}
		return []models.Website{*w}, nil
	}
	websites, err := s.store.GetActiveWebsites()
	if err != nil {
		return nil, fmt.Errorf("failed to load websites: %w", err)
	}
	return websites, nil
}

func (s *Service) scrapeWebsite(ctx context.Context, w models.Website, filters []models.Filter, result *models.JobResult) {
	s.progress.SetWebsite(w.Name)
	logrus.Infof("Scraping website %s", w.Name)

	sch, err := s.resolveSchema(w)
	if err != nil {
		// Invalid custom schema: record it and continue with the
		// default extraction strategy
		logrus.Warnf("Schema for %s is invalid, using default extraction: %v", w.Name, err)
		result.Errors = append(result.Errors, models.JobError{URL: w.BaseURL, Message: err.Error()})
	}

	token := s.resolveAuthToken(w)

	if sch.Extraction.Login != nil {
		if err := s.fetcher.Login(*sch.Extraction.Login); err != nil {
			logrus.Warnf("Login failed for %s: %v", w.Name, err)
			result.Errors = append(result.Errors, models.JobError{URL: sch.Extraction.Login.URL, Message: err.Error()})
		}
	}

	urls, err := s.store.GetURLs(w.ID)
	if err != nil {
		result.Errors = append(result.Errors, models.JobError{
			URL:     w.BaseURL,
			Message: fmt.Sprintf("failed to load urls: %v", err),
		})
		return
	}

	processed := make(map[string]bool)
	var pending []pendingDeal

	for _, u := range urls {
		if s.cancelled(ctx) {
			break
		}

		count, err := s.processURL(ctx, w, u, sch, token, filters, processed, &pending, result)
		status := models.URLResult{
			URLID:     u.ID,
			Status:    models.URLStatusOK,
			Count:     count,
			ScrapedAt: time.Now(),
		}
		if err != nil {
			status.Status = models.URLStatusError
			status.Error = err.Error()
			result.Errors = append(result.Errors, models.JobError{URL: u.URL, Message: err.Error()})
		}
		if uerr := s.store.UpdateURLStatus(u.ID, status); uerr != nil {
			logrus.Warnf("Failed to persist status for url %d: %v", u.ID, uerr)
		}
	}

	s.flush(&pending)
}

// resolveSchema parses the website's custom schema. On a validation
// error the default extraction schema is returned alongside the error.
func (s *Service) resolveSchema(w models.Website) (*schema.ProductPageSchema, error) {
	if strings.TrimSpace(w.ProductSchema) == "" {
		return extract.DefaultSchema(), nil
	}
	sch, err := schema.ParseSchemaJSON([]byte(w.ProductSchema))
	if err != nil {
		return extract.DefaultSchema(), err
	}
	return sch, nil
}

// resolveAuthToken decrypts the website's stored token. Any failure
// means scraping proceeds without a token.
func (s *Service) resolveAuthToken(w models.Website) string {
	if w.AuthToken == "" || s.decryptor == nil {
		return ""
	}
	token, err := s.decryptor.Decrypt(w.AuthToken)
	if err != nil {
		logrus.Warnf("Failed to decrypt auth token for %s, proceeding without: %v", w.Name, err)
		return ""
	}
	return token
}

// processURL fetches all pages of one URL, reduces variants to the
// best per product and emits the deals that pass filters and the seen
// gate. It returns the number of unique products encountered.
func (s *Service) processURL(ctx context.Context, w models.Website, u models.ScrapeURL, sch *schema.ProductPageSchema,
	token string, filters []models.Filter, processed map[string]bool, pending *[]pendingDeal, result *models.JobResult) (int, error) {

	variants, err := s.collectVariants(ctx, u.URL, sch, token, result)
	if err != nil {
		return 0, err
	}

	best, uniqueCount := bestPerProduct(variants, processed)
	s.progress.AddProductsSeen(uniqueCount)
	result.TotalProductsEncountered += uniqueCount

	for _, v := range best {
		matches := filter.FindMatchingFilters(v, filters)
		if len(matches) == 0 {
			continue
		}

		isNew, err := s.seen.IsNewDeal(v.DedupKey())
		if err != nil {
			result.Errors = append(result.Errors, models.JobError{
				URL:     u.URL,
				Message: fmt.Sprintf("seen lookup for %s: %v", v.DedupKey(), err),
			})
			continue
		}
		if !isNew {
			continue
		}

		dealID, err := s.store.InsertDeal(w.ID, matches[0].ID, v)
		if err != nil {
			result.Errors = append(result.Errors, models.JobError{
				URL:     u.URL,
				Message: fmt.Sprintf("failed to persist deal for %s: %v", v.CompositeID(), err),
			})
			continue
		}
		notificationID, err := s.store.CreateNotification(dealID)
		if err != nil {
			logrus.Warnf("Failed to create notification for deal %d: %v", dealID, err)
		}
		if err := s.seen.MarkAsSeen(v.DedupKey(), s.cfg.SeenTTLDays); err != nil {
			logrus.Warnf("Failed to mark %s as seen: %v", v.DedupKey(), err)
		}
		if s.archive != nil {
			if err := s.archive.ArchiveDeal(ctx, w.ID, v); err != nil {
				logrus.Warnf("Failed to archive deal %s: %v", v.CompositeID(), err)
			}
		}

		*pending = append(*pending, pendingDeal{
			deal: models.Deal{
				ID:        dealID,
				WebsiteID: w.ID,
				FilterID:  matches[0].ID,
				Variant:   v,
				CreatedAt: time.Now(),
			},
			notificationID: notificationID,
		})
		result.NewDealsFound++
		s.progress.AddDealsFound(1)

		if len(*pending) >= s.cfg.NotifyBatchSize {
			s.flush(pending)
		}
	}

	return uniqueCount, nil
}

// collectVariants fetches every page of the URL and runs the schema
// engine over each extracted tree. Page-level failures are recorded
// and the remaining pages still contribute.
func (s *Service) collectVariants(ctx context.Context, pageURL string, sch *schema.ProductPageSchema,
	token string, result *models.JobResult) ([]models.Variant, error) {

	var variants []models.Variant

	if sch.Extraction.Method == schema.MethodAPIJSON {
		req := fetch.APIRequest{
			URL:       sch.Extraction.APIURL,
			Method:    sch.Extraction.APIMethod,
			Params:    sch.Extraction.APIParams,
			Headers:   sch.Extraction.APIHeaders,
			Body:      sch.Extraction.APIBody,
			AuthToken: token,
		}
		payloads, pageErrs := s.pages.FetchAPIPages(ctx, req, sch.Extraction.Pagination, sch.Paths.ProductsArray, s.progress)
		result.Errors = append(result.Errors, pageErrs...)
		if len(payloads) == 0 {
			return nil, fmt.Errorf("no pages could be fetched from %s", req.URL)
		}
		s.progress.AddPagesFetched(len(payloads))
		for _, payload := range payloads {
			variants = append(variants, schema.BuildVariants(payload, sch.Paths)...)
		}
		return variants, nil
	}

	pages, pageErrs := s.pages.FetchHTMLPages(ctx, pageURL, sch.Extraction.Pagination, s.progress)
	result.Errors = append(result.Errors, pageErrs...)
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages could be fetched from %s", pageURL)
	}
	s.progress.AddPagesFetched(len(pages))

	for _, raw := range pages {
		tree, err := extract.Extract(raw, sch.Extraction)
		if err != nil {
			result.Errors = append(result.Errors, models.JobError{
				URL:     pageURL,
				Message: fmt.Sprintf("extraction failed: %v", err),
			})
			continue
		}
		variants = append(variants, schema.BuildVariants(tree, sch.Paths)...)
	}
	return variants, nil
}

// flush dispatches the pending batch and marks its notifications sent
func (s *Service) flush(pending *[]pendingDeal) {
	if len(*pending) == 0 {
		return
	}

	deals := make([]models.Deal, len(*pending))
	for i, p := range *pending {
		deals[i] = p.deal
	}

	if err := s.notifier.Dispatch(deals); err != nil {
		logrus.Warnf("Failed to dispatch notification batch of %d: %v", len(deals), err)
	} else {
		for _, p := range *pending {
			if p.notificationID == 0 {
				continue
			}
			if err := s.store.MarkNotificationSent(p.notificationID); err != nil {
				logrus.Warnf("Failed to mark notification %d sent: %v", p.notificationID, err)
			}
		}
	}
	*pending = (*pending)[:0]
}

func (s *Service) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil || s.progress.CancelRequested()
}

// bestPerProduct reduces a variant batch to one variant per product:
// highest discount wins, ties by lowest best price. Out-of-stock
// variants never win but their product still counts as encountered.
// Products in the processed set are skipped entirely; every product
// counted here is added to it.
func bestPerProduct(variants []models.Variant, processed map[string]bool) ([]models.Variant, int) {
	best := make(map[string]models.Variant)
	var order []string
	counted := 0

	for _, v := range variants {
		if v.ProductID == "" || processed[v.ProductID] {
			continue
		}
		processed[v.ProductID] = true
		counted++
		order = append(order, v.ProductID)
	}

	// Second pass so cross-URL dedup above cannot hide a better
	// variant of a product first seen in this same batch
	for _, v := range variants {
		if v.ProductID == "" || !v.InStock {
			continue
		}
		cur, ok := best[v.ProductID]
		if !ok || v.DiscountPercentage > cur.DiscountPercentage ||
			(v.DiscountPercentage == cur.DiscountPercentage && v.BestPrice < cur.BestPrice) {
			best[v.ProductID] = v
		}
	}

	out := make([]models.Variant, 0, len(order))
	for _, pid := range order {
		if v, ok := best[pid]; ok {
			out = append(out, v)
		}
	}
	return out, counted
}
