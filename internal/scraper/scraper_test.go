package scraper

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webscout/deal-weaver/internal/config"
	"github.com/webscout/deal-weaver/internal/fetch"
	"github.com/webscout/deal-weaver/internal/models"
	"github.com/webscout/deal-weaver/internal/progress"
	"github.com/webscout/deal-weaver/internal/schema"
)

type insertedDeal struct {
	websiteID int64
	filterID  int64
	variant   models.Variant
}

// fakeStore backs both the orchestrator's Store and the seen tracker
type fakeStore struct {
	mu            sync.Mutex
	websites      []models.Website
	urls          map[int64][]models.ScrapeURL
	filters       []models.Filter
	seenRows      map[string]time.Time
	deals         []insertedDeal
	notifications []int64
	sent          []int64
	statuses      map[int64]models.URLResult
	nextID        int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		urls:     make(map[int64][]models.ScrapeURL),
		seenRows: make(map[string]time.Time),
		statuses: make(map[int64]models.URLResult),
		nextID:   100,
	}
}

func (f *fakeStore) GetActiveWebsites() ([]models.Website, error) {
	return f.websites, nil
}

func (f *fakeStore) GetWebsite(id int64) (*models.Website, error) {
	for _, w := range f.websites {
		if w.ID == id {
			return &w, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetURLs(websiteID int64) ([]models.ScrapeURL, error) {
	return f.urls[websiteID], nil
}

func (f *fakeStore) GetActiveFilters() ([]models.Filter, error) {
	return f.filters, nil
}

func (f *fakeStore) UpdateURLStatus(urlID int64, result models.URLResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[urlID] = result
	return nil
}

func (f *fakeStore) InsertDeal(websiteID, filterID int64, v models.Variant) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deals = append(f.deals, insertedDeal{websiteID: websiteID, filterID: filterID, variant: v})
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) CreateNotification(dealID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, dealID)
	return dealID + 1000, nil
}

func (f *fakeStore) MarkNotificationSent(notificationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notificationID)
	return nil
}

func (f *fakeStore) GetSeen(compositeID string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	expiresAt, ok := f.seenRows[compositeID]
	return expiresAt, ok, nil
}

func (f *fakeStore) UpsertSeen(compositeID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenRows[compositeID] = expiresAt
	return nil
}

func (f *fakeStore) PurgeExpiredSeen(now time.Time) (int64, error) {
	return 0, nil
}

// fakeWeb scripts HTML responses per URL
type fakeWeb struct {
	pages  map[string]string
	logins []schema.LoginConfig
}

func (f *fakeWeb) Fetch(_ context.Context, url string) ([]byte, error) {
	if body, ok := f.pages[url]; ok {
		return []byte(body), nil
	}
	return nil, fmt.Errorf("fetch failed for %s", url)
}

func (f *fakeWeb) FetchJSON(_ context.Context, r fetch.APIRequest) (any, http.Header, error) {
	return nil, nil, fmt.Errorf("no api scripted")
}

func (f *fakeWeb) Login(cfg schema.LoginConfig) error {
	f.logins = append(f.logins, cfg)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]models.Deal
}

func (n *recordingNotifier) Dispatch(deals []models.Deal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	batch := make([]models.Deal, len(deals))
	copy(batch, deals)
	n.batches = append(n.batches, batch)
	return nil
}

const productSchema = `{
  "extraction": {"method": "script-json", "selector": "#product-data"},
  "paths": {
    "productsArray": "products",
    "fields": {
      "productId": "id",
      "displayName": "name",
      "listPrice": "listPrice",
      "salePrice": "salePrice",
      "inStock": "inStock"
    }
  }
}`

func productPage(products string) string {
	return fmt.Sprintf(`<html><head><script id="product-data" type="application/json">{"products":[%s]}</script></head><body></body></html>`, products)
}

func testConfig() *config.Config {
	return &config.Config{
		MaxPages:        5,
		PageSize:        50,
		SeenTTLDays:     7,
		NotifyBatchSize: 10,
	}
}

func newTestService(store *fakeStore, web *fakeWeb, notifier *recordingNotifier) (*Service, *progress.Tracker) {
	prog := progress.NewTracker()
	svc := New(testConfig(), Deps{
		Store:     store,
		Fetcher:   web,
		SeenStore: store,
		Progress:  prog,
		Notifier:  notifier,
	})
	return svc, prog
}

func seedWebsite(store *fakeStore, schemaJSON string) {
	store.websites = []models.Website{{
		ID:            1,
		Name:          "Shop",
		BaseURL:       "https://shop.example",
		ProductSchema: schemaJSON,
		Active:        true,
	}}
	store.urls[1] = []models.ScrapeURL{{ID: 10, WebsiteID: 1, URL: "https://shop.example/deals"}}
	store.filters = []models.Filter{{
		ID:       2,
		Name:     "big discounts",
		Criteria: models.FilterCriteria{DiscountThreshold: 30},
		Active:   true,
	}}
}

func TestRunEmitsNewDeals(t *testing.T) {
	store := newFakeStore()
	seedWebsite(store, productSchema)
	web := &fakeWeb{pages: map[string]string{
		"https://shop.example/deals": productPage(
			`{"id":"p1","name":"Trail Runner","listPrice":100,"salePrice":60,"inStock":true},
			 {"id":"p2","name":"Road Jacket","listPrice":100,"salePrice":90,"inStock":true}`,
		),
	}}
	notifier := &recordingNotifier{}
	svc, prog := newTestService(store, web, notifier)

	result, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	// p1 is 40% off and matches; p2 at 10% does not
	assert.Equal(t, 2, result.TotalProductsEncountered)
	assert.Equal(t, 1, result.NewDealsFound)
	require.Len(t, store.deals, 1)
	assert.Equal(t, "p1", store.deals[0].variant.ProductID)
	assert.Equal(t, int64(2), store.deals[0].filterID)

	// Batch flushed at website completion, notification marked sent
	require.Len(t, notifier.batches, 1)
	require.Len(t, notifier.batches[0], 1)
	assert.Len(t, store.sent, 1)

	// Seen row written under the product dedup key
	_, ok := store.seenRows["p1"]
	assert.True(t, ok)

	status := store.statuses[10]
	assert.Equal(t, models.URLStatusOK, status.Status)
	assert.Equal(t, 2, status.Count)

	snap := prog.GetSnapshot()
	assert.Equal(t, progress.StatusDone, snap.Status)
	assert.Equal(t, 1, snap.DealsFound)
}

func TestRunSkipsAlreadySeenProducts(t *testing.T) {
	store := newFakeStore()
	seedWebsite(store, productSchema)
	store.seenRows["p1"] = time.Now().Add(24 * time.Hour)
	web := &fakeWeb{pages: map[string]string{
		"https://shop.example/deals": productPage(
			`{"id":"p1","name":"Trail Runner","listPrice":100,"salePrice":60,"inStock":true}`,
		),
	}}
	notifier := &recordingNotifier{}
	svc, _ := newTestService(store, web, notifier)

	result, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalProductsEncountered)
	assert.Equal(t, 0, result.NewDealsFound)
	assert.Empty(t, store.deals)
	assert.Empty(t, notifier.batches)
}

func TestRunPicksBestVariantPerProduct(t *testing.T) {
	store := newFakeStore()
	seedWebsite(store, productSchema)
	web := &fakeWeb{pages: map[string]string{
		"https://shop.example/deals": productPage(
			`{"id":"p1","name":"Trail Runner 60","listPrice":100,"salePrice":60,"inStock":true},
			 {"id":"p1","name":"Trail Runner 50","listPrice":100,"salePrice":50,"inStock":true},
			 {"id":"p1","name":"Trail Runner 40","listPrice":100,"salePrice":40,"inStock":false}`,
		),
	}}
	notifier := &recordingNotifier{}
	svc, _ := newTestService(store, web, notifier)

	result, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)

	// The out-of-stock 60%-off variant is excluded from selection but
	// the product still counts once
	assert.Equal(t, 1, result.TotalProductsEncountered)
	require.Len(t, store.deals, 1)
	assert.Equal(t, "Trail Runner 50", store.deals[0].variant.DisplayName)
}

func TestRunNoFiltersIsSuccessfulNoop(t *testing.T) {
	store := newFakeStore()
	seedWebsite(store, productSchema)
	store.filters = nil
	web := &fakeWeb{pages: map[string]string{}}
	notifier := &recordingNotifier{}
	svc, prog := newTestService(store, web, notifier)

	result, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalProductsEncountered)
	assert.Equal(t, progress.StatusDone, prog.GetSnapshot().Status)
}

func TestRunRejectsConcurrentJobs(t *testing.T) {
	store := newFakeStore()
	web := &fakeWeb{pages: map[string]string{}}
	notifier := &recordingNotifier{}
	svc, _ := newTestService(store, web, notifier)

	svc.mu.Lock()
	svc.running = true
	svc.mu.Unlock()

	_, err := svc.Run(context.Background(), 0)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestRunUnknownWebsiteFails(t *testing.T) {
	store := newFakeStore()
	web := &fakeWeb{pages: map[string]string{}}
	notifier := &recordingNotifier{}
	svc, prog := newTestService(store, web, notifier)

	_, err := svc.Run(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, progress.StatusError, prog.GetSnapshot().Status)
}

func TestRunInvalidSchemaFallsBackAndRecordsError(t *testing.T) {
	store := newFakeStore()
	seedWebsite(store, `{"extraction": {"method": "nonsense"}, "paths": {}}`)
	web := &fakeWeb{pages: map[string]string{}}
	notifier := &recordingNotifier{}
	svc, _ := newTestService(store, web, notifier)

	result, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)

	// The invalid schema is recorded, the default extraction runs and
	// the unfetchable URL becomes a second error
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "invalid product page schema")
	status := store.statuses[10]
	assert.Equal(t, models.URLStatusError, status.Status)
}

func TestRunURLFailureDoesNotStopOthers(t *testing.T) {
	store := newFakeStore()
	seedWebsite(store, productSchema)
	store.urls[1] = append(store.urls[1], models.ScrapeURL{ID: 11, WebsiteID: 1, URL: "https://shop.example/more"})
	web := &fakeWeb{pages: map[string]string{
		"https://shop.example/more": productPage(
			`{"id":"p9","name":"Trail Runner","listPrice":100,"salePrice":60,"inStock":true}`,
		),
	}}
	notifier := &recordingNotifier{}
	svc, _ := newTestService(store, web, notifier)

	result, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "https://shop.example/deals", result.Errors[0].URL)
	assert.Equal(t, models.URLStatusError, store.statuses[10].Status)
	assert.Equal(t, models.URLStatusOK, store.statuses[11].Status)
	assert.Equal(t, 1, result.NewDealsFound)
}

func TestRunCancelledContext(t *testing.T) {
	store := newFakeStore()
	seedWebsite(store, productSchema)
	web := &fakeWeb{pages: map[string]string{}}
	notifier := &recordingNotifier{}
	svc, prog := newTestService(store, web, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalProductsEncountered)
	assert.Equal(t, progress.StatusCancelled, prog.GetSnapshot().Status)
}

func TestRunPerformsConfiguredLogin(t *testing.T) {
	withLogin := `{
	  "extraction": {
	    "method": "script-json",
	    "selector": "#product-data",
	    "login": {"url": "https://shop.example/login", "fields": {"user": "u", "pass": "p"}}
	  },
	  "paths": {
	    "productsArray": "products",
	    "fields": {"productId": "id", "displayName": "name", "listPrice": "listPrice"}
	  }
	}`
	store := newFakeStore()
	seedWebsite(store, withLogin)
	web := &fakeWeb{pages: map[string]string{
		"https://shop.example/deals": productPage(`{"id":"p1","name":"Trail Runner","listPrice":100}`),
	}}
	notifier := &recordingNotifier{}
	svc, _ := newTestService(store, web, notifier)

	_, err := svc.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, web.logins, 1)
	assert.Equal(t, "https://shop.example/login", web.logins[0].URL)
}
