package paginate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webscout/deal-weaver/internal/fetch"
	"github.com/webscout/deal-weaver/internal/schema"
)

// fakeFetcher scripts page responses without a network
type fakeFetcher struct {
	mu        sync.Mutex
	htmlByURL map[string]string
	jsonPages func(offset int) (string, error)
	calls     []fetch.APIRequest
	htmlURLs  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.htmlURLs = append(f.htmlURLs, url)
	if body, ok := f.htmlByURL[url]; ok {
		return []byte(body), nil
	}
	return nil, fmt.Errorf("no response scripted for %s", url)
}

func (f *fakeFetcher) FetchJSON(_ context.Context, r fetch.APIRequest) (any, http.Header, error) {
	f.mu.Lock()
	f.calls = append(f.calls, r)
	f.mu.Unlock()

	offset := 0
	if v, ok := r.Params["offset"]; ok {
		fmt.Sscanf(v, "%d", &offset)
	}
	raw, err := f.jsonPages(offset)
	if err != nil {
		return nil, nil, err
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, nil, err
	}
	return payload, http.Header{}, nil
}

type cancelFlag struct {
	mu  sync.Mutex
	set bool
}

func (c *cancelFlag) CancelRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set
}

func testDriver(f *fakeFetcher) *Driver {
	return NewDriver(f, Options{
		MaxPages:   10,
		PageSize:   120,
		BatchSize:  5,
		RetryDelay: time.Millisecond,
	})
}

func itemsPage(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"id": "p%d"}`, i)
	}
	return fmt.Sprintf(`{"total": 250, "items": [%s]}`, strings.Join(items, ","))
}

func TestFetchAPIPages_KnownTotal(t *testing.T) {
	f := &fakeFetcher{jsonPages: func(offset int) (string, error) {
		return itemsPage(3), nil
	}}
	d := testDriver(f)

	cfg := &schema.PaginationConfig{Type: schema.PaginationAPITotal, TotalPath: "total", PageSize: 120}
	payloads, errs := d.FetchAPIPages(context.Background(), fetch.APIRequest{URL: "https://api.example/search"}, cfg, "items", nil)

	assert.Empty(t, errs)
	// total=250, pageSize=120: 3 pages; page 1 consumed for the total,
	// pages 2-3 fetched as the remaining batch
	assert.Len(t, payloads, 3)
	require.Len(t, f.calls, 3)

	offsets := map[string]bool{}
	for _, call := range f.calls[1:] {
		offsets[call.Params["offset"]] = true
	}
	assert.True(t, offsets["120"])
	assert.True(t, offsets["240"])
}

func TestFetchAPIPages_PageFailureIsPageLevel(t *testing.T) {
	f := &fakeFetcher{jsonPages: func(offset int) (string, error) {
		if offset == 120 {
			return "", fmt.Errorf("boom")
		}
		return itemsPage(3), nil
	}}
	d := testDriver(f)

	cfg := &schema.PaginationConfig{Type: schema.PaginationAPITotal, TotalPath: "total", PageSize: 120}
	payloads, errs := d.FetchAPIPages(context.Background(), fetch.APIRequest{URL: "https://api.example/search"}, cfg, "items", nil)

	// The failed page is retried then skipped; the job continues
	assert.Len(t, payloads, 2)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].URL, "page 2")
}

func TestFetchAPIPages_UnknownTotalFallsBackToSequential(t *testing.T) {
	f := &fakeFetcher{jsonPages: func(offset int) (string, error) {
		if offset >= 240 {
			return `{"items": []}`, nil
		}
		return `{"items": [{"id": "x"}]}`, nil
	}}
	d := testDriver(f)

	// No totalPath resolvable: sequential until the empty page
	cfg := &schema.PaginationConfig{Type: schema.PaginationAPISequential, PageSize: 120}
	payloads, errs := d.FetchAPIPages(context.Background(), fetch.APIRequest{URL: "https://api.example/search"}, cfg, "items", nil)

	assert.Empty(t, errs)
	// Offsets 0 and 120 carry items; 240 is empty and not kept
	assert.Len(t, payloads, 2)
}

func TestFetchAPIPages_CursorTemplateAndBodyParams(t *testing.T) {
	f := &fakeFetcher{jsonPages: func(offset int) (string, error) {
		return `{"total": 240, "items": [{"id": "x"}]}`, nil
	}}
	d := testDriver(f)

	cfg := &schema.PaginationConfig{
		Type:           schema.PaginationAPITotal,
		TotalPath:      "total",
		PageSize:       120,
		ParamsInBody:   true,
		OffsetParam:    "cursor",
		LimitParam:     "limit",
		CursorTemplate: "offset:{offset}",
	}
	_, errs := d.FetchAPIPages(context.Background(), fetch.APIRequest{URL: "https://api.example/search"}, cfg, "items", nil)
	assert.Empty(t, errs)

	require.Len(t, f.calls, 2)
	second := f.calls[1]
	assert.Equal(t, "offset:120", second.Body["cursor"])
	assert.Equal(t, 120, second.Body["limit"])
}

func TestFetchAPIPages_Cancellation(t *testing.T) {
	f := &fakeFetcher{jsonPages: func(offset int) (string, error) {
		return itemsPage(3), nil
	}}
	d := testDriver(f)

	flag := &cancelFlag{set: true}
	cfg := &schema.PaginationConfig{Type: schema.PaginationAPITotal, TotalPath: "total", PageSize: 120}
	payloads, errs := d.FetchAPIPages(context.Background(), fetch.APIRequest{URL: "https://api.example/search"}, cfg, "items", flag)

	// Cancellation before the batch: only the first page survives
	assert.Empty(t, errs)
	assert.Len(t, payloads, 1)
}

func TestFetchHTMLPages_HintAndParam(t *testing.T) {
	listing := `<html><body><ul class="pages"><li class="last">3</li></ul></body></html>`
	f := &fakeFetcher{htmlByURL: map[string]string{
		"https://shop.example/deals":          listing,
		"https://shop.example/deals?pageNo=2": "<html>page2</html>",
		"https://shop.example/deals?pageNo=3": "<html>page3</html>",
	}}
	d := testDriver(f)

	cfg := &schema.PaginationConfig{Type: schema.PaginationHTML, PageCountSelector: "ul.pages li.last"}
	pages, errs := d.FetchHTMLPages(context.Background(), "https://shop.example/deals", cfg, nil)

	assert.Empty(t, errs)
	require.Len(t, pages, 3)
	assert.Equal(t, "<html>page3</html>", string(pages[2]))
}

func TestFetchHTMLPages_NoHintMeansOnePage(t *testing.T) {
	f := &fakeFetcher{htmlByURL: map[string]string{
		"https://shop.example/deals": "<html>only</html>",
	}}
	d := testDriver(f)

	pages, errs := d.FetchHTMLPages(context.Background(), "https://shop.example/deals", &schema.PaginationConfig{Type: schema.PaginationHTML}, nil)
	assert.Empty(t, errs)
	assert.Len(t, pages, 1)
}

func TestFetchHTMLPages_FirstPageFailure(t *testing.T) {
	f := &fakeFetcher{htmlByURL: map[string]string{}}
	d := testDriver(f)

	pages, errs := d.FetchHTMLPages(context.Background(), "https://shop.example/deals", nil, nil)
	assert.Nil(t, pages)
	require.Len(t, errs, 1)
}
