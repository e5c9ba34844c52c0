package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
)

// APIRequest describes one JSON API call built from a site schema
type APIRequest struct {
	URL       string
	Method    string
	Params    map[string]string
	Headers   map[string]string
	Body      map[string]any
	AuthToken string
}

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// interpolate substitutes ${ENV_VAR} placeholders from the
// environment and ${AUTH_TOKEN} from the per-call secret
func interpolate(value, authToken string) string {
	return placeholderRe.ReplaceAllStringFunc(value, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if name == "AUTH_TOKEN" {
			return authToken
		}
		return os.Getenv(name)
	})
}

// FetchJSON performs a JSON API request under the fetcher's shared
// rate and retry discipline, returning the decoded payload and the
// response headers. Any failure, including a terminal non-2xx status,
// surfaces as an error the caller records against the page.
func (f *Fetcher) FetchJSON(ctx context.Context, r APIRequest) (any, http.Header, error) {
	method := r.Method
	if method == "" {
		method = http.MethodPost
	}

	build := func() (*http.Request, error) {
		target, err := url.Parse(r.URL)
		if err != nil {
			return nil, fmt.Errorf("bad api url %q: %w", r.URL, err)
		}

		query := target.Query()
		for key, value := range r.Params {
			query.Set(key, interpolate(value, r.AuthToken))
		}
		target.RawQuery = query.Encode()

		var body *bytes.Reader
		if len(r.Body) > 0 {
			encoded, err := json.Marshal(r.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}
			body = bytes.NewReader(encoded)
		} else {
			body = bytes.NewReader(nil)
		}

		req, err := http.NewRequest(method, target.String(), body)
		if err != nil {
			return nil, err
		}

		// Browser-like defaults, overridable by schema headers
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept", "application/json, text/plain, */*")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		for key, value := range r.Headers {
			req.Header.Set(key, interpolate(value, r.AuthToken))
		}
		return req, nil
	}

	raw, header, err := f.do(ctx, r.URL, build)
	if err != nil {
		return nil, nil, err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("api response is not valid JSON: %w", err)
	}
	return payload, header, nil
}
