package fetch

import (
	"fmt"
	"net/url"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
	"github.com/webscout/deal-weaver/internal/schema"
)

// Login performs the schema-configured form login through a colly
// collector and installs the harvested session cookies on the
// fetcher's client, so subsequent page and API requests ride on the
// authenticated session.
func (f *Fetcher) Login(cfg schema.LoginConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("login url is empty")
	}

	target, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("bad login url %q: %w", cfg.URL, err)
	}

	collector := colly.NewCollector(
		colly.UserAgent(browserUserAgent),
	)

	if err := collector.Post(cfg.URL, cfg.Fields); err != nil {
		return fmt.Errorf("login request to %s failed: %w", cfg.URL, err)
	}

	cookies := collector.Cookies(cfg.URL)
	if len(cookies) == 0 {
		return fmt.Errorf("login to %s yielded no session cookies", cfg.URL)
	}

	f.client.Jar.SetCookies(target, cookies)
	logrus.Debugf("login session established for %s (%d cookies)", target.Host, len(cookies))
	return nil
}
