// Package fetcher retrieves pages with browser-like headers, persisted
// session cookies, optional proxy routing and retry on transient faults.
package fetcher

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/filmlens/scraper-cli/internal/config"
	"github.com/filmlens/scraper-cli/internal/proxy"
	"github.com/filmlens/scraper-cli/internal/resilience"
)

// maxBodyBytes caps page reads. Listing and detail pages are well under
// this; anything larger is not a page we want.
const maxBodyBytes = 8 << 20

// defaultHeaders imitates a desktop browser. The target serves a reduced
// markup variant to clients without them.
var defaultHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Referer":                   "https://www.google.com/",
	"DNT":                       "1",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// Result is the outcome of a fetch. Absent means the page returned a
// non-retryable non-200 status and the caller should proceed without it.
type Result struct {
	Body       []byte
	StatusCode int
	URL        string
	Absent     bool
}

// Client fetches pages sequentially. One request is in flight at a time;
// the limiter is a hard ceiling on request rate independent of the
// politeness delays the caller inserts between pages.
type Client struct {
	cfg     config.ScrapeConfig
	pool    *proxy.Pool
	jar     http.CookieJar
	base    *url.URL
	limiter *rate.Limiter
	retry   resilience.RetryConfig

	// throttleDelay is the pause applied after a 429 before the retry
	// machinery takes over. Overridden in tests.
	timeout       time.Duration
	throttleDelay func() time.Duration
}

// New builds a client with cookies restored from the configured cookie
// file. pool may be nil, in which case all requests go direct.
func New(cfg config.ScrapeConfig, pool *proxy.Pool) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse base url")
	}

	jar, err := loadJar(cfg.CookieFile, base)
	if err != nil {
		return nil, err
	}

	retry := resilience.FetchRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg:     cfg,
		pool:    pool,
		jar:     jar,
		base:    base,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		retry:   retry,
		timeout: timeout,
		throttleDelay: func() time.Duration {
			return 5*time.Second + time.Duration(rand.Float64()*5*float64(time.Second))
		},
	}, nil
}

// Fetch retrieves one page, retrying transient faults up to the configured
// attempt budget. It returns an Absent result for non-retryable non-200
// statuses and an error only when every attempt failed.
func (c *Client) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("fetcher", pageURL)

	res, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*Result, error) {
		return c.fetchOnce(ctx, pageURL)
	})
	if err != nil {
		if resilience.IsAbsent(err) {
			zap.L().Info("fetcher: page absent", zap.String("url", pageURL))
			return &Result{URL: pageURL, Absent: true, StatusCode: absentStatus(err)}, nil
		}
		return nil, eris.Wrapf(err, "fetcher: fetch %s", pageURL)
	}
	return res, nil
}

func absentStatus(err error) int {
	var ae *resilience.AbsentError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

func (c *Client) fetchOnce(ctx context.Context, pageURL string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limit wait")
	}

	endpoint, client, err := c.buildClient()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if endpoint != nil {
			c.pool.MarkFailed(endpoint.ID)
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: request"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: read body"), resp.StatusCode)
		}
		saveJar(c.cfg.CookieFile, c.jar, c.base)
		return &Result{Body: body, StatusCode: resp.StatusCode, URL: pageURL}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		// Back off beyond the normal schedule before letting the retry
		// machinery have another go.
		pause := c.throttleDelay()
		zap.L().Warn("fetcher: throttled by target",
			zap.String("url", pageURL),
			zap.Duration("pause", pause),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
		return nil, resilience.NewTransientError(
			eris.Errorf("fetcher: http 429 from %s", pageURL), resp.StatusCode)

	case resilience.IsRetryableHTTPStatus(resp.StatusCode):
		if endpoint != nil {
			c.pool.MarkFailed(endpoint.ID)
		}
		return nil, resilience.NewTransientError(
			eris.Errorf("fetcher: http %d from %s", resp.StatusCode, pageURL), resp.StatusCode)

	default:
		return nil, &resilience.AbsentError{StatusCode: resp.StatusCode, URL: pageURL}
	}
}

// buildClient assembles the per-request HTTP client. A fresh client is
// built each time because the proxy endpoint rotates between requests; the
// cookie jar is shared across all of them.
func (c *Client) buildClient() (*proxy.Endpoint, *http.Client, error) {
	client := &http.Client{Timeout: c.timeout, Jar: c.jar}

	if c.pool == nil || !c.pool.Ready() {
		return nil, client, nil
	}

	endpoint := c.pool.GetProxy()
	if endpoint == nil {
		return nil, client, nil
	}
	transport, err := endpoint.Transport()
	if err != nil {
		return nil, nil, err
	}
	client.Transport = transport
	return endpoint, client, nil
}
