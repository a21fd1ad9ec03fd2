// Package proxy maintains the pool of per-country egress endpoints: built
// once from static country configuration, verified once at startup, then
// immutable for the run. Selection is random but never repeats the
// immediately preceding endpoint when the pool allows it.
package proxy

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/filmlens/scraper-cli/internal/config"
)

// verifyConcurrency bounds the startup probes. These hit the IP lookup
// services, not the scrape target, so they are exempt from the
// one-request-in-flight politeness rule.
const verifyConcurrency = 4

// historyCap bounds the stored usage history; reports surface the last 10.
const historyCap = 50

// Endpoint is one configured, country-tagged egress route. Verified is set
// once during Initialize and never re-checked per use.
type Endpoint struct {
	ID          string
	CountryCode string
	Region      string
	URL         string
	Verified    bool
	VerifiedIP  string
}

// UsageEntry is one record in the rolling selection history.
type UsageEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	EndpointID string    `json:"endpoint_id"`
	Country    string    `json:"country"`
	IP         string    `json:"ip"`
}

// Statistics is a point-in-time snapshot of pool usage.
type Statistics struct {
	Active         bool              `json:"active"`
	TotalEndpoints int               `json:"total_endpoints"`
	TotalRequests  int               `json:"total_requests"`
	FailedRequests int               `json:"failed_requests"`
	Rotations      int               `json:"rotations"`
	SuccessRate    float64           `json:"success_rate"`
	UsageByCountry map[string]int    `json:"usage_by_country"`
	LastUsed       string            `json:"last_used,omitempty"`
	RecentUsage    []UsageEntry      `json:"recent_usage"`
}

// Pool holds the verified endpoints plus running usage statistics. The
// scrape walk is sequential, but the status server reads statistics
// concurrently, so the mutable state is guarded.
type Pool struct {
	cfg        config.ProxyConfig
	candidates []Endpoint

	mu             sync.Mutex
	endpoints      []Endpoint
	totalRequests  int
	failedRequests int
	rotations      int
	usageByCountry map[string]int
	history        []UsageEntry
	lastUsed       string
}

// New builds one candidate endpoint per configured country by combining the
// shared credential/gateway from the environment with the per-country
// routing tag. Missing credentials are fatal: the pool cannot exist
// without them (disabling proxies entirely is the caller's choice).
func New(cfg config.ProxyConfig) (*Pool, error) {
	user := os.Getenv("PROXY_USER")
	pass := os.Getenv("PROXY_PASS")
	gateway := os.Getenv("PROXY_GATEWAY")
	if user == "" || pass == "" || gateway == "" {
		return nil, eris.New("proxy: PROXY_USER, PROXY_PASS and PROXY_GATEWAY must be set")
	}

	candidates := make([]Endpoint, 0, len(cfg.Countries))
	for _, cc := range cfg.Countries {
		connStr := fmt.Sprintf("http://%s__cr.%s:%s@%s", user, cc, pass, gateway)
		candidates = append(candidates, Endpoint{
			ID:          fmt.Sprintf("%s-%s", cc, fingerprint(connStr)),
			CountryCode: cc,
			Region:      cc,
			URL:         connStr,
		})
	}

	zap.L().Info("proxy: configured country endpoints", zap.Int("count", len(candidates)))

	return &Pool{
		cfg:            cfg,
		candidates:     candidates,
		usageByCountry: make(map[string]int),
	}, nil
}

// fingerprint returns a short numeric tag derived from the connection
// string, used only to make endpoint ids distinguishable in logs.
func fingerprint(connStr string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connStr))
	return fmt.Sprintf("%04d", h.Sum32()%10000)
}

// Initialize probes every candidate endpoint and keeps only those whose
// egress geolocates to the configured country. An empty surviving pool is
// a degraded mode, not an error: GetProxy returns nil and callers fall
// back to direct connection.
func (p *Pool) Initialize(ctx context.Context) error {
	zap.L().Info("proxy: verifying endpoints", zap.Int("candidates", len(p.candidates)))

	verified := make([]Endpoint, 0, len(p.candidates))
	var vmu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i := range p.candidates {
		ep := p.candidates[i]
		g.Go(func() error {
			ip, err := p.verifyEndpoint(gCtx, ep)
			if err != nil {
				zap.L().Warn("proxy: endpoint failed verification",
					zap.String("endpoint", ep.ID),
					zap.String("country", ep.CountryCode),
					zap.Error(err),
				)
				return nil
			}
			ep.Verified = true
			ep.VerifiedIP = ip
			vmu.Lock()
			verified = append(verified, ep)
			vmu.Unlock()
			zap.L().Info("proxy: endpoint verified",
				zap.String("endpoint", ep.ID),
				zap.String("country", ep.CountryCode),
				zap.String("ip", ip),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "proxy: verification")
	}

	p.mu.Lock()
	p.endpoints = verified
	p.mu.Unlock()

	if len(verified) == 0 {
		zap.L().Error("proxy: no endpoints survived verification, degrading to direct connection")
		return nil
	}

	zap.L().Info("proxy: pool ready", zap.Int("endpoints", len(verified)))
	return nil
}

// GetProxy selects a random endpoint, excluding the one used by the
// immediately preceding call unless exclusion would empty the candidate
// set. The selection is recorded in the running statistics before it is
// returned. Returns nil when the pool is empty.
func (p *Pool) GetProxy() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return nil
	}

	available := make([]Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if ep.ID != p.lastUsed {
			available = append(available, ep)
		}
	}
	if len(available) == 0 {
		available = p.endpoints
	}

	selected := available[rand.IntN(len(available))]
	p.recordUsageLocked(selected)
	return &selected
}

// MarkFailed increments the failure counter for the given endpoint and
// immediately re-selects, returning the replacement (nil when the pool is
// empty).
func (p *Pool) MarkFailed(endpointID string) *Endpoint {
	p.mu.Lock()
	p.failedRequests++
	p.mu.Unlock()

	zap.L().Warn("proxy: endpoint failed, rotating", zap.String("endpoint", endpointID))
	return p.GetProxy()
}

// Ready reports whether the pool has at least one verified endpoint.
func (p *Pool) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints) > 0
}

// Statistics returns counters, the per-country histogram and the last 10
// usage-history entries. Success rate is 0 when nothing was requested.
func (p *Pool) Statistics() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Statistics{
		Active:         len(p.endpoints) > 0,
		TotalEndpoints: len(p.endpoints),
		TotalRequests:  p.totalRequests,
		FailedRequests: p.failedRequests,
		Rotations:      p.rotations,
		UsageByCountry: make(map[string]int, len(p.usageByCountry)),
		LastUsed:       p.lastUsed,
	}
	for cc, n := range p.usageByCountry {
		stats.UsageByCountry[cc] = n
	}
	if p.totalRequests > 0 {
		stats.SuccessRate = float64(p.totalRequests-p.failedRequests) / float64(p.totalRequests)
	}

	start := 0
	if len(p.history) > 10 {
		start = len(p.history) - 10
	}
	stats.RecentUsage = append(stats.RecentUsage, p.history[start:]...)

	return stats
}

// Close logs the final usage report.
func (p *Pool) Close() {
	stats := p.Statistics()
	zap.L().Info("proxy: final report",
		zap.Int("total_requests", stats.TotalRequests),
		zap.Int("failed_requests", stats.FailedRequests),
		zap.Float64("success_rate", stats.SuccessRate),
		zap.Any("usage_by_country", stats.UsageByCountry),
	)
}

func (p *Pool) recordUsageLocked(ep Endpoint) {
	p.totalRequests++
	p.rotations++
	p.usageByCountry[ep.CountryCode]++
	p.history = append(p.history, UsageEntry{
		Timestamp:  time.Now().UTC(),
		EndpointID: ep.ID,
		Country:    ep.CountryCode,
		IP:         ep.VerifiedIP,
	})
	if len(p.history) > historyCap {
		p.history = p.history[len(p.history)-historyCap:]
	}
	p.lastUsed = ep.ID

	zap.L().Debug("proxy: selected endpoint",
		zap.String("endpoint", ep.ID),
		zap.String("country", ep.CountryCode),
	)
}

// Transport returns an http.RoundTripper that routes through the endpoint.
func (ep *Endpoint) Transport() (*http.Transport, error) {
	u, err := url.Parse(ep.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "proxy: parse endpoint url for %s", ep.ID)
	}
	return &http.Transport{Proxy: http.ProxyURL(u)}, nil
}
