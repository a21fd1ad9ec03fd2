package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmlens/scraper-cli/internal/config"
)

func setProxyEnv(t *testing.T, gateway string) {
	t.Helper()
	t.Setenv("PROXY_USER", "user123")
	t.Setenv("PROXY_PASS", "pass456")
	t.Setenv("PROXY_GATEWAY", gateway)
}

func testPool(endpoints ...Endpoint) *Pool {
	return &Pool{
		endpoints:      endpoints,
		usageByCountry: make(map[string]int),
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("PROXY_USER", "")
	t.Setenv("PROXY_PASS", "")
	t.Setenv("PROXY_GATEWAY", "")

	_, err := New(config.ProxyConfig{Countries: []string{"mx"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROXY_USER")
}

func TestNew_BuildsOneEndpointPerCountry(t *testing.T) {
	setProxyEnv(t, "gw.example.com:823")

	p, err := New(config.ProxyConfig{Countries: []string{"mx", "ar", "bo"}})
	require.NoError(t, err)
	require.Len(t, p.candidates, 3)

	seen := map[string]bool{}
	for _, ep := range p.candidates {
		assert.Contains(t, ep.URL, "__cr."+ep.CountryCode+":")
		assert.Contains(t, ep.URL, "gw.example.com:823")
		assert.False(t, ep.Verified)
		seen[ep.CountryCode] = true
	}
	assert.Len(t, seen, 3)
}

func TestGetProxy_EmptyPool(t *testing.T) {
	p := testPool()
	assert.Nil(t, p.GetProxy())
	assert.Nil(t, p.MarkFailed("mx-0001"))

	stats := p.Statistics()
	assert.False(t, stats.Active)
	assert.Equal(t, 1, stats.FailedRequests)
	assert.Zero(t, stats.SuccessRate)
}

func TestGetProxy_NeverRepeatsImmediately(t *testing.T) {
	p := testPool(
		Endpoint{ID: "mx-0001", CountryCode: "mx", Verified: true},
		Endpoint{ID: "ar-0002", CountryCode: "ar", Verified: true},
		Endpoint{ID: "bo-0003", CountryCode: "bo", Verified: true},
	)

	prev := ""
	for i := 0; i < 50; i++ {
		ep := p.GetProxy()
		require.NotNil(t, ep)
		if prev != "" {
			assert.NotEqual(t, prev, ep.ID, "iteration %d", i)
		}
		prev = ep.ID
	}
}

func TestGetProxy_SingleEndpointFallsBackToFullPool(t *testing.T) {
	p := testPool(Endpoint{ID: "mx-0001", CountryCode: "mx", Verified: true})

	first := p.GetProxy()
	second := p.GetProxy()
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
}

func TestStatistics_CountsAndHistory(t *testing.T) {
	p := testPool(
		Endpoint{ID: "mx-0001", CountryCode: "mx", Verified: true, VerifiedIP: "1.1.1.1"},
		Endpoint{ID: "ar-0002", CountryCode: "ar", Verified: true, VerifiedIP: "2.2.2.2"},
	)

	for i := 0; i < 15; i++ {
		require.NotNil(t, p.GetProxy())
	}
	p.MarkFailed("mx-0001")

	stats := p.Statistics()
	assert.True(t, stats.Active)
	assert.Equal(t, 2, stats.TotalEndpoints)
	assert.Equal(t, 16, stats.TotalRequests) // MarkFailed re-selects
	assert.Equal(t, 1, stats.FailedRequests)
	assert.InDelta(t, 15.0/16.0, stats.SuccessRate, 1e-9)
	assert.Len(t, stats.RecentUsage, 10)

	total := 0
	for _, n := range stats.UsageByCountry {
		total += n
	}
	assert.Equal(t, 16, total)
}

func TestInitialize_KeepsOnlyMatchingCountry(t *testing.T) {
	// Fake gateway: answers any proxied request with the ipify payload.
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ip":"8.8.4.4"}`)
	}))
	defer gateway.Close()

	// Geo lookup resolves every IP to MX.
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"countryCode":"MX"}`)
	}))
	defer geo.Close()

	setProxyEnv(t, gateway.Listener.Addr().String())

	p, err := New(config.ProxyConfig{
		Countries: []string{"mx", "ar"},
		IPLookup:  "http://ip.example/json",
		GeoLookup: geo.URL,
	})
	require.NoError(t, err)

	require.NoError(t, p.Initialize(context.Background()))
	require.True(t, p.Ready())

	stats := p.Statistics()
	assert.Equal(t, 1, stats.TotalEndpoints)

	ep := p.GetProxy()
	require.NotNil(t, ep)
	assert.Equal(t, "mx", ep.CountryCode)
	assert.Equal(t, "8.8.4.4", ep.VerifiedIP)
}

func TestInitialize_EmptyPoolIsDegradedNotFatal(t *testing.T) {
	// Geo lookup reports a country that matches no endpoint.
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ip":"8.8.4.4"}`)
	}))
	defer gateway.Close()
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"countryCode":"US"}`)
	}))
	defer geo.Close()

	setProxyEnv(t, gateway.Listener.Addr().String())

	p, err := New(config.ProxyConfig{
		Countries: []string{"mx"},
		IPLookup:  "http://ip.example/json",
		GeoLookup: geo.URL,
	})
	require.NoError(t, err)

	require.NoError(t, p.Initialize(context.Background()))
	assert.False(t, p.Ready())
	assert.Nil(t, p.GetProxy())
}
