package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/filmlens/scraper-cli/internal/resilience"
)

const (
	ipProbeTimeout  = 10 * time.Second
	geoProbeTimeout = 8 * time.Second
)

// verifyEndpoint checks that the endpoint is reachable and that its egress
// IP geolocates to the configured country. The probe is retried once with
// backoff; any probe failure is treated as transient.
func (p *Pool) verifyEndpoint(ctx context.Context, ep Endpoint) (string, error) {
	cfg := resilience.ProbeRetryConfig()
	cfg.ShouldRetry = func(error) bool { return true }
	cfg.OnRetry = resilience.RetryLogger("proxy", "verify "+ep.ID)

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		ip, err := p.egressIP(ctx, ep)
		if err != nil {
			return "", err
		}

		country, err := p.resolveCountry(ctx, ip)
		if err != nil {
			return "", err
		}

		if !strings.EqualFold(country, ep.CountryCode) {
			return "", eris.Errorf("proxy: endpoint %s egresses from %s, expected %s",
				ep.ID, strings.ToUpper(country), strings.ToUpper(ep.CountryCode))
		}
		return ip, nil
	})
}

// egressIP fetches the caller's apparent public IP through the endpoint.
func (p *Pool) egressIP(ctx context.Context, ep Endpoint) (string, error) {
	transport, err := ep.Transport()
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: ipProbeTimeout, Transport: transport}

	var payload struct {
		IP string `json:"ip"`
	}
	if err := p.getJSON(ctx, client, p.cfg.IPLookup, &payload); err != nil {
		return "", eris.Wrapf(err, "proxy: ip lookup via %s", ep.ID)
	}
	if payload.IP == "" {
		return "", eris.Errorf("proxy: empty ip from lookup via %s", ep.ID)
	}
	return payload.IP, nil
}

// resolveCountry geolocates an IP via the configured lookup service. This
// request goes direct, not through the endpoint.
func (p *Pool) resolveCountry(ctx context.Context, ip string) (string, error) {
	client := &http.Client{Timeout: geoProbeTimeout}

	var payload struct {
		CountryCode string `json:"countryCode"`
	}
	lookupURL := fmt.Sprintf("%s/%s", strings.TrimRight(p.cfg.GeoLookup, "/"), ip)
	if err := p.getJSON(ctx, client, lookupURL, &payload); err != nil {
		return "", eris.Wrapf(err, "proxy: geo lookup for %s", ip)
	}
	if payload.CountryCode == "" {
		return "", eris.Errorf("proxy: geo lookup returned no country for %s", ip)
	}
	return payload.CountryCode, nil
}

func (p *Pool) getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "proxy: create probe request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "proxy: probe request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("proxy: probe status %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return eris.Wrap(err, "proxy: read probe body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "proxy: decode probe body")
	}
	return nil
}
