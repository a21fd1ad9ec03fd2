package fetcher

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// storedCookie is the on-disk shape of one cookie. The jar strips cookie
// attributes on read, so only what the jar gives back is persisted.
type storedCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// seedCookies returns the session cookies presented on a first-ever visit,
// before the target has handed any out itself.
func seedCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: "session-id", Value: uuid.NewString(), Path: "/"},
		{Name: "session-id-time", Value: strconv.FormatInt(time.Now().Unix(), 10), Path: "/"},
		{Name: "lc-main", Value: "en_US", Path: "/"},
	}
}

// loadJar builds a cookie jar from the persisted cookie file. A missing or
// unreadable file yields a jar seeded with session defaults; persistence is
// best effort and never blocks a run.
func loadJar(path string, base *url.URL) (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create cookie jar")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Warn("fetcher: cookie file unreadable, starting fresh",
				zap.String("path", path), zap.Error(err))
		}
		jar.SetCookies(base, seedCookies())
		return jar, nil
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		zap.L().Warn("fetcher: cookie file corrupt, starting fresh",
			zap.String("path", path), zap.Error(err))
		jar.SetCookies(base, seedCookies())
		return jar, nil
	}

	byDomain := make(map[string][]*http.Cookie)
	for _, sc := range stored {
		domain := sc.Domain
		if domain == "" {
			domain = base.Host
		}
		byDomain[domain] = append(byDomain[domain], &http.Cookie{
			Name:  sc.Name,
			Value: sc.Value,
			Path:  sc.Path,
		})
	}
	for domain, cookies := range byDomain {
		u := &url.URL{Scheme: base.Scheme, Host: strings.TrimPrefix(domain, ".")}
		jar.SetCookies(u, cookies)
	}

	zap.L().Debug("fetcher: loaded cookies", zap.Int("count", len(stored)))
	return jar, nil
}

// saveJar persists the jar's cookies for the base host. Failures are logged
// and swallowed.
func saveJar(path string, jar http.CookieJar, base *url.URL) {
	cookies := jar.Cookies(base)
	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: base.Host,
			Path:   "/",
		})
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		zap.L().Warn("fetcher: marshal cookies", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		zap.L().Warn("fetcher: create cookie dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		zap.L().Warn("fetcher: write cookie file", zap.String("path", path), zap.Error(err))
	}
}
