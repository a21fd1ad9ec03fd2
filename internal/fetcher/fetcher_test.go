package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmlens/scraper-cli/internal/config"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(config.ScrapeConfig{
		BaseURL:     baseURL,
		MaxAttempts: 5,
		TimeoutSecs: 5,
		CookieFile:  filepath.Join(t.TempDir(), "cookies.json"),
	}, nil)
	require.NoError(t, err)

	c.retry.InitialBackoff = time.Millisecond
	c.retry.MinBackoff = time.Millisecond
	c.retry.MaxBackoff = 5 * time.Millisecond
	c.throttleDelay = func() time.Duration { return time.Millisecond }
	return c
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Fetch(context.Background(), srv.URL+"/chart")
	require.NoError(t, err)
	assert.False(t, res.Absent)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(res.Body), "ok")
}

func TestFetch_RecoversAfterTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 4 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "<html>finally</html>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Fetch(context.Background(), srv.URL+"/chart")
	require.NoError(t, err)
	assert.Contains(t, string(res.Body), "finally")
	assert.Equal(t, int32(5), calls.Load())
}

func TestFetch_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Fetch(context.Background(), srv.URL+"/chart")
	require.Error(t, err)
	assert.Equal(t, int32(5), calls.Load())
}

func TestFetch_NotFoundIsAbsentNotError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Fetch(context.Background(), srv.URL+"/title/tt0000001/")
	require.NoError(t, err)
	assert.True(t, res.Absent)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, int32(1), calls.Load(), "absence must not be retried")
}

func TestFetch_ThrottledThenRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "<html>calm</html>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Fetch(context.Background(), srv.URL+"/chart")
	require.NoError(t, err)
	assert.False(t, res.Absent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_PersistsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "uu", Value: "abc123", Path: "/"})
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Fetch(context.Background(), srv.URL+"/chart")
	require.NoError(t, err)

	data, err := os.ReadFile(c.cfg.CookieFile)
	require.NoError(t, err)

	var stored []storedCookie
	require.NoError(t, json.Unmarshal(data, &stored))

	names := map[string]string{}
	for _, sc := range stored {
		names[sc.Name] = sc.Value
	}
	assert.Equal(t, "abc123", names["uu"])
	assert.Contains(t, names, "session-id")
	assert.Contains(t, names, "lc-main")
}

func TestFetch_ReloadsPersistedCookies(t *testing.T) {
	var sawCookie atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("uu"); err == nil && c.Value == "abc123" {
			sawCookie.Store(true)
		}
		http.SetCookie(w, &http.Cookie{Name: "uu", Value: "abc123", Path: "/"})
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer srv.Close()

	first := newTestClient(t, srv.URL)
	_, err := first.Fetch(context.Background(), srv.URL+"/chart")
	require.NoError(t, err)
	require.False(t, sawCookie.Load())

	second, err := New(first.cfg, nil)
	require.NoError(t, err)
	_, err = second.Fetch(context.Background(), srv.URL+"/chart")
	require.NoError(t, err)
	assert.True(t, sawCookie.Load())
}
