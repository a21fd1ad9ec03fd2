package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmlens/scraper-cli/internal/model"
	"github.com/filmlens/scraper-cli/internal/store"
)

// fakeSessionStore implements store.Store for router tests.
type fakeSessionStore struct {
	sessions []model.ScrapeSession
	err      error
}

func (f *fakeSessionStore) CreateSession(context.Context, string) (*model.ScrapeSession, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSessionStore) CompleteSession(context.Context, *model.ScrapeSession) error {
	return errors.New("not implemented")
}

func (f *fakeSessionStore) ListSessions(context.Context, int) ([]model.ScrapeSession, error) {
	return f.sessions, f.err
}

func (f *fakeSessionStore) UpsertMovies(context.Context, []model.MovieRecord) (store.UpsertStats, error) {
	return store.UpsertStats{}, errors.New("not implemented")
}

func (f *fakeSessionStore) Migrate(context.Context) error { return nil }
func (f *fakeSessionStore) Close() error                  { return nil }

func TestBuildRouter_Health(t *testing.T) {
	r := buildRouter(&fakeSessionStore{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_Sessions(t *testing.T) {
	started := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	r := buildRouter(&fakeSessionStore{
		sessions: []model.ScrapeSession{
			{ID: "s1", Backend: "goquery", MoviesScraped: 12, Status: model.SessionCompleted, StartedAt: started},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var sessions []model.ScrapeSession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, 12, sessions[0].MoviesScraped)
}

func TestBuildRouter_Sessions_EmptyIsArray(t *testing.T) {
	r := buildRouter(&fakeSessionStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestBuildRouter_Sessions_StoreError(t *testing.T) {
	r := buildRouter(&fakeSessionStore{err: errors.New("db down")})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
