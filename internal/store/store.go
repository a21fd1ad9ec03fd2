// Package store persists admitted movie records with a per-movie audit
// trail, plus scrape session bookkeeping for the status API.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/filmlens/scraper-cli/internal/model"
)

// UpsertStats summarizes one UpsertMovies call. Failed counts records whose
// transaction rolled back; they never abort the batch.
type UpsertStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

// Store defines the persistence interface shared by both backends.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, backend string) (*model.ScrapeSession, error)
	CompleteSession(ctx context.Context, session *model.ScrapeSession) error
	ListSessions(ctx context.Context, limit int) ([]model.ScrapeSession, error)

	// Movies
	UpsertMovies(ctx context.Context, records []model.MovieRecord) (UpsertStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Pool is the subset of pgxpool.Pool the Postgres store uses. pgxmock
// satisfies it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}
