package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/filmlens/scraper-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS movies (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	title            TEXT NOT NULL,
	year             INTEGER NOT NULL DEFAULT 0 CHECK (year = 0 OR year >= 1888),
	rating           DOUBLE PRECISION CHECK (rating >= 1.0 AND rating <= 10.0),
	duration_minutes INTEGER CHECK (duration_minutes BETWEEN 1 AND 1000),
	metascore        INTEGER CHECK (metascore BETWEEN 0 AND 100),
	external_id      TEXT NOT NULL,
	quality_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	captured_at      TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (title, year)
);

CREATE TABLE IF NOT EXISTS actors (
	id   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS movie_actors (
	movie_id TEXT NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
	actor_id TEXT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
	is_lead  BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (movie_id, actor_id)
);

CREATE TABLE IF NOT EXISTS movie_audit (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	movie_id   TEXT NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
	operation  TEXT NOT NULL CHECK (operation IN ('INSERT', 'UPDATE')),
	old_data   JSONB,
	new_data   JSONB NOT NULL,
	changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scrape_sessions (
	id             TEXT PRIMARY KEY,
	backend        TEXT NOT NULL,
	movies_scraped INTEGER NOT NULL DEFAULT 0,
	movies_failed  INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'running',
	error          TEXT,
	started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_movies_external_id ON movies(external_id);
CREATE INDEX IF NOT EXISTS idx_movies_rating ON movies(rating DESC);
CREATE INDEX IF NOT EXISTS idx_movie_audit_movie_id ON movie_audit(movie_id);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON scrape_sessions(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, backend string) (*model.ScrapeSession, error) {
	session := &model.ScrapeSession{
		ID:        uuid.New().String(),
		Backend:   backend,
		Status:    model.SessionRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_sessions (id, backend, status, started_at) VALUES ($1, $2, $3, $4)`,
		session.ID, session.Backend, string(session.Status), session.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}
	return session, nil
}

func (s *PostgresStore) CompleteSession(ctx context.Context, session *model.ScrapeSession) error {
	now := time.Now().UTC()
	session.FinishedAt = &now

	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_sessions SET movies_scraped = $1, movies_failed = $2, status = $3, error = $4, finished_at = $5 WHERE id = $6`,
		session.MoviesScraped, session.MoviesFailed, string(session.Status), session.Error, now, session.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete session %s", session.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %s", session.ID)
	}
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]model.ScrapeSession, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, backend, movies_scraped, movies_failed, status, COALESCE(error, ''), started_at, finished_at
		 FROM scrape_sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.ScrapeSession
	for rows.Next() {
		var sess model.ScrapeSession
		var status string
		if err := rows.Scan(&sess.ID, &sess.Backend, &sess.MoviesScraped, &sess.MoviesFailed,
			&status, &sess.Error, &sess.StartedAt, &sess.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sess.Status = model.SessionStatus(status)
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: iterate sessions")
}

// UpsertMovies writes each record in its own transaction: the movie row
// keyed on (title, year), its audit entry with before/after images, and
// the cast links. A failed record is rolled back and counted, never fatal
// for the batch.
func (s *PostgresStore) UpsertMovies(ctx context.Context, records []model.MovieRecord) (UpsertStats, error) {
	var stats UpsertStats
	for _, rec := range records {
		op, err := s.upsertOne(ctx, rec)
		if err != nil {
			stats.Failed++
			zap.L().Error("postgres: upsert failed",
				zap.String("title", rec.Title),
				zap.Error(err),
			)
			continue
		}
		if op == "INSERT" {
			stats.Inserted++
		} else {
			stats.Updated++
		}
	}
	return stats, nil
}

func (s *PostgresStore) upsertOne(ctx context.Context, rec model.MovieRecord) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Old image first; its presence decides INSERT vs UPDATE.
	var oldData []byte
	err = tx.QueryRow(ctx,
		`SELECT row_to_json(m) FROM (SELECT title, year, rating, duration_minutes, metascore, quality_score FROM movies WHERE title = $1 AND year = $2) m`,
		rec.Title, rec.Year,
	).Scan(&oldData)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", eris.Wrap(err, "postgres: read old image")
	}

	operation := "UPDATE"
	if oldData == nil {
		operation = "INSERT"
	}

	var movieID string
	err = tx.QueryRow(ctx,
		`INSERT INTO movies (title, year, rating, duration_minutes, metascore, external_id, quality_score, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (title, year) DO UPDATE SET
			rating = EXCLUDED.rating,
			duration_minutes = EXCLUDED.duration_minutes,
			metascore = EXCLUDED.metascore,
			quality_score = EXCLUDED.quality_score,
			updated_at = now()
		 RETURNING id`,
		rec.Title, rec.Year, nullFloat(rec.Rating), rec.DurationMinutes, rec.Metascore,
		rec.ExternalID, rec.QualityScore, rec.CapturedAt,
	).Scan(&movieID)
	if err != nil {
		return "", eris.Wrap(err, "postgres: upsert movie")
	}

	newData, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal new image")
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO movie_audit (id, movie_id, operation, old_data, new_data) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), movieID, operation, oldData, newData,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert audit")
	}

	for i, name := range rec.Actors {
		var actorID string
		err = tx.QueryRow(ctx,
			`INSERT INTO actors (id, name) VALUES ($1, $2)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			uuid.New().String(), name,
		).Scan(&actorID)
		if err != nil {
			return "", eris.Wrapf(err, "postgres: upsert actor %s", name)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO movie_actors (movie_id, actor_id, is_lead) VALUES ($1, $2, $3)
			 ON CONFLICT (movie_id, actor_id) DO UPDATE SET is_lead = EXCLUDED.is_lead`,
			movieID, actorID, i < 3,
		)
		if err != nil {
			return "", eris.Wrapf(err, "postgres: link actor %s", name)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: commit")
	}
	return operation, nil
}

// nullFloat maps the zero rating to NULL so the check constraint holds for
// records whose listing carried no rating.
func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}
