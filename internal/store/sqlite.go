package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/filmlens/scraper-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS movies (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	year             INTEGER NOT NULL DEFAULT 0 CHECK (year = 0 OR year >= 1888),
	rating           REAL CHECK (rating >= 1.0 AND rating <= 10.0),
	duration_minutes INTEGER CHECK (duration_minutes BETWEEN 1 AND 1000),
	metascore        INTEGER CHECK (metascore BETWEEN 0 AND 100),
	external_id      TEXT NOT NULL,
	quality_score    REAL NOT NULL DEFAULT 0,
	captured_at      DATETIME NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (title, year)
);

CREATE TABLE IF NOT EXISTS actors (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS movie_actors (
	movie_id TEXT NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
	actor_id TEXT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
	is_lead  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (movie_id, actor_id)
);

CREATE TABLE IF NOT EXISTS movie_audit (
	id         TEXT PRIMARY KEY,
	movie_id   TEXT NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
	operation  TEXT NOT NULL CHECK (operation IN ('INSERT', 'UPDATE')),
	old_data   TEXT,
	new_data   TEXT NOT NULL,
	changed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scrape_sessions (
	id             TEXT PRIMARY KEY,
	backend        TEXT NOT NULL,
	movies_scraped INTEGER NOT NULL DEFAULT 0,
	movies_failed  INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'running',
	error          TEXT,
	started_at     DATETIME NOT NULL,
	finished_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_movies_external_id ON movies(external_id);
CREATE INDEX IF NOT EXISTS idx_movie_audit_movie_id ON movie_audit(movie_id);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON scrape_sessions(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, backend string) (*model.ScrapeSession, error) {
	session := &model.ScrapeSession{
		ID:        uuid.New().String(),
		Backend:   backend,
		Status:    model.SessionRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_sessions (id, backend, status, started_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.Backend, string(session.Status), session.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}
	return session, nil
}

func (s *SQLiteStore) CompleteSession(ctx context.Context, session *model.ScrapeSession) error {
	now := time.Now().UTC()
	session.FinishedAt = &now

	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_sessions SET movies_scraped = ?, movies_failed = ?, status = ?, error = ?, finished_at = ? WHERE id = ?`,
		session.MoviesScraped, session.MoviesFailed, string(session.Status), session.Error, now, session.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete session %s", session.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("session not found: %s", session.ID)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]model.ScrapeSession, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, backend, movies_scraped, movies_failed, status, COALESCE(error, ''), started_at, finished_at
		 FROM scrape_sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.ScrapeSession
	for rows.Next() {
		var sess model.ScrapeSession
		var status string
		if err := rows.Scan(&sess.ID, &sess.Backend, &sess.MoviesScraped, &sess.MoviesFailed,
			&status, &sess.Error, &sess.StartedAt, &sess.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sess.Status = model.SessionStatus(status)
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: iterate sessions")
}

// UpsertMovies mirrors the Postgres semantics: one transaction per record,
// audit entry with before/after images, failures counted and skipped.
func (s *SQLiteStore) UpsertMovies(ctx context.Context, records []model.MovieRecord) (UpsertStats, error) {
	var stats UpsertStats
	for _, rec := range records {
		op, err := s.upsertOne(ctx, rec)
		if err != nil {
			stats.Failed++
			zap.L().Error("sqlite: upsert failed",
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

func (s *SQLiteStore) upsertOne(ctx context.Context, rec model.MovieRecord) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()

	var movieID string
	var old oldImage
	err = tx.QueryRowContext(ctx,
		`SELECT id, title, year, rating, duration_minutes, metascore, quality_score FROM movies WHERE title = ? AND year = ?`,
		rec.Title, rec.Year,
	).Scan(&movieID, &old.Title, &old.Year, &old.Rating, &old.Duration, &old.Metascore, &old.QualityScore)

	var operation string
	var oldData []byte
	switch {
	case errors.Is(err, sql.ErrNoRows):
		operation = "INSERT"
		movieID = uuid.New().String()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO movies (id, title, year, rating, duration_minutes, metascore, external_id, quality_score, captured_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			movieID, rec.Title, rec.Year, nullFloat(rec.Rating), rec.DurationMinutes, rec.Metascore,
			rec.ExternalID, rec.QualityScore, rec.CapturedAt,
		)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: insert movie")
		}
	case err != nil:
		return "", eris.Wrap(err, "sqlite: read old image")
	default:
		operation = "UPDATE"
		if oldData, err = json.Marshal(old); err != nil {
			return "", eris.Wrap(err, "sqlite: marshal old image")
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE movies SET rating = ?, duration_minutes = ?, metascore = ?, quality_score = ?, updated_at = datetime('now') WHERE id = ?`,
			nullFloat(rec.Rating), rec.DurationMinutes, rec.Metascore, rec.QualityScore, movieID,
		)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: update movie")
		}
	}

	newData, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal new image")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO movie_audit (id, movie_id, operation, old_data, new_data) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), movieID, operation, nullBytes(oldData), newData,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert audit")
	}

	for i, name := range rec.Actors {
		actorID := uuid.New().String()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO actors (id, name) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
			actorID, name,
		)
		if err != nil {
			return "", eris.Wrapf(err, "sqlite: upsert actor %s", name)
		}
		err = tx.QueryRowContext(ctx, `SELECT id FROM actors WHERE name = ?`, name).Scan(&actorID)
		if err != nil {
			return "", eris.Wrapf(err, "sqlite: read actor %s", name)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO movie_actors (movie_id, actor_id, is_lead) VALUES (?, ?, ?)
			 ON CONFLICT (movie_id, actor_id) DO UPDATE SET is_lead = excluded.is_lead`,
			movieID, actorID, i < 3,
		)
		if err != nil {
			return "", eris.Wrapf(err, "sqlite: link actor %s", name)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit")
	}
	return operation, nil
}

// oldImage is the audit snapshot of a movie row before an update.
type oldImage struct {
	Title        string   `json:"title"`
	Year         int      `json:"year"`
	Rating       *float64 `json:"rating"`
	Duration     *int     `json:"duration_minutes"`
	Metascore    *int     `json:"metascore"`
	QualityScore float64  `json:"quality_score"`
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
