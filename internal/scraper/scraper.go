// Package scraper drives the ranked-listing walk: one listing page per
// genre, a bounded slice of containers from each, a detail fetch per
// container, then validation and admission. The walk is strictly
// sequential with a politeness delay before every container.
package scraper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/filmlens/scraper-cli/internal/config"
	"github.com/filmlens/scraper-cli/internal/fetcher"
	"github.com/filmlens/scraper-cli/internal/model"
	"github.com/filmlens/scraper-cli/internal/parse"
	"github.com/filmlens/scraper-cli/internal/validate"
)

// Fetcher retrieves one page. Satisfied by fetcher.Client.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*fetcher.Result, error)
}

// Scraper walks genre listings and assembles admitted movie records.
type Scraper struct {
	cfg       config.ScrapeConfig
	fetch     Fetcher
	observers []Observer
	base      *url.URL

	// pause is the politeness delay before each container. Overridden in
	// tests.
	pause func(ctx context.Context) error
}

func New(cfg config.ScrapeConfig, fetch Fetcher, observers ...Observer) (*Scraper, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "scraper: parse base url")
	}

	s := &Scraper{
		cfg:       cfg,
		fetch:     fetch,
		observers: observers,
		base:      base,
	}
	s.pause = s.politenessDelay
	return s, nil
}

// Run executes the full walk and returns every admitted record. Per-movie
// faults are reported to observers and skipped; the error return is
// non-nil only when not a single listing page could be fetched.
func (s *Scraper) Run(ctx context.Context) ([]model.MovieRecord, error) {
	genres := s.cfg.Genres
	if len(genres) == 0 {
		genres = []string{"drama", "adventure", "thriller", "crime"}
	}
	quota := s.cfg.Movies/len(genres) + 5

	zap.L().Info("scrape starting",
		zap.Int("target_movies", s.cfg.Movies),
		zap.Strings("genres", genres),
		zap.Int("per_genre_quota", quota),
	)

	var containers []*goquery.Selection
	listingsFetched := 0
	for _, genre := range genres {
		found, err := s.listingContainers(ctx, genre, quota)
		if err != nil {
			s.emitError(eris.Wrapf(err, "scraper: listing for genre %s", genre))
			continue
		}
		listingsFetched++
		containers = append(containers, found...)
	}
	if listingsFetched == 0 {
		return nil, eris.New("scraper: no listing page could be fetched")
	}

	records := make([]model.MovieRecord, 0, len(containers))
	for i, container := range containers {
		if err := s.pause(ctx); err != nil {
			return records, eris.Wrap(err, "scraper: walk interrupted")
		}

		zap.L().Info("processing entry",
			zap.Int("index", i+1),
			zap.Int("total", len(containers)),
		)

		rec, ok := s.processContainer(ctx, container)
		if !ok {
			continue
		}
		records = append(records, rec)
		for _, obs := range s.observers {
			obs.OnMovieScraped(rec)
		}
		zap.L().Info("movie admitted",
			zap.String("title", rec.Title),
			zap.Float64("quality_score", rec.QualityScore),
		)
	}

	zap.L().Info("scrape completed", zap.Int("admitted", len(records)))
	return records, nil
}

// listingContainers fetches one genre's ranked listing and returns up to
// quota containers from it.
func (s *Scraper) listingContainers(ctx context.Context, genre string, quota int) ([]*goquery.Selection, error) {
	listingURL := fmt.Sprintf("%s/chart/top/?genres=%s", s.base.String(), url.QueryEscape(genre))

	res, err := s.fetch.Fetch(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	if res.Absent {
		return nil, eris.Errorf("scraper: listing absent (http %d)", res.StatusCode)
	}

	doc, err := parse.Document(res.Body)
	if err != nil {
		return nil, err
	}

	found := parse.Containers(doc)
	zap.L().Info("listing fetched",
		zap.String("genre", genre),
		zap.Int("containers", found.Length()),
	)
	if found.Length() == 0 {
		return nil, eris.Errorf("scraper: no containers on listing for %s, markup may have changed", genre)
	}

	out := make([]*goquery.Selection, 0, quota)
	found.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		out = append(out, sel)
		return len(out) < quota
	})
	return out, nil
}

// processContainer turns one listing container into an admitted record.
// Returns ok=false when the entry is skipped for any reason.
func (s *Scraper) processContainer(ctx context.Context, container *goquery.Selection) (model.MovieRecord, bool) {
	entry := parse.Container(container)
	if entry.Title == "" {
		zap.L().Warn("entry without title, skipping")
		s.emitRejected()
		return model.MovieRecord{}, false
	}

	raw := model.RawMovie{
		Title:      entry.Title,
		Year:       entry.Year,
		Rating:     entry.Rating,
		ExternalID: entry.ExternalID,
	}

	if entry.DetailPath != "" {
		detail, err := s.fetchDetail(ctx, entry.DetailPath)
		if err != nil {
			// Detail pages enrich; their loss never drops the entry.
			s.emitError(eris.Wrapf(err, "scraper: detail for %s", entry.Title))
		} else {
			raw.Duration = detail.Duration
			raw.Metascore = detail.Metascore
			raw.Actors = detail.Actors
		}
	}

	validated := validate.Movie(raw)
	if !validate.IsValidMovie(validated) {
		zap.L().Warn("entry failed admission",
			zap.String("title", entry.Title),
			zap.String("external_id", entry.ExternalID),
		)
		s.emitRejected()
		return model.MovieRecord{}, false
	}

	return validated.Record(time.Now().UTC()), true
}

func (s *Scraper) fetchDetail(ctx context.Context, detailPath string) (parse.Detail, error) {
	ref, err := url.Parse(detailPath)
	if err != nil {
		return parse.Detail{}, eris.Wrap(err, "scraper: parse detail path")
	}
	detailURL := s.base.ResolveReference(ref).String()

	res, err := s.fetch.Fetch(ctx, detailURL)
	if err != nil {
		return parse.Detail{}, err
	}
	if res.Absent {
		return parse.Detail{}, eris.Errorf("scraper: detail absent (http %d)", res.StatusCode)
	}

	doc, err := parse.Document(res.Body)
	if err != nil {
		return parse.Detail{}, err
	}
	return parse.Details(doc), nil
}

func (s *Scraper) politenessDelay(ctx context.Context) error {
	min, max := s.cfg.DelayMinSecs, s.cfg.DelayMaxSecs
	if min <= 0 {
		min = 1.5
	}
	if max < min {
		max = min + 1.5
	}
	delay := time.Duration((min + rand.Float64()*(max-min)) * float64(time.Second))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (s *Scraper) emitRejected() {
	for _, obs := range s.observers {
		obs.OnMovieRejected()
	}
}

func (s *Scraper) emitError(err error) {
	zap.L().Error("scrape fault", zap.Error(err))
	for _, obs := range s.observers {
		obs.OnError(err)
	}
}
