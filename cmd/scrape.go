package main

import (
	"context"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filmlens/scraper-cli/internal/export"
	"github.com/filmlens/scraper-cli/internal/fetcher"
	"github.com/filmlens/scraper-cli/internal/model"
	"github.com/filmlens/scraper-cli/internal/proxy"
	"github.com/filmlens/scraper-cli/internal/scraper"
)

var (
	scrapeMovies  int
	scrapeBackend string
	scrapeNoProxy bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run a full scrape: walk listings, persist and export",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if scrapeMovies > 0 {
			cfg.Scrape.Movies = scrapeMovies
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		pool := initProxyPool(ctx)
		if pool != nil {
			defer pool.Close()
		}

		fetch, err := fetcher.New(cfg.Scrape, pool)
		if err != nil {
			return err
		}

		metrics := scraper.NewMetrics()
		s, err := scraper.New(cfg.Scrape, fetch, metrics)
		if err != nil {
			return err
		}

		session, err := st.CreateSession(ctx, scrapeBackend)
		if err != nil {
			return err
		}

		records, runErr := s.Run(ctx)

		summary := metrics.Summary()
		session.MoviesScraped = summary.MoviesScraped
		session.MoviesFailed = summary.ErrorsCount
		session.Status = model.SessionCompleted
		if runErr != nil {
			session.Status = model.SessionFailed
			session.Error = runErr.Error()
		}
		if err := st.CompleteSession(ctx, session); err != nil {
			zap.L().Error("complete session", zap.Error(err))
		}

		if len(records) > 0 {
			stats, err := st.UpsertMovies(ctx, records)
			if err != nil {
				return eris.Wrap(err, "persist movies")
			}
			zap.L().Info("persisted movies",
				zap.Int("inserted", stats.Inserted),
				zap.Int("updated", stats.Updated),
				zap.Int("failed", stats.Failed),
			)

			if _, err := export.Run(cfg.Export, records); err != nil {
				zap.L().Error("export incomplete", zap.Error(err))
			}
		}

		logSummary(summary, records)
		return runErr
	},
}

// initProxyPool builds and verifies the proxy pool. Any failure degrades to
// direct connection; the scrape itself never depends on the pool existing.
func initProxyPool(ctx context.Context) *proxy.Pool {
	if scrapeNoProxy || !cfg.Proxy.Enabled {
		zap.L().Info("proxies disabled, connecting direct")
		return nil
	}

	pool, err := proxy.New(cfg.Proxy)
	if err != nil {
		zap.L().Warn("proxy pool unavailable, connecting direct", zap.Error(err))
		return nil
	}
	if err := pool.Initialize(ctx); err != nil {
		zap.L().Warn("proxy verification failed, connecting direct", zap.Error(err))
		return nil
	}
	return pool
}

// logSummary reports the run outcome: counters, average quality and the
// top rated admissions. Always logged, even after a partial run.
func logSummary(summary scraper.Summary, records []model.MovieRecord) {
	zap.L().Info("scrape summary",
		zap.Int("movies_scraped", summary.MoviesScraped),
		zap.Int("movies_rejected", summary.MoviesRejected),
		zap.Int("errors", summary.ErrorsCount),
		zap.Float64("success_rate", summary.SuccessRate),
		zap.Float64("avg_quality", summary.AvgQuality),
	)

	top := make([]model.MovieRecord, len(records))
	copy(top, records)
	sort.Slice(top, func(i, j int) bool { return top[i].Rating > top[j].Rating })
	if len(top) > 5 {
		top = top[:5]
	}
	for i, rec := range top {
		zap.L().Info("top rated",
			zap.Int("rank", i+1),
			zap.String("title", rec.Title),
			zap.Int("year", rec.Year),
			zap.Float64("rating", rec.Rating),
		)
	}
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapeMovies, "movies", 0, "target number of movies (default from config)")
	scrapeCmd.Flags().StringVar(&scrapeBackend, "backend", "goquery", "scrape backend recorded in the session")
	scrapeCmd.Flags().BoolVar(&scrapeNoProxy, "no-proxy", false, "skip the proxy pool and connect direct")
	rootCmd.AddCommand(scrapeCmd)
}
