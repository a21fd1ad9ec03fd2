package scraper

import "github.com/filmlens/scraper-cli/internal/model"

// Observer receives scrape progress. Implementations must be safe for
// sequential calls from the scrape walk; no call is made concurrently.
type Observer interface {
	OnMovieScraped(rec model.MovieRecord)
	OnMovieRejected()
	OnError(err error)
}
