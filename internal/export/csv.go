package export

import (
	"encoding/csv"
	"os"

	"github.com/rotisserie/eris"

	"github.com/filmlens/scraper-cli/internal/model"
)

// WriteCSV writes records as CSV with a header row.
func WriteCSV(path string, records []model.MovieRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, rec := range records {
		if err := w.Write(row(rec)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", rec.Title)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return eris.Wrap(f.Close(), "export: close csv")
}
