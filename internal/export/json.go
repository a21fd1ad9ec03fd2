package export

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/filmlens/scraper-cli/internal/model"
)

// Envelope is the JSON export document.
type Envelope struct {
	Metadata Metadata            `json:"metadata"`
	Movies   []model.MovieRecord `json:"movies"`
}

// Metadata describes one JSON export.
type Metadata struct {
	ExportedAt  time.Time `json:"exported_at"`
	TotalMovies int       `json:"total_movies"`
	Version     string    `json:"version"`
}

// WriteJSON writes records wrapped in the metadata envelope.
func WriteJSON(path string, records []model.MovieRecord) error {
	if records == nil {
		records = []model.MovieRecord{}
	}
	doc := Envelope{
		Metadata: Metadata{
			ExportedAt:  time.Now().UTC(),
			TotalMovies: len(records),
			Version:     formatVersion,
		},
		Movies: records,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal json")
	}
	return eris.Wrap(os.WriteFile(path, data, 0o644), "export: write json")
}
