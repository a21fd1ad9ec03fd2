// Package export writes admitted movie records to flat files. Every format
// shares the same tabular column set; JSON additionally wraps the records
// in a metadata envelope.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/filmlens/scraper-cli/internal/config"
	"github.com/filmlens/scraper-cli/internal/model"
)

// formatVersion identifies the JSON envelope layout.
const formatVersion = "1.0.0"

var columns = []string{
	"title", "year", "rating", "duration_minutes", "metascore",
	"actors", "external_id", "captured_at",
}

// Run writes the records in every configured format and returns the paths
// written. Unknown formats are logged and skipped; an error from one
// format does not stop the others.
func Run(cfg config.ExportConfig, records []model.MovieRecord) ([]string, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "export: create output dir")
	}

	stamp := time.Now().UTC().Format("20060102_150405")
	var written []string
	var firstErr error
	for _, format := range cfg.Formats {
		path := filepath.Join(cfg.Dir, fmt.Sprintf("movies_%s.%s", stamp, format))

		var err error
		switch format {
		case "csv":
			err = WriteCSV(path, records)
		case "json":
			err = WriteJSON(path, records)
		case "xlsx":
			err = WriteXLSX(path, records)
		default:
			zap.L().Warn("export: unknown format, skipping", zap.String("format", format))
			continue
		}
		if err != nil {
			zap.L().Error("export: write failed", zap.String("path", path), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		zap.L().Info("export: wrote file", zap.String("path", path), zap.Int("movies", len(records)))
		written = append(written, path)
	}
	return written, firstErr
}

// row renders one record into the shared column order.
func row(rec model.MovieRecord) []string {
	return []string{
		rec.Title,
		strconv.Itoa(rec.Year),
		strconv.FormatFloat(rec.Rating, 'f', 1, 64),
		formatIntPtr(rec.DurationMinutes),
		formatIntPtr(rec.Metascore),
		strings.Join(rec.Actors, "|"),
		rec.ExternalID,
		rec.CapturedAt.UTC().Format(time.RFC3339),
	}
}

func formatIntPtr(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
