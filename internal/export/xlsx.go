package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/filmlens/scraper-cli/internal/model"
)

// WriteXLSX writes records to a single-sheet workbook with the shared
// column layout.
func WriteXLSX(path string, records []model.MovieRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Movies")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range columns {
		header.AddCell().SetString(col)
	}
	for _, rec := range records {
		xr := sheet.AddRow()
		for _, cell := range row(rec) {
			xr.AddCell().SetString(cell)
		}
	}

	return eris.Wrap(f.Save(path), "export: save xlsx")
}
