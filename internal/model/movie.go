// Package model holds the core data types shared across the scrape pipeline.
package model

import "time"

// RawMovie is the unvalidated field set assembled from a listing container
// and its detail page. Text fields carry the matched element text as-is;
// Duration is already combined to minutes by the detail parser because the
// hour/minute arithmetic is an extraction concern, not a validation one.
type RawMovie struct {
	Title      string
	Year       string
	Rating     string
	Duration   *int
	Metascore  string
	Actors     []string
	ExternalID string
}

// Validated holds the per-field validation results for one movie. Absent
// fields are nil pointers (or empty strings/slices). It is the input to the
// admissibility gate and the quality score.
type Validated struct {
	Title      string
	Year       *int
	Rating     *float64
	Duration   *int
	Metascore  *int
	Actors     []string
	ExternalID string
}

// QualityScore returns the fraction of {rating, duration, metascore, actors}
// that are present, in [0, 1].
func (v Validated) QualityScore() float64 {
	present := 0
	if v.Rating != nil {
		present++
	}
	if v.Duration != nil {
		present++
	}
	if v.Metascore != nil {
		present++
	}
	if len(v.Actors) > 0 {
		present++
	}
	return float64(present) / 4.0
}

// MovieRecord is the admitted, quality-scored movie entity handed to the
// store and exporters. Year and Rating are zero when the source page did
// not carry them; Title and ExternalID are always present (admissibility
// bar, see validate.IsValidMovie).
type MovieRecord struct {
	Title           string    `json:"title"`
	Year            int       `json:"year"`
	Rating          float64   `json:"rating"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	Metascore       *int      `json:"metascore,omitempty"`
	Actors          []string  `json:"actors"`
	ExternalID      string    `json:"external_id"`
	QualityScore    float64   `json:"quality_score"`
	CapturedAt      time.Time `json:"captured_at"`
}

// Record builds a MovieRecord from validated fields. The quality score is
// derived here, once, and never set directly.
func (v Validated) Record(capturedAt time.Time) MovieRecord {
	rec := MovieRecord{
		Title:           v.Title,
		Actors:          v.Actors,
		ExternalID:      v.ExternalID,
		DurationMinutes: v.Duration,
		Metascore:       v.Metascore,
		QualityScore:    v.QualityScore(),
		CapturedAt:      capturedAt,
	}
	if v.Year != nil {
		rec.Year = *v.Year
	}
	if v.Rating != nil {
		rec.Rating = *v.Rating
	}
	return rec
}
