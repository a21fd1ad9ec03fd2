// Package validate normalizes and range-checks raw extracted movie fields.
// Every validator is total: invalid input yields an absent value (nil
// pointer or empty string), never an error. Absence of one field does not
// block validation of the others; the only admissibility requirement is
// title + external id (IsValidMovie).
package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/filmlens/scraper-cli/internal/model"
)

const (
	maxTitleLen = 500
	maxActorLen = 255
	maxActors   = 3
	minYear     = 1888
	minRating   = 1.0
	maxRating   = 10.0
	maxDuration = 1000
	maxMeta     = 100
)

var (
	// Characters allowed in titles: letters and digits in any script,
	// underscore, whitespace and common punctuation. Everything else is
	// stripped. \p{L}\p{N} rather than \w: RE2's \w is ASCII-only and
	// would mangle accented titles.
	titleStripRe = regexp.MustCompile(`[^\p{L}\p{N}_\s\-.,!?():'"&]`)
	externalIDRe = regexp.MustCompile(`^tt\d{7,8}$`)
)

// Title trims and sanitizes a raw title. Returns "" when the input is empty
// after trimming, longer than 500 characters before stripping, or empty
// after stripping disallowed characters.
func Title(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" || utf8.RuneCountInString(t) > maxTitleLen {
		return ""
	}
	return titleStripRe.ReplaceAllString(t, "")
}

// Year parses a raw year and range-checks it against [1888, now+5].
func Year(raw string) *int {
	y, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	if y < minYear || y > time.Now().Year()+5 {
		return nil
	}
	return &y
}

// Rating parses a raw rating, range-checks it against [1.0, 10.0] and
// rounds to one decimal place.
func Rating(raw string) *float64 {
	r, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	if r < minRating || r > maxRating {
		return nil
	}
	rounded := math.Round(r*10) / 10
	return &rounded
}

// Duration range-checks an already-combined minute count against [1, 1000].
func Duration(raw *int) *int {
	if raw == nil || *raw < 1 || *raw > maxDuration {
		return nil
	}
	d := *raw
	return &d
}

// Metascore parses a raw metascore and range-checks it against [0, 100].
func Metascore(raw string) *int {
	m, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	if m < 0 || m > maxMeta {
		return nil
	}
	return &m
}

// Actors keeps at most the first 3 entries that are non-empty and at most
// 255 chars after trimming. The result is never nil-absent: invalid input
// yields an empty slice.
func Actors(raw []string) []string {
	out := make([]string, 0, maxActors)
	for _, a := range raw {
		if len(out) == maxActors {
			break
		}
		a = strings.TrimSpace(a)
		if a == "" || utf8.RuneCountInString(a) > maxActorLen {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ExternalID accepts ids of the form tt followed by 7 or 8 digits.
func ExternalID(raw string) string {
	id := strings.TrimSpace(raw)
	if !externalIDRe.MatchString(id) {
		return ""
	}
	return id
}

// Movie applies every field validator to its named field independently.
func Movie(raw model.RawMovie) model.Validated {
	return model.Validated{
		Title:      Title(raw.Title),
		Year:       Year(raw.Year),
		Rating:     Rating(raw.Rating),
		Duration:   Duration(raw.Duration),
		Metascore:  Metascore(raw.Metascore),
		Actors:     Actors(raw.Actors),
		ExternalID: ExternalID(raw.ExternalID),
	}
}

// IsValidMovie is the sole admissibility gate: title and external id must
// both be present. All other fields only contribute to the quality score.
func IsValidMovie(v model.Validated) bool {
	return v.Title != "" && v.ExternalID != ""
}
