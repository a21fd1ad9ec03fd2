package validate

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmlens/scraper-cli/internal/model"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "The Godfather", "The Godfather"},
		{"trimmed", "  Dune  ", "Dune"},
		{"strips disallowed chars", "Alien³ <script>", "Alien³ script"},
		{"keeps allowed punctuation", `What's Up, Doc? (1972) - "A & B"!`, `What's Up, Doc? (1972) - "A & B"!`},
		{"keeps accented letters", "Amélie", "Amélie"},
		{"keeps accents with punctuation", "León: The Professional", "León: The Professional"},
		{"keeps non-latin scripts", "千と千尋の神隠し", "千と千尋の神隠し"},
		{"strips emoji, keeps accents", "Cinéma 🎬 Paradiso", "Cinéma  Paradiso"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"all stripped", "¡¿»«", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.raw))
		})
	}
}

func TestTitle_TooLong(t *testing.T) {
	assert.Empty(t, Title(strings.Repeat("a", 501)))
	assert.NotEmpty(t, Title(strings.Repeat("a", 500)))

	// The limit counts characters, not bytes: 500 two-byte runes pass.
	assert.NotEmpty(t, Title(strings.Repeat("é", 500)))
	assert.Empty(t, Title(strings.Repeat("é", 501)))
}

func TestYear(t *testing.T) {
	current := time.Now().Year()

	for _, raw := range []string{"1887", "abcd", "", "19.5", strconv.Itoa(current + 6)} {
		assert.Nil(t, Year(raw), "raw=%q", raw)
	}

	y := Year("1972")
	require.NotNil(t, y)
	assert.Equal(t, 1972, *y)

	// Lower bound and upcoming releases are both admissible.
	assert.NotNil(t, Year("1888"))
	assert.NotNil(t, Year(strconv.Itoa(current+5)))
}

func TestRating(t *testing.T) {
	for _, raw := range []string{"0.9", "10.1", "-3", "N/A", ""} {
		assert.Nil(t, Rating(raw), "raw=%q", raw)
	}

	tests := []struct {
		raw  string
		want float64
	}{
		{"9.2", 9.2},
		{"9.25", 9.3},
		{"9.24", 9.2},
		{"1.0", 1.0},
		{"10", 10.0},
		{" 8.5 ", 8.5},
	}
	for _, tt := range tests {
		got := Rating(tt.raw)
		require.NotNil(t, got, "raw=%q", tt.raw)
		assert.InDelta(t, tt.want, *got, 1e-9, "raw=%q", tt.raw)
	}
}

func TestDuration(t *testing.T) {
	assert.Nil(t, Duration(nil))
	for _, n := range []int{0, -10, 1001} {
		assert.Nil(t, Duration(&n), "n=%d", n)
	}
	n := 149
	got := Duration(&n)
	require.NotNil(t, got)
	assert.Equal(t, 149, *got)
}

func TestMetascore(t *testing.T) {
	for _, raw := range []string{"-1", "101", "high", ""} {
		assert.Nil(t, Metascore(raw), "raw=%q", raw)
	}
	m := Metascore("0")
	require.NotNil(t, m)
	assert.Equal(t, 0, *m)
	m = Metascore("100")
	require.NotNil(t, m)
	assert.Equal(t, 100, *m)
}

func TestActors_FirstThreeQualifying(t *testing.T) {
	got := Actors([]string{"Al Pacino", "", "  ", "Marlon Brando", "James Caan", "Robert Duvall"})
	assert.Equal(t, []string{"Al Pacino", "Marlon Brando", "James Caan"}, got)
}

func TestActors_NeverAbsent(t *testing.T) {
	assert.Empty(t, Actors(nil))
	assert.Empty(t, Actors([]string{"", "   "}))
	assert.Empty(t, Actors([]string{strings.Repeat("x", 256)}))
}

func TestExternalID(t *testing.T) {
	assert.Equal(t, "tt1160419", ExternalID(" tt1160419 "))
	assert.Equal(t, "tt12345678", ExternalID("tt12345678"))
	for _, raw := range []string{"tt123456", "tt123456789", "nm1160419", "1160419", ""} {
		assert.Empty(t, ExternalID(raw), "raw=%q", raw)
	}
}

func TestMovie_FieldsIndependent(t *testing.T) {
	v := Movie(model.RawMovie{
		Title:      "Dune",
		Year:       "not-a-year",
		Rating:     "8.5",
		ExternalID: "tt1160419",
	})
	assert.Equal(t, "Dune", v.Title)
	assert.Nil(t, v.Year)
	require.NotNil(t, v.Rating)
	assert.InDelta(t, 8.5, *v.Rating, 1e-9)
	assert.Equal(t, "tt1160419", v.ExternalID)
}

func TestIsValidMovie(t *testing.T) {
	// Title + external id is the whole bar; everything else optional.
	assert.True(t, IsValidMovie(Movie(model.RawMovie{Title: "Dune", ExternalID: "tt1160419"})))
	assert.False(t, IsValidMovie(Movie(model.RawMovie{ExternalID: "tt1160419", Rating: "8.5"})))
	assert.False(t, IsValidMovie(Movie(model.RawMovie{Title: "Dune", Rating: "8.5"})))
}

func TestQualityScore(t *testing.T) {
	rating := 8.5
	dur := 120
	meta := 70

	full := model.Validated{Rating: &rating, Duration: &dur, Metascore: &meta, Actors: []string{"A"}}
	assert.InDelta(t, 1.0, full.QualityScore(), 1e-9)

	half := model.Validated{Rating: &rating, Actors: []string{"A"}}
	assert.InDelta(t, 0.5, half.QualityScore(), 1e-9)

	assert.InDelta(t, 0.0, model.Validated{}.QualityScore(), 1e-9)
}
