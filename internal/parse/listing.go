// Package parse extracts raw field values from listing and detail pages.
// Extraction is lenient: a missing element yields an empty value, never an
// error. Validation of the extracted text happens elsewhere.
package parse

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

var (
	rankPrefixRe = regexp.MustCompile(`^\d+\.\s*`)
	yearRunRe    = regexp.MustCompile(`\d{4}`)
	externalIDRe = regexp.MustCompile(`/title/(tt\d+)/`)
)

// Entry holds the raw strings pulled from one listing container plus the
// detail path needed for the follow-up fetch.
type Entry struct {
	Title      string
	Year       string
	Rating     string
	DetailPath string
	ExternalID string
}

// Document parses an HTML page body.
func Document(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "parse: build document")
	}
	return doc, nil
}

// Containers returns the ranked-entry containers on a listing page.
func Containers(doc *goquery.Document) *goquery.Selection {
	return doc.Find(ContainerSelector)
}

// Container extracts the raw listing fields from one container. Fields the
// markup does not carry come back empty.
func Container(sel *goquery.Selection) Entry {
	var e Entry

	if text, ok := firstText(sel, TitleSelectors); ok {
		e.Title = rankPrefixRe.ReplaceAllString(text, "")
	}

	for _, selector := range YearSelectors {
		text := strings.Trim(sel.Find(selector).First().Text(), "() \t\n")
		if run := yearRunRe.FindString(text); run != "" {
			e.Year = run
			break
		}
	}

	for _, selector := range RatingSelectors {
		text := strings.TrimSpace(sel.Find(selector).First().Text())
		if _, err := strconv.ParseFloat(text, 64); err == nil {
			e.Rating = text
			break
		}
	}

	for _, selector := range LinkSelectors {
		if href, ok := sel.Find(selector).First().Attr("href"); ok && href != "" {
			e.DetailPath = href
			break
		}
	}
	if m := externalIDRe.FindStringSubmatch(e.DetailPath); m != nil {
		e.ExternalID = m[1]
	}

	return e
}

// firstText returns the text of the first selector that matches a
// non-empty element.
func firstText(sel *goquery.Selection, selectors FieldSelectors) (string, bool) {
	for _, s := range selectors {
		found := sel.Find(s).First()
		if found.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(found.Text()); text != "" {
			return text, true
		}
	}
	return "", false
}
