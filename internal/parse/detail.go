package parse

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	hoursRe   = regexp.MustCompile(`(?i)(\d+)\s*h(?:oras|rs|r)?`)
	minutesRe = regexp.MustCompile(`(?i)(\d+)\s*m(?:inutos|in)?`)
	numberRe  = regexp.MustCompile(`\d+`)
)

// Detail holds the raw values pulled from a title's detail page.
type Detail struct {
	Duration  *int
	Metascore string
	Actors    []string
}

// Details extracts duration, metascore and top cast from a detail page.
func Details(doc *goquery.Document) Detail {
	return Detail{
		Duration:  duration(doc),
		Metascore: metascore(doc),
		Actors:    actors(doc),
	}
}

// duration reads the runtime from the metadata list adjacent to the title
// heading. The third list item holds the runtime when present; items with
// no hour/minute marker are release metadata, not runtime.
func duration(doc *goquery.Document) *int {
	var text string
	for _, selector := range DurationSelectors {
		doc.Find(selector).Each(func(_ int, list *goquery.Selection) {
			items := list.Find("li")
			if items.Length() < 3 {
				return
			}
			candidate := strings.TrimSpace(items.Eq(2).Text())
			if strings.ContainsAny(candidate, "hm") {
				text = candidate
			}
		})
		if text != "" {
			break
		}
	}
	if text == "" {
		return nil
	}

	hours, minutes := 0, 0
	if m := hoursRe.FindStringSubmatch(text); m != nil {
		hours, _ = strconv.Atoi(m[1])
	}
	if m := minutesRe.FindStringSubmatch(text); m != nil {
		minutes, _ = strconv.Atoi(m[1])
	}
	if hours == 0 && minutes == 0 {
		return nil
	}

	total := hours*60 + minutes
	return &total
}

// metascore returns the first numeric run found under the score selectors.
func metascore(doc *goquery.Document) string {
	for _, selector := range MetascoreSelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if n := numberRe.FindString(text); n != "" {
			return n
		}
	}
	return ""
}

// actors returns up to three unique names from the first cast selector
// that matches anything. Later selectors are not consulted once one hits;
// mixing markup generations would interleave duplicate cast lists.
func actors(doc *goquery.Document) []string {
	names := []string{}
	for _, selector := range ActorSelectors {
		matched := doc.Find(selector)
		if matched.Length() == 0 {
			continue
		}
		matched.EachWithBreak(func(_ int, el *goquery.Selection) bool {
			name := strings.TrimSpace(el.Text())
			if name != "" && !slices.Contains(names, name) {
				names = append(names, name)
			}
			return len(names) < 3
		})
		break
	}
	return names
}
