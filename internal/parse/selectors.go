package parse

// FieldSelectors is an ordered fallback list for one field. Selectors are
// tried in order and the first that yields a usable value wins. The target
// serves several markup generations, so each field carries the current
// selector plus the legacy ones still seen in the wild.
type FieldSelectors []string

// ContainerSelector matches one ranked entry on a listing page.
const ContainerSelector = "li.ipc-metadata-list-summary-item"

var (
	TitleSelectors = FieldSelectors{
		"h3.ipc-title__text",
		".cli-title",
		".titleColumn h3 a",
		"a.ipc-title-link-wrapper h3",
	}

	YearSelectors = FieldSelectors{
		"span.cli-title-metadata-item",
		".secondaryInfo",
		`[data-testid="title-metadata"] span`,
		".titleColumn .secondaryInfo",
	}

	RatingSelectors = FieldSelectors{
		"span.ipc-rating-star--rating",
		".ratingColumn strong",
		`[data-testid="rating"] span`,
		".imdbRating strong",
	}

	LinkSelectors = FieldSelectors{
		"a.ipc-title-link-wrapper",
		".cli-title-link",
		".titleColumn a",
	}

	DurationSelectors = FieldSelectors{
		`h1 ~ ul[role="presentation"].ipc-inline-list.ipc-inline-list--show-dividers`,
		`h1 + ul[role="presentation"].ipc-inline-list.ipc-inline-list--show-dividers`,
		`h1 + div + ul[role="presentation"].ipc-inline-list`,
	}

	MetascoreSelectors = FieldSelectors{
		`[data-testid="metacritic-score-box"] span`,
		".metacritic-score-box",
		".score-meta",
		"span.metacritic-score",
	}

	ActorSelectors = FieldSelectors{
		`[data-testid="title-cast-item__actor"]`,
		`[data-testid="cast-item-characters-link"]`,
		".cast_list .primary_photo + td a",
		".cast .actor a",
	}
)
