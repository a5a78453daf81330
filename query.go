package storesearch

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/go-querystring/query"
)

// Category is the user-facing catalog filter.
type Category int

const (
	// CategoryAll searches every media type.
	CategoryAll Category = iota
	// CategoryMusic restricts results to music tracks.
	CategoryMusic
	// CategorySoftware restricts results to apps.
	CategorySoftware
	// CategoryBooks restricts results to e-books.
	CategoryBooks
)

// String returns the lower-case name of the category.
func (c Category) String() string {
	switch c {
	case CategoryAll:
		return "all"
	case CategoryMusic:
		return "music"
	case CategorySoftware:
		return "software"
	case CategoryBooks:
		return "books"
	default:
		return "unknown"
	}
}

// Kind returns the catalog entity token for the category. CategoryAll maps to
// the empty string, meaning no entity filter.
func (c Category) Kind() string {
	switch c {
	case CategoryMusic:
		return "musicTrack"
	case CategorySoftware:
		return "software"
	case CategoryBooks:
		return "ebook"
	default:
		return ""
	}
}

// EntityKinds returns the record kinds selected by an entity token, as sent in
// the entity parameter. An empty or unknown entity selects nothing specific
// and yields nil.
func EntityKinds(entity string) []string {
	switch entity {
	case "musicTrack":
		return []string{"song"}
	case "software":
		return []string{"software"}
	case "ebook":
		return []string{"ebook"}
	default:
		return nil
	}
}

func (c Category) valid() bool {
	return c >= CategoryAll && c <= CategoryBooks
}

// ParseCategory parses a category name as printed by Category.String.
// Matching is case-insensitive and "" means CategoryAll.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return CategoryAll, nil
	case "music":
		return CategoryMusic, nil
	case "software", "apps":
		return CategorySoftware, nil
	case "books", "ebooks":
		return CategoryBooks, nil
	default:
		return CategoryAll, errors.WithSecondaryError(ErrInvalidCategory, errors.Newf("category %q", s))
	}
}

const (
	// DefaultEndpoint is the public iTunes Search API endpoint.
	DefaultEndpoint = "https://itunes.apple.com/search"

	// DefaultLimit is the largest page the catalog returns.
	DefaultLimit = 200
)

// Query is a fully resolved search request. It is a plain value; building
// it has no side effects and the same inputs always yield the same Query.
type Query struct {
	// Text is the trimmed user input.
	Text string

	// Category is the media filter.
	Category Category

	// Endpoint is the catalog search URL without a query string.
	Endpoint string

	// Limit is the maximum number of results requested. Zero omits the parameter.
	Limit int

	// Country is the optional two-letter store country code.
	Country string

	// Lang is the optional result language, e.g. "en_us".
	Lang string
}

type queryParams struct {
	Term    string `url:"term"`
	Entity  string `url:"entity,omitempty"`
	Limit   int    `url:"limit,omitempty"`
	Country string `url:"country,omitempty"`
	Lang    string `url:"lang,omitempty"`
}

// Build resolves search text and a category into a Query.
// Empty text (after trimming) is rejected with ErrEmptyQuery so that no
// request is ever issued for it.
func Build(text string, category Category, opts ...QueryOption) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, ErrEmptyQuery
	}
	if !category.valid() {
		return Query{}, errors.WithSecondaryError(ErrInvalidCategory, errors.Newf("category %d", int(category)))
	}

	cfg := &QueryConfig{
		Endpoint: DefaultEndpoint,
		Limit:    DefaultLimit,
	}
	for _, opt := range opts {
		opt.Apply(cfg)
	}

	return Query{
		Text:     text,
		Category: category,
		Endpoint: cfg.Endpoint,
		Limit:    cfg.Limit,
		Country:  cfg.Country,
		Lang:     cfg.Lang,
	}, nil
}

// Encode returns the percent-encoded query component. Only RFC 3986
// unreserved characters are left as-is; spaces become %20.
func (q Query) Encode() string {
	// Values only fails for non-struct input.
	values, _ := query.Values(queryParams{
		Term:    q.Text,
		Entity:  q.Category.Kind(),
		Limit:   q.Limit,
		Country: q.Country,
		Lang:    q.Lang,
	})
	// url.Values.Encode escapes a literal '+' as %2B, so every remaining '+' is a space.
	return strings.ReplaceAll(values.Encode(), "+", "%20")
}

// URL returns the full request URL.
func (q Query) URL() string {
	return q.Endpoint + "?" + q.Encode()
}
