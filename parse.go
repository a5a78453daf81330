package storesearch

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

type resultPage struct {
	ResultCount int                `json:"resultCount"`
	Results     *[]json.RawMessage `json:"results"`
}

// Parse decodes a catalog payload into records, in payload order.
// It never fails: a payload that is not a result list yields no records, and
// entries without a usable name are skipped.
func Parse(payload []byte) []Record {
	records, _ := ParseStrict(payload)
	return records
}

// ParseStrict is Parse but reports ErrMalformedPayload when the payload is not
// JSON or has no results array. Per-entry problems are never errors.
func ParseStrict(payload []byte) ([]Record, error) {
	var page resultPage
	if err := json.Unmarshal(payload, &page); err != nil {
		return []Record{}, errors.WithSecondaryError(ErrMalformedPayload, err)
	}
	if page.Results == nil {
		return []Record{}, errors.WithSecondaryError(ErrMalformedPayload, errors.New("missing results array"))
	}

	records := make([]Record, 0, len(*page.Results))
	for _, raw := range *page.Results {
		if rec, ok := parseEntry(raw); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

type entry map[string]json.RawMessage

func parseEntry(raw json.RawMessage) (Record, bool) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e == nil {
		return Record{}, false
	}

	name := e.str("trackName", "collectionName")
	if name == "" {
		return Record{}, false
	}

	price, known := e.price("trackPrice", "collectionPrice", "price")

	return Record{
		Name:          name,
		ArtistName:    e.str("artistName"),
		Kind:          e.str("kind", "wrapperType"),
		Genre:         e.genre(),
		Price:         price,
		PriceKnown:    known,
		CurrencyCode:  strings.ToUpper(e.str("currency")),
		smallImageURL: e.url("artworkUrl60"),
		largeImageURL: e.url("artworkUrl100"),
		storeURL:      e.url("trackViewUrl", "collectionViewUrl"),
	}, true
}

// str returns the first non-empty string among keys.
func (e entry) str(keys ...string) string {
	for _, key := range keys {
		raw, ok := e[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// price returns the first non-negative numeric value among keys.
func (e entry) price(keys ...string) (decimal.Decimal, bool) {
	for _, key := range keys {
		raw, ok := e[key]
		if !ok {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			continue
		}
		d, err := decimal.NewFromString(n.String())
		if err != nil || d.IsNegative() {
			continue
		}
		return d, true
	}
	return decimal.Zero, false
}

func (e entry) genre() string {
	if g := e.str("primaryGenreName"); g != "" {
		return g
	}
	raw, ok := e["genres"]
	if !ok {
		return ""
	}
	var genres []string
	if err := json.Unmarshal(raw, &genres); err != nil {
		return ""
	}
	return strings.Join(genres, ", ")
}

// url returns the first absolute URL among keys.
func (e entry) url(keys ...string) *url.URL {
	for _, key := range keys {
		s := e.str(key)
		if s == "" {
			continue
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		return u
	}
	return nil
}
