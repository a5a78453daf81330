package storesearch

import (
	"encoding/json"
	"net/url"

	"github.com/shopspring/decimal"
)

// Record describes one catalog item. Records are created by Parse and never
// mutated afterwards; a new search replaces the whole list.
type Record struct {
	// Name is the track, app, book or collection title.
	Name string `json:"name"`

	// ArtistName is empty for items without an artist (most apps and some books).
	ArtistName string `json:"artistName,omitempty"`

	// Kind is the catalog category tag, e.g. "song", "software", "ebook".
	Kind string `json:"kind,omitempty"`

	// Genre is the primary genre, or the joined genre list for items without one.
	Genre string `json:"genre,omitempty"`

	// Price is never negative. Zero means free, whether the catalog sent an
	// explicit 0 or no price at all; PriceKnown tells the two apart.
	Price decimal.Decimal `json:"price"`

	// PriceKnown is true when the payload carried a price field.
	PriceKnown bool `json:"priceKnown"`

	// CurrencyCode is the ISO 4217 code the price is expressed in.
	CurrencyCode string `json:"currency,omitempty"`

	smallImageURL *url.URL
	largeImageURL *url.URL
	storeURL      *url.URL
}

// IsFree reports whether the item costs nothing. Missing prices count as free.
func (r Record) IsFree() bool {
	return r.Price.IsZero()
}

// SmallImageURL returns a copy of the small artwork URL, or nil.
func (r Record) SmallImageURL() *url.URL { return cloneURL(r.smallImageURL) }

// LargeImageURL returns a copy of the large artwork URL, or nil.
func (r Record) LargeImageURL() *url.URL { return cloneURL(r.largeImageURL) }

// StoreURL returns a copy of the store page URL, or nil.
func (r Record) StoreURL() *url.URL { return cloneURL(r.storeURL) }

// KindDisplayName returns a human label for the record's kind.
// Unknown kinds are returned unchanged.
func (r Record) KindDisplayName() string {
	if name, ok := kindDisplayNames[r.Kind]; ok {
		return name
	}
	return r.Kind
}

var kindDisplayNames = map[string]string{
	"album":         "Album",
	"audiobook":     "Audio Book",
	"book":          "Book",
	"ebook":         "E-Book",
	"feature-movie": "Movie",
	"music-video":   "Music Video",
	"podcast":       "Podcast",
	"software":      "App",
	"song":          "Song",
	"tv-episode":    "TV Episode",
}

// MarshalJSON includes the URL fields as strings.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		SmallImageURL string `json:"smallImageUrl,omitempty"`
		LargeImageURL string `json:"largeImageUrl,omitempty"`
		StoreURL      string `json:"storeUrl,omitempty"`
	}{
		plain:         plain(r),
		SmallImageURL: urlString(r.smallImageURL),
		LargeImageURL: urlString(r.largeImageURL),
		StoreURL:      urlString(r.storeURL),
	})
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}
