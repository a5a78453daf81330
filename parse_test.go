package storesearch

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

const songPayload = `{
	"resultCount": 3,
	"results": [
		{
			"wrapperType": "track",
			"kind": "song",
			"artistName": "Daft Punk",
			"trackName": "Digital Love",
			"primaryGenreName": "Electronic",
			"trackPrice": 1.29,
			"currency": "USD",
			"artworkUrl60": "https://is1.mzstatic.com/image/60x60bb.jpg",
			"artworkUrl100": "https://is1.mzstatic.com/image/100x100bb.jpg",
			"trackViewUrl": "https://music.apple.com/us/album/digital-love/1"
		},
		{
			"wrapperType": "software",
			"kind": "software",
			"trackName": "Maps Pro",
			"sellerName": "Acme",
			"genres": ["Navigation", "Travel"],
			"price": 0,
			"currency": "usd",
			"artworkUrl60": "not a url",
			"trackViewUrl": "https://apps.apple.com/us/app/maps-pro/2"
		},
		{
			"wrapperType": "collection",
			"collectionName": "Discovery",
			"artistName": "Daft Punk",
			"collectionPrice": 9.99,
			"collectionViewUrl": "https://music.apple.com/us/album/discovery/3"
		}
	]
}`

func TestParse(t *testing.T) {
	records := Parse([]byte(songPayload))
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	song := records[0]
	if song.Name != "Digital Love" || song.ArtistName != "Daft Punk" {
		t.Errorf("Unexpected song identity: %+v", song)
	}
	if song.Kind != "song" || song.KindDisplayName() != "Song" {
		t.Errorf("Unexpected kind %q (%q)", song.Kind, song.KindDisplayName())
	}
	if song.Genre != "Electronic" {
		t.Errorf("Expected genre Electronic, got %q", song.Genre)
	}
	if !song.Price.Equal(decimal.RequireFromString("1.29")) || !song.PriceKnown || song.IsFree() {
		t.Errorf("Unexpected price %s (known=%v)", song.Price, song.PriceKnown)
	}
	if song.CurrencyCode != "USD" {
		t.Errorf("Expected USD, got %q", song.CurrencyCode)
	}
	if u := song.SmallImageURL(); u == nil || u.Host != "is1.mzstatic.com" {
		t.Errorf("Unexpected small image URL %v", u)
	}
	if u := song.LargeImageURL(); u == nil || u.Path != "/image/100x100bb.jpg" {
		t.Errorf("Unexpected large image URL %v", u)
	}
	if u := song.StoreURL(); u == nil || u.Host != "music.apple.com" {
		t.Errorf("Unexpected store URL %v", u)
	}

	app := records[1]
	if app.ArtistName != "" {
		t.Errorf("Expected empty artist for app, got %q", app.ArtistName)
	}
	if app.Genre != "Navigation, Travel" {
		t.Errorf("Expected joined genres, got %q", app.Genre)
	}
	if app.KindDisplayName() != "App" {
		t.Errorf("Expected App, got %q", app.KindDisplayName())
	}
	if app.CurrencyCode != "USD" {
		t.Errorf("Expected upper-cased currency, got %q", app.CurrencyCode)
	}
	if app.SmallImageURL() != nil {
		t.Errorf("Expected invalid artwork URL to be dropped, got %v", app.SmallImageURL())
	}

	album := records[2]
	if album.Name != "Discovery" || album.Kind != "collection" {
		t.Errorf("Expected collection fallback fields, got %+v", album)
	}
	if !album.Price.Equal(decimal.RequireFromString("9.99")) {
		t.Errorf("Expected collection price 9.99, got %s", album.Price)
	}
	if u := album.StoreURL(); u == nil || u.Path != "/us/album/discovery/3" {
		t.Errorf("Expected collection view URL, got %v", u)
	}
}

func TestParseEmptyResults(t *testing.T) {
	records, err := ParseStrict([]byte(`{"resultCount":0,"results":[]}`))
	if err != nil {
		t.Fatalf("Expected no error for empty results, got %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", records)
	}
}

func TestParseMalformedPayload(t *testing.T) {
	tests := map[string]string{
		"not_json":         `<html>oops</html>`,
		"empty":            ``,
		"missing_results":  `{"resultCount": 2}`,
		"null_results":     `{"results": null}`,
		"results_not_list": `{"results": {"trackName": "x"}}`,
		"top_level_array":  `[{"trackName": "x"}]`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			records, err := ParseStrict([]byte(payload))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Expected ErrMalformedPayload, got %v", err)
			}
			if len(records) != 0 {
				t.Errorf("Expected no records, got %d", len(records))
			}
			if got := Parse([]byte(payload)); len(got) != 0 {
				t.Errorf("Parse: expected no records, got %d", len(got))
			}
		})
	}
}

func TestParseSkipsMalformedEntries(t *testing.T) {
	payload := `{"results": [
		{"trackName": "Good Song", "artistName": "Someone", "trackPrice": 0.99},
		{"artistName": "Nameless"}
	]}`

	records := Parse([]byte(payload))
	if len(records) != 1 {
		t.Fatalf("Expected exactly 1 record, got %d", len(records))
	}
	if records[0].Name != "Good Song" {
		t.Errorf("Expected the well-formed entry, got %q", records[0].Name)
	}
}

func TestParseEntryShapes(t *testing.T) {
	payload := `{"results": [
		42,
		"string entry",
		null,
		{"trackName": 7},
		{"trackName": "  "},
		{"trackName": "Wrong Types", "artistName": 12, "trackPrice": "abc", "currency": false, "genres": "Rock", "artworkUrl100": 5},
		{"trackName": "Negative", "trackPrice": -1, "price": 2.5}
	]}`

	records := Parse([]byte(payload))
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	wrong := records[0]
	if wrong.ArtistName != "" || wrong.CurrencyCode != "" || wrong.Genre != "" {
		t.Errorf("Expected zero values for wrong-typed fields, got %+v", wrong)
	}
	if !wrong.Price.IsZero() || wrong.PriceKnown {
		t.Errorf("Expected unknown zero price, got %s (known=%v)", wrong.Price, wrong.PriceKnown)
	}
	if wrong.LargeImageURL() != nil {
		t.Error("Expected nil large image URL")
	}

	negative := records[1]
	if !negative.Price.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("Expected negative trackPrice to fall through to price, got %s", negative.Price)
	}
}

func TestParseFreeItems(t *testing.T) {
	payload := `{"results": [
		{"trackName": "Explicit Zero", "price": 0},
		{"trackName": "No Price"}
	]}`

	records := Parse([]byte(payload))
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	explicit, missing := records[0], records[1]
	if !explicit.Price.IsZero() || !missing.Price.IsZero() {
		t.Error("Expected both prices to be zero")
	}
	if !explicit.IsFree() || !missing.IsFree() {
		t.Error("Expected both records to be free")
	}
	if !explicit.PriceKnown {
		t.Error("Expected explicit zero price to be known")
	}
	if missing.PriceKnown {
		t.Error("Expected missing price to be unknown")
	}
}

func TestParseKeepsPayloadOrder(t *testing.T) {
	payload := `{"results": [{"trackName": "b"}, {"trackName": "a"}, {"trackName": "c"}]}`
	records := Parse([]byte(payload))
	got := []string{records[0].Name, records[1].Name, records[2].Name}
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected payload order %v, got %v", want, got)
		}
	}
}
