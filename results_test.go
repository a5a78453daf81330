package storesearch

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

func names(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

func TestSortByName(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "uppercase before lowercase",
			input: []string{"Zebra", "Apple", "apple"},
			want:  []string{"Apple", "Zebra", "apple"},
		},
		{
			name:  "digits and punctuation first",
			input: []string{"b", "1999", "(Live)", "B"},
			want:  []string{"(Live)", "1999", "B", "b"},
		},
		{
			name:  "empty",
			input: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]Record, len(tt.input))
			for i, n := range tt.input {
				records[i] = Record{Name: n}
			}
			SortByName(records)
			got := names(records)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestByNameTies(t *testing.T) {
	a := Record{Name: "Same", ArtistName: "A"}
	b := Record{Name: "Same", ArtistName: "B"}
	if ByName(a, b) != 0 {
		t.Error("Expected records with equal names to compare equal")
	}
}

func TestRecordURLAccessorsReturnCopies(t *testing.T) {
	u, _ := url.Parse("https://example.com/art.jpg")
	r := Record{Name: "x", largeImageURL: u}

	got := r.LargeImageURL()
	got.Host = "evil.example"

	if r.LargeImageURL().Host != "example.com" {
		t.Error("Mutating the returned URL changed the record")
	}
	if r.SmallImageURL() != nil || r.StoreURL() != nil {
		t.Error("Expected nil for absent URLs")
	}
}

func TestRecordMarshalJSON(t *testing.T) {
	store, _ := url.Parse("https://apps.apple.com/app/1")
	r := Record{
		Name:         "Maps",
		Kind:         "software",
		Price:        decimal.RequireFromString("0"),
		PriceKnown:   true,
		CurrencyCode: "USD",
		storeURL:     store,
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out["name"] != "Maps" {
		t.Errorf("Expected name Maps, got %v", out["name"])
	}
	if out["storeUrl"] != "https://apps.apple.com/app/1" {
		t.Errorf("Expected storeUrl, got %v", out["storeUrl"])
	}
	if _, ok := out["smallImageUrl"]; ok {
		t.Error("Expected absent smallImageUrl to be omitted")
	}
}

func TestKindDisplayName(t *testing.T) {
	tests := map[string]string{
		"song":          "Song",
		"ebook":         "E-Book",
		"feature-movie": "Movie",
		"musicTrack":    "musicTrack",
		"":              "",
	}
	for kind, want := range tests {
		if got := (Record{Kind: kind}).KindDisplayName(); got != want {
			t.Errorf("KindDisplayName(%q) = %q, want %q", kind, got, want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      ErrorCode
		retryable bool
	}{
		{"nil", nil, 0, false},
		{"plain", errors.New("boom"), 0, false},
		{"empty query", ErrEmptyQuery, ErrCodeEmptyQuery, false},
		{"wrapped transport", errors.WithSecondaryError(ErrTransport, errors.New("dial tcp")), ErrCodeTransport, true},
		{"wrapped status", errors.Wrap(ErrUnexpectedStatus, "itunes"), ErrCodeUnexpectedStatus, true},
		{"backend", ErrBackendUnavailable, ErrCodeBackendUnavailable, true},
		{"canceled", ErrCanceled, ErrCodeCanceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.code {
				t.Errorf("CodeOf = %v, want %v", got, tt.code)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestErrorCodeString(t *testing.T) {
	if ErrCodeTransport.String() != "transport failure" {
		t.Errorf("Unexpected string %q", ErrCodeTransport.String())
	}
	if ErrorCode(1).String() != "unknown error" {
		t.Errorf("Unexpected string %q", ErrorCode(1).String())
	}
}
