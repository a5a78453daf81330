package itunes

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/storesearch"
)

func TestFetch(t *testing.T) {
	var gotQuery, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		io.WriteString(w, `{"resultCount":1,"results":[{"trackName":"Digital Love"}]}`)
	}))
	defer srv.Close()

	q, err := storesearch.Build("daft punk", storesearch.CategoryMusic, storesearch.WithEndpoint(srv.URL+"/search"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	resp, err := New().Fetch(context.Background(), q.URL())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !resp.OK() {
		t.Errorf("Expected OK response, got %d", resp.StatusCode)
	}
	if !strings.Contains(gotQuery, "term=daft%20punk") {
		t.Errorf("Expected %%20-encoded term, got %q", gotQuery)
	}
	if !strings.HasPrefix(gotAgent, "storesearch/") {
		t.Errorf("Expected storesearch user agent, got %q", gotAgent)
	}
	if records := storesearch.Parse(resp.Body); len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	resp, err := New().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Expected status to be returned, not an error: %v", err)
	}
	if resp.OK() || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", resp.StatusCode)
	}
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	if _, err := New(WithTimeout(time.Second)).Fetch(context.Background(), addr); err == nil {
		t.Fatal("Expected an error for a closed server")
	}
}

func TestFetchCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := New(WithTimeout(0)).Fetch(ctx, srv.URL)
	if !errors.Is(err, storesearch.ErrCanceled) {
		t.Errorf("Expected ErrCanceled, got %v", err)
	}
}

func TestSessionOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("term") {
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			io.WriteString(w, `{"results":[{"trackName":"b"},{"trackName":"a"}]}`)
		}
	}))
	defer srv.Close()

	s := storesearch.NewSession(New(),
		storesearch.WithLogger(slog.New(slog.DiscardHandler)),
		storesearch.WithQueryOptions(storesearch.WithEndpoint(srv.URL)),
	)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.StartSearch(ctx, "broken", storesearch.CategoryAll); err != nil {
		t.Fatalf("StartSearch failed: %v", err)
	}
	st, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if st.Status != storesearch.StatusFailed {
		t.Fatalf("Expected failed, got %v", st.Status)
	}

	s.StartSearch(ctx, "fine", storesearch.CategoryAll)
	st, err = s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if st.Status != storesearch.StatusSucceeded || len(st.Results) != 2 || st.Results[0].Name != "a" {
		t.Errorf("Expected sorted success, got %v %v", st.Status, st.Results)
	}
}

func TestHTTPClientKeepsDefaults(t *testing.T) {
	var gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		if r.URL.Query().Get("slow") != "" {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}
		io.WriteString(w, `{"results":[]}`)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		opts []Option
	}{
		{"timeout first", []Option{WithTimeout(50 * time.Millisecond), WithHTTPClient(&http.Client{})}},
		{"client first", []Option{WithHTTPClient(&http.Client{}), WithTimeout(50 * time.Millisecond)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.opts...)

			if _, err := c.Fetch(context.Background(), srv.URL); err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}
			if gotAccept != "application/json" {
				t.Errorf("Expected Accept header, got %q", gotAccept)
			}

			if _, err := c.Fetch(context.Background(), srv.URL+"?slow=1"); err == nil {
				t.Error("Expected the timeout to apply")
			}
		})
	}
}
