// Package inmemory provides an offline catalog that answers search URLs the
// way the iTunes Search API does. It backs the CLI's memory backend and tests.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/storesearch"
	"github.com/segmentio/ksuid"
)

// Document represents one catalog entry, stored with its raw iTunes fields.
type Document struct {
	// ID is the unique identifier for the document.
	ID string
	// Fields contains the entry as decoded from JSON.
	Fields map[string]interface{}
}

// Catalog implements storesearch.Fetcher over an in-memory set of entries.
type Catalog struct {
	mu        sync.RWMutex
	documents []Document
	idIndex   map[string]int // maps document ID to index in documents slice
}

var _ storesearch.Fetcher = (*Catalog)(nil)

// New creates an empty catalog. It is safe for concurrent use.
func New() *Catalog {
	return &Catalog{
		documents: make([]Document, 0),
		idIndex:   make(map[string]int),
	}
}

// AddDocument adds a document, replacing any existing one with the same ID.
func (c *Catalog) AddDocument(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, exists := c.idIndex[doc.ID]; exists {
		c.documents[idx] = doc
	} else {
		c.idIndex[doc.ID] = len(c.documents)
		c.documents = append(c.documents, doc)
	}
}

// LoadPayload imports every object in a search response payload
// ({"results": [...]}) and returns how many were added. Entries are keyed by
// trackId, then collectionId, then a generated id.
func (c *Catalog) LoadPayload(payload []byte) (int, error) {
	var page struct {
		Results []map[string]interface{} `json:"results"`
	}
	if err := json.Unmarshal(payload, &page); err != nil {
		return 0, errors.Wrap(err, "failed to unmarshal payload")
	}

	n := 0
	for _, fields := range page.Results {
		if fields == nil {
			continue
		}
		c.AddDocument(Document{ID: documentID(fields), Fields: fields})
		n++
	}
	return n, nil
}

func documentID(fields map[string]interface{}) string {
	for _, key := range []string{"trackId", "collectionId"} {
		switch v := fields[key].(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case string:
			if v != "" {
				return v
			}
		}
	}
	return ksuid.New().String()
}

// Size returns the number of stored documents.
func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.documents)
}

// Fetch implements storesearch.Fetcher. It reads the term, entity and limit
// parameters from rawURL and answers with a 200 and an iTunes-shaped payload.
// Matches are ordered by relevance, not by name.
func (c *Catalog) Fetch(ctx context.Context, rawURL string) (*storesearch.Response, error) {
	if ctx.Err() != nil {
		return nil, errors.WithSecondaryError(storesearch.ErrCanceled, ctx.Err())
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.WithSecondaryError(storesearch.ErrTransport, err)
	}
	params := u.Query()

	limit := storesearch.DefaultLimit
	if l, err := strconv.Atoi(params.Get("limit")); err == nil && l > 0 && l < limit {
		limit = l
	}

	matches, err := c.search(ctx, params.Get("term"), storesearch.EntityKinds(params.Get("entity")))
	if err != nil {
		return nil, err
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]map[string]interface{}, len(matches))
	for i, m := range matches {
		results[i] = m.document.Fields
	}
	body, err := json.Marshal(map[string]interface{}{
		"resultCount": len(results),
		"results":     results,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal results")
	}

	return &storesearch.Response{Body: body, StatusCode: http.StatusOK}, nil
}

func (c *Catalog) search(ctx context.Context, term string, kinds []string) ([]scoredDocument, error) {
	// The live API returns nothing for an empty term rather than everything.
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []scoredDocument
	for _, doc := range c.documents {
		if ctx.Err() != nil {
			return nil, errors.WithSecondaryError(storesearch.ErrCanceled, ctx.Err())
		}

		if !matchesKinds(doc, kinds) {
			continue
		}

		score := c.scoreDocument(doc, term)
		if score > 0 {
			matches = append(matches, scoredDocument{
				document: doc,
				score:    score,
			})
		}
	}

	sortMatches(matches)
	return matches, nil
}

func matchesKinds(doc Document, kinds []string) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, key := range []string{"kind", "wrapperType"} {
		if k, ok := doc.Fields[key].(string); ok && slices.Contains(kinds, k) {
			return true
		}
	}
	return false
}

type scoredDocument struct {
	document Document
	score    float64
}

// scoreDocument calculates the relevance score for a document based on the term.
func (c *Catalog) scoreDocument(doc Document, term string) float64 {
	terms := strings.Fields(strings.ToLower(term))
	if len(terms) == 0 {
		return 0
	}

	score := 0.0
	matchedTerms := 0

	for _, t := range terms {
		termMatched := false
		for key, value := range doc.Fields {
			if !searchable(key) {
				continue
			}
			if c.valueContainsTerm(value, t) {
				termMatched = true
				score += 1.0
			}
		}
		if termMatched {
			matchedTerms++
		}
	}

	if matchedTerms == 0 {
		return 0
	}

	// Boost score if all terms matched
	if matchedTerms == len(terms) {
		score *= 1.5
	}

	return score
}

// searchable excludes URL and artwork fields, whose hosts and paths would
// otherwise match almost any term.
func searchable(key string) bool {
	return !strings.HasSuffix(key, "Url") && !strings.HasPrefix(key, "artworkUrl")
}

// valueContainsTerm checks if a value contains the search term.
func (c *Catalog) valueContainsTerm(value interface{}, term string) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), term)
	case []interface{}:
		for _, item := range v {
			if c.valueContainsTerm(item, term) {
				return true
			}
		}
	case map[string]interface{}:
		for _, item := range v {
			if c.valueContainsTerm(item, term) {
				return true
			}
		}
	case nil:
		return false
	default:
		str := fmt.Sprintf("%v", v)
		return strings.Contains(strings.ToLower(str), term)
	}
	return false
}

// sortMatches orders by score descending, keeping insertion order for ties.
func sortMatches(matches []scoredDocument) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
}
