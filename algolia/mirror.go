package algolia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/storesearch"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Mirror implements storesearch.Fetcher against an Algolia index holding
// iTunes-shaped entries. It answers the same URLs the live API does, so a
// session can switch backends without changing its queries.
type Mirror struct {
	client    *Client
	indexName string
}

var _ storesearch.Fetcher = (*Mirror)(nil)

// NewMirror creates a Mirror for the specified index.
func NewMirror(client *Client, indexName string) *Mirror {
	return &Mirror{
		client:    client,
		indexName: indexName,
	}
}

// Fetch implements storesearch.Fetcher. Index failures are reported as
// storesearch.ErrBackendUnavailable; a successful search always yields a 200.
func (m *Mirror) Fetch(ctx context.Context, rawURL string) (*storesearch.Response, error) {
	if ctx.Err() != nil {
		return nil, errors.WithSecondaryError(storesearch.ErrCanceled, ctx.Err())
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.WithSecondaryError(storesearch.ErrTransport, err)
	}
	params := u.Query()
	term := params.Get("term")

	// Algolia matches everything for an empty query; the live API matches nothing.
	if strings.TrimSpace(term) == "" {
		return emptyResponse(), nil
	}

	ctx, span := m.client.tracer.Start(ctx, "algolia.search",
		trace.WithAttributes(
			attribute.String("algolia.index_name", m.indexName),
			attribute.String("algolia.query", term),
		),
	)
	defer span.End()

	idx, err := m.client.getIndex(m.indexName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get Algolia client")
		return nil, errors.WithSecondaryError(
			storesearch.ErrBackendUnavailable,
			errors.Wrapf(err, "failed to get Algolia client"),
		)
	}

	res, err := idx.Search(term, append(buildSearchParams(params), ctx)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithSecondaryError(storesearch.ErrCanceled, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, errors.WithSecondaryError(
			storesearch.ErrBackendUnavailable,
			errors.Wrapf(err, "Algolia search failed"),
		)
	}

	results := make([]map[string]interface{}, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, stripMetadata(hit))
	}
	body, err := json.Marshal(map[string]interface{}{
		"resultCount": len(results),
		"results":     results,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal hits")
	}

	span.SetAttributes(attribute.Int("algolia.hits", len(results)))
	span.SetStatus(codes.Ok, "searched")
	return &storesearch.Response{Body: body, StatusCode: http.StatusOK}, nil
}

func emptyResponse() *storesearch.Response {
	return &storesearch.Response{
		Body:       []byte(`{"resultCount":0,"results":[]}`),
		StatusCode: http.StatusOK,
	}
}

// buildSearchParams converts catalog URL parameters to Algolia search options.
func buildSearchParams(params url.Values) []interface{} {
	opts := []interface{}{opt.HitsPerPage(searchLimit(params))}
	if filter := kindFilter(storesearch.EntityKinds(params.Get("entity"))); filter != "" {
		opts = append(opts, opt.Filters(filter))
	}
	return opts
}

// searchLimit reads the limit parameter, capped at the catalog's page size.
func searchLimit(params url.Values) int {
	if l, err := strconv.Atoi(params.Get("limit")); err == nil && l > 0 && l < storesearch.DefaultLimit {
		return l
	}
	return storesearch.DefaultLimit
}

// kindFilter returns an Algolia filter matching any of kinds, or "" for none.
func kindFilter(kinds []string) string {
	filters := make([]string, 0, len(kinds))
	for _, k := range kinds {
		filters = append(filters, fmt.Sprintf("kind:%s", escapeValue(k)))
	}
	return strings.Join(filters, " OR ")
}

// escapeValue quotes a string value for Algolia filters.
func escapeValue(value string) string {
	escaped := strings.ReplaceAll(value, `"`, `\"`)
	return fmt.Sprintf(`"%s"`, escaped)
}

// stripMetadata drops Algolia's own attributes (objectID, _highlightResult,
// and the like) so the payload looks like the catalog's.
func stripMetadata(hit map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(hit))
	for k, v := range hit {
		if k == "objectID" || strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}
