// Package itunes provides the HTTP Fetcher for the iTunes Search API.
package itunes

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
	"github.com/letmevibethatforyou/storesearch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const userAgent = "storesearch/1.0 (+https://github.com/letmevibethatforyou/storesearch)"

// Client fetches catalog URLs over HTTP.
type Client struct {
	http   *resty.Client
	tracer trace.Tracer
}

type options struct {
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*options)

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithHTTPClient replaces the underlying transport, e.g. for tests. The
// client's own Timeout is overridden by WithTimeout or the default.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// New creates a Client with a 10 second timeout.
func New(opts ...Option) *Client {
	o := &options{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	rc := resty.New()
	if o.httpClient != nil {
		rc = resty.NewWithClient(o.httpClient)
	}

	return &Client{
		http: rc.
			SetTimeout(o.timeout).
			SetHeader("User-Agent", userAgent).
			SetHeader("Accept", "application/json"),
		tracer: otel.Tracer("storesearch-itunes"),
	}
}

// Fetch implements storesearch.Fetcher. Non-2xx responses are returned, not
// treated as errors; only failures to complete the round trip are.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*storesearch.Response, error) {
	ctx, span := c.tracer.Start(ctx, "itunes.fetch",
		trace.WithAttributes(attribute.String("http.url", rawURL)),
	)
	defer span.End()

	resp, err := c.http.R().
		SetContext(ctx).
		Get(rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithSecondaryError(storesearch.ErrCanceled, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, errors.Wrapf(err, "GET %s", rawURL)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	if resp.IsError() {
		span.SetStatus(codes.Error, resp.Status())
	} else {
		span.SetStatus(codes.Ok, "fetched")
	}

	return &storesearch.Response{
		Body:       resp.Body(),
		StatusCode: resp.StatusCode(),
	}, nil
}
