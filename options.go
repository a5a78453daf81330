package storesearch

import (
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// QueryOption represents a query configuration option.
type QueryOption interface {
	Apply(*QueryConfig)
}

// QueryConfig holds the request parameters that are not user input.
type QueryConfig struct {
	// Endpoint is the catalog search URL.
	Endpoint string

	// Limit specifies the maximum number of results to return.
	Limit int

	// Country is the store front to search.
	Country string

	// Lang is the language of returned metadata.
	Lang string
}

// optionFunc is a function that implements QueryOption.
type optionFunc func(*QueryConfig)

// Apply implements the QueryOption interface for optionFunc.
func (f optionFunc) Apply(cfg *QueryConfig) {
	f(cfg)
}

// WithEndpoint overrides the catalog search URL.
func WithEndpoint(endpoint string) QueryOption {
	return optionFunc(func(cfg *QueryConfig) {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			cfg.Endpoint = strings.TrimSuffix(endpoint, "?")
		}
	})
}

// WithLimit sets the maximum number of results to return.
// Values outside 1..DefaultLimit fall back to DefaultLimit.
func WithLimit(n int) QueryOption {
	return optionFunc(func(cfg *QueryConfig) {
		if n <= 0 || n > DefaultLimit {
			n = DefaultLimit
		}
		cfg.Limit = n
	})
}

// WithCountry sets the two-letter store country.
func WithCountry(country string) QueryOption {
	return optionFunc(func(cfg *QueryConfig) {
		cfg.Country = strings.ToLower(strings.TrimSpace(country))
	})
}

// WithLang sets the result language.
func WithLang(lang string) QueryOption {
	return optionFunc(func(cfg *QueryConfig) {
		cfg.Lang = strings.TrimSpace(lang)
	})
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithQueryOptions sets the query options applied to every StartSearch call.
func WithQueryOptions(opts ...QueryOption) SessionOption {
	return func(s *Session) {
		s.queryOpts = append(s.queryOpts, opts...)
	}
}

// WithLogger sets the session logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer used for search spans.
func WithTracer(tracer trace.Tracer) SessionOption {
	return func(s *Session) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}
