package storesearch

import "context"

// Response is the raw outcome of a successful catalog round trip.
type Response struct {
	// Body is the undecoded response payload.
	Body []byte

	// StatusCode is the transport status (HTTP status for the iTunes fetcher).
	StatusCode int
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher is the host-supplied capability that performs one remote catalog call.
// Implementations should honor ctx cancellation; a fetch that cannot abort is
// still discarded by the session once it is superseded.
type Fetcher interface {
	// Fetch retrieves rawURL and returns the payload and status, or a transport error.
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

// FetcherFunc is a function type that implements the Fetcher interface.
// This allows using a function as a Fetcher, similar to http.HandlerFunc.
type FetcherFunc func(context.Context, string) (*Response, error)

// Fetch implements the Fetcher interface for FetcherFunc.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	return f(ctx, rawURL)
}
