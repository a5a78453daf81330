// Package artwork downloads result images. Each consumer gets its own Handle
// that it can close independently; concurrent loads of the same URL share one
// download, which is abandoned once no handle is waiting on it.
package artwork

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/storesearch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ErrNoImage is returned by handles loaded with a nil URL.
var ErrNoImage = errors.New("artwork: no image URL")

// Loader fetches images through a storesearch.Fetcher.
type Loader struct {
	fetcher storesearch.Fetcher
	logger  *slog.Logger
	tracer  trace.Tracer

	group   singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the shared download for one URL.
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a Loader.
func NewLoader(fetcher storesearch.Fetcher, opts ...Option) *Loader {
	l := &Loader{
		fetcher: fetcher,
		logger:  slog.Default(),
		tracer:  otel.Tracer("storesearch-artwork"),
		flights: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load starts downloading u and returns immediately. The handle completes
// when the image arrives, the download fails, ctx ends or Close is called.
func (l *Loader) Load(ctx context.Context, u *url.URL) *Handle {
	h := &Handle{done: make(chan struct{})}
	if u == nil {
		h.cancel = func() {}
		h.finish(nil, ErrNoImage)
		return h
	}

	hctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	key := u.String()
	ch, release := l.join(ctx, key)

	go func() {
		defer release()
		select {
		case res := <-ch:
			data, _ := res.Val.([]byte)
			h.finish(data, res.Err)
		case <-hctx.Done():
			h.finish(nil, errors.WithSecondaryError(storesearch.ErrCanceled, hctx.Err()))
		}
	}()
	return h
}

// join registers interest in key and returns the shared result channel and a
// release func that must be called exactly once.
func (l *Loader) join(ctx context.Context, key string) (<-chan singleflight.Result, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.flights[key]
	if !ok {
		// Detached from the first caller so that its leaving does not abort
		// the download for the others.
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		l.flights[key] = f
	}
	f.refs++

	// DoChan runs the download on its own goroutine, so holding mu is fine.
	ch := l.group.DoChan(key, func() (interface{}, error) {
		return l.download(f.ctx, key)
	})

	var once sync.Once
	return ch, func() {
		once.Do(func() { l.leave(key, f) })
	}
}

func (l *Loader) leave(key string, f *flight) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f.refs--
	if f.refs > 0 {
		return
	}
	f.cancel()
	if l.flights[key] == f {
		delete(l.flights, key)
		// A later Load must start over instead of joining the aborted call.
		l.group.Forget(key)
	}
}

func (l *Loader) download(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, span := l.tracer.Start(ctx, "artwork.download",
		trace.WithAttributes(attribute.String("artwork.url", rawURL)),
	)
	defer span.End()

	resp, err := l.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			l.logger.DebugContext(ctx, "artwork download abandoned", "url", rawURL)
			return nil, errors.WithSecondaryError(storesearch.ErrCanceled, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, errors.WithSecondaryError(storesearch.ErrTransport, err)
	}
	if !resp.OK() {
		span.SetStatus(codes.Error, "unexpected status")
		return nil, errors.WithSecondaryError(storesearch.ErrUnexpectedStatus, errors.Newf("HTTP %d", resp.StatusCode))
	}

	span.SetAttributes(attribute.Int("artwork.bytes", len(resp.Body)))
	span.SetStatus(codes.Ok, "downloaded")
	return resp.Body, nil
}

// Handle is one consumer's view of an image download.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu   sync.Mutex
	data []byte
	err  error
}

func (h *Handle) finish(data []byte, err error) {
	h.mu.Lock()
	h.data = bytes.Clone(data)
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Done is closed once the handle has a result.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Bytes returns the image, or nil until Done is closed or if the load failed.
func (h *Handle) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data
}

// Err returns the failure reason once Done is closed. A closed handle
// reports storesearch.ErrCanceled.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Close abandons the load for this handle only and waits for it to settle.
// Calling Close after completion is a no-op.
func (h *Handle) Close() {
	h.cancel()
	<-h.done
}
