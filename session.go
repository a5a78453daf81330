package storesearch

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Session runs at most one catalog search at a time and exposes the outcome
// as a sequence of State transitions.
//
// Starting a search cancels the previous one. A canceled or superseded search
// never produces a transition, whatever order completions arrive in.
// All methods are safe for concurrent use.
type Session struct {
	fetcher   Fetcher
	queryOpts []QueryOption
	logger    *slog.Logger
	tracer    trace.Tracer

	mu       sync.Mutex
	live     Token
	cancel   context.CancelFunc
	changed  chan struct{}
	pending  []State
	draining bool
	subs     []subscriber
	nextSub  int
	inflight sync.WaitGroup

	state atomic.Pointer[State]
}

type subscriber struct {
	id int
	fn func(State)
}

// NewSession creates an idle session that issues requests through fetcher.
func NewSession(fetcher Fetcher, opts ...SessionOption) *Session {
	s := &Session{
		fetcher: fetcher,
		logger:  slog.Default(),
		tracer:  otel.Tracer("storesearch"),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(&State{Status: StatusIdle})
	return s
}

// StartSearch builds a query from text and category and starts it.
// Empty text returns ErrEmptyQuery and leaves the session untouched.
func (s *Session) StartSearch(ctx context.Context, text string, category Category) (Token, error) {
	q, err := Build(text, category, s.queryOpts...)
	if err != nil {
		s.logger.DebugContext(ctx, "search not started", "text", text, "category", category.String(), "error", err)
		return Token{}, err
	}
	return s.Search(ctx, q), nil
}

// Search starts q, superseding any search in flight. The request runs until
// it completes, is superseded, or ctx is canceled.
func (s *Session) Search(ctx context.Context, q Query) Token {
	reqCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.logger.DebugContext(ctx, "superseding search", "token", s.live.String())
		s.cancel()
	}
	tok := newToken()
	s.live = tok
	s.cancel = cancel
	s.setLocked(State{Status: StatusLoading, Token: tok, Query: q})
	s.inflight.Add(1)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "search started",
		"token", tok.String(),
		"term", q.Text,
		"category", q.Category.String(),
	)

	// The fetch must be running before observers see Loading, so that a
	// panicking observer cannot leave the session stuck in it.
	go s.run(reqCtx, tok, q)
	s.flush()
	return tok
}

// Cancel abandons any search in flight and returns the session to idle,
// discarding previous results. It is a no-op when already idle.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.live = Token{}
	if s.state.Load().Status == StatusIdle {
		s.mu.Unlock()
		return
	}
	s.setLocked(State{Status: StatusIdle})
	s.mu.Unlock()
	s.flush()
}

// Close cancels any search in flight and waits for fetch goroutines to
// return. Fetchers that ignore cancellation delay Close until they finish.
func (s *Session) Close() {
	s.Cancel()
	s.inflight.Wait()
}

// State returns the current snapshot without blocking on a pending transition.
func (s *Session) State() State {
	return *s.state.Load()
}

// Results returns a copy of the current results. It is empty unless the
// session is in StatusSucceeded.
func (s *Session) Results() []Record {
	st := s.state.Load()
	if st.Status != StatusSucceeded {
		return nil
	}
	return slices.Clone(st.Results)
}

// Subscribe registers fn to receive every subsequent transition in order.
// Calls are serialized; fn may call back into the session. The returned
// function removes the subscription.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool { return sub.id == id })
		})
	}
}

// Wait blocks until the session is no longer loading and returns that state.
// If a newer search supersedes the one in flight, Wait follows it.
func (s *Session) Wait(ctx context.Context) (State, error) {
	for {
		s.mu.Lock()
		st := *s.state.Load()
		changed := s.changed
		s.mu.Unlock()

		if st.Status != StatusLoading {
			return st, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return st, errors.WithSecondaryError(ErrCanceled, ctx.Err())
		}
	}
}

func (s *Session) run(ctx context.Context, tok Token, q Query) {
	defer s.inflight.Done()

	ctx, span := s.tracer.Start(ctx, "storesearch.search",
		trace.WithAttributes(
			attribute.String("storesearch.token", tok.String()),
			attribute.String("storesearch.term", q.Text),
			attribute.String("storesearch.category", q.Category.String()),
		),
	)
	defer span.End()

	startTime := time.Now()
	next := s.outcome(ctx, q)
	took := time.Since(startTime)

	if ctx.Err() != nil && next.Status != StatusSucceeded {
		span.SetAttributes(attribute.Bool("storesearch.canceled", true))
		s.finishCanceled(tok)
		return
	}

	next.Token = tok
	next.Query = q

	switch next.Status {
	case StatusFailed:
		span.RecordError(next.Err)
		span.SetStatus(codes.Error, "search failed")
	default:
		span.SetAttributes(attribute.Int("storesearch.result_count", len(next.Results)))
		span.SetStatus(codes.Ok, "search succeeded")
	}

	if !s.finish(tok, next) {
		s.logger.DebugContext(ctx, "dropping stale completion", "token", tok.String())
		return
	}

	if next.Status == StatusFailed {
		s.logger.WarnContext(ctx, "search failed",
			"token", tok.String(),
			"term", q.Text,
			"took", took,
			"error", next.Err,
		)
		return
	}
	s.logger.InfoContext(ctx, "search finished",
		"token", tok.String(),
		"term", q.Text,
		"result_count", len(next.Results),
		"took", took,
	)
}

// outcome performs the fetch and maps it to a terminal state.
func (s *Session) outcome(ctx context.Context, q Query) State {
	if s.fetcher == nil {
		return State{Status: StatusFailed, Err: errors.WithSecondaryError(ErrBackendUnavailable, errors.New("no fetcher configured"))}
	}

	resp, err := s.fetcher.Fetch(ctx, q.URL())
	switch {
	case err != nil && CodeOf(err) != 0:
		// Fetchers that classify their own failures keep that classification.
		return State{Status: StatusFailed, Err: err}
	case err != nil:
		return State{Status: StatusFailed, Err: errors.WithSecondaryError(ErrTransport, err)}
	case resp == nil:
		return State{Status: StatusFailed, Err: errors.WithSecondaryError(ErrTransport, errors.New("empty response"))}
	case !resp.OK():
		return State{Status: StatusFailed, Err: errors.WithSecondaryError(ErrUnexpectedStatus, errors.Newf("status %d", resp.StatusCode))}
	}

	records, err := ParseStrict(resp.Body)
	if err != nil {
		s.logger.WarnContext(ctx, "treating malformed payload as no results", "error", err)
	}
	SortByName(records)
	return State{Status: StatusSucceeded, Results: records}
}

// finish applies next if tok is still live.
func (s *Session) finish(tok Token, next State) bool {
	s.mu.Lock()
	if s.live != tok {
		s.mu.Unlock()
		return false
	}
	s.cancel()
	s.cancel = nil
	s.live = Token{}
	s.setLocked(next)
	s.mu.Unlock()
	s.flush()
	return true
}

// finishCanceled handles a request whose context ended. When the search was
// superseded this is a no-op; when the caller's context was canceled the
// session goes back to idle.
func (s *Session) finishCanceled(tok Token) {
	s.finish(tok, State{Status: StatusIdle})
}

// setLocked publishes st. s.mu must be held.
func (s *Session) setLocked(st State) {
	s.state.Store(&st)
	s.pending = append(s.pending, st)
	close(s.changed)
	s.changed = make(chan struct{})
}

// flush delivers pending states to subscribers. Only one goroutine drains
// at a time, so observers see transitions in the order they were made.
func (s *Session) flush() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true

	// A panicking observer unwinds with mu released; hand draining back so
	// later transitions are still delivered.
	drained := false
	defer func() {
		if !drained {
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
		}
	}()

	for len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		subs := slices.Clone(s.subs)
		s.mu.Unlock()

		for _, st := range batch {
			for _, sub := range subs {
				sub.fn(st)
			}
		}

		s.mu.Lock()
	}
	s.draining = false
	drained = true
	s.mu.Unlock()
}
