package storesearch

import (
	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
)

// Status is the phase of a Session.
type Status int

const (
	// StatusIdle means no search has run, or the last one was canceled.
	StatusIdle Status = iota
	// StatusLoading means a search is in flight.
	StatusLoading
	// StatusSucceeded means the last search returned a result list, possibly empty.
	StatusSucceeded
	// StatusFailed means the last search failed in transport.
	StatusFailed
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Token identifies one search invocation. Completions carrying a token other
// than the session's live one are discarded.
type Token struct {
	id ksuid.KSUID
}

func newToken() Token {
	return Token{id: ksuid.New()}
}

// ParseToken parses a token as printed by Token.String.
func ParseToken(s string) (Token, error) {
	id, err := ksuid.Parse(s)
	if err != nil {
		return Token{}, errors.Wrapf(err, "invalid token %q", s)
	}
	return Token{id: id}, nil
}

// IsZero reports whether t identifies no search.
func (t Token) IsZero() bool {
	return t.id.IsNil()
}

// String returns the token's ksuid, or "" for the zero token.
func (t Token) String() string {
	if t.IsZero() {
		return ""
	}
	return t.id.String()
}

// State is an immutable snapshot of a Session.
type State struct {
	// Status is the session phase.
	Status Status

	// Token identifies the search this state belongs to. Zero when idle.
	Token Token

	// Query is the search being run or last completed.
	Query Query

	// Results holds the ordered records when Status is StatusSucceeded.
	// The slice is shared between observers and must not be modified.
	Results []Record

	// Err is the failure reason when Status is StatusFailed.
	Err error
}

// Done reports whether the state is terminal for its search.
func (s State) Done() bool {
	return s.Status == StatusSucceeded || s.Status == StatusFailed
}
