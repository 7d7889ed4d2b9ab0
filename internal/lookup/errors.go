package lookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sells-group/prospector/pkg/perplexity"
	"github.com/sells-group/prospector/pkg/websearch"
)

// Kind classifies a lookup failure. The controller's policy differs per
// kind: NotFound is a valid negative, RateLimited delays the next round's
// dispatch, Timeout and Transient drop the candidate for this round only.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindNotFound
	KindRateLimited
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a classified lookup failure for one candidate.
type Error struct {
	Kind      Kind
	Candidate string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("lookup: %s: %s", e.Candidate, e.Kind)
	}
	return fmt.Sprintf("lookup: %s: %s: %v", e.Candidate, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, or KindUnknown when err is
// not a lookup error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err records a valid negative result.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsRateLimited reports whether err records a provider 429.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

// classify wraps a raw provider error with its kind. Cancellation only
// reaches a lookup through the per-candidate or search deadline, so both
// context errors map to KindTimeout.
func classify(candidate string, err error) *Error {
	kind := KindTransient
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTimeout
	case isNetTimeout(err):
		kind = KindTimeout
	case statusCodeOf(err) == http.StatusTooManyRequests:
		kind = KindRateLimited
	}
	return &Error{Kind: kind, Candidate: candidate, Err: err}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// statusCodeOf pulls an HTTP status from either provider's APIError.
func statusCodeOf(err error) int {
	var wErr *websearch.APIError
	if errors.As(err, &wErr) {
		return wErr.StatusCode
	}
	var pErr *perplexity.APIError
	if errors.As(err, &pErr) {
		return pErr.StatusCode
	}
	return 0
}
