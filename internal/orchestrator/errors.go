// internal/orchestrator/errors.go
package orchestrator

import "errors"

// The closed set of outcomes callers can observe. Anything else returned by
// the Orchestrator is a store failure and should be treated as fatal.
var (
	ErrRateLimited = errors.New("too many lobbies, please try again later")
	ErrNotFound    = errors.New("lobby or player not found")
	ErrNotActive   = errors.New("lobby is not active yet")
	ErrFull        = errors.New("lobby is full")
	ErrInvalid     = errors.New("invalid token")
)

// outcome pairs a public sentinel with a private reason. Error() only ever
// prints the sentinel so the reason cannot leak through a response body.
type outcome struct {
	public error
	reason string
}

func (o *outcome) Error() string { return o.public.Error() }

func (o *outcome) Unwrap() error { return o.public }

func fail(public error, reason string) error {
	return &outcome{public: public, reason: reason}
}

// Reason returns the internal detail behind an outcome, or "" for other errors.
func Reason(err error) string {
	var o *outcome
	if errors.As(err, &o) {
		return o.reason
	}
	return ""
}

// IsOutcome reports whether err is one of the expected, non-fatal outcomes.
func IsOutcome(err error) bool {
	for _, target := range []error{ErrRateLimited, ErrNotFound, ErrNotActive, ErrFull, ErrInvalid} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
