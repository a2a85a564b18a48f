package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited matches any *Error with errors.Is.
var ErrRateLimited = errors.New("rate limit exceeded")

// Error is returned when a source has used its allowance for the current
// window. It is raised before any network call is made.
type Error struct {
	SourceID   string
	Spec       Spec
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded for source %s (%s), retry after %s",
		e.SourceID, e.Spec, e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *Error) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter extracts the wait hint from a rate limit error chain.
func RetryAfter(err error) (time.Duration, bool) {
	var rlErr *Error
	if errors.As(err, &rlErr) {
		return rlErr.RetryAfter, true
	}
	return 0, false
}
