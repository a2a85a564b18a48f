// Package ratelimit enforces per-source fixed-window request limits.
//
// Limits are written as "N/window" where window is minute, hour, day or
// month (30 days). A window opens on the first request for a source and
// lasts its full duration; requests beyond N inside it are denied. Bursts
// of up to 2N are possible across a window boundary.
package ratelimit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSpec is wrapped by ParseSpec failures.
var ErrInvalidSpec = errors.New("invalid rate limit spec")

const month = 30 * 24 * time.Hour

var windows = map[string]time.Duration{
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"month":  month,
}

// Spec is a parsed rate limit.
type Spec struct {
	Limit  int
	Window time.Duration
}

func (s Spec) String() string {
	for name, d := range windows {
		if d == s.Window {
			return fmt.Sprintf("%d/%s", s.Limit, name)
		}
	}
	return fmt.Sprintf("%d/%s", s.Limit, s.Window)
}

// ParseSpec parses "count/window", e.g. "5/minute".
func ParseSpec(raw string) (Spec, error) {
	countPart, windowPart, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q: expected count/window", ErrInvalidSpec, raw)
	}

	limit, err := strconv.Atoi(strings.TrimSpace(countPart))
	if err != nil || limit < 1 {
		return Spec{}, fmt.Errorf("%w: %q: count must be a positive integer", ErrInvalidSpec, raw)
	}

	window, found := windows[strings.ToLower(strings.TrimSpace(windowPart))]
	if !found {
		return Spec{}, fmt.Errorf("%w: %q: window must be minute, hour, day or month", ErrInvalidSpec, raw)
	}

	return Spec{Limit: limit, Window: window}, nil
}
