package queue

import "fmt"

// Priority orders jobs within one queue. Lower values are served first.
type Priority int

const (
	// PriorityHigh is served before everything else.
	PriorityHigh Priority = 1

	// PriorityNormal is the default.
	PriorityNormal Priority = 2

	// PriorityLow waits until higher streams are drained.
	PriorityLow Priority = 3
)

// String returns the string representation of a priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// IsValid returns true if the priority is a valid value.
func (p Priority) IsValid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

// PriorityFromConfig maps a connector priority (1-3, 0 for unset) onto a
// queue priority.
func PriorityFromConfig(n int) Priority {
	p := Priority(n)
	if !p.IsValid() {
		return PriorityNormal
	}
	return p
}

// AllPriorities returns all priority levels in order of precedence (high first).
func AllPriorities() []Priority {
	return []Priority{PriorityHigh, PriorityNormal, PriorityLow}
}

func (p Priority) streamSuffix() string {
	return fmt.Sprintf("p%d", int(p))
}
