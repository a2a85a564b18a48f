package circuitbreaker

import "time"

// SetClock replaces the time source of every breaker the group creates.
func (g *Group) SetClock(now func() time.Time) {
	g.now = now
}
