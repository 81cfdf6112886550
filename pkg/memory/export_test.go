package memory

import "time"

// SetClock overrides the ranking clock for deterministic tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.now = now
}
