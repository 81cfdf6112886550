package reflection

import "time"

// SetClock overrides the scheduler clock for deterministic tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}
