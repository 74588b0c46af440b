// internal/clocksync/clocksync.go

// Package clocksync aligns the master's cyclic wake times with the
// distributed hardware clock shared by the devices. A proportional-integral
// controller on clock phase produces a per-cycle offset that is added to
// the nominal period when computing the next absolute wake time.
package clocksync

// Sync carries the controller state. Single writer: the cyclic exchange
// loop calls Offset once per cycle; no locking is needed or provided.
type Sync struct {
	integral   int64
	lastDelta  int64
	lastOffset int64
}

// New returns a zeroed controller.
func New() *Sync {
	return &Sync{}
}

// Offset computes the wake-time correction in nanoseconds for the next
// cycle, given the hardware time reference and the nominal cycle period.
//
// The phase error is the reference time modulo the period, wrapped to a
// signed range centered on zero. The integral term is bang-bang (+1/-1 per
// cycle) and saturates only by natural integer width. Both divisions
// truncate. Deterministic and replayable for a recorded reference sequence.
func (s *Sync) Offset(refTime, cycleTime int64) int64 {
	delta := refTime % cycleTime
	if delta > cycleTime/2 {
		delta -= cycleTime
	}
	if delta > 0 {
		s.integral++
	}
	if delta < 0 {
		s.integral--
	}

	offset := -(delta / 100) - (s.integral / 20)

	s.lastDelta = delta
	s.lastOffset = offset
	return offset
}

// Reset clears the controller state. Used when the wake-time base is
// resynchronized after a run of missed cycles.
func (s *Sync) Reset() {
	s.integral = 0
	s.lastDelta = 0
	s.lastOffset = 0
}

// Stats is a point-in-time view of the controller, for diagnostics.
type Stats struct {
	Integral   int64
	LastDelta  int64
	LastOffset int64
}

// GetStats returns the current controller state.
func (s *Sync) GetStats() Stats {
	return Stats{
		Integral:   s.integral,
		LastDelta:  s.lastDelta,
		LastOffset: s.lastOffset,
	}
}
