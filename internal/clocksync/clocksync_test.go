// internal/clocksync/clocksync_test.go
package clocksync

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

const cycle = int64(500_000) // 500us in ns

func TestOffset_WrapsToSignedRange(t *testing.T) {
	s := New()

	// Just past the half period: wraps negative.
	off := s.Offset(cycle/2+100, cycle)
	st := s.GetStats()
	assert.Equal(t, -(cycle/2 - 100), st.LastDelta)
	assert.Equal(t, int64(-1), st.Integral)
	assert.Equal(t, -(st.LastDelta / 100) - (st.Integral / 20), off)

	// Exactly half stays positive.
	s.Reset()
	s.Offset(cycle/2, cycle)
	assert.Equal(t, cycle/2, s.GetStats().LastDelta)
}

func TestOffset_BangBangIntegral(t *testing.T) {
	s := New()
	for i := 0; i < 40; i++ {
		s.Offset(1, cycle) // constant +1ns phase error
	}
	assert.Equal(t, int64(40), s.GetStats().Integral)

	// 40/20 = 2 from the integral term, delta/100 truncates to 0.
	off := s.Offset(1, cycle)
	assert.Equal(t, int64(-2), off)
}

func TestOffset_Replayable(t *testing.T) {
	refs := []int64{12_345, 499_900, 250_000, 0, 777}

	run := func() []int64 {
		s := New()
		out := make([]int64, 0, len(refs))
		for _, r := range refs {
			out = append(out, s.Offset(r, cycle))
		}
		return out
	}

	assert.Equal(t, run(), run())
}

// Convergence: a master whose wake phase starts badly misaligned, with
// bounded per-cycle jitter, must settle so the running delta stays well
// inside the cycle period.
func TestOffset_Convergence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := New()

	phase := int64(200_000) // initial misalignment, ns
	for i := 0; i < 20_000; i++ {
		jitter := rng.Int63n(2_001) - 1_000 // +/-1us
		ref := phase + jitter
		if ref < 0 {
			ref += cycle
		}
		off := s.Offset(ref, cycle)
		phase = (phase + off) % cycle
		if phase < 0 {
			phase += cycle
		}
	}

	// After settling, the measured delta must be a small fraction of the
	// period for every subsequent cycle.
	for i := 0; i < 2_000; i++ {
		jitter := rng.Int63n(2_001) - 1_000
		ref := phase + jitter
		if ref < 0 {
			ref += cycle
		}
		off := s.Offset(ref, cycle)
		d := s.GetStats().LastDelta
		if d < 0 {
			d = -d
		}
		assert.Less(t, d, cycle/8, "cycle %d: delta %d not bounded", i, d)
		phase = (phase + off) % cycle
		if phase < 0 {
			phase += cycle
		}
	}
}
