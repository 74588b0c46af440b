// internal/cyclic/ramp.go
package cyclic

import "github.com/tamzrod/ecat-master/internal/pdo"

// Enable-sequence thresholds in cycles. The drive command advances purely
// by cycle count, matching the reference controller; it is NOT gated on the
// observed status word. At 500us per cycle the full sequence takes 5s.
const (
	phaseFaultReset = 4000  // fault reset, target zero
	phaseShutdown   = 6000  // ready to switch on, hold position
	phaseSwitchOn   = 8000  // switched on, hold position
	phaseEnable     = 10000 // operation enabled, hold position
	rampSaturation  = 12000 // ordinal stops advancing here
)

// Ramp is the drive-enable sequence state: a monotonically increasing
// cycle ordinal plus the per-cycle position increment applied once the
// sequence has completed. Owned exclusively by the cyclic loop.
type Ramp struct {
	cycle     int
	increment int32
}

// NewRamp returns a ramp at ordinal zero.
func NewRamp(increment int32) *Ramp {
	return &Ramp{increment: increment}
}

// Cycle returns the current ordinal.
func (r *Ramp) Cycle() int {
	return r.cycle
}

// Next produces the command for the current cycle and advances the ordinal
// (saturating). actualPos is the last observed actual position; external
// overrides the cruise target when haveExternal is set. Next must only be
// called on cycles whose exchange met the expected work counter; a
// degraded cycle must not advance the sequence.
func (r *Ramp) Next(actualPos int32, external int32, haveExternal bool) pdo.RxProcessData {
	rx := pdo.RxProcessData{ModeOfOperation: pdo.ModeCSP}

	switch {
	case r.cycle <= phaseFaultReset:
		rx.ControlWord = pdo.CtrlFaultReset
		rx.TargetPosition = 0
	case r.cycle <= phaseShutdown:
		rx.ControlWord = pdo.CtrlShutdown
		rx.TargetPosition = actualPos
	case r.cycle <= phaseSwitchOn:
		rx.ControlWord = pdo.CtrlSwitchOn
		rx.TargetPosition = actualPos
	case r.cycle <= phaseEnable:
		rx.ControlWord = pdo.CtrlEnableOperation
		rx.TargetPosition = actualPos
	default:
		rx.ControlWord = pdo.CtrlEnableOperation
		if haveExternal {
			rx.TargetPosition = external
		} else {
			rx.TargetPosition = actualPos + r.increment
		}
	}

	if r.cycle < rampSaturation {
		r.cycle++
	}
	return rx
}
