// internal/cyclic/ramp_test.go
package cyclic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tamzrod/ecat-master/internal/pdo"
)

func TestRamp_Stages(t *testing.T) {
	r := NewRamp(20)

	// Ordinal 0..4000: fault reset with zero target.
	cmd := r.Next(5555, 0, false)
	assert.Equal(t, pdo.CtrlFaultReset, cmd.ControlWord)
	assert.Equal(t, int32(0), cmd.TargetPosition)
	assert.Equal(t, pdo.ModeCSP, cmd.ModeOfOperation)

	advanceTo := func(ordinal int) {
		for r.Cycle() < ordinal {
			r.Next(1000, 0, false)
		}
	}

	advanceTo(4001)
	cmd = r.Next(1000, 0, false)
	assert.Equal(t, pdo.CtrlShutdown, cmd.ControlWord)
	assert.Equal(t, int32(1000), cmd.TargetPosition)

	advanceTo(6001)
	cmd = r.Next(1000, 0, false)
	assert.Equal(t, pdo.CtrlSwitchOn, cmd.ControlWord)

	advanceTo(8001)
	cmd = r.Next(1000, 0, false)
	assert.Equal(t, pdo.CtrlEnableOperation, cmd.ControlWord)
	assert.Equal(t, int32(1000), cmd.TargetPosition, "hold, no increment yet")

	advanceTo(10001)
	cmd = r.Next(1000, 0, false)
	assert.Equal(t, pdo.CtrlEnableOperation, cmd.ControlWord)
	assert.Equal(t, int32(1020), cmd.TargetPosition, "cruise increments")
}

func TestRamp_SaturatesAt12000(t *testing.T) {
	r := NewRamp(20)
	for i := 0; i < 15000; i++ {
		r.Next(0, 0, false)
	}
	assert.Equal(t, rampSaturation, r.Cycle())

	// Still produces cruise commands after saturation.
	cmd := r.Next(100, 0, false)
	assert.Equal(t, pdo.CtrlEnableOperation, cmd.ControlWord)
	assert.Equal(t, int32(120), cmd.TargetPosition)
	assert.Equal(t, rampSaturation, r.Cycle())
}

func TestRamp_ExternalTargetOverridesCruise(t *testing.T) {
	r := NewRamp(20)
	for r.Cycle() < rampSaturation {
		r.Next(0, 0, false)
	}

	cmd := r.Next(100, 9999, true)
	assert.Equal(t, int32(9999), cmd.TargetPosition)

	// External targets do not apply during the enable sequence.
	r2 := NewRamp(20)
	cmd = r2.Next(100, 9999, true)
	assert.Equal(t, int32(0), cmd.TargetPosition)
}
