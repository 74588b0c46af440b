// internal/gateway/encode.go
package gateway

// Snapshot represents exactly what the gateway is allowed to deliver for
// one device. It contains no logic and no memory of the past beyond
// current state.
type Snapshot struct {
	Health         uint16
	ESMState       uint16
	ALStatusCode   uint16
	StatusWord     uint16
	SecondsInError uint16
	Position       int32
	Velocity       int32
	Torque         int16
}

// Encode converts a Snapshot into a full device status block without the
// name tail. Layout is protocol-locked. No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealthCode] = s.Health
	regs[SlotESMState] = s.ESMState
	regs[SlotALStatusCode] = s.ALStatusCode
	regs[SlotStatusWord] = s.StatusWord
	regs[SlotSecondsInError] = s.SecondsInError
	regs[SlotPositionHi] = uint16(uint32(s.Position) >> 16)
	regs[SlotPositionLo] = uint16(uint32(s.Position))
	regs[SlotVelocityHi] = uint16(uint32(s.Velocity) >> 16)
	regs[SlotVelocityLo] = uint16(uint32(s.Velocity))
	regs[SlotTorque] = uint16(s.Torque)

	return regs
}

// encodeDeviceNameRegs packs up to 16 ASCII characters into 8 uint16
// registers. Each register stores two ASCII bytes in big-endian order.
func encodeDeviceNameRegs(name string) []uint16 {
	out := make([]uint16, SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > DeviceNameMaxChars {
		b = b[:DeviceNameMaxChars]
	}

	// sanitize to printable ASCII
	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < DeviceNameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}
