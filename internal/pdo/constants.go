// internal/pdo/constants.go
package pdo

// CiA 402 object dictionary indices carried in the cyclic exchange.
// These values define the protocol and MUST NOT be configurable.

const (
	ObjControlWord     uint16 = 0x6040
	ObjStatusWord      uint16 = 0x6041
	ObjModeOfOperation uint16 = 0x6060
	ObjTargetPosition  uint16 = 0x607A
	ObjActualPosition  uint16 = 0x6064
	ObjActualVelocity  uint16 = 0x606C
	ObjActualTorque    uint16 = 0x6077
)

// ---- MAPPING ENTRIES ----

// Mapping entries encode index:subindex:bitlen as index<<16 | sub<<8 | bits.

const (
	MapControlWord     uint32 = 0x60400010
	MapTargetPosition  uint32 = 0x607A0020
	MapModeOfOperation uint32 = 0x60600008
	MapPadding         uint32 = 0x00000008

	MapStatusWord     uint32 = 0x60410010
	MapActualPosition uint32 = 0x60640020
	MapActualVelocity uint32 = 0x606C0020
	MapActualTorque   uint32 = 0x60770010
)

// ---- CONTROL WORDS ----

// Drive-enable command sequence values (CiA 402 power state machine).

const (
	CtrlFaultReset      uint16 = 0x0080
	CtrlShutdown        uint16 = 0x0006
	CtrlSwitchOn        uint16 = 0x0007
	CtrlEnableOperation uint16 = 0x000F
)

// ---- MODES ----

// ModeCSP is cyclic synchronous position mode.
const ModeCSP uint8 = 8

// ---- STATUS WORD ----

const (
	statusOperationMask    uint16 = 0x000F
	statusOperationEnabled uint16 = 0x0007

	// StatusFaultBit is bit 3 of the status word.
	StatusFaultBit uint16 = 0x0008
)

// OperationEnabled reports whether the drive's power stage is enabled and
// ready (low nibble reads switched-on + enabled).
func OperationEnabled(statusWord uint16) bool {
	return statusWord&statusOperationMask == statusOperationEnabled
}

// Faulted reports whether the drive signals a fault in its status word.
func Faulted(statusWord uint16) bool {
	return statusWord&StatusFaultBit != 0
}
