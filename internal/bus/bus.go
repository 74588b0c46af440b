// internal/bus/bus.go

// Package bus defines the contract between the master core and the
// fieldbus transport/lifecycle collaborator. Frame construction, device
// enumeration, the mailbox protocol and socket transport live behind this
// interface; the core depends on operations only.
package bus

import "time"

// State is a device state machine (ESM) state. The error/ack modifier bit
// may be OR-ed onto a base state.
type State uint16

const (
	StateNone        State = 0x00
	StateInit        State = 0x01
	StatePreOp       State = 0x02
	StateSafeOp      State = 0x04
	StateOperational State = 0x08

	// StateErrorBit doubles as the acknowledge request bit when written
	// back to a device sitting in SAFE-OP + ERROR.
	StateErrorBit State = 0x10
	StateAckBit   State = 0x10
)

// Broadcast addresses all devices in one state request.
const Broadcast = 0

// String returns the conventional short name for a state.
func (s State) String() string {
	base := s &^ StateErrorBit
	var name string
	switch base {
	case StateNone:
		name = "NONE"
	case StateInit:
		name = "INIT"
	case StatePreOp:
		name = "PRE-OP"
	case StateSafeOp:
		name = "SAFE-OP"
	case StateOperational:
		name = "OPERATIONAL"
	default:
		name = "UNKNOWN"
	}
	if s&StateErrorBit != 0 {
		name += "+ERROR"
	}
	return name
}

// ---- CONFIGURATION OBJECTS ----

// SDO indices used while configuring the cyclic mapping.
const (
	ObjRxMapping uint16 = 0x1600 // RX mapping object
	ObjTxMapping uint16 = 0x1A00 // TX mapping object
	ObjRxAssign  uint16 = 0x1C12 // RX sync-manager assignment
	ObjTxAssign  uint16 = 0x1C13 // TX sync-manager assignment
	ObjDCConfig  uint16 = 0x1C32 // DC synchronization configuration
)

// Slave is the per-device record exposed by the transport. Ordinals are
// 1-based; index 0 is the broadcast pseudo-device. Outputs/Inputs are
// windows into the mapped process image and are only valid after ConfigMap.
type Slave struct {
	Name         string
	State        State
	ALStatusCode uint16

	Outputs []byte
	Inputs  []byte

	HasDC    bool
	DCActive bool
	Lost     bool
}

// Bus is the full transport collaborator contract consumed by the startup
// lifecycle controller. The cyclic loop and the health monitor each consume
// narrower views declared in their own packages.
//
// Implementations are not assumed safe for concurrent use; callers must
// serialize access (see Serialize).
type Bus interface {
	// Open attaches to the named network interface.
	Open(ifname string) error
	Close() error

	// ConfigInit discovers and configures devices, returning the count.
	ConfigInit(autoConfig bool) (int, error)

	SlaveCount() int
	// Slave returns the 1-based device record. The returned pointer stays
	// valid for the bus lifetime; the transport mutates it on state reads.
	Slave(i int) *Slave

	// ReadStates refreshes every Slave record and returns the lowest
	// observed state.
	ReadStates() (State, error)
	// WriteState requests a state for one device, or for the whole group
	// when i is Broadcast.
	WriteState(i int, s State) error
	// CheckState waits, bounded by timeout, for the device (or group) to
	// reach the wanted state and returns the state actually observed.
	CheckState(i int, want State, timeout time.Duration) State

	SDOWrite(i int, index uint16, sub uint8, value []byte, timeout time.Duration) error
	SDORead(i int, index uint16, sub uint8, buf []byte, timeout time.Duration) (int, error)

	// ConfigDC configures the distributed-clock reference device and
	// reports whether any device carries a hardware clock.
	ConfigDC() (bool, error)
	// DCSync0 enables or disables the sync pulse on one device.
	DCSync0(i int, enable bool, cycle, shift time.Duration) error
	// DCTime returns the current hardware time reference in nanoseconds.
	DCTime() int64

	// SetManualStateChange disables automatic state progression inside the
	// transport; all transitions become explicit WriteState requests.
	SetManualStateChange(manual bool)

	// ConfigMap builds the process image from the configured mapping and
	// binds every Slave's Outputs/Inputs windows. Returns the image size.
	ConfigMap() (int, error)

	// OutputsWKC and InputsWKC return the group work-counter contributions
	// of the mapped output and input data.
	OutputsWKC() int
	InputsWKC() int

	// Send transmits the output half of the process image.
	Send() error
	// Receive collects the input half and returns the reported work counter.
	Receive(timeout time.Duration) (int, error)

	// Reconfig re-runs the device configuration for one device, bounded by
	// timeout. True on success.
	Reconfig(i int, timeout time.Duration) bool
	// Recover attempts to re-attach a lost device, bounded by timeout.
	Recover(i int, timeout time.Duration) bool
}
