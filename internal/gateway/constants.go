// internal/gateway/constants.go
package gateway

// Device status block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of holding registers per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the device health state.
const SlotHealthCode = 0

// SlotESMState holds the raw state-machine state byte.
const SlotESMState = 1

// SlotALStatusCode holds the last AL status code.
const SlotALStatusCode = 2

// SlotStatusWord holds the drive status word.
const SlotStatusWord = 3

// SlotSecondsInError holds the duration (in seconds) the device has been unhealthy.
const SlotSecondsInError = 4

// SlotPositionHi / SlotPositionLo hold the actual position, high word first.
const SlotPositionHi = 5
const SlotPositionLo = 6

// SlotVelocityHi / SlotVelocityLo hold the actual velocity, high word first.
const SlotVelocityHi = 7
const SlotVelocityLo = 8

// SlotTorque holds the actual torque in per-mille of rated torque.
const SlotTorque = 9

// ---- RESERVED RANGE ----

// Slots 10-11 are reserved for future use.
const SlotReservedStart = 10
const SlotReservedEnd = 11

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 12

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy OPERATIONAL device.
const HealthOK uint16 = 1

// HealthError represents a device fault or SAFE-OP error state.
const HealthError uint16 = 2

// HealthDegraded represents a known but not OPERATIONAL state.
const HealthDegraded uint16 = 3

// HealthLost represents a device that stopped answering.
const HealthLost uint16 = 4
