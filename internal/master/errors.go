// internal/master/errors.go
package master

import "errors"

// Startup error taxonomy. Any of these aborts the startup sequence before
// the runtime loops start; the process exits non-zero. Failure to reach
// OPERATIONAL after mapping is deliberately NOT in this list (degraded,
// non-fatal; the health monitor drives recovery).
var (
	// ErrTransportInit: no link on the requested network interface.
	ErrTransportInit = errors.New("master: transport init failed")

	// ErrNoDevices: discovery returned zero devices.
	ErrNoDevices = errors.New("master: no devices found")

	// ErrStateTimeout: the group missed a bounded PRE-OP/SAFE-OP window.
	ErrStateTimeout = errors.New("master: state transition timeout")

	// ErrMappingFailed: one or more mapping/assignment SDO writes failed.
	ErrMappingFailed = errors.New("master: mapping configuration failed")
)
