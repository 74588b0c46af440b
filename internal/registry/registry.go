// internal/registry/registry.go

// Package registry is the shared device bookkeeping exchanged between the
// startup lifecycle, the cyclic exchange loop and the health monitor. It
// replaces the reference implementation's process-wide globals with one
// explicit object handed to both loops at construction.
//
// Write discipline:
//   - lifecycle controller populates devices once during startup
//   - cyclic loop writes only the work counter and per-device status
//     snapshots, all through atomics
//   - health monitor is the sole writer of recovery-state transitions
//   - both loops read the two summary flags; neither blocks on the other
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/tamzrod/ecat-master/internal/bus"
	"github.com/tamzrod/ecat-master/internal/pdo"
)

// Device is the per-device bookkeeping entry. Mutable fields are guarded by
// the owning Registry's mutex except the status snapshot, which is a
// single-writer atomic pointer updated by the cyclic loop.
type Device struct {
	Ordinal int
	Name    string

	State        bus.State
	ALStatusCode uint16
	HasDC        bool
	Lost         bool

	lastStatus atomic.Pointer[pdo.TxProcessData]
}

// SetStatus publishes the latest cyclic status record for this device.
// Called from the cyclic loop only.
func (d *Device) SetStatus(tx pdo.TxProcessData) {
	d.lastStatus.Store(&tx)
}

// Status returns the last published status record, zero before the first
// successful exchange.
func (d *Device) Status() pdo.TxProcessData {
	if p := d.lastStatus.Load(); p != nil {
		return *p
	}
	return pdo.TxProcessData{}
}

// Registry holds all device entries plus the scalar health flags shared by
// the two runtime loops.
type Registry struct {
	mu      sync.Mutex
	devices []*Device

	operational  atomic.Bool
	pendingCheck atomic.Bool

	expectedWKC atomic.Int64
	lastWKC     atomic.Int64
}

// New returns an empty registry; devices are added during discovery.
func New() *Registry {
	return &Registry{}
}

// AddDevice appends a device entry and returns it. Ordinals are 1-based in
// discovery order.
func (r *Registry) AddDevice(name string, hasDC bool) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := &Device{
		Ordinal: len(r.devices) + 1,
		Name:    name,
		HasDC:   hasDC,
	}
	r.devices = append(r.devices, d)
	return d
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Device returns the 1-based device entry, or nil when out of range.
func (r *Registry) Device(ordinal int) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ordinal < 1 || ordinal > len(r.devices) {
		return nil
	}
	return r.devices[ordinal-1]
}

// AnyDC reports whether any registered device carries a hardware clock.
func (r *Registry) AnyDC() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.HasDC {
			return true
		}
	}
	return false
}

// Update mutates device bookkeeping under the registry lock. Used by the
// lifecycle controller and the health monitor; never by the cyclic loop.
func (r *Registry) Update(ordinal int, fn func(d *Device)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ordinal < 1 || ordinal > len(r.devices) {
		return
	}
	fn(r.devices[ordinal-1])
}

// DeviceView is a coherent copy of one device's bookkeeping plus its last
// status snapshot, safe to hand outside the lock.
type DeviceView struct {
	Ordinal      int
	Name         string
	State        bus.State
	ALStatusCode uint16
	HasDC        bool
	Lost         bool
	Status       pdo.TxProcessData
}

// Snapshot returns a coherent view of every device.
func (r *Registry) Snapshot() []DeviceView {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DeviceView, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, DeviceView{
			Ordinal:      d.Ordinal,
			Name:         d.Name,
			State:        d.State,
			ALStatusCode: d.ALStatusCode,
			HasDC:        d.HasDC,
			Lost:         d.Lost,
			Status:       d.Status(),
		})
	}
	return out
}

// ---- SUMMARY FLAGS ----

// SetOperational raises or clears the group operational flag.
func (r *Registry) SetOperational(v bool) { r.operational.Store(v) }

// Operational reports whether the group reached the runtime phase.
func (r *Registry) Operational() bool { return r.operational.Load() }

// SetPendingCheck raises or clears the group re-check request.
func (r *Registry) SetPendingCheck(v bool) { r.pendingCheck.Store(v) }

// PendingCheck reports whether a group re-check is requested.
func (r *Registry) PendingCheck() bool { return r.pendingCheck.Load() }

// ---- WORK COUNTER ----

// SetExpectedWKC records the work-counter baseline computed after mapping.
func (r *Registry) SetExpectedWKC(wkc int) { r.expectedWKC.Store(int64(wkc)) }

// ExpectedWKC returns the work-counter baseline.
func (r *Registry) ExpectedWKC() int { return int(r.expectedWKC.Load()) }

// SetLastWKC records the work counter of the latest exchange. Called from
// the cyclic loop every cycle.
func (r *Registry) SetLastWKC(wkc int) { r.lastWKC.Store(int64(wkc)) }

// LastWKC returns the work counter of the latest exchange.
func (r *Registry) LastWKC() int { return int(r.lastWKC.Load()) }

// WKCDeficit reports whether the latest exchange fell short of the baseline.
func (r *Registry) WKCDeficit() bool {
	return r.lastWKC.Load() < r.expectedWKC.Load()
}
