// internal/bus/sim/sim.go

// Package sim is an in-memory implementation of the bus contract modeling a
// segment of CiA 402 servo drives. It exists so the master core can run and
// be tested without a physical network: state transitions are instant, SDO
// writes land in a per-drive object store, and the drive model follows the
// commanded target position once its power stage is enabled.
//
// Fault injection (Drop, ForceSafeOpError, DepressWKC) drives the health
// monitor and end-to-end scenarios.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tamzrod/ecat-master/internal/bus"
	"github.com/tamzrod/ecat-master/internal/pdo"
)

type drive struct {
	state        bus.State
	alStatusCode uint16

	// last latched command and current model state
	cmd      pdo.RxProcessData
	status   pdo.TxProcessData
	hasDC    bool
	dcActive bool

	// dropped drives answer no state reads and contribute no work counter
	dropped     bool
	recoverable bool

	sdo map[uint32][]byte
}

func sdoKey(index uint16, sub uint8) uint32 {
	return uint32(index)<<8 | uint32(sub)
}

// Bus simulates the transport collaborator. Safe for concurrent use: every
// operation holds one internal mutex, mirroring the serialization the real
// transport requires of its callers.
type Bus struct {
	mu sync.Mutex

	opened bool
	manual bool
	mapped bool

	drives []*drive
	slaves []*bus.Slave // 1-based; index 0 unused
	iomap  []byte

	cycle   time.Duration
	dcTime  int64
	dcSkew  int64 // ns added to DC time per exchange, models clock drift
	wkcBias int   // subtracted from every reported work counter
}

// New returns a simulated segment with n drives, all DC-capable.
func New(n int, cycle time.Duration) *Bus {
	b := &Bus{cycle: cycle}
	for i := 0; i < n; i++ {
		b.drives = append(b.drives, &drive{
			state:       bus.StateNone,
			recoverable: true,
			hasDC:       true,
			sdo:         make(map[uint32][]byte),
		})
	}
	return b
}

// SetDCSkew sets the per-exchange hardware clock drift in nanoseconds.
func (b *Bus) SetDCSkew(ns int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dcSkew = ns
}

// ---- fault injection ----

// Drop makes a drive vanish: its state reads zero and it stops contributing
// to the work counter.
func (b *Bus) Drop(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.drives[i-1]
	d.dropped = true
	d.state = bus.StateNone
}

// SetRecoverable controls whether Recover calls can re-attach a dropped
// drive.
func (b *Bus) SetRecoverable(i int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drives[i-1].recoverable = ok
}

// Reappear makes a dropped drive answer state reads again without an
// explicit Recover call, as a flaky cable would.
func (b *Bus) Reappear(i int, s bus.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.drives[i-1]
	d.dropped = false
	d.state = s
}

// ForceSafeOpError parks a drive in SAFE-OP with the error bit and the
// given AL status code.
func (b *Bus) ForceSafeOpError(i int, alStatus uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.drives[i-1]
	d.state = bus.StateSafeOp | bus.StateErrorBit
	d.alStatusCode = alStatus
}

// DepressWKC lowers every subsequently reported work counter by delta.
func (b *Bus) DepressWKC(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wkcBias = delta
}

// SDOLog returns the raw bytes last written to one object, or nil.
func (b *Bus) SDOLog(i int, index uint16, sub uint8) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drives[i-1].sdo[sdoKey(index, sub)]
}

// ---- bus.Bus ----

func (b *Bus) Open(ifname string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ifname == "" {
		return errors.New("sim: interface name required")
	}
	b.opened = true
	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = false
	return nil
}

func (b *Bus) ConfigInit(autoConfig bool) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opened {
		return 0, errors.New("sim: not opened")
	}

	b.slaves = make([]*bus.Slave, len(b.drives)+1)
	b.slaves[0] = &bus.Slave{Name: "broadcast"}
	for i, d := range b.drives {
		if !d.dropped {
			d.state = bus.StatePreOp
		}
		b.slaves[i+1] = &bus.Slave{
			Name:  fmt.Sprintf("sim-drive-%d", i+1),
			State: d.state,
			HasDC: d.hasDC,
		}
	}
	return len(b.drives), nil
}

func (b *Bus) SlaveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.drives)
}

func (b *Bus) Slave(i int) *bus.Slave {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.slaves) {
		return nil
	}
	return b.slaves[i]
}

func (b *Bus) ReadStates() (bus.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readStatesLocked(), nil
}

func (b *Bus) readStatesLocked() bus.State {
	lowest := bus.State(0xFF)
	for i, d := range b.drives {
		s := d.state
		if d.dropped {
			s = bus.StateNone
		}
		sl := b.slaves[i+1]
		sl.State = s
		sl.ALStatusCode = d.alStatusCode
		sl.Lost = d.dropped
		if s < lowest {
			lowest = s
		}
	}
	if lowest == 0xFF {
		lowest = bus.StateNone
	}
	return lowest
}

func (b *Bus) WriteState(i int, s bus.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i == bus.Broadcast {
		for ord := range b.drives {
			b.applyStateLocked(ord+1, s)
		}
		return nil
	}
	if i < 1 || i > len(b.drives) {
		return fmt.Errorf("sim: no slave %d", i)
	}
	b.applyStateLocked(i, s)
	return nil
}

func (b *Bus) applyStateLocked(i int, s bus.State) {
	d := b.drives[i-1]
	if d.dropped {
		return
	}

	// SAFE-OP + ACK acknowledges a SAFE-OP + ERROR condition.
	if s == bus.StateSafeOp|bus.StateAckBit {
		if d.state == bus.StateSafeOp|bus.StateErrorBit {
			d.state = bus.StateSafeOp
			d.alStatusCode = 0
		}
		return
	}

	// A faulted drive ignores forward transitions until acknowledged.
	if d.state&bus.StateErrorBit != 0 {
		return
	}

	if s == bus.StateOperational && !b.mapped {
		// Cannot run cyclic exchange without a mapped process image.
		return
	}
	d.state = s &^ bus.StateAckBit
}

func (b *Bus) CheckState(i int, want bus.State, timeout time.Duration) bus.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Transitions are instant in simulation; report the settled state.
	if i == bus.Broadcast {
		return b.readStatesLocked()
	}
	if i < 1 || i > len(b.drives) {
		return bus.StateNone
	}
	d := b.drives[i-1]
	if d.dropped {
		return bus.StateNone
	}
	return d.state
}

func (b *Bus) SDOWrite(i int, index uint16, sub uint8, value []byte, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 1 || i > len(b.drives) {
		return fmt.Errorf("sim: no slave %d", i)
	}
	d := b.drives[i-1]
	if d.dropped {
		return fmt.Errorf("sim: slave %d not responding", i)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	d.sdo[sdoKey(index, sub)] = cp
	return nil
}

func (b *Bus) SDORead(i int, index uint16, sub uint8, buf []byte, timeout time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 1 || i > len(b.drives) {
		return 0, fmt.Errorf("sim: no slave %d", i)
	}
	d := b.drives[i-1]
	if d.dropped {
		return 0, fmt.Errorf("sim: slave %d not responding", i)
	}
	v, ok := d.sdo[sdoKey(index, sub)]
	if !ok {
		return 0, nil
	}
	return copy(buf, v), nil
}

func (b *Bus) ConfigDC() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	any := false
	for _, d := range b.drives {
		if d.hasDC && !d.dropped {
			any = true
		}
	}
	return any, nil
}

func (b *Bus) DCSync0(i int, enable bool, cycle, shift time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 1 || i > len(b.drives) {
		return fmt.Errorf("sim: no slave %d", i)
	}
	d := b.drives[i-1]
	d.dcActive = enable
	if i < len(b.slaves) {
		b.slaves[i].DCActive = enable
	}
	return nil
}

func (b *Bus) DCTime() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dcTime
}

func (b *Bus) SetManualStateChange(manual bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.manual = manual
}

func (b *Bus) ConfigMap() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.slaves == nil {
		return 0, errors.New("sim: ConfigInit not called")
	}

	total := len(b.drives) * (pdo.RxSize + pdo.TxSize)
	b.iomap = make([]byte, total)

	off := 0
	for i := range b.drives {
		sl := b.slaves[i+1]
		sl.Outputs = b.iomap[off : off+pdo.RxSize]
		off += pdo.RxSize
		sl.Inputs = b.iomap[off : off+pdo.TxSize]
		off += pdo.TxSize
	}
	b.mapped = true
	return total, nil
}

func (b *Bus) OutputsWKC() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.drives)
}

func (b *Bus) InputsWKC() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.drives)
}

func (b *Bus) Send() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.mapped {
		return errors.New("sim: process image not mapped")
	}
	// Latch each live drive's command from its output window.
	for i, d := range b.drives {
		if d.dropped {
			continue
		}
		cmd, err := pdo.DecodeRx(b.slaves[i+1].Outputs)
		if err != nil {
			return err
		}
		d.cmd = cmd
	}
	return nil
}

func (b *Bus) Receive(timeout time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.mapped {
		return 0, errors.New("sim: process image not mapped")
	}

	b.dcTime += int64(b.cycle) + b.dcSkew

	wkc := 0
	for i, d := range b.drives {
		if d.dropped {
			continue
		}
		d.step()
		if err := pdo.EncodeTx(b.slaves[i+1].Inputs, d.status); err != nil {
			return 0, err
		}
		// One output and one input datagram acknowledged per drive.
		wkc += 3
	}
	wkc -= b.wkcBias
	if wkc < 0 {
		wkc = 0
	}
	return wkc, nil
}

// step advances the drive model one cycle under the latched command.
func (d *drive) step() {
	cw := d.cmd.ControlWord

	switch {
	case cw&pdo.CtrlFaultReset != 0:
		d.status.StatusWord = 0x0040 // switch-on disabled, fault cleared
	case cw == pdo.CtrlShutdown:
		d.status.StatusWord = 0x0021 // ready to switch on
	case cw == pdo.CtrlSwitchOn:
		d.status.StatusWord = 0x0023 // switched on
	case cw == pdo.CtrlEnableOperation:
		d.status.StatusWord = 0x0027 // operation enabled
	}

	if pdo.OperationEnabled(d.status.StatusWord) && d.cmd.ModeOfOperation == pdo.ModeCSP {
		delta := d.cmd.TargetPosition - d.status.ActualPosition
		// Ideal position loop: land on target within the cycle.
		d.status.ActualPosition = d.cmd.TargetPosition
		d.status.ActualVelocity = delta * 2000 // counts per second at 500us
		t := delta / 4
		switch {
		case t > 3000:
			t = 3000
		case t < -3000:
			t = -3000
		}
		d.status.ActualTorque = int16(t)
	} else {
		d.status.ActualVelocity = 0
		d.status.ActualTorque = 0
	}
}

func (b *Bus) Reconfig(i int, timeout time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 1 || i > len(b.drives) {
		return false
	}
	d := b.drives[i-1]
	if d.dropped {
		return false
	}
	d.alStatusCode = 0
	d.state = bus.StateOperational
	return true
}

func (b *Bus) Recover(i int, timeout time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 1 || i > len(b.drives) {
		return false
	}
	d := b.drives[i-1]
	if !d.dropped || !d.recoverable {
		return false
	}
	d.dropped = false
	d.state = bus.StatePreOp
	return true
}
