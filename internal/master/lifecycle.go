// internal/master/lifecycle.go

// Package master brings a discovered device group to the operational,
// cyclic-exchange state: discovery, PDO mapping, distributed-clock setup
// and the INIT -> PRE-OP -> SAFE-OP -> OPERATIONAL transition sequence.
// It runs single-threaded to completion before the runtime loops start.
package master

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/ecat-master/internal/bus"
	"github.com/tamzrod/ecat-master/internal/pdo"
	"github.com/tamzrod/ecat-master/internal/registry"
)

// Config is the startup surface of the lifecycle controller.
type Config struct {
	Interface    string
	CycleTime    time.Duration
	StateTimeout time.Duration

	// SDOTimeout bounds each mailbox write during mapping.
	SDOTimeout time.Duration
	// ReceiveTimeout bounds the warm-up process data receive.
	ReceiveTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.CycleTime == 0 {
		c.CycleTime = 500 * time.Microsecond
	}
	if c.StateTimeout == 0 {
		c.StateTimeout = 2 * time.Second
	}
	if c.SDOTimeout == 0 {
		c.SDOTimeout = 20 * time.Millisecond
	}
	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = 2 * time.Millisecond
	}
}

// Controller orchestrates the one-shot startup sequence.
type Controller struct {
	cfg Config
	bus bus.Bus
	reg *registry.Registry
	log *zap.Logger
}

// New creates a lifecycle controller. BringToOperational must be called
// exactly once.
func New(cfg Config, b bus.Bus, reg *registry.Registry, log *zap.Logger) *Controller {
	cfg.applyDefaults()
	return &Controller{cfg: cfg, bus: b, reg: reg, log: log}
}

// BringToOperational runs the startup sequence and returns the expected
// work counter consumed by the cyclic loop. Every step is fatal on failure
// except the final OPERATIONAL request: a group that stalls there is left
// to the health monitor, with per-device diagnostics logged.
func (c *Controller) BringToOperational() (int, error) {
	// Step 1: attach to the network interface.
	if err := c.bus.Open(c.cfg.Interface); err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrTransportInit, c.cfg.Interface, err)
	}
	c.log.Info("transport opened", zap.String("interface", c.cfg.Interface))

	// Step 2: discover and configure devices.
	count, err := c.bus.ConfigInit(false)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoDevices, err)
	}
	if count == 0 {
		return 0, ErrNoDevices
	}
	for i := 1; i <= count; i++ {
		sl := c.bus.Slave(i)
		c.reg.AddDevice(sl.Name, sl.HasDC)
	}
	c.log.Info("devices discovered", zap.Int("count", count))

	// Step 3: collect the group in PRE-OP.
	if err := c.groupToPreOp(count); err != nil {
		return 0, err
	}

	// Step 4: rewrite the cyclic mapping on every device.
	if err := c.configureMapping(count); err != nil {
		return 0, err
	}

	// Step 5: manual state control from here on; sync pulse per device.
	c.bus.SetManualStateChange(true)
	for i := 1; i <= count; i++ {
		if c.bus.Slave(i).HasDC {
			if err := c.bus.DCSync0(i, true, c.cfg.CycleTime, 0); err != nil {
				c.log.Warn("sync pulse setup failed",
					zap.Int("slave", i), zap.Error(err))
			}
		}
	}

	// Step 6: build the process image from the now-fixed mapping.
	size, err := c.bus.ConfigMap()
	if err != nil {
		return 0, fmt.Errorf("%w: config map: %v", ErrMappingFailed, err)
	}
	c.log.Info("process image mapped", zap.Int("bytes", size))

	// Step 7: distributed clock reference, then SAFE-OP.
	hasDC, err := c.bus.ConfigDC()
	if err != nil {
		c.log.Warn("distributed clock configuration failed", zap.Error(err))
	}
	c.log.Info("distributed clock configured", zap.Bool("has_dc", hasDC))

	if err := c.bus.WriteState(bus.Broadcast, bus.StateSafeOp); err != nil {
		return 0, fmt.Errorf("%w: request SAFE-OP: %v", ErrStateTimeout, err)
	}
	if got := c.bus.CheckState(bus.Broadcast, bus.StateSafeOp, 4*c.cfg.StateTimeout); got != bus.StateSafeOp {
		return 0, fmt.Errorf("%w: group stopped at %s waiting for SAFE-OP", ErrStateTimeout, got)
	}
	c.logDCConfig(count)

	// Step 8: work-counter baseline from the mapped I/O sizes.
	expected := c.bus.OutputsWKC()*2 + c.bus.InputsWKC()
	c.reg.SetExpectedWKC(expected)
	c.log.Info("expected work counter", zap.Int("wkc", expected))

	// Step 9: one warm-up exchange, then request OPERATIONAL. Non-fatal:
	// a stalled group is reported and handed to the health monitor.
	if err := c.bus.Send(); err != nil {
		c.log.Warn("warm-up send failed", zap.Error(err))
	}
	if _, err := c.bus.Receive(c.cfg.ReceiveTimeout); err != nil {
		c.log.Warn("warm-up receive failed", zap.Error(err))
	}

	if err := c.bus.WriteState(bus.Broadcast, bus.StateOperational); err != nil {
		c.log.Warn("request OPERATIONAL failed", zap.Error(err))
	}
	got := c.bus.CheckState(bus.Broadcast, bus.StateOperational, 5*c.cfg.StateTimeout)
	if got == bus.StateOperational {
		c.log.Info("group operational")
	} else {
		c.reportStalledGroup(count, got)
		c.reg.SetPendingCheck(true)
	}
	c.syncRegistry(count)
	c.reg.SetOperational(true)

	// Step 10: fault reset and CSP mode on every device before the cyclic
	// loop takes over.
	for i := 1; i <= count; i++ {
		if err := c.sdoWriteU16(i, pdo.ObjControlWord, 0, pdo.CtrlFaultReset); err != nil {
			c.log.Warn("initial control word write failed",
				zap.Int("slave", i), zap.Error(err))
		}
		if err := c.sdoWriteU8(i, pdo.ObjModeOfOperation, 0, pdo.ModeCSP); err != nil {
			c.log.Warn("initial mode write failed",
				zap.Int("slave", i), zap.Error(err))
		}
	}

	return expected, nil
}

// groupToPreOp pushes stragglers through INIT and collects the whole group
// in PRE-OP, bounded by 3x the state timeout.
func (c *Controller) groupToPreOp(count int) error {
	if _, err := c.bus.ReadStates(); err != nil {
		return fmt.Errorf("%w: read states: %v", ErrStateTimeout, err)
	}
	for i := 1; i <= count; i++ {
		sl := c.bus.Slave(i)
		if sl.State == bus.StatePreOp {
			continue
		}
		c.log.Warn("device not in PRE-OP",
			zap.Int("slave", i),
			zap.Stringer("state", sl.State),
			zap.String("al_status", ALStatusString(sl.ALStatusCode)))
		if err := c.bus.WriteState(i, bus.StateInit); err != nil {
			return fmt.Errorf("%w: request INIT for slave %d: %v", ErrStateTimeout, i, err)
		}
	}

	if err := c.bus.WriteState(bus.Broadcast, bus.StatePreOp); err != nil {
		return fmt.Errorf("%w: request PRE-OP: %v", ErrStateTimeout, err)
	}
	if got := c.bus.CheckState(bus.Broadcast, bus.StatePreOp, 3*c.cfg.StateTimeout); got != bus.StatePreOp {
		return fmt.Errorf("%w: group stopped at %s waiting for PRE-OP", ErrStateTimeout, got)
	}
	c.log.Info("group in PRE-OP")
	return nil
}

// configureMapping clears and rewrites the RX/TX mapping and sync-manager
// assignment objects on every device. Failures accumulate; any failed write
// aborts the startup.
func (c *Controller) configureMapping(count int) error {
	failed := 0

	rxEntries := []uint32{
		pdo.MapControlWord,
		pdo.MapTargetPosition,
		pdo.MapModeOfOperation,
		pdo.MapPadding,
	}
	txEntries := []uint32{
		pdo.MapStatusWord,
		pdo.MapActualPosition,
		pdo.MapActualVelocity,
		pdo.MapActualTorque,
	}

	for i := 1; i <= count; i++ {
		failed += c.writeMapping(i, bus.ObjRxMapping, bus.ObjRxAssign, rxEntries)
		failed += c.writeMapping(i, bus.ObjTxMapping, bus.ObjTxAssign, txEntries)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d mapping writes failed", ErrMappingFailed, failed)
	}
	c.log.Info("PDO mapping configured",
		zap.Int("rx_entries", len(rxEntries)),
		zap.Int("tx_entries", len(txEntries)))
	return nil
}

// writeMapping rewrites one mapping object and its assignment object on one
// device, returning the number of failed writes.
func (c *Controller) writeMapping(slave int, mapObj, assignObj uint16, entries []uint32) int {
	failed := 0
	fail := func(err error) {
		if err != nil {
			failed++
		}
	}

	// Disable the mapping before rewriting its entries.
	fail(c.sdoWriteU8(slave, mapObj, 0, 0))
	for n, entry := range entries {
		fail(c.sdoWriteU32(slave, mapObj, uint8(n+1), entry))
	}
	fail(c.sdoWriteU8(slave, mapObj, 0, uint8(len(entries))))

	// Rebind the sync-manager assignment to the rewritten object.
	fail(c.sdoWriteU16(slave, assignObj, 0, 0))
	fail(c.sdoWriteU16(slave, assignObj, 1, mapObj))
	fail(c.sdoWriteU16(slave, assignObj, 0, 1))

	if failed > 0 {
		c.log.Error("mapping writes failed",
			zap.Int("slave", slave),
			zap.Uint16("object", mapObj),
			zap.Int("failed", failed))
	}
	return failed
}

// logDCConfig reads back the DC synchronization object for diagnostics.
func (c *Controller) logDCConfig(count int) {
	for i := 1; i <= count; i++ {
		var ctl [2]byte
		if n, err := c.bus.SDORead(i, bus.ObjDCConfig, 1, ctl[:], c.cfg.SDOTimeout); err != nil || n < 2 {
			continue
		}
		var cyc [4]byte
		cycleNs := uint32(0)
		if n, err := c.bus.SDORead(i, bus.ObjDCConfig, 2, cyc[:], c.cfg.SDOTimeout); err == nil && n >= 4 {
			cycleNs = binary.LittleEndian.Uint32(cyc[:])
		}
		c.log.Info("DC sync configuration",
			zap.Int("slave", i),
			zap.Uint16("control", binary.LittleEndian.Uint16(ctl[:])),
			zap.Uint32("cycle_ns", cycleNs))
	}
}

// reportStalledGroup logs per-device diagnostics when OPERATIONAL was not
// reached within its window.
func (c *Controller) reportStalledGroup(count int, got bus.State) {
	c.log.Warn("group did not reach OPERATIONAL",
		zap.Stringer("state", got))
	if _, err := c.bus.ReadStates(); err != nil {
		return
	}
	for i := 1; i <= count; i++ {
		sl := c.bus.Slave(i)
		if sl.State == bus.StateOperational {
			continue
		}
		c.log.Warn("device stalled",
			zap.Int("slave", i),
			zap.Stringer("state", sl.State),
			zap.Uint16("al_status_code", sl.ALStatusCode),
			zap.String("al_status", ALStatusString(sl.ALStatusCode)))
	}
}

// syncRegistry mirrors the transport's device records into the registry.
func (c *Controller) syncRegistry(count int) {
	for i := 1; i <= count; i++ {
		sl := c.bus.Slave(i)
		c.reg.Update(i, func(d *registry.Device) {
			d.State = sl.State
			d.ALStatusCode = sl.ALStatusCode
			d.Lost = sl.Lost
		})
	}
}

// ---- SDO helpers ----

func (c *Controller) sdoWriteU8(slave int, index uint16, sub uint8, v uint8) error {
	return c.bus.SDOWrite(slave, index, sub, []byte{v}, c.cfg.SDOTimeout)
}

func (c *Controller) sdoWriteU16(slave int, index uint16, sub uint8, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return c.bus.SDOWrite(slave, index, sub, b[:], c.cfg.SDOTimeout)
}

func (c *Controller) sdoWriteU32(slave int, index uint16, sub uint8, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return c.bus.SDOWrite(slave, index, sub, b[:], c.cfg.SDOTimeout)
}
