// internal/gateway/gateway.go

// Package gateway publishes per-device health and motion status as Modbus
// holding registers for the plant SCADA layer. Each device owns one fixed
// 20-register block; live slots are written as deltas, and any write
// failure forces a full block re-assert on the next success. The gateway
// runs outside the real-time loop and reads only registry snapshots.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/ecat-master/internal/bus"
	"github.com/tamzrod/ecat-master/internal/pdo"
	"github.com/tamzrod/ecat-master/internal/registry"
)

// endpointClient is the exact contract the gateway uses.
// IMPORTANT: There must be NO other version of this interface anywhere.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// Config is the gateway's runtime surface.
type Config struct {
	UnitID   uint8
	Interval time.Duration

	// BaseSlot offsets the whole device area inside the endpoint's
	// holding-register space.
	BaseSlot uint16
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = time.Second
	}
}

// blockWriter delivers one device's status block.
// On any write failure, the next successful call re-asserts the full block.
type blockWriter struct {
	base   uint16
	unitID uint8
	cli    endpointClient

	needFull bool
	last     Snapshot
	nameRegs []uint16
}

func newBlockWriter(base uint16, name string, unitID uint8, cli endpointClient) *blockWriter {
	return &blockWriter{
		base:     base,
		unitID:   unitID,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		nameRegs: encodeDeviceNameRegs(name),
	}
}

// write delivers a device snapshot into the block.
func (w *blockWriter) write(s Snapshot) error {
	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if w.needFull {
		regs := w.fullBlockRegs(s)

		if err := w.cli.WriteRegisters(w.unitID, w.base, regs); err != nil {
			w.needFull = true
			return fmt.Errorf("gateway: full block write failed: %w", err)
		}

		w.needFull = false
		w.last = s
		return nil
	}

	var errs []string

	w.deltaSlot(&errs, w.last.Health != s.Health, SlotHealthCode,
		[]uint16{s.Health}, func() { w.last.Health = s.Health })
	w.deltaSlot(&errs, w.last.ESMState != s.ESMState, SlotESMState,
		[]uint16{s.ESMState}, func() { w.last.ESMState = s.ESMState })
	w.deltaSlot(&errs, w.last.ALStatusCode != s.ALStatusCode, SlotALStatusCode,
		[]uint16{s.ALStatusCode}, func() { w.last.ALStatusCode = s.ALStatusCode })
	w.deltaSlot(&errs, w.last.StatusWord != s.StatusWord, SlotStatusWord,
		[]uint16{s.StatusWord}, func() { w.last.StatusWord = s.StatusWord })
	w.deltaSlot(&errs, w.last.SecondsInError != s.SecondsInError, SlotSecondsInError,
		[]uint16{s.SecondsInError}, func() { w.last.SecondsInError = s.SecondsInError })
	w.deltaSlot(&errs, w.last.Position != s.Position, SlotPositionHi,
		[]uint16{uint16(uint32(s.Position) >> 16), uint16(uint32(s.Position))},
		func() { w.last.Position = s.Position })
	w.deltaSlot(&errs, w.last.Velocity != s.Velocity, SlotVelocityHi,
		[]uint16{uint16(uint32(s.Velocity) >> 16), uint16(uint32(s.Velocity))},
		func() { w.last.Velocity = s.Velocity })
	w.deltaSlot(&errs, w.last.Torque != s.Torque, SlotTorque,
		[]uint16{uint16(s.Torque)}, func() { w.last.Torque = s.Torque })

	if len(errs) > 0 {
		// Any partial failure introduces doubt; re-assert on next success.
		w.needFull = true
		return errors.New("gateway: " + strings.Join(errs, " | "))
	}

	return nil
}

func (w *blockWriter) deltaSlot(errs *[]string, changed bool, slot int, regs []uint16, commit func()) {
	if !changed {
		return
	}
	if err := w.cli.WriteRegisters(w.unitID, w.base+uint16(slot), regs); err != nil {
		*errs = append(*errs, fmt.Sprintf("slot%d write failed: %v", slot, err))
		return
	}
	commit()
}

func (w *blockWriter) fullBlockRegs(s Snapshot) []uint16 {
	regs := Encode(s)

	// Device name always lives at the end of the block.
	for i := 0; i < SlotDeviceNameSlots; i++ {
		dst := SlotDeviceNameStart + i
		if dst < len(regs) && i < len(w.nameRegs) {
			regs[dst] = w.nameRegs[i]
		}
	}

	return regs
}

// Gateway ticks at a fixed interval, converting registry views into block
// writes. One goroutine; the serialized endpoint client is the only shared
// collaborator.
type Gateway struct {
	cfg Config
	cli endpointClient
	reg *registry.Registry
	log *zap.Logger

	blocks   map[int]*blockWriter
	errSince map[int]time.Time
}

// New builds a gateway over an already connected endpoint client.
func New(cfg Config, cli endpointClient, reg *registry.Registry, log *zap.Logger) *Gateway {
	cfg.applyDefaults()
	return &Gateway{
		cfg:      cfg,
		cli:      cli,
		reg:      reg,
		log:      log,
		blocks:   make(map[int]*blockWriter),
		errSince: make(map[int]time.Time),
	}
}

// Run publishes until the context is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	tick := time.NewTicker(g.cfg.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			g.publish(time.Now())
		}
	}
}

// publish is one gateway iteration over every registered device.
func (g *Gateway) publish(now time.Time) {
	for _, v := range g.reg.Snapshot() {
		w := g.blocks[v.Ordinal]
		if w == nil {
			base := g.cfg.BaseSlot + uint16(v.Ordinal-1)*SlotsPerDevice
			w = newBlockWriter(base, v.Name, g.cfg.UnitID, g.cli)
			g.blocks[v.Ordinal] = w
		}

		s := g.snapshotOf(v, now)
		if err := w.write(s); err != nil {
			g.log.Warn("status block delivery failed",
				zap.Int("device", v.Ordinal), zap.Error(err))
		}
	}
}

// snapshotOf derives the deliverable view of one device, tracking how long
// it has been unhealthy.
func (g *Gateway) snapshotOf(v registry.DeviceView, now time.Time) Snapshot {
	health := healthOf(v)

	var seconds uint16
	if health == HealthOK || health == HealthUnknown {
		delete(g.errSince, v.Ordinal)
	} else {
		since, ok := g.errSince[v.Ordinal]
		if !ok {
			since = now
			g.errSince[v.Ordinal] = since
		}
		// HARD INVARIANT: seconds_in_error MUST NOT wrap
		sec := int64(now.Sub(since) / time.Second)
		if sec > 65535 {
			sec = 65535
		}
		seconds = uint16(sec)
	}

	return Snapshot{
		Health:         health,
		ESMState:       uint16(v.State),
		ALStatusCode:   v.ALStatusCode,
		StatusWord:     v.Status.StatusWord,
		SecondsInError: seconds,
		Position:       v.Status.ActualPosition,
		Velocity:       v.Status.ActualVelocity,
		Torque:         v.Status.ActualTorque,
	}
}

// healthOf maps registry bookkeeping onto the protocol health codes.
func healthOf(v registry.DeviceView) uint16 {
	switch {
	case v.Lost:
		return HealthLost
	case v.State == bus.StateSafeOp|bus.StateErrorBit || pdo.Faulted(v.Status.StatusWord):
		return HealthError
	case v.State == bus.StateOperational:
		return HealthOK
	case v.State == bus.StateNone:
		return HealthUnknown
	default:
		return HealthDegraded
	}
}
