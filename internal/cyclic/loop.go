// internal/cyclic/loop.go

// Package cyclic is the fixed-period real-time exchange loop: each cycle it
// exchanges the process image with the devices, runs the drive-enable
// sequence and position command, applies the distributed-clock correction
// to its next wake time, and reports timing anomalies. It shares only the
// registry's summary state with the health monitor and never blocks on it.
package cyclic

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/ecat-master/internal/bus"
	"github.com/tamzrod/ecat-master/internal/clocksync"
	"github.com/tamzrod/ecat-master/internal/pdo"
	"github.com/tamzrod/ecat-master/internal/registry"
)

// Clock is the monotonic time source driving the loop. Times are
// nanoseconds on an arbitrary monotonic base. SleepUntil blocks until the
// absolute deadline; an error reports an interrupted sleep, counted as a
// missed cycle.
type Clock interface {
	Now() int64
	SleepUntil(deadline int64) error
}

// Transport is the narrow view of the bus the loop needs: process data
// exchange and the hardware time reference.
type Transport interface {
	Send() error
	Receive(timeout time.Duration) (int, error)
	DCTime() int64
	SlaveCount() int
	Slave(i int) *bus.Slave
}

// missedLimit is the consecutive interrupted-sleep count that forces a
// wake-time resynchronization.
const missedLimit = 10

// statusEvery throttles the periodic info-level status line, 5s at the
// default 500us cycle.
const statusEvery = 10000

// Config is the loop's runtime surface.
type Config struct {
	CycleTime      time.Duration
	ReceiveTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.CycleTime == 0 {
		c.CycleTime = 500 * time.Microsecond
	}
	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = 2 * time.Millisecond
	}
}

// Stats is a point-in-time view of the loop's cycle statistics.
type Stats struct {
	Cycles            uint64
	MissedTotal       uint64
	MissedConsecutive uint64
	Overruns          uint64
	DegradedCycles    uint64
	LastCycle         time.Duration
}

// Loop owns the process image, the enable ramp and the clock-sync state.
type Loop struct {
	cfg   Config
	bus   Transport
	reg   *registry.Registry
	sync  *clocksync.Sync
	ramp  *Ramp
	clock Clock
	log   *zap.Logger

	// targets is the optional external target-position feed; latest value
	// wins, drained without blocking once per cycle.
	targets <-chan int32

	cycles      atomic.Uint64
	missedTotal atomic.Uint64
	missedRun   atomic.Uint64
	overruns    atomic.Uint64
	degraded    atomic.Uint64
	lastCycle   atomic.Int64
}

// New builds the loop. targets may be nil when no command feed is wired.
func New(cfg Config, t Transport, reg *registry.Registry, sy *clocksync.Sync,
	ramp *Ramp, clock Clock, targets <-chan int32, log *zap.Logger) *Loop {
	cfg.applyDefaults()
	return &Loop{
		cfg:     cfg,
		bus:     t,
		reg:     reg,
		sync:    sy,
		ramp:    ramp,
		clock:   clock,
		log:     log,
		targets: targets,
	}
}

// Stats returns the current cycle statistics.
func (l *Loop) Stats() Stats {
	return Stats{
		Cycles:            l.cycles.Load(),
		MissedTotal:       l.missedTotal.Load(),
		MissedConsecutive: l.missedRun.Load(),
		Overruns:          l.overruns.Load(),
		DegradedCycles:    l.degraded.Load(),
		LastCycle:         time.Duration(l.lastCycle.Load()),
	}
}

// nextMillisecond rounds a monotonic timestamp up to the next whole
// millisecond, the wake-time base used at start and after resync.
func nextMillisecond(now int64) int64 {
	const ms = int64(time.Millisecond)
	return (now/ms + 1) * ms
}

// Run executes the loop until the context is cancelled. The cancellation
// check sits at the cycle boundary and does not alter per-cycle timing.
func (l *Loop) Run(ctx context.Context) error {
	period := int64(l.cfg.CycleTime)
	expected := l.reg.ExpectedWKC()
	anyDC := l.reg.AnyDC()

	// Prime every output buffer with a fault-reset command so the first
	// exchange carries valid data.
	initCmd := pdo.RxProcessData{
		ControlWord:     pdo.CtrlFaultReset,
		ModeOfOperation: pdo.ModeCSP,
	}
	l.writeOutputs(initCmd)
	if err := l.bus.Send(); err != nil {
		l.log.Warn("initial process data send failed", zap.Error(err))
	}

	wake := nextMillisecond(l.clock.Now())
	var offset int64
	var missed int

	var extTarget int32
	var haveExt bool

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// The next wake derives from the configured period plus the DC
		// correction, never from the previous cycle's actual duration.
		wake += period + offset
		if err := l.clock.SleepUntil(wake); err != nil {
			missed++
			l.missedTotal.Add(1)
			l.missedRun.Store(uint64(missed))
			l.log.Warn("cycle sleep interrupted",
				zap.Int("consecutive_missed", missed))
			if missed >= missedLimit {
				l.log.Error("too many missed cycles, resynchronizing wake base",
					zap.Int("missed", missed))
				missed = 0
				l.missedRun.Store(0)
				wake = nextMillisecond(l.clock.Now())
				l.sync.Reset()
				offset = 0
			}
		} else {
			missed = 0
			l.missedRun.Store(0)
		}

		start := l.clock.Now()
		cycle := l.cycles.Add(1)

		wkc, err := l.bus.Receive(l.cfg.ReceiveTimeout)
		if err != nil {
			l.log.Warn("process data receive failed", zap.Error(err))
			wkc = 0
		}
		l.reg.SetLastWKC(wkc)

		if wkc >= expected {
			last := l.snapshotInputs()

			for {
				var more bool
				select {
				case v, ok := <-l.targets:
					if ok {
						extTarget, haveExt = v, true
						more = true
					} else {
						l.targets = nil
					}
				default:
				}
				if !more {
					break
				}
			}

			cmd := l.ramp.Next(last.ActualPosition, extTarget, haveExt)
			l.writeOutputs(cmd)
		} else {
			// Degraded exchange: hold last-good commands, do not advance
			// the enable sequence this cycle.
			l.degraded.Add(1)
			l.log.Warn("work counter below expected",
				zap.Int("wkc", wkc),
				zap.Int("expected", expected))
		}

		if anyDC {
			offset = l.sync.Offset(l.bus.DCTime(), period)
		}

		if err := l.bus.Send(); err != nil {
			l.log.Warn("process data send failed", zap.Error(err))
		}

		if cycle%statusEvery == 0 {
			l.log.Info("exchange status",
				zap.Uint64("cycles", cycle),
				zap.Int("wkc", wkc),
				zap.Uint64("degraded", l.degraded.Load()),
				zap.Uint64("missed", l.missedTotal.Load()),
				zap.Uint64("overruns", l.overruns.Load()))
		}

		elapsed := l.clock.Now() - start
		l.lastCycle.Store(elapsed)
		if elapsed > period+period/2 {
			l.overruns.Add(1)
			l.log.Warn("cycle overrun",
				zap.Duration("elapsed", time.Duration(elapsed)),
				zap.Duration("period", l.cfg.CycleTime))
		}
	}
}

// snapshotInputs decodes every device's input window into the registry and
// returns the last record, whose actual position seeds the next command.
func (l *Loop) snapshotInputs() pdo.TxProcessData {
	var last pdo.TxProcessData
	n := l.bus.SlaveCount()
	for i := 1; i <= n; i++ {
		sl := l.bus.Slave(i)
		if sl == nil || len(sl.Inputs) < pdo.TxSize {
			continue
		}
		tx, err := pdo.DecodeTx(sl.Inputs)
		if err != nil {
			continue
		}
		if d := l.reg.Device(i); d != nil {
			d.SetStatus(tx)
		}
		last = tx
	}
	return last
}

// writeOutputs encodes one command into every device's output window.
func (l *Loop) writeOutputs(cmd pdo.RxProcessData) {
	n := l.bus.SlaveCount()
	for i := 1; i <= n; i++ {
		sl := l.bus.Slave(i)
		if sl == nil || len(sl.Outputs) < pdo.RxSize {
			continue
		}
		if err := pdo.EncodeRx(sl.Outputs, cmd); err != nil {
			l.log.Warn("output encode failed", zap.Int("slave", i), zap.Error(err))
		}
	}
}
