// internal/monitor/monitor.go

// Package monitor is the health/recovery loop that runs beside the cyclic
// exchange: it polls the work counter and the group re-check flag, refreshes
// device states, and walks a per-device recovery ladder (acknowledge,
// re-request OPERATIONAL, reconfigure, recover). It only ever touches the
// transport's state-management calls, never process data.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/tamzrod/ecat-master/internal/bus"
	"github.com/tamzrod/ecat-master/internal/master"
	"github.com/tamzrod/ecat-master/internal/registry"
)

// StateBus is the slice of the bus the monitor needs.
type StateBus interface {
	ReadStates() (bus.State, error)
	WriteState(i int, s bus.State) error
	CheckState(i int, want bus.State, timeout time.Duration) bus.State
	SlaveCount() int
	Slave(i int) *bus.Slave
	Reconfig(i int, timeout time.Duration) bool
	Recover(i int, timeout time.Duration) bool
}

// deficitEscalation is the consecutive-deficit count that forces a group
// re-check even when no device has reported a bad state yet.
const deficitEscalation = 5

// Config is the monitor's runtime surface.
type Config struct {
	// Interval between polls of the health flags.
	Interval time.Duration
	// CheckTimeout bounds the wait for an unresponsive device before it is
	// declared lost.
	CheckTimeout time.Duration
	// ActionTimeout bounds a single reconfigure or recover attempt.
	ActionTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = 500 * time.Microsecond
	}
	if c.CheckTimeout == 0 {
		c.CheckTimeout = 5 * time.Millisecond
	}
	if c.ActionTimeout == 0 {
		c.ActionTimeout = 500 * time.Microsecond
	}
}

// retryState paces recovery attempts for one lost device.
type retryState struct {
	eb   *backoff.ExponentialBackOff
	next time.Time
}

// Monitor owns the recovery state machine. Single goroutine; the registry
// and the serialized bus are its only shared collaborators.
type Monitor struct {
	cfg Config
	bus StateBus
	reg *registry.Registry
	log *zap.Logger

	deficits int
	checking bool
	retries  map[int]*retryState
}

// New builds a monitor.
func New(cfg Config, b StateBus, reg *registry.Registry, log *zap.Logger) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		cfg:     cfg,
		bus:     b,
		reg:     reg,
		log:     log,
		retries: make(map[int]*retryState),
	}
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	tick := time.NewTicker(m.cfg.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			m.poll(time.Now())
		}
	}
}

// poll is one monitor iteration.
func (m *Monitor) poll(now time.Time) {
	if !m.reg.Operational() {
		return
	}

	deficit := m.reg.WKCDeficit()
	if deficit {
		m.deficits++
	} else {
		m.deficits = 0
	}
	if m.deficits >= deficitEscalation {
		m.log.Warn("persistent work counter deficit, forcing group re-check",
			zap.Int("consecutive", m.deficits),
			zap.Int("wkc", m.reg.LastWKC()),
			zap.Int("expected", m.reg.ExpectedWKC()))
		m.reg.SetPendingCheck(true)
		m.deficits = 0
	}

	if !deficit && !m.reg.PendingCheck() {
		return
	}
	m.checkGroup(now)
}

// checkGroup refreshes device states and walks the recovery ladder for
// every device that is not OPERATIONAL, then reconciles the lost flags.
func (m *Monitor) checkGroup(now time.Time) {
	if _, err := m.bus.ReadStates(); err != nil {
		m.log.Warn("device state refresh failed", zap.Error(err))
		return
	}

	needsCheck := false
	n := m.bus.SlaveCount()
	for i := 1; i <= n; i++ {
		sl := m.bus.Slave(i)
		if sl == nil {
			continue
		}
		state := sl.State
		lost := m.isLost(i)

		if state != bus.StateOperational {
			needsCheck = true
			switch {
			case state == bus.StateSafeOp|bus.StateErrorBit:
				m.log.Error("device in SAFE-OP with error, acknowledging",
					zap.Int("device", i),
					zap.String("al_status", fmt.Sprintf("0x%04x", sl.ALStatusCode)),
					zap.String("al_text", master.ALStatusString(sl.ALStatusCode)))
				if err := m.bus.WriteState(i, bus.StateSafeOp|bus.StateAckBit); err != nil {
					m.log.Warn("acknowledge request failed", zap.Int("device", i), zap.Error(err))
				}
			case state == bus.StateSafeOp:
				m.log.Warn("device in SAFE-OP, requesting OPERATIONAL",
					zap.Int("device", i))
				if err := m.bus.WriteState(i, bus.StateOperational); err != nil {
					m.log.Warn("state request failed", zap.Int("device", i), zap.Error(err))
				}
			case state > bus.StateNone:
				if m.bus.Reconfig(i, m.cfg.ActionTimeout) {
					m.clearLost(i)
					lost = false
					m.log.Info("device reconfigured", zap.Int("device", i))
				}
			case !lost:
				got := m.bus.CheckState(i, bus.StateOperational, m.cfg.CheckTimeout)
				if got == bus.StateNone {
					m.markLost(i)
					lost = true
					m.log.Error("device lost", zap.Int("device", i))
				}
			}
		}

		if lost {
			if state == bus.StateNone {
				if m.recoverAllowed(i, now) {
					if m.bus.Recover(i, m.cfg.ActionTimeout) {
						m.clearLost(i)
						m.recoverDone(i)
						m.log.Info("device recovered", zap.Int("device", i))
					} else {
						m.recoverFailed(i, now)
					}
				}
			} else {
				m.clearLost(i)
				m.recoverDone(i)
				m.log.Info("device found", zap.Int("device", i))
			}
		}

		m.reg.Update(i, func(d *registry.Device) {
			d.State = state
			d.ALStatusCode = sl.ALStatusCode
		})
	}

	m.reg.SetPendingCheck(needsCheck)
	if needsCheck {
		m.checking = true
	} else if m.checking {
		m.checking = false
		m.log.Info("all devices resumed OPERATIONAL")
	}
}

func (m *Monitor) isLost(i int) bool {
	var lost bool
	m.reg.Update(i, func(d *registry.Device) { lost = d.Lost })
	return lost
}

func (m *Monitor) markLost(i int) {
	m.reg.Update(i, func(d *registry.Device) { d.Lost = true })
}

func (m *Monitor) clearLost(i int) {
	m.reg.Update(i, func(d *registry.Device) { d.Lost = false })
}

// recoverAllowed reports whether a recovery attempt for the device is due.
func (m *Monitor) recoverAllowed(i int, now time.Time) bool {
	r := m.retries[i]
	return r == nil || !now.Before(r.next)
}

// recoverFailed schedules the next attempt on the device's backoff curve.
func (m *Monitor) recoverFailed(i int, now time.Time) {
	r := m.retries[i]
	if r == nil {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 10 * time.Millisecond
		eb.MaxInterval = 2 * time.Second
		r = &retryState{eb: eb}
		m.retries[i] = r
	}
	r.next = now.Add(r.eb.NextBackOff())
}

func (m *Monitor) recoverDone(i int) {
	delete(m.retries, i)
}
