// internal/gateway/gateway_test.go
package gateway

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/tamzrod/ecat-master/internal/bus"
	"github.com/tamzrod/ecat-master/internal/pdo"
	"github.com/tamzrod/ecat-master/internal/registry"
)

type write struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

type fakeEndpointClient struct {
	writes []write
	fail   bool
}

func (c *fakeEndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if c.fail {
		return errors.New("endpoint down")
	}
	cp := append([]uint16(nil), regs...)
	c.writes = append(c.writes, write{unitID, addr, cp})
	return nil
}

func (c *fakeEndpointClient) last() write {
	return c.writes[len(c.writes)-1]
}

func operationalDevice(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	d := reg.AddDevice("drive-1", true)
	reg.Update(1, func(d *registry.Device) { d.State = bus.StateOperational })
	d.SetStatus(pdo.TxProcessData{
		StatusWord:     0x0027,
		ActualPosition: 1000,
		ActualVelocity: 40000,
		ActualTorque:   150,
	})
	return reg
}

func TestFullBlockThenDeltas(t *testing.T) {
	cli := &fakeEndpointClient{}
	reg := operationalDevice(t)
	g := New(Config{UnitID: 1}, cli, reg, zaptest.NewLogger(t))

	now := time.Now()

	// ---- first publish: FULL ASSERT ----
	g.publish(now)
	if len(cli.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(cli.writes))
	}
	full := cli.last()
	if full.addr != 0 || len(full.regs) != SlotsPerDevice {
		t.Fatalf("expected full block at 0, got addr=%d len=%d", full.addr, len(full.regs))
	}
	if full.regs[SlotHealthCode] != HealthOK {
		t.Fatalf("health: got=%d want=%d", full.regs[SlotHealthCode], HealthOK)
	}
	if full.regs[SlotStatusWord] != 0x0027 {
		t.Fatalf("status word: got=%#04x", full.regs[SlotStatusWord])
	}
	if full.regs[SlotPositionHi] != 0 || full.regs[SlotPositionLo] != 1000 {
		t.Fatalf("position regs: got=%d,%d", full.regs[SlotPositionHi], full.regs[SlotPositionLo])
	}

	// Verify device name encoding EXACTLY.
	expectedName := encodeDeviceNameRegs("drive-1")
	for i := 0; i < SlotDeviceNameSlots; i++ {
		if full.regs[SlotDeviceNameStart+i] != expectedName[i] {
			t.Fatalf("name slot %d mismatch", SlotDeviceNameStart+i)
		}
	}

	// ---- second publish, nothing changed: NO WRITES ----
	g.publish(now)
	if len(cli.writes) != 1 {
		t.Fatalf("unchanged snapshot must not write, got %d writes", len(cli.writes))
	}

	// ---- position change: INCREMENTAL ONLY ----
	reg.Device(1).SetStatus(pdo.TxProcessData{
		StatusWord:     0x0027,
		ActualPosition: 0x00012345,
		ActualVelocity: 40000,
		ActualTorque:   150,
	})
	g.publish(now)
	if len(cli.writes) != 2 {
		t.Fatalf("expected 1 incremental write, got %d total", len(cli.writes))
	}
	inc := cli.last()
	if inc.addr != SlotPositionHi || len(inc.regs) != 2 {
		t.Fatalf("expected 2-reg position write at %d, got addr=%d len=%d",
			SlotPositionHi, inc.addr, len(inc.regs))
	}
	if inc.regs[0] != 0x0001 || inc.regs[1] != 0x2345 {
		t.Fatalf("position words: got=%#04x,%#04x", inc.regs[0], inc.regs[1])
	}
}

func TestWriteFailureForcesFullReassert(t *testing.T) {
	cli := &fakeEndpointClient{}
	reg := operationalDevice(t)
	g := New(Config{UnitID: 1}, cli, reg, zaptest.NewLogger(t))

	now := time.Now()
	g.publish(now)

	// Delta write fails: doubt introduced.
	cli.fail = true
	reg.Device(1).SetStatus(pdo.TxProcessData{
		StatusWord:     0x0027,
		ActualPosition: 2000,
		ActualVelocity: 40000,
		ActualTorque:   150,
	})
	g.publish(now)

	// Endpoint back: the whole block is re-asserted.
	cli.fail = false
	g.publish(now)
	full := cli.last()
	if len(full.regs) != SlotsPerDevice {
		t.Fatalf("expected full re-assert, got %d regs", len(full.regs))
	}
	if full.regs[SlotPositionLo] != 2000 {
		t.Fatalf("re-assert carries current position, got=%d", full.regs[SlotPositionLo])
	}
}

func TestSecondsInErrorTracksUnhealthyTime(t *testing.T) {
	cli := &fakeEndpointClient{}
	reg := operationalDevice(t)
	reg.Update(1, func(d *registry.Device) {
		d.State = bus.StateSafeOp | bus.StateErrorBit
		d.ALStatusCode = 0x001A
	})
	g := New(Config{UnitID: 1}, cli, reg, zaptest.NewLogger(t))

	now := time.Now()
	g.publish(now)
	full := cli.last()
	if full.regs[SlotHealthCode] != HealthError {
		t.Fatalf("health: got=%d want=%d", full.regs[SlotHealthCode], HealthError)
	}
	if full.regs[SlotSecondsInError] != 0 {
		t.Fatalf("fresh error must report 0 seconds, got=%d", full.regs[SlotSecondsInError])
	}
	if full.regs[SlotALStatusCode] != 0x001A {
		t.Fatalf("al status: got=%#04x", full.regs[SlotALStatusCode])
	}

	g.publish(now.Add(3 * time.Second))
	inc := cli.last()
	if inc.addr != SlotSecondsInError || inc.regs[0] != 3 {
		t.Fatalf("expected seconds=3 at slot %d, got addr=%d val=%d",
			SlotSecondsInError, inc.addr, inc.regs[0])
	}

	// Recovery resets the counter.
	reg.Update(1, func(d *registry.Device) {
		d.State = bus.StateOperational
		d.ALStatusCode = 0
	})
	g.publish(now.Add(4 * time.Second))
	g.publish(now.Add(5 * time.Second))
	for _, w := range cli.writes[len(cli.writes)-4:] {
		if w.addr == SlotSecondsInError && len(w.regs) == 1 && w.regs[0] != 0 {
			t.Fatalf("seconds_in_error not reset: got=%d", w.regs[0])
		}
	}
}

func TestHealthMapping(t *testing.T) {
	cases := []struct {
		name string
		view registry.DeviceView
		want uint16
	}{
		{"lost wins", registry.DeviceView{Lost: true, State: bus.StateOperational}, HealthLost},
		{"safeop error", registry.DeviceView{State: bus.StateSafeOp | bus.StateErrorBit}, HealthError},
		{"drive fault", registry.DeviceView{State: bus.StateOperational,
			Status: pdo.TxProcessData{StatusWord: 0x0008}}, HealthError},
		{"operational", registry.DeviceView{State: bus.StateOperational,
			Status: pdo.TxProcessData{StatusWord: 0x0027}}, HealthOK},
		{"unknown", registry.DeviceView{State: bus.StateNone}, HealthUnknown},
		{"preop", registry.DeviceView{State: bus.StatePreOp}, HealthDegraded},
	}
	for _, tc := range cases {
		if got := healthOf(tc.view); got != tc.want {
			t.Fatalf("%s: got=%d want=%d", tc.name, got, tc.want)
		}
	}
}
