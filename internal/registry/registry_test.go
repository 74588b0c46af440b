// internal/registry/registry_test.go
package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/ecat-master/internal/bus"
	"github.com/tamzrod/ecat-master/internal/pdo"
)

func TestAddDevice_Ordinals(t *testing.T) {
	r := New()
	a := r.AddDevice("drive-a", true)
	b := r.AddDevice("drive-b", false)

	assert.Equal(t, 1, a.Ordinal)
	assert.Equal(t, 2, b.Ordinal)
	assert.Equal(t, 2, r.Count())
	assert.True(t, r.AnyDC())

	require.Nil(t, r.Device(0))
	require.Nil(t, r.Device(3))
	assert.Same(t, a, r.Device(1))
}

func TestWKCDeficit(t *testing.T) {
	r := New()
	r.SetExpectedWKC(7)

	r.SetLastWKC(7)
	assert.False(t, r.WKCDeficit())

	r.SetLastWKC(6)
	assert.True(t, r.WKCDeficit())
}

func TestSnapshot_Coherent(t *testing.T) {
	r := New()
	d := r.AddDevice("drive-a", true)

	r.Update(1, func(d *Device) {
		d.State = bus.StateSafeOp | bus.StateErrorBit
		d.ALStatusCode = 0x001E
		d.Lost = true
	})
	d.SetStatus(pdo.TxProcessData{StatusWord: 0x0637, ActualPosition: 42})

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, bus.StateSafeOp|bus.StateErrorBit, snap[0].State)
	assert.Equal(t, uint16(0x001E), snap[0].ALStatusCode)
	assert.True(t, snap[0].Lost)
	assert.Equal(t, int32(42), snap[0].Status.ActualPosition)
}

// Status snapshots are written by one goroutine and read by another; the
// atomic pointer must never tear.
func TestStatus_ConcurrentReads(t *testing.T) {
	r := New()
	d := r.AddDevice("drive-a", false)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int32(0); ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			d.SetStatus(pdo.TxProcessData{ActualPosition: i, ActualVelocity: i})
		}
	}()

	for i := 0; i < 10000; i++ {
		tx := d.Status()
		if tx.ActualPosition != tx.ActualVelocity {
			t.Fatalf("torn status read: %+v", tx)
		}
	}
	close(stop)
	wg.Wait()
}

func TestSummaryFlags(t *testing.T) {
	r := New()
	assert.False(t, r.Operational())
	assert.False(t, r.PendingCheck())

	r.SetOperational(true)
	r.SetPendingCheck(true)
	assert.True(t, r.Operational())
	assert.True(t, r.PendingCheck())

	r.SetPendingCheck(false)
	assert.False(t, r.PendingCheck())
}
