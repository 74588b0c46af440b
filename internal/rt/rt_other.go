//go:build !linux

// Non-Linux fallback: no memory locking, no real-time scheduling, and a
// clock built on the runtime timer. Good enough for development and the
// simulated transport, not for driving hardware.
package rt

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("rt: real-time setup requires linux")

func LockMemory() error {
	return errUnsupported
}

func SetScheduler(priority int) error {
	return errUnsupported
}

func PinCPU(cpu int) error {
	return errUnsupported
}

// Clock approximates a monotonic absolute-deadline clock with the runtime
// timer.
type Clock struct {
	base time.Time
}

func NewClock() *Clock {
	return &Clock{base: time.Now()}
}

func (c *Clock) Now() int64 {
	return int64(time.Since(c.base))
}

func (c *Clock) SleepUntil(deadline int64) error {
	d := deadline - c.Now()
	if d > 0 {
		time.Sleep(time.Duration(d))
	}
	return nil
}
