//go:build linux

// Package rt is the Linux real-time plumbing for the cyclic loop: memory
// locking, SCHED_FIFO scheduling, CPU pinning and an absolute-deadline
// monotonic clock. All of it is best-effort at startup; running without
// privileges degrades timing but not correctness.
package rt

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// LockMemory pins current and future pages into RAM so the cyclic loop
// never takes a page fault mid-cycle.
func LockMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("rt: mlockall failed: %w", err)
	}
	return nil
}

// SetScheduler puts the calling thread under SCHED_FIFO at the given
// priority (1-99).
func SetScheduler(priority int) error {
	attr := unix.SchedAttr{
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return fmt.Errorf("rt: sched_setattr(SCHED_FIFO, %d) failed: %w", priority, err)
	}
	return nil
}

// PinCPU restricts the calling thread to one processor core.
func PinCPU(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("rt: sched_setaffinity(cpu %d) failed: %w", cpu, err)
	}
	return nil
}

// Clock reads CLOCK_MONOTONIC and sleeps to absolute deadlines on it. An
// interrupted sleep surfaces as an error so the caller can count it as a
// missed cycle.
type Clock struct{}

func NewClock() *Clock {
	return &Clock{}
}

func (*Clock) Now() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}

func (*Clock) SleepUntil(deadline int64) error {
	ts := unix.NsecToTimespec(deadline)
	if err := unix.ClockNanosleep(unix.CLOCK_MONOTONIC, unix.TIMER_ABSTIME, &ts, nil); err != nil {
		return fmt.Errorf("rt: clock_nanosleep interrupted: %w", err)
	}
	return nil
}
