// internal/bus/serialize.go
package bus

import (
	"sync"
	"time"
)

// Serialize wraps a Bus so that every call holds one mutex. The cyclic loop
// and the health monitor run on independent schedules; a transport that does
// not document concurrency-safe state operations gets a single coarse lock.
// This adds bounded jitter to the real-time loop and is the simple
// correctness choice.
func Serialize(b Bus) Bus {
	return &serialized{b: b}
}

type serialized struct {
	mu sync.Mutex
	b  Bus
}

func (s *serialized) Open(ifname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Open(ifname)
}

func (s *serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Close()
}

func (s *serialized) ConfigInit(autoConfig bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.ConfigInit(autoConfig)
}

func (s *serialized) SlaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.SlaveCount()
}

func (s *serialized) Slave(i int) *Slave {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Slave(i)
}

func (s *serialized) ReadStates() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.ReadStates()
}

func (s *serialized) WriteState(i int, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.WriteState(i, st)
}

func (s *serialized) CheckState(i int, want State, timeout time.Duration) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.CheckState(i, want, timeout)
}

func (s *serialized) SDOWrite(i int, index uint16, sub uint8, value []byte, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.SDOWrite(i, index, sub, value, timeout)
}

func (s *serialized) SDORead(i int, index uint16, sub uint8, buf []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.SDORead(i, index, sub, buf, timeout)
}

func (s *serialized) ConfigDC() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.ConfigDC()
}

func (s *serialized) DCSync0(i int, enable bool, cycle, shift time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.DCSync0(i, enable, cycle, shift)
}

func (s *serialized) DCTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.DCTime()
}

func (s *serialized) SetManualStateChange(manual bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b.SetManualStateChange(manual)
}

func (s *serialized) ConfigMap() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.ConfigMap()
}

func (s *serialized) OutputsWKC() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.OutputsWKC()
}

func (s *serialized) InputsWKC() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.InputsWKC()
}

func (s *serialized) Send() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Send()
}

func (s *serialized) Receive(timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Receive(timeout)
}

func (s *serialized) Reconfig(i int, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Reconfig(i, timeout)
}

func (s *serialized) Recover(i int, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Recover(i, timeout)
}
