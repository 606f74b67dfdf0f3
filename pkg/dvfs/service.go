// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dvfs

import (
	"math"
	"sync"

	"gvisor.dev/dvfs/pkg/opp"
)

// Service is the DVFS request dispatcher. Every call holds the service lock
// for its whole duration; state carries over between calls, which is what
// makes polling possible.
type Service struct {
	// version is the voltage domain protocol version read at setup. It is
	// immutable.
	version uint32

	mu sync.Mutex

	// m is the state machine.
	//
	// +checklocks:mu
	m machine
}

// NewService returns a service over an already built catalog. If cat is
// absent the service is permanently disabled and volt may be nil.
func NewService(cat *opp.Catalog, clock Clock, volt Voltage, domain uint32) *Service {
	return &Service{m: newMachine(cat, clock, volt, domain)}
}

// ProtocolVersion returns the voltage domain protocol version reported by
// the remote side at setup, or zero if none was queried.
func (s *Service) ProtocolVersion() uint32 {
	return s.version
}

// Catalog returns the operating point catalog.
func (s *Service) Catalog() *opp.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.cat
}

// State returns a snapshot of the state machine.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.state
}

// CurrentRate returns the current CPU frequency in Hz.
func (s *Service) CurrentRate() (uint64, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRateLocked()
}

// +checklocks:s.mu
func (s *Service) currentRateLocked() (uint64, Status) {
	if s.m.state.Phase == Disabled {
		return 0, NotSupported
	}
	return s.m.clock.Rate(), OK
}

// RoundRate returns the frequency of the operating point closest to hz.
// Ties go to the earlier catalog entry.
func (s *Service) RoundRate(hz uint64) (uint64, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundRateLocked(hz)
}

// +checklocks:s.mu
func (s *Service) roundRateLocked(hz uint64) (uint64, Status) {
	if s.m.state.Phase == Disabled {
		return 0, NotSupported
	}
	i := s.m.cat.Closest(hz)
	if i >= s.m.cat.Len() {
		return 0, InvalidParameter
	}
	return s.m.cat.At(i).Frequency, OK
}

// BeginRateChange starts moving the CPU to the operating point closest to
// hz.
//
// It returns OK without starting anything if hz is already the current
// rate. It returns Pending when a change has been started: the caller then
// owns the obligation to call PollRateChange until it returns a terminal
// status. There is no abort; a change that is never polled parks the
// service outside Idle, and every later BeginRateChange returns
// PermissionDenied.
func (s *Service) BeginRateChange(hz uint64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginRateChangeLocked(hz)
}

// +checklocks:s.mu
func (s *Service) beginRateChangeLocked(hz uint64) Status {
	switch s.m.state.Phase {
	case Disabled:
		return NotSupported
	case Idle:
		return s.m.begin(hz)
	default:
		return PermissionDenied
	}
}

// PollRateChange advances the in-flight rate change by at most one step.
// It returns Pending while the change is still in flight and PermissionDenied
// if there is nothing to poll. Any other status ends the change, and the
// service is back in Idle.
func (s *Service) PollRateChange() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollRateChangeLocked()
}

// +checklocks:s.mu
func (s *Service) pollRateChangeLocked() Status {
	if s.m.state.Phase == Disabled {
		return NotSupported
	}
	return s.m.poll()
}

// Handle dispatches one service call. ret is valid only if retValid is set,
// which is the case for RecalcRate and RoundRate whatever the status.
// Rates that do not fit the 32-bit return register fail.
func (s *Service) Handle(fn Function, arg uint64) (status Status, ret uint32, retValid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m.state.Phase == Disabled {
		return NotSupported, 0, false
	}
	switch fn {
	case RecalcRate:
		hz, st := s.currentRateLocked()
		return narrow(hz, st)
	case SetRate:
		return s.beginRateChangeLocked(arg), 0, false
	case SetRateStatus:
		return s.pollRateChangeLocked(), 0, false
	case RoundRate:
		hz, st := s.roundRateLocked(arg)
		return narrow(hz, st)
	default:
		return NotSupported, 0, false
	}
}

func narrow(hz uint64, st Status) (Status, uint32, bool) {
	if st != OK {
		return st, 0, true
	}
	if hz > math.MaxUint32 {
		return Failed, 0, true
	}
	return OK, uint32(hz), true
}
