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

// Package clk provides CPU frequency drivers.
//
// Drivers are synchronous: SetRate returns once the new rate is applied.
package clk

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidRate is returned for rates a driver cannot produce.
var ErrInvalidRate = errors.New("invalid clock rate")

// Sim is an in-memory PLL.
type Sim struct {
	mu      sync.Mutex
	rate    uint64
	maxRate uint64
	err     error
	history []uint64

	// OnSetRate, if set, is called with every rate successfully applied.
	OnSetRate func(hz uint64)
}

// NewSim returns a Sim running at rate. A maxRate of zero means no limit.
func NewSim(rate, maxRate uint64) *Sim {
	return &Sim{rate: rate, maxRate: maxRate}
}

// Rate returns the current rate in Hz.
func (s *Sim) Rate() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// SetRate sets the rate in Hz.
func (s *Sim) SetRate(hz uint64) error {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.err = nil
		s.mu.Unlock()
		return err
	}
	if hz == 0 || (s.maxRate != 0 && hz > s.maxRate) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d Hz", ErrInvalidRate, hz)
	}
	s.rate = hz
	s.history = append(s.history, hz)
	fn := s.OnSetRate
	s.mu.Unlock()

	if fn != nil {
		fn(hz)
	}
	return nil
}

// FailNext makes the next SetRate return err without changing the rate.
func (s *Sim) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// History returns every rate applied so far, oldest first.
func (s *Sim) History() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.history...)
}
