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
	"gvisor.dev/dvfs/pkg/abi/scmi"
	"gvisor.dev/dvfs/pkg/opp"
	"gvisor.dev/dvfs/pkg/voltd"
)

// Clock is the CPU frequency generator. Both methods complete synchronously.
type Clock interface {
	// Rate returns the current CPU frequency in Hz.
	Rate() uint64

	// SetRate changes the CPU frequency to hz.
	SetRate(hz uint64) error
}

// Voltage is the split-phase voltage domain interface. It is implemented
// by *voltd.Client.
type Voltage interface {
	LevelGetSend(domain uint32) error
	LevelGetRecv() (int32, scmi.Status, voltd.Result)
	LevelSetSend(domain, flags uint32, microvolt int32) error
	LevelSetRecv() (scmi.Status, voltd.Result)
}

// machine holds the state machine proper. It is not synchronized.
type machine struct {
	cat    *opp.Catalog
	clock  Clock
	volt   Voltage
	domain uint32
	state  State
}

func newMachine(cat *opp.Catalog, clock Clock, volt Voltage, domain uint32) machine {
	m := machine{
		cat:    cat,
		clock:  clock,
		volt:   volt,
		domain: domain,
		state:  State{Phase: Disabled, Target: NoTarget},
	}
	if !cat.Absent() {
		m.state.Phase = Idle
	}
	return m
}

// idle returns the machine to Idle, dropping any target.
func (m *machine) idle() {
	m.state = State{Phase: Idle, Target: NoTarget}
}

// begin starts a change to the operating point closest to hz. It returns
// Pending once the change is in flight.
//
// Precondition: m.state.Phase == Idle.
func (m *machine) begin(hz uint64) Status {
	if hz == m.clock.Rate() {
		return OK
	}
	target := m.cat.Closest(hz)
	if target >= m.cat.Len() {
		return InvalidParameter
	}
	if err := m.volt.LevelGetSend(m.domain); err != nil {
		return Failed
	}
	m.state = State{Phase: AwaitingVoltageRead, Target: target}
	return Pending
}

// poll advances an in-flight change by at most one step.
func (m *machine) poll() Status {
	switch m.state.Phase {
	case AwaitingVoltageRead:
		return m.pollVoltageRead()
	case AwaitingVoltageWrite:
		return m.pollVoltageWrite()
	default:
		return PermissionDenied
	}
}

func (m *machine) pollVoltageRead() Status {
	current, _, res := m.volt.LevelGetRecv()
	switch res {
	case voltd.Pending:
		return Pending
	case voltd.Failed:
		m.idle()
		return Failed
	}

	point := m.cat.At(m.state.Target)
	want := int32(point.Voltage)
	if current >= want {
		// Lowering or holding: the frequency goes first.
		if err := m.clock.SetRate(point.Frequency); err != nil {
			m.idle()
			return Failed
		}
		m.state.FrequencyApplied = true
	}
	if err := m.volt.LevelSetSend(m.domain, scmi.ChannelFlags, want); err != nil {
		m.idle()
		return Failed
	}
	m.state.Phase = AwaitingVoltageWrite
	return Pending
}

func (m *machine) pollVoltageWrite() Status {
	_, res := m.volt.LevelSetRecv()
	if res == voltd.Pending {
		return Pending
	}

	state := m.state
	m.idle()
	if res != voltd.OK {
		return Failed
	}
	if !state.FrequencyApplied {
		// Raising: the voltage is now sufficient for the new frequency.
		if err := m.clock.SetRate(m.cat.At(state.Target).Frequency); err != nil {
			return Failed
		}
	}
	return OK
}
