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

import "fmt"

// Phase is the position of the service in the rate change sequence.
type Phase int

const (
	// Disabled means no operating points are configured. It is set once at
	// setup and never left.
	Disabled Phase = iota

	// Idle means no rate change is in flight. It is the only phase in which
	// one may begin.
	Idle

	// AwaitingVoltageRead means the current rail voltage has been requested.
	AwaitingVoltageRead

	// AwaitingVoltageWrite means the target rail voltage has been requested.
	AwaitingVoltageWrite
)

// String implements fmt.Stringer.String.
func (p Phase) String() string {
	switch p {
	case Disabled:
		return "disabled"
	case Idle:
		return "idle"
	case AwaitingVoltageRead:
		return "awaiting-voltage-read"
	case AwaitingVoltageWrite:
		return "awaiting-voltage-write"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// NoTarget is the State.Target of a service with no rate change in flight.
const NoTarget = -1

// State is the mutable state of the service.
type State struct {
	Phase Phase

	// Target is the catalog index of the operating point being applied, or
	// NoTarget.
	Target int

	// FrequencyApplied is set once the frequency has been changed ahead of
	// the voltage, which happens when the voltage is lowered or held.
	FrequencyApplied bool
}

// HasTarget returns true if a rate change is in flight.
func (s State) HasTarget() bool {
	return s.Target != NoTarget
}

// String implements fmt.Stringer.String.
func (s State) String() string {
	if !s.HasTarget() {
		return s.Phase.String()
	}
	return fmt.Sprintf("%s(target=%d, frequency-applied=%t)", s.Phase, s.Target, s.FrequencyApplied)
}
