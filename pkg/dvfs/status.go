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

// Package dvfs implements CPU dynamic voltage and frequency scaling as a
// resumable state machine.
//
// A rate change needs the remote power controller to read and then write the
// CPU rail voltage, and the service may not block while it does. So a change
// is started with BeginRateChange and driven to completion by repeated calls
// to PollRateChange, each of which advances the sequence by at most one step:
//
//	Idle --BeginRateChange--> AwaitingVoltageRead --Poll--> AwaitingVoltageWrite --Poll--> Idle
//
// The frequency is lowered before the voltage and raised after it, so the
// CPU never runs faster than the applied voltage allows.
package dvfs

import "fmt"

// Status is the result of a service call, as returned to the caller in a
// 32-bit register.
type Status uint32

// Service call results.
const (
	// OK means the call completed successfully.
	OK Status = 0x0

	// NotSupported means DVFS is disabled or the function is unknown.
	NotSupported Status = 0xffffffff

	// Failed means the call, or the rate change it advanced, failed. The
	// service is back in Idle.
	Failed Status = 0xfffffffe

	// InvalidParameter means the requested rate maps to no operating point.
	InvalidParameter Status = 0xfffffffd

	// PermissionDenied means the call is not allowed in the current phase.
	PermissionDenied Status = 0xfffffffb

	// Pending means a rate change is in flight; the caller must keep calling
	// PollRateChange until it returns something else.
	Pending Status = 0xfffffffa
)

// String implements fmt.Stringer.String.
func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case NotSupported:
		return "not supported"
	case Failed:
		return "failed"
	case InvalidParameter:
		return "invalid parameter"
	case PermissionDenied:
		return "permission denied"
	case Pending:
		return "pending"
	default:
		return fmt.Sprintf("Status(%#x)", uint32(s))
	}
}

// Terminal returns false only for Pending.
func (s Status) Terminal() bool {
	return s != Pending
}

// Function identifies a service call.
type Function uint32

// Service functions.
const (
	NoFunction    Function = 0
	SetRate       Function = 1
	SetRateStatus Function = 2
	RecalcRate    Function = 3
	RoundRate     Function = 4
)

// String implements fmt.Stringer.String.
func (f Function) String() string {
	switch f {
	case NoFunction:
		return "none"
	case SetRate:
		return "set_rate"
	case SetRateStatus:
		return "set_rate_status"
	case RecalcRate:
		return "recalc_rate"
	case RoundRate:
		return "round_rate"
	default:
		return fmt.Sprintf("Function(%d)", uint32(f))
	}
}
