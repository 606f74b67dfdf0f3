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

package mailbox

import (
	"fmt"

	"gvisor.dev/dvfs/pkg/abi/scmi"
)

// A Doorbell notifies the remote processor. It carries no data.
type Doorbell interface {
	// Ring wakes the remote side after a request has been written.
	Ring()

	// Ack acknowledges the remote side's response so that the channel may
	// be reused.
	Ack()
}

// IPCCDoorbell rings an inter-processor communication controller channel by
// writing its status set/clear register.
type IPCCDoorbell struct {
	regs    *Window
	channel uint32
}

// NewIPCCDoorbell returns a doorbell for the given logical channel of the
// IPCC block mapped at regs.
func NewIPCCDoorbell(regs *Window, channel uint32) (*IPCCDoorbell, error) {
	if channel+scmi.IPCCSetShift >= 32 {
		return nil, fmt.Errorf("invalid IPCC channel %d", channel)
	}
	if regs.Size() < scmi.IPCCC1SCR+scmi.WordBytes {
		return nil, fmt.Errorf("IPCC register window too small: %#x bytes", regs.Size())
	}
	return &IPCCDoorbell{regs: regs, channel: channel}, nil
}

// Ring implements Doorbell.Ring.
func (d *IPCCDoorbell) Ring() {
	d.regs.Store(scmi.IPCCC1SCR, 1<<(d.channel+scmi.IPCCSetShift))
}

// Ack implements Doorbell.Ack.
func (d *IPCCDoorbell) Ack() {
	d.regs.Store(scmi.IPCCC1SCR, 1<<d.channel)
}

// DoorbellFuncs adapts a pair of functions to Doorbell. Nil functions are
// no-ops.
type DoorbellFuncs struct {
	RingFunc func()
	AckFunc  func()
}

// Ring implements Doorbell.Ring.
func (d DoorbellFuncs) Ring() {
	if d.RingFunc != nil {
		d.RingFunc()
	}
}

// Ack implements Doorbell.Ack.
func (d DoorbellFuncs) Ack() {
	if d.AckFunc != nil {
		d.AckFunc()
	}
}
