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

// Channel is one SCMI mailbox slot and its doorbell.
//
// Channel does no locking; callers serialize access. A completed exchange,
// successful or not, must be acknowledged with Clear exactly once before the
// next Send.
type Channel struct {
	mem  *Window
	bell Doorbell
}

// NewChannel returns a Channel using the slot at the start of mem.
func NewChannel(mem *Window, bell Doorbell) (*Channel, error) {
	if mem.Size() < scmi.SlotSize {
		return nil, fmt.Errorf("mailbox window too small: %d bytes, need %d", mem.Size(), scmi.SlotSize)
	}
	return &Channel{mem: mem, bell: bell}, nil
}

// Send writes a request and rings the doorbell. The status word is reset to
// busy before anything else is written, so the remote side never sees a
// half-written request as free.
func (c *Channel) Send(header uint32, payload ...uint32) error {
	if len(payload) > scmi.MaxPayloadWords {
		return fmt.Errorf("payload of %d words exceeds mailbox capacity of %d", len(payload), scmi.MaxPayloadWords)
	}
	c.mem.Store(scmi.OffsetChannelStatus, 0)
	c.mem.Store(scmi.OffsetChannelFlags, scmi.ChannelFlags)
	c.mem.Store(scmi.OffsetLength, uint32(scmi.WordBytes*(1+len(payload))))
	c.mem.Store(scmi.OffsetHeader, header)
	for i, w := range payload {
		c.mem.Store(payloadOffset(i), w)
	}
	c.bell.Ring()
	return nil
}

func (c *Channel) status() uint32 {
	return c.mem.Load(scmi.OffsetChannelStatus)
}

// Ready returns true if the channel is free: either no exchange is in
// flight or the remote side has posted its response.
func (c *Channel) Ready() bool {
	return c.status()&scmi.ChannelFree != 0
}

// Busy is the negation of Ready.
func (c *Channel) Busy() bool {
	return !c.Ready()
}

// Errored returns true if the remote side flagged a fault.
func (c *Channel) Errored() bool {
	return c.status()&scmi.ChannelError != 0
}

// Clear acknowledges the current exchange and marks the channel free.
func (c *Channel) Clear() {
	c.bell.Ack()
	c.mem.Store(scmi.OffsetChannelStatus, scmi.ChannelFree)
}

// ResetErrored drops the error flag without marking the channel free.
func (c *Channel) ResetErrored() {
	c.mem.Store(scmi.OffsetChannelStatus, 0)
}

// Length returns the length word of the response in bytes, header included.
//
// Precondition: Ready() && !Errored().
func (c *Channel) Length() uint32 {
	return c.mem.Load(scmi.OffsetLength)
}

// Header returns the header word of the response.
//
// Precondition: Ready() && !Errored().
func (c *Channel) Header() uint32 {
	return c.mem.Load(scmi.OffsetHeader)
}

// Word returns payload word i of the response.
//
// Precondition: Ready() && !Errored().
func (c *Channel) Word(i int) uint32 {
	return c.mem.Load(payloadOffset(i))
}

func payloadOffset(i int) uintptr {
	if i < 0 || i >= scmi.MaxPayloadWords {
		panic(fmt.Sprintf("payload word %d out of range", i))
	}
	return scmi.OffsetPayload + uintptr(i)*scmi.WordBytes
}
