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

// Package emulator implements the remote side of an SCMI mailbox: a
// power-management co-processor serving the voltage domain protocol.
//
// The emulator is the Doorbell of the channel it serves. It can be driven
// by hand with Step, which makes exchanges deterministic in tests, or by Run,
// which serves every ring from a goroutine after a configurable latency.
package emulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gvisor.dev/dvfs/pkg/abi/scmi"
	"gvisor.dev/dvfs/pkg/mailbox"
)

// DefaultVersion is the protocol version reported by the emulator, 2.0.
const DefaultVersion = 0x20000

// Domain is an emulated voltage rail.
type Domain struct {
	// Level is the current level in microvolts.
	Level int32

	// Min and Max bound the levels accepted by VOLTAGE_LEVEL_SET.
	Min int32
	Max int32
}

// Request is a request as seen by the remote side.
type Request struct {
	Protocol uint32
	Message  uint32
	Payload  []uint32
}

// String implements fmt.Stringer.String.
func (r Request) String() string {
	switch {
	case r.Protocol != scmi.VoltageDomainProtocol:
		return fmt.Sprintf("protocol %#x message %#x %v", r.Protocol, r.Message, r.Payload)
	case r.Message == scmi.ProtocolVersion:
		return "protocol_version()"
	case r.Message == scmi.VoltageLevelGet && len(r.Payload) >= 1:
		return fmt.Sprintf("level_get(domain=%d)", r.Payload[0])
	case r.Message == scmi.VoltageLevelSet && len(r.Payload) >= 3:
		return fmt.Sprintf("level_set(domain=%d, %d uV)", r.Payload[0], int32(r.Payload[2]))
	default:
		return fmt.Sprintf("message %#x %v", r.Message, r.Payload)
	}
}

// Fault selects how the next exchange fails.
type Fault struct {
	// ErrorFlag raises the channel error bit instead of answering.
	ErrorFlag bool

	// Status, if not Success, replaces the status of the response.
	Status scmi.Status

	// Length, if not zero, replaces the length of the response.
	Length uint32
}

// Emulator serves requests written to a mailbox Window.
type Emulator struct {
	mem    *mailbox.Window
	notify chan struct{}

	mu        sync.Mutex
	version   uint32
	latency   time.Duration
	domains   map[uint32]*Domain
	rung      bool
	acks      int
	faults    []Fault
	observers []func(Request)
}

// New returns an Emulator serving the mailbox at the start of mem. The
// channel starts out free.
func New(mem *mailbox.Window) *Emulator {
	mem.Store(scmi.OffsetChannelStatus, scmi.ChannelFree)
	return &Emulator{
		mem:     mem,
		notify:  make(chan struct{}, 1),
		version: DefaultVersion,
		domains: make(map[uint32]*Domain),
	}
}

// AddDomain adds or replaces voltage domain id.
func (e *Emulator) AddDomain(id uint32, d Domain) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.domains[id] = &d
}

// Level returns the current level of domain id.
func (e *Emulator) Level(id uint32) (int32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.domains[id]
	if !ok {
		return 0, false
	}
	return d.Level, true
}

// SetLatency sets how long Run waits before answering a request.
func (e *Emulator) SetLatency(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.latency = d
}

// SetVersion sets the reported protocol version.
func (e *Emulator) SetVersion(v uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.version = v
}

// FailNext queues f to be applied to the next exchange.
func (e *Emulator) FailNext(f Fault) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults = append(e.faults, f)
}

// Observe registers fn to be called with every request served.
func (e *Emulator) Observe(fn func(Request)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Ring implements mailbox.Doorbell.Ring.
func (e *Emulator) Ring() {
	e.mu.Lock()
	e.rung = true
	e.mu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Ack implements mailbox.Doorbell.Ack.
func (e *Emulator) Ack() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.acks++
}

// Acks returns the number of acknowledged exchanges.
func (e *Emulator) Acks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acks
}

// Pending returns true if a request has been rung in and not yet served.
func (e *Emulator) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rung
}

// Step serves the pending request, if any, and reports whether it did.
func (e *Emulator) Step() bool {
	e.mu.Lock()
	if !e.rung {
		e.mu.Unlock()
		return false
	}
	e.rung = false
	req := e.serveLocked()
	observers := append([]func(Request){}, e.observers...)
	e.mu.Unlock()

	for _, fn := range observers {
		fn(req)
	}
	return true
}

// Run serves requests as they are rung in until ctx is done.
func (e *Emulator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.notify:
		}
		e.mu.Lock()
		latency := e.latency
		e.mu.Unlock()
		if latency > 0 {
			t := time.NewTimer(latency)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		e.Step()
	}
}

func (e *Emulator) readRequest() Request {
	protocol, message := scmi.SplitHeader(e.mem.Load(scmi.OffsetHeader))
	n := int(e.mem.Load(scmi.OffsetLength))/scmi.WordBytes - 1
	if n < 0 {
		n = 0
	}
	if n > scmi.MaxPayloadWords {
		n = scmi.MaxPayloadWords
	}
	payload := make([]uint32, n)
	for i := range payload {
		payload[i] = e.mem.Load(scmi.OffsetPayload + uintptr(i)*scmi.WordBytes)
	}
	return Request{Protocol: protocol, Message: message, Payload: payload}
}

// serveLocked answers the request currently in the mailbox.
//
// Preconditions: e.mu is locked.
func (e *Emulator) serveLocked() Request {
	req := e.readRequest()

	var fault Fault
	if len(e.faults) > 0 {
		fault = e.faults[0]
		e.faults = e.faults[1:]
	}
	if fault.ErrorFlag {
		e.mem.Store(scmi.OffsetChannelStatus, scmi.ChannelError)
		return req
	}

	st, words := e.handleLocked(req)
	if fault.Status != scmi.Success {
		st = fault.Status
	}
	length := uint32(scmi.WordBytes * (2 + len(words)))
	if fault.Length != 0 {
		length = fault.Length
	}

	e.mem.Store(scmi.OffsetPayload, uint32(st))
	for i, w := range words {
		e.mem.Store(scmi.OffsetPayload+uintptr(i+1)*scmi.WordBytes, w)
	}
	e.mem.Store(scmi.OffsetLength, length)
	e.mem.Store(scmi.OffsetHeader, scmi.Header(req.Protocol, req.Message))
	// Free last: the agent may read the response as soon as it sees it.
	e.mem.Store(scmi.OffsetChannelStatus, scmi.ChannelFree)
	return req
}

// handleLocked returns the response status and the payload words following
// it.
//
// Preconditions: e.mu is locked.
func (e *Emulator) handleLocked(req Request) (scmi.Status, []uint32) {
	if req.Protocol != scmi.VoltageDomainProtocol {
		return scmi.NotSupported, nil
	}
	switch req.Message {
	case scmi.ProtocolVersion:
		return scmi.Success, []uint32{e.version}

	case scmi.VoltageLevelGet:
		if len(req.Payload) < 1 {
			return scmi.ProtocolError, []uint32{0}
		}
		d, ok := e.domains[req.Payload[0]]
		if !ok {
			return scmi.NotFound, []uint32{0}
		}
		return scmi.Success, []uint32{uint32(d.Level)}

	case scmi.VoltageLevelSet:
		if len(req.Payload) < 3 {
			return scmi.ProtocolError, nil
		}
		d, ok := e.domains[req.Payload[0]]
		if !ok {
			return scmi.NotFound, nil
		}
		level := int32(req.Payload[2])
		if level < d.Min || level > d.Max {
			return scmi.OutOfRange, nil
		}
		d.Level = level
		return scmi.Success, nil

	default:
		return scmi.NotSupported, nil
	}
}
