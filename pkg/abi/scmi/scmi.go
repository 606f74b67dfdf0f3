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

// Package scmi defines constants used to exchange System Control and
// Management Interface messages with a power-management co-processor over a
// shared-memory mailbox. The layout matches the SCMI shared memory transport
// ("SMT") used by the secure firmware and its remote peer.
package scmi

import "fmt"

// Protocol and message identifiers.
const (
	// VoltageDomainProtocol is the SCMI voltage domain management protocol.
	VoltageDomainProtocol = 0x17

	// ProtocolVersion is the PROTOCOL_VERSION message common to all
	// protocols.
	ProtocolVersion = 0x0

	// VoltageLevelSet is the VOLTAGE_LEVEL_SET message.
	VoltageLevelSet = 0x7

	// VoltageLevelGet is the VOLTAGE_LEVEL_GET message.
	VoltageLevelGet = 0x8

	// HeaderProtocolShift is the bit position of the protocol id in a
	// message header.
	HeaderProtocolShift = 10

	// HeaderMessageMask masks the message id out of a message header.
	HeaderMessageMask = 0xff

	// HeaderProtocolMask masks the protocol id once shifted down.
	HeaderProtocolMask = 0xff
)

// Header returns the message header word for the given protocol and message.
func Header(protocol, message uint32) uint32 {
	return protocol<<HeaderProtocolShift | message
}

// SplitHeader returns the protocol and message ids encoded in hdr.
func SplitHeader(hdr uint32) (protocol, message uint32) {
	return (hdr >> HeaderProtocolShift) & HeaderProtocolMask, hdr & HeaderMessageMask
}

// Shared memory offsets, in bytes. Every field is a little-endian 32-bit
// word.
const (
	OffsetReserved0     = 0x00
	OffsetChannelStatus = 0x04 // written by both sides (RW)
	OffsetReserved2     = 0x08
	OffsetReserved3     = 0x0c
	OffsetChannelFlags  = 0x10 // written by the agent (W)
	OffsetLength        = 0x14 // header+payload bytes (RW)
	OffsetHeader        = 0x18 // protocol<<10 | message (RW)
	OffsetPayload       = 0x1c // payload words (RW)
)

const (
	// WordBytes is the size of a mailbox word.
	WordBytes = 4

	// SlotSize is the size of one shared memory mailbox.
	SlotSize = 128

	// MaxPayloadWords is the number of payload words that fit in a slot.
	MaxPayloadWords = (SlotSize - OffsetPayload) / WordBytes

	// ChannelFlags is written into the flags word of every request. Zero
	// selects polled completion: the remote side does not raise a
	// completion interrupt.
	ChannelFlags = 0
)

// Channel status bits.
const (
	// ChannelFree is set when the channel may accept a new request, i.e.
	// when the remote side has posted its response. Clear means busy.
	ChannelFree = 1 << 0

	// ChannelError is set by the remote side when the exchange faulted.
	ChannelError = 1 << 1
)

// Request and response lengths in bytes, including the header word.
const (
	ProtocolVersionRequestLength  = 1 * WordBytes
	ProtocolVersionResponseLength = 3 * WordBytes
	LevelGetRequestLength         = 2 * WordBytes
	LevelGetResponseLength        = 3 * WordBytes
	LevelSetRequestLength         = 4 * WordBytes
	LevelSetResponseLength        = 2 * WordBytes
)

// Voltage domains carrying the application core supply, as numbered by the
// power-management firmware.
const (
	// DomainBuck1 supplies the CPU cluster on parts with a BUCK1 vddcpu.
	DomainBuck1 = 10

	// DomainBuck3 supplies the CPU cluster on parts with a BUCK3 vddcpu.
	DomainBuck3 = 7
)

// IPCC doorbell definitions.
const (
	// IPCCC1SCR is the offset of the processor 1 status set/clear register
	// within the IPCC register block.
	IPCCC1SCR = 0x008

	// IPCCChannel is the default logical channel, channel 15 counted from
	// one.
	IPCCChannel = 14

	// IPCCSetShift is added to a channel number to select its "set" bit,
	// which rings the remote doorbell. The plain channel bit acknowledges.
	IPCCSetShift = 16

	// IPCCBlockSize is the size of the IPCC register block that has to be
	// mapped to reach C1SCR.
	IPCCBlockSize = 0x400
)

// Status is an SCMI status code, carried in the first payload word of every
// response.
type Status int32

// SCMI status codes.
const (
	Success           Status = 0
	NotSupported      Status = -1
	InvalidParameters Status = -2
	Denied            Status = -3
	NotFound          Status = -4
	OutOfRange        Status = -5
	Busy              Status = -6
	CommsError        Status = -7
	GenericError      Status = -8
	HardwareError     Status = -9
	ProtocolError     Status = -10

	// Timeout is never sent by the platform; it reports that the
	// agent gave up waiting for a response.
	Timeout Status = -128
)

var statusNames = map[Status]string{
	Success:           "SUCCESS",
	NotSupported:      "NOT_SUPPORTED",
	InvalidParameters: "INVALID_PARAMETERS",
	Denied:            "DENIED",
	NotFound:          "NOT_FOUND",
	OutOfRange:        "OUT_OF_RANGE",
	Busy:              "BUSY",
	CommsError:        "COMMS_ERROR",
	GenericError:      "GENERIC_ERROR",
	HardwareError:     "HARDWARE_ERROR",
	ProtocolError:     "PROTOCOL_ERROR",
	Timeout:           "TIMEOUT",
}

// String implements fmt.Stringer.String.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Error implements error.Error.
func (s Status) Error() string {
	return "scmi: " + s.String()
}

// Err returns nil for Success and s otherwise.
func (s Status) Err() error {
	if s == Success {
		return nil
	}
	return s
}
