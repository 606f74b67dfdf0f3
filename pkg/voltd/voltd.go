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

// Package voltd is an SCMI voltage domain management client.
//
// Every request is split into a send half and a receive half so that
// neither blocks: the send half writes the request and rings the doorbell,
// the receive half inspects the channel and reports Pending until the
// remote side has answered. The only blocking helpers, WaitFree and
// ProtocolVersion, are meant for one-time setup.
package voltd

import (
	"errors"
	"fmt"

	"gvisor.dev/dvfs/pkg/abi/scmi"
	"gvisor.dev/dvfs/pkg/mailbox"
)

// Result is the outcome of a receive half.
type Result int

const (
	// Pending means the remote side has not answered yet; call again.
	Pending Result = iota

	// OK means the response was received and reported success.
	OK

	// Failed means the exchange faulted or the remote side reported an
	// error. The channel has been cleared.
	Failed
)

// String implements fmt.Stringer.String.
func (r Result) String() string {
	switch r {
	case Pending:
		return "pending"
	case OK:
		return "ok"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

var (
	// ErrChannelBusy is returned by send halves when an exchange is still
	// in flight.
	ErrChannelBusy = errors.New("scmi channel busy")

	// ErrChannelErrored is returned by send halves when the remote side
	// flagged a fault. The fault is acknowledged as a side effect, so a
	// later send may succeed.
	ErrChannelErrored = errors.New("scmi channel error")
)

// Client issues voltage domain requests over a mailbox channel.
//
// Client does no locking; callers serialize access to the channel.
type Client struct {
	ch *mailbox.Channel
}

// NewClient returns a Client using ch.
func NewClient(ch *mailbox.Channel) *Client {
	return &Client{ch: ch}
}

// checkFree returns nil if a request may be sent.
func (c *Client) checkFree() error {
	if c.ch.Errored() {
		c.ch.Clear()
		return ErrChannelErrored
	}
	if c.ch.Busy() {
		return ErrChannelBusy
	}
	return nil
}

// recv consumes a response of wantLen bytes. On OK the payload may be read.
func (c *Client) recv(wantLen uint32) (scmi.Status, Result) {
	if c.ch.Errored() {
		c.ch.Clear()
		return scmi.CommsError, Failed
	}
	if c.ch.Busy() {
		return scmi.Busy, Pending
	}
	c.ch.Clear()
	if c.ch.Length() != wantLen {
		return scmi.CommsError, Failed
	}
	if st := scmi.Status(int32(c.ch.Word(0))); st != scmi.Success {
		return st, Failed
	}
	return scmi.Success, OK
}

// ProtocolVersionSend requests the voltage domain protocol version.
func (c *Client) ProtocolVersionSend() error {
	if err := c.checkFree(); err != nil {
		return err
	}
	return c.ch.Send(scmi.Header(scmi.VoltageDomainProtocol, scmi.ProtocolVersion))
}

// ProtocolVersionRecv receives the response to ProtocolVersionSend.
func (c *Client) ProtocolVersionRecv() (uint32, scmi.Status, Result) {
	st, r := c.recv(scmi.ProtocolVersionResponseLength)
	if r != OK {
		return 0, st, r
	}
	return c.ch.Word(1), st, r
}

// LevelGetSend requests the voltage level of domain.
func (c *Client) LevelGetSend(domain uint32) error {
	if err := c.checkFree(); err != nil {
		return err
	}
	return c.ch.Send(scmi.Header(scmi.VoltageDomainProtocol, scmi.VoltageLevelGet), domain)
}

// LevelGetRecv receives the response to LevelGetSend. A negative level is
// reported as Failed.
func (c *Client) LevelGetRecv() (int32, scmi.Status, Result) {
	st, r := c.recv(scmi.LevelGetResponseLength)
	if r != OK {
		return 0, st, r
	}
	uv := int32(c.ch.Word(1))
	if uv < 0 {
		return uv, scmi.OutOfRange, Failed
	}
	return uv, st, r
}

// LevelSetSend requests that domain be set to microvolt.
func (c *Client) LevelSetSend(domain, flags uint32, microvolt int32) error {
	if err := c.checkFree(); err != nil {
		return err
	}
	return c.ch.Send(scmi.Header(scmi.VoltageDomainProtocol, scmi.VoltageLevelSet), domain, flags, uint32(microvolt))
}

// LevelSetRecv receives the response to LevelSetSend.
func (c *Client) LevelSetRecv() (scmi.Status, Result) {
	return c.recv(scmi.LevelSetResponseLength)
}
