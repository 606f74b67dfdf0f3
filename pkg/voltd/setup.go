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

package voltd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"gvisor.dev/dvfs/pkg/abi/scmi"
)

const (
	// DefaultSetupTimeout bounds each setup-time wait.
	DefaultSetupTimeout = 10 * time.Millisecond

	spinInterval = 10 * time.Microsecond
)

var errStillBusy = errors.New("scmi channel still busy")

// spin returns a fixed-interval backoff that gives up after timeout or when
// ctx is done.
func spin(ctx context.Context, timeout time.Duration) backoff.BackOff {
	if timeout <= 0 {
		timeout = DefaultSetupTimeout
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = spinInterval
	b.MaxInterval = spinInterval
	b.Multiplier = 1
	b.RandomizationFactor = 0
	b.MaxElapsedTime = timeout
	return backoff.WithContext(b, ctx)
}

// WaitFree spins until the channel is free. If the remote side flags an
// error or timeout elapses, the channel is cleared and an error returned.
//
// WaitFree blocks and must only be used during setup.
func (c *Client) WaitFree(ctx context.Context, timeout time.Duration) error {
	op := func() error {
		if c.ch.Ready() {
			return nil
		}
		if c.ch.Errored() {
			return backoff.Permanent(ErrChannelErrored)
		}
		return errStillBusy
	}
	if err := backoff.Retry(op, spin(ctx, timeout)); err != nil {
		c.ch.Clear()
		return fmt.Errorf("couldn't get a free scmi channel: %w", err)
	}
	return nil
}

// ProtocolVersion queries the voltage domain protocol version and spins
// until the response arrives or timeout elapses.
//
// Precondition: the channel is free (see WaitFree).
//
// ProtocolVersion blocks and must only be used during setup.
func (c *Client) ProtocolVersion(ctx context.Context, timeout time.Duration) (uint32, error) {
	if err := c.ch.Send(scmi.Header(scmi.VoltageDomainProtocol, scmi.ProtocolVersion)); err != nil {
		return 0, err
	}
	op := func() error {
		if c.ch.Busy() && !c.ch.Errored() {
			return errStillBusy
		}
		return nil
	}
	if err := backoff.Retry(op, spin(ctx, timeout)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("%w: %v", scmi.Timeout, ctxErr)
		}
		return 0, scmi.Timeout
	}
	if c.ch.Errored() {
		c.ch.ResetErrored()
		return 0, scmi.CommsError
	}
	c.ch.Clear()
	if c.ch.Length() != scmi.ProtocolVersionResponseLength {
		return 0, scmi.CommsError
	}
	if st := scmi.Status(int32(c.ch.Word(0))); st != scmi.Success {
		return 0, st
	}
	return c.ch.Word(1), nil
}
