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

// Package cpufreq is the caller side of the DVFS service: a CPU frequency
// driver that issues service calls and polls rate changes to completion.
package cpufreq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"gvisor.dev/dvfs/pkg/dvfs"
	"gvisor.dev/dvfs/pkg/smc"
)

// StatusError is returned when the service answers a call with a status
// other than OK.
type StatusError struct {
	Function dvfs.Function
	Status   dvfs.Status
}

// Error implements error.Error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %v", e.Function, e.Status)
}

// IsStatus returns true if err is a StatusError carrying st.
func IsStatus(err error, st dvfs.Status) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == st
}

// Default polling parameters.
const (
	DefaultPollInterval    = 50 * time.Microsecond
	DefaultMaxPollInterval = 5 * time.Millisecond
)

// Driver drives the DVFS service through a Caller.
type Driver struct {
	caller smc.Caller

	// PollInterval is the first delay between polls of an in-flight rate
	// change. Delays then grow up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

// NewDriver returns a driver using c.
func NewDriver(c smc.Caller) *Driver {
	return &Driver{
		caller:          c,
		PollInterval:    DefaultPollInterval,
		MaxPollInterval: DefaultMaxPollInterval,
	}
}

func (d *Driver) call(ctx context.Context, fn dvfs.Function, arg uint64) (smc.Result, error) {
	res, err := d.caller.Call(ctx, smc.Call{Function: fn, Arg: arg})
	if err != nil {
		return smc.Result{}, fmt.Errorf("%v: %w", fn, err)
	}
	return res, nil
}

// value issues a call returning a rate.
func (d *Driver) value(ctx context.Context, fn dvfs.Function, arg uint64) (uint64, error) {
	res, err := d.call(ctx, fn, arg)
	if err != nil {
		return 0, err
	}
	if res.Status != dvfs.OK {
		return 0, &StatusError{Function: fn, Status: res.Status}
	}
	if !res.RetValid {
		return 0, fmt.Errorf("%v: no value returned", fn)
	}
	return uint64(res.Ret), nil
}

// Rate returns the current CPU rate in Hz.
func (d *Driver) Rate(ctx context.Context) (uint64, error) {
	return d.value(ctx, dvfs.RecalcRate, 0)
}

// RoundRate returns the rate of the operating point closest to hz.
func (d *Driver) RoundRate(ctx context.Context, hz uint64) (uint64, error) {
	return d.value(ctx, dvfs.RoundRate, hz)
}

// SetRate moves the CPU to the operating point closest to hz and waits for
// the change to complete.
//
// If ctx ends first, the change is left in flight and the service refuses
// new changes until it is finished; call Wait to finish it.
func (d *Driver) SetRate(ctx context.Context, hz uint64) error {
	res, err := d.call(ctx, dvfs.SetRate, hz)
	if err != nil {
		return err
	}
	switch res.Status {
	case dvfs.OK:
		return nil
	case dvfs.Pending:
		return d.Wait(ctx)
	default:
		return &StatusError{Function: dvfs.SetRate, Status: res.Status}
	}
}

// Wait polls the in-flight rate change until it completes or ctx ends. The
// poll interval grows exponentially from PollInterval to MaxPollInterval.
func (d *Driver) Wait(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.PollInterval
	b.MaxInterval = d.MaxPollInterval
	b.RandomizationFactor = 0
	// Only ctx bounds the wait.
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		res, err := d.call(ctx, dvfs.SetRateStatus, 0)
		if err != nil {
			return err
		}
		switch res.Status {
		case dvfs.OK:
			return nil
		case dvfs.Pending:
		default:
			return &StatusError{Function: dvfs.SetRateStatus, Status: res.Status}
		}

		t := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("rate change still pending: %w", ctx.Err())
		case <-t.C:
		}
	}
}
