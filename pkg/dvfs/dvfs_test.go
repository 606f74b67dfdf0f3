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
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/dvfs/pkg/abi/scmi"
	"gvisor.dev/dvfs/pkg/clk"
	"gvisor.dev/dvfs/pkg/mailbox"
	"gvisor.dev/dvfs/pkg/mailbox/emulator"
	"gvisor.dev/dvfs/pkg/opp"
	"gvisor.dev/dvfs/pkg/voltd"
)

const (
	mhz = 1000 * 1000

	lowVoltage  = 800000
	highVoltage = 1000000
)

var twoPoints = []opp.OperatingPoint{
	{Frequency: 100 * mhz, Voltage: lowVoltage, SupportedHW: opp.HWNoOverdrive},
	{Frequency: 200 * mhz, Voltage: highVoltage, SupportedHW: opp.HWNoOverdrive},
}

var idle = State{Phase: Idle, Target: NoTarget}

type testRig struct {
	svc   *Service
	emu   *emulator.Emulator
	ch    *mailbox.Channel
	clock *clk.Sim

	// events records voltage requests served and rates applied, in order.
	events []string
}

// newTestRig returns a service running at rate with the rail at microvolt.
// The emulator only answers when stepped.
func newTestRig(t *testing.T, points []opp.OperatingPoint, rate uint64, microvolt int32) *testRig {
	t.Helper()
	mem, err := mailbox.NewAnonymousWindow(scmi.SlotSize)
	if err != nil {
		t.Fatalf("NewAnonymousWindow failed: %v", err)
	}
	t.Cleanup(func() { mem.Close() })
	emu := emulator.New(mem)
	emu.AddDomain(scmi.DomainBuck1, emulator.Domain{Level: microvolt, Min: 700000, Max: 1200000})
	ch, err := mailbox.NewChannel(mem, emu)
	if err != nil {
		t.Fatalf("NewChannel failed: %v", err)
	}
	cat, err := opp.New(points, opp.HWNoOverdrive)
	if err != nil {
		t.Fatalf("opp.New failed: %v", err)
	}

	r := &testRig{emu: emu, ch: ch, clock: clk.NewSim(rate, 0)}
	r.svc = NewService(cat, r.clock, voltd.NewClient(ch), scmi.DomainBuck1)
	r.clock.OnSetRate = func(hz uint64) {
		r.events = append(r.events, fmt.Sprintf("set_rate(%d)", hz))
	}
	emu.Observe(func(req emulator.Request) {
		r.events = append(r.events, req.String())
	})
	return r
}

// step answers the outstanding request.
func (r *testRig) step(t *testing.T) {
	t.Helper()
	if !r.emu.Step() {
		t.Fatalf("no request to answer")
	}
}

// drive polls until the change completes, answering each request.
func (r *testRig) drive(t *testing.T) Status {
	t.Helper()
	for i := 0; i < 10; i++ {
		r.emu.Step()
		if st := r.svc.PollRateChange(); st != Pending {
			return st
		}
	}
	t.Fatalf("rate change did not complete")
	return Failed
}

func TestBeginAtCurrentRate(t *testing.T) {
	r := newTestRig(t, twoPoints, 100*mhz, lowVoltage)
	for i := 0; i < 3; i++ {
		if st := r.svc.BeginRateChange(100 * mhz); st != OK {
			t.Fatalf("BeginRateChange(current) = %v, want %v", st, OK)
		}
		if diff := cmp.Diff(idle, r.svc.State()); diff != "" {
			t.Errorf("State() mismatch (-want +got):\n%s", diff)
		}
	}
	if r.emu.Pending() || r.emu.Acks() != 0 || len(r.events) != 0 {
		t.Errorf("channel traffic for a no-op change: pending=%t acks=%d events=%v", r.emu.Pending(), r.emu.Acks(), r.events)
	}
}

func TestBeginWhileInFlight(t *testing.T) {
	r := newTestRig(t, twoPoints, 100*mhz, lowVoltage)
	if st := r.svc.BeginRateChange(200 * mhz); st != Pending {
		t.Fatalf("BeginRateChange = %v, want %v", st, Pending)
	}
	read := State{Phase: AwaitingVoltageRead, Target: 1}
	if diff := cmp.Diff(read, r.svc.State()); diff != "" {
		t.Fatalf("State() mismatch (-want +got):\n%s", diff)
	}
	for _, hz := range []uint64{100 * mhz, 200 * mhz, 150 * mhz} {
		if st := r.svc.BeginRateChange(hz); st != PermissionDenied {
			t.Errorf("BeginRateChange(%d) in %v = %v, want %v", hz, read.Phase, st, PermissionDenied)
		}
	}
	if diff := cmp.Diff(read, r.svc.State()); diff != "" {
		t.Errorf("State() changed by refused begin (-want +got):\n%s", diff)
	}

	r.step(t)
	if st := r.svc.PollRateChange(); st != Pending {
		t.Fatalf("PollRateChange = %v, want %v", st, Pending)
	}
	write := State{Phase: AwaitingVoltageWrite, Target: 1}
	if diff := cmp.Diff(write, r.svc.State()); diff != "" {
		t.Fatalf("State() mismatch (-want +got):\n%s", diff)
	}
	if st := r.svc.BeginRateChange(100 * mhz); st != PermissionDenied {
		t.Errorf("BeginRateChange in %v = %v, want %v", write.Phase, st, PermissionDenied)
	}
	if diff := cmp.Diff(write, r.svc.State()); diff != "" {
		t.Errorf("State() changed by refused begin (-want +got):\n%s", diff)
	}
}

func TestPollPendingLeavesState(t *testing.T) {
	for _, tc := range []struct {
		name  string
		rate  uint64
		level int32
		to    uint64
		steps int
		want  State
	}{
		{
			name: "awaiting read",
			rate: 100 * mhz, level: lowVoltage, to: 200 * mhz,
			want: State{Phase: AwaitingVoltageRead, Target: 1},
		},
		{
			name: "awaiting write raising",
			rate: 100 * mhz, level: lowVoltage, to: 200 * mhz, steps: 1,
			want: State{Phase: AwaitingVoltageWrite, Target: 1},
		},
		{
			name: "awaiting write lowering",
			rate: 200 * mhz, level: highVoltage, to: 100 * mhz, steps: 1,
			want: State{Phase: AwaitingVoltageWrite, Target: 0, FrequencyApplied: true},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRig(t, twoPoints, tc.rate, tc.level)
			if st := r.svc.BeginRateChange(tc.to); st != Pending {
				t.Fatalf("BeginRateChange = %v, want %v", st, Pending)
			}
			for i := 0; i < tc.steps; i++ {
				r.step(t)
				if st := r.svc.PollRateChange(); st != Pending {
					t.Fatalf("PollRateChange = %v, want %v", st, Pending)
				}
			}
			for i := 0; i < 3; i++ {
				if st := r.svc.PollRateChange(); st != Pending {
					t.Fatalf("PollRateChange before answer = %v, want %v", st, Pending)
				}
				if diff := cmp.Diff(tc.want, r.svc.State()); diff != "" {
					t.Errorf("State() mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestRateChangeOrdering(t *testing.T) {
	t.Run("raise", func(t *testing.T) {
		r := newTestRig(t, twoPoints, 100*mhz, lowVoltage)
		if st := r.svc.BeginRateChange(200 * mhz); st != Pending {
			t.Fatalf("BeginRateChange = %v, want %v", st, Pending)
		}
		if st := r.drive(t); st != OK {
			t.Fatalf("rate change = %v, want %v", st, OK)
		}
		want := []string{
			"level_get(domain=10)",
			"level_set(domain=10, 1000000 uV)",
			"set_rate(200000000)",
		}
		if diff := cmp.Diff(want, r.events); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
		if got, _ := r.emu.Level(scmi.DomainBuck1); got != highVoltage {
			t.Errorf("rail = %d uV, want %d", got, highVoltage)
		}
	})
	t.Run("lower", func(t *testing.T) {
		r := newTestRig(t, twoPoints, 200*mhz, highVoltage)
		if st := r.svc.BeginRateChange(100 * mhz); st != Pending {
			t.Fatalf("BeginRateChange = %v, want %v", st, Pending)
		}
		if st := r.drive(t); st != OK {
			t.Fatalf("rate change = %v, want %v", st, OK)
		}
		want := []string{
			"level_get(domain=10)",
			"set_rate(100000000)",
			"level_set(domain=10, 800000 uV)",
		}
		if diff := cmp.Diff(want, r.events); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("hold", func(t *testing.T) {
		// Same voltage: the frequency leads, as when lowering.
		points := []opp.OperatingPoint{
			{Frequency: 100 * mhz, Voltage: highVoltage, SupportedHW: opp.HWNoOverdrive},
			{Frequency: 200 * mhz, Voltage: highVoltage, SupportedHW: opp.HWNoOverdrive},
		}
		r := newTestRig(t, points, 100*mhz, highVoltage)
		if st := r.svc.BeginRateChange(200 * mhz); st != Pending {
			t.Fatalf("BeginRateChange = %v, want %v", st, Pending)
		}
		if st := r.drive(t); st != OK {
			t.Fatalf("rate change = %v, want %v", st, OK)
		}
		want := []string{
			"level_get(domain=10)",
			"set_rate(200000000)",
			"level_set(domain=10, 1000000 uV)",
		}
		if diff := cmp.Diff(want, r.events); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestRateChangeTerminal(t *testing.T) {
	errPLL := errors.New("pll did not lock")
	for _, tc := range []struct {
		name  string
		rate  uint64
		level int32
		to    uint64
		setup func(r *testRig)
		want  Status
		// rate is the clock rate once the change ended.
		final uint64
	}{
		{
			name: "raise ok",
			rate: 100 * mhz, level: lowVoltage, to: 200 * mhz,
			want: OK, final: 200 * mhz,
		},
		{
			name: "lower ok",
			rate: 200 * mhz, level: highVoltage, to: 100 * mhz,
			want: OK, final: 100 * mhz,
		},
		{
			name: "read channel error",
			rate: 100 * mhz, level: lowVoltage, to: 200 * mhz,
			setup: func(r *testRig) { r.emu.FailNext(emulator.Fault{ErrorFlag: true}) },
			want:  Failed, final: 100 * mhz,
		},
		{
			name: "read refused",
			rate: 100 * mhz, level: lowVoltage, to: 200 * mhz,
			setup: func(r *testRig) { r.emu.FailNext(emulator.Fault{Status: scmi.HardwareError}) },
			want:  Failed, final: 100 * mhz,
		},
		{
			name: "read malformed",
			rate: 100 * mhz, level: lowVoltage, to: 200 * mhz,
			setup: func(r *testRig) { r.emu.FailNext(emulator.Fault{Length: 4}) },
			want:  Failed, final: 100 * mhz,
		},
		{
			name: "lowering frequency fails",
			rate: 200 * mhz, level: highVoltage, to: 100 * mhz,
			setup: func(r *testRig) { r.clock.FailNext(errPLL) },
			want:  Failed, final: 200 * mhz,
		},
		{
			name: "write channel error",
			rate: 100 * mhz, level: lowVoltage, to: 200 * mhz,
			setup: func(r *testRig) {
				r.emu.FailNext(emulator.Fault{})
				r.emu.FailNext(emulator.Fault{ErrorFlag: true})
			},
			want: Failed, final: 100 * mhz,
		},
		{
			name: "write refused after lowering frequency",
			rate: 200 * mhz, level: highVoltage, to: 100 * mhz,
			setup: func(r *testRig) {
				r.emu.FailNext(emulator.Fault{})
				r.emu.FailNext(emulator.Fault{Status: scmi.Denied})
			},
			want: Failed, final: 100 * mhz,
		},
		{
			name: "raising frequency fails",
			rate: 100 * mhz, level: lowVoltage, to: 200 * mhz,
			setup: func(r *testRig) { r.clock.FailNext(errPLL) },
			want:  Failed, final: 100 * mhz,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRig(t, twoPoints, tc.rate, tc.level)
			if tc.setup != nil {
				tc.setup(r)
			}
			if st := r.svc.BeginRateChange(tc.to); st != Pending {
				t.Fatalf("BeginRateChange = %v, want %v", st, Pending)
			}
			if st := r.drive(t); st != tc.want {
				t.Errorf("rate change = %v, want %v", st, tc.want)
			}
			if diff := cmp.Diff(idle, r.svc.State()); diff != "" {
				t.Errorf("State() mismatch (-want +got):\n%s", diff)
			}
			if got := r.clock.Rate(); got != tc.final {
				t.Errorf("clock rate = %d, want %d", got, tc.final)
			}
			if st := r.svc.PollRateChange(); st != PermissionDenied {
				t.Errorf("PollRateChange after completion = %v, want %v", st, PermissionDenied)
			}

			// The channel is usable again.
			back := tc.rate
			if back == r.clock.Rate() {
				back = tc.to
			}
			if st := r.svc.BeginRateChange(back); st != Pending {
				t.Fatalf("BeginRateChange after completion = %v, want %v", st, Pending)
			}
			if st := r.drive(t); st != OK {
				t.Errorf("second rate change = %v, want %v", st, OK)
			}
		})
	}
}

func TestBeginChannelBusy(t *testing.T) {
	r := newTestRig(t, twoPoints, 100*mhz, lowVoltage)
	// Another request owns the channel.
	if err := r.ch.Send(scmi.Header(scmi.VoltageDomainProtocol, scmi.ProtocolVersion)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if st := r.svc.BeginRateChange(200 * mhz); st != Failed {
		t.Errorf("BeginRateChange on busy channel = %v, want %v", st, Failed)
	}
	if diff := cmp.Diff(idle, r.svc.State()); diff != "" {
		t.Errorf("State() mismatch (-want +got):\n%s", diff)
	}

	// Once the channel is released the caller may retry.
	r.step(t)
	r.ch.Clear()
	if st := r.svc.BeginRateChange(200 * mhz); st != Pending {
		t.Errorf("BeginRateChange retry = %v, want %v", st, Pending)
	}
}

func TestPollIdle(t *testing.T) {
	r := newTestRig(t, twoPoints, 100*mhz, lowVoltage)
	if st := r.svc.PollRateChange(); st != PermissionDenied {
		t.Errorf("PollRateChange = %v, want %v", st, PermissionDenied)
	}
	if diff := cmp.Diff(idle, r.svc.State()); diff != "" {
		t.Errorf("State() mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundRate(t *testing.T) {
	points := []opp.OperatingPoint{
		{Frequency: 200 * mhz, Voltage: lowVoltage, SupportedHW: opp.HWNoOverdrive},
		{Frequency: 400 * mhz, Voltage: highVoltage, SupportedHW: opp.HWNoOverdrive},
	}
	r := newTestRig(t, points, 200*mhz, lowVoltage)
	for _, tc := range []struct {
		hz   uint64
		want uint64
	}{
		{hz: 300 * mhz, want: 200 * mhz},
		{hz: 301 * mhz, want: 400 * mhz},
		{hz: 0, want: 200 * mhz},
		{hz: 400 * mhz, want: 400 * mhz},
		{hz: 10000 * mhz, want: 400 * mhz},
	} {
		got, st := r.svc.RoundRate(tc.hz)
		if st != OK || got != tc.want {
			t.Errorf("RoundRate(%d) = (%d, %v), want (%d, %v)", tc.hz, got, st, tc.want, OK)
		}
	}
}

func TestDisabled(t *testing.T) {
	cat, err := opp.New(nil, opp.HWNoOverdrive)
	if err != nil {
		t.Fatalf("opp.New failed: %v", err)
	}
	clock := clk.NewSim(100*mhz, 0)
	s := NewService(cat, clock, nil, scmi.DomainBuck1)

	for i := 0; i < 2; i++ {
		if _, st := s.CurrentRate(); st != NotSupported {
			t.Errorf("CurrentRate = %v, want %v", st, NotSupported)
		}
		if _, st := s.RoundRate(100 * mhz); st != NotSupported {
			t.Errorf("RoundRate = %v, want %v", st, NotSupported)
		}
		if st := s.BeginRateChange(200 * mhz); st != NotSupported {
			t.Errorf("BeginRateChange = %v, want %v", st, NotSupported)
		}
		if st := s.PollRateChange(); st != NotSupported {
			t.Errorf("PollRateChange = %v, want %v", st, NotSupported)
		}
		for _, fn := range []Function{NoFunction, SetRate, SetRateStatus, RecalcRate, RoundRate, 42} {
			if st, _, valid := s.Handle(fn, 100*mhz); st != NotSupported || valid {
				t.Errorf("Handle(%v) = (%v, valid=%t), want (%v, valid=false)", fn, st, valid, NotSupported)
			}
		}
		if got := s.State().Phase; got != Disabled {
			t.Errorf("Phase = %v, want %v", got, Disabled)
		}
	}
	if len(clock.History()) != 0 {
		t.Errorf("disabled service changed the clock: %v", clock.History())
	}
}

func TestHandle(t *testing.T) {
	points := []opp.OperatingPoint{
		{Frequency: 1200 * mhz, Voltage: lowVoltage, SupportedHW: opp.HWNoOverdrive},
		{Frequency: 5000 * mhz, Voltage: highVoltage, SupportedHW: opp.HWNoOverdrive},
	}
	r := newTestRig(t, points, 1200*mhz, lowVoltage)

	type result struct {
		Status Status
		Ret    uint32
		Valid  bool
	}
	call := func(fn Function, arg uint64) result {
		st, ret, valid := r.svc.Handle(fn, arg)
		return result{st, ret, valid}
	}
	for _, tc := range []struct {
		name string
		fn   Function
		arg  uint64
		want result
	}{
		{"recalc", RecalcRate, 0, result{OK, 1200 * mhz, true}},
		{"round", RoundRate, 1500 * mhz, result{OK, 1200 * mhz, true}},
		{"round too large", RoundRate, 4000 * mhz, result{Failed, 0, true}},
		{"poll idle", SetRateStatus, 0, result{PermissionDenied, 0, false}},
		{"no function", NoFunction, 0, result{NotSupported, 0, false}},
		{"unknown", 42, 0, result{NotSupported, 0, false}},
		{"set current", SetRate, 1200 * mhz, result{OK, 0, false}},
	} {
		if diff := cmp.Diff(tc.want, call(tc.fn, tc.arg)); diff != "" {
			t.Errorf("%s: Handle(%v, %d) mismatch (-want +got):\n%s", tc.name, tc.fn, tc.arg, diff)
		}
	}

	if got := call(SetRate, 5000*mhz); got.Status != Pending {
		t.Fatalf("Handle(SetRate) = %v, want %v", got.Status, Pending)
	}
	for i := 0; i < 10; i++ {
		r.emu.Step()
		got := call(SetRateStatus, 0)
		if got.Status == Pending {
			continue
		}
		if got.Status != OK || got.Valid {
			t.Fatalf("Handle(SetRateStatus) = %+v, want status %v without return value", got, OK)
		}
		break
	}
	// The clock now exceeds the 32-bit return register.
	if diff := cmp.Diff(result{Failed, 0, true}, call(RecalcRate, 0)); diff != "" {
		t.Errorf("Handle(RecalcRate) mismatch (-want +got):\n%s", diff)
	}
}

func TestSetup(t *testing.T) {
	mem, err := mailbox.NewAnonymousWindow(scmi.SlotSize)
	if err != nil {
		t.Fatalf("NewAnonymousWindow failed: %v", err)
	}
	defer mem.Close()
	emu := emulator.New(mem)
	emu.SetVersion(0x30000)
	emu.AddDomain(scmi.DomainBuck3, emulator.Domain{Level: lowVoltage, Min: 700000, Max: 1200000})
	ch, err := mailbox.NewChannel(mem, emu)
	if err != nil {
		t.Fatalf("NewChannel failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- emu.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	cfg := SetupConfig{
		Points:   twoPoints,
		HWFilter: opp.HWFilter(0),
		Domain:   scmi.DomainBuck3,
		Timeout:  time.Second,
	}
	s, err := Setup(ctx, cfg, clk.NewSim(100*mhz, 0), ch)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if got := s.ProtocolVersion(); got != 0x30000 {
		t.Errorf("ProtocolVersion() = %#x, want %#x", got, 0x30000)
	}
	if diff := cmp.Diff(idle, s.State()); diff != "" {
		t.Errorf("State() mismatch (-want +got):\n%s", diff)
	}
	if got := s.Catalog().Len(); got != len(twoPoints) {
		t.Errorf("Catalog().Len() = %d, want %d", got, len(twoPoints))
	}

	// The emulator is running, so a change completes by polling alone.
	if st := s.BeginRateChange(200 * mhz); st != Pending {
		t.Fatalf("BeginRateChange = %v, want %v", st, Pending)
	}
	deadline := time.Now().Add(5 * time.Second)
	st := Pending
	for st == Pending && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
		st = s.PollRateChange()
	}
	if st != OK {
		t.Fatalf("rate change = %v, want %v", st, OK)
	}
	if got, _ := emu.Level(scmi.DomainBuck3); got != highVoltage {
		t.Errorf("rail = %d uV, want %d", got, highVoltage)
	}
}

func TestSetupErrors(t *testing.T) {
	newChannel := func(t *testing.T) (*mailbox.Window, *mailbox.Channel) {
		mem, err := mailbox.NewAnonymousWindow(scmi.SlotSize)
		if err != nil {
			t.Fatalf("NewAnonymousWindow failed: %v", err)
		}
		t.Cleanup(func() { mem.Close() })
		ch, err := mailbox.NewChannel(mem, mailbox.DoorbellFuncs{})
		if err != nil {
			t.Fatalf("NewChannel failed: %v", err)
		}
		return mem, ch
	}
	ctx := context.Background()
	clock := clk.NewSim(100*mhz, 0)

	t.Run("unsupported hardware", func(t *testing.T) {
		cfg := SetupConfig{Points: twoPoints, HWFilter: opp.HWSupportsOverdrive}
		_, err := Setup(ctx, cfg, clock, nil)
		var hwErr *opp.UnsupportedHWError
		if !errors.As(err, &hwErr) {
			t.Fatalf("Setup = %v, want %T", err, hwErr)
		}
	})
	t.Run("no operating points", func(t *testing.T) {
		s, err := Setup(ctx, SetupConfig{HWFilter: opp.HWNoOverdrive}, clock, nil)
		if err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
		if got := s.State().Phase; got != Disabled {
			t.Errorf("Phase = %v, want %v", got, Disabled)
		}
	})
	t.Run("channel never free", func(t *testing.T) {
		mem, ch := newChannel(t)
		mem.Store(scmi.OffsetChannelStatus, 0)
		cfg := SetupConfig{Points: twoPoints, HWFilter: opp.HWNoOverdrive, Timeout: time.Millisecond}
		if _, err := Setup(ctx, cfg, clock, ch); err == nil {
			t.Fatalf("Setup succeeded on a busy channel")
		}
	})
	t.Run("no answer", func(t *testing.T) {
		mem, ch := newChannel(t)
		mem.Store(scmi.OffsetChannelStatus, scmi.ChannelFree)
		cfg := SetupConfig{Points: twoPoints, HWFilter: opp.HWNoOverdrive, Timeout: time.Millisecond}
		_, err := Setup(ctx, cfg, clock, ch)
		if !errors.Is(err, scmi.Timeout) {
			t.Fatalf("Setup = %v, want %v", err, scmi.Timeout)
		}
	})
}
