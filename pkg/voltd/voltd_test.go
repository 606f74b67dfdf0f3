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
	"testing"
	"time"

	"gvisor.dev/dvfs/pkg/abi/scmi"
	"gvisor.dev/dvfs/pkg/mailbox"
	"gvisor.dev/dvfs/pkg/mailbox/emulator"
)

func newTestClient(t *testing.T) (*Client, *emulator.Emulator, *mailbox.Window) {
	t.Helper()
	mem, err := mailbox.NewAnonymousWindow(scmi.SlotSize)
	if err != nil {
		t.Fatalf("NewAnonymousWindow failed: %v", err)
	}
	t.Cleanup(func() { mem.Close() })
	emu := emulator.New(mem)
	emu.AddDomain(scmi.DomainBuck1, emulator.Domain{Level: 900000, Min: 700000, Max: 1200000})
	ch, err := mailbox.NewChannel(mem, emu)
	if err != nil {
		t.Fatalf("NewChannel failed: %v", err)
	}
	return NewClient(ch), emu, mem
}

func TestLevelGet(t *testing.T) {
	c, emu, _ := newTestClient(t)
	if err := c.LevelGetSend(scmi.DomainBuck1); err != nil {
		t.Fatalf("LevelGetSend failed: %v", err)
	}

	// Not answered yet: pending, and pending again.
	for i := 0; i < 2; i++ {
		if _, _, r := c.LevelGetRecv(); r != Pending {
			t.Fatalf("LevelGetRecv = %v, want %v", r, Pending)
		}
	}
	// A second request cannot be sent while the first is in flight.
	if err := c.LevelGetSend(scmi.DomainBuck1); !errors.Is(err, ErrChannelBusy) {
		t.Errorf("LevelGetSend while busy = %v, want %v", err, ErrChannelBusy)
	}

	emu.Step()
	uv, st, r := c.LevelGetRecv()
	if r != OK || st != scmi.Success || uv != 900000 {
		t.Errorf("LevelGetRecv = (%d, %v, %v), want (900000, SUCCESS, ok)", uv, st, r)
	}
	if emu.Acks() != 1 {
		t.Errorf("channel acknowledged %d times, want 1", emu.Acks())
	}
}

func TestLevelSet(t *testing.T) {
	c, emu, _ := newTestClient(t)
	if err := c.LevelSetSend(scmi.DomainBuck1, 0, 1100000); err != nil {
		t.Fatalf("LevelSetSend failed: %v", err)
	}
	if _, r := c.LevelSetRecv(); r != Pending {
		t.Fatalf("LevelSetRecv = %v, want %v", r, Pending)
	}
	emu.Step()
	if st, r := c.LevelSetRecv(); r != OK || st != scmi.Success {
		t.Errorf("LevelSetRecv = (%v, %v), want (SUCCESS, ok)", st, r)
	}
	if got, _ := emu.Level(scmi.DomainBuck1); got != 1100000 {
		t.Errorf("rail level = %d, want 1100000", got)
	}
}

func TestRecvFailures(t *testing.T) {
	for _, tc := range []struct {
		name   string
		fault  emulator.Fault
		status scmi.Status
	}{
		{"error flag", emulator.Fault{ErrorFlag: true}, scmi.CommsError},
		{"bad length", emulator.Fault{Length: 2 * scmi.WordBytes}, scmi.CommsError},
		{"remote status", emulator.Fault{Status: scmi.Denied}, scmi.Denied},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, emu, _ := newTestClient(t)
			emu.FailNext(tc.fault)
			if err := c.LevelGetSend(scmi.DomainBuck1); err != nil {
				t.Fatalf("LevelGetSend failed: %v", err)
			}
			emu.Step()
			if _, st, r := c.LevelGetRecv(); r != Failed || st != tc.status {
				t.Errorf("LevelGetRecv = (%v, %v), want (%v, failed)", st, r, tc.status)
			}
			// Failure clears the channel so the next request goes through.
			if err := c.LevelGetSend(scmi.DomainBuck1); err != nil {
				t.Errorf("LevelGetSend after failure: %v", err)
			}
		})
	}
}

func TestNegativeLevel(t *testing.T) {
	c, emu, _ := newTestClient(t)
	emu.AddDomain(scmi.DomainBuck1, emulator.Domain{Level: -1, Min: -1, Max: 0})
	if err := c.LevelGetSend(scmi.DomainBuck1); err != nil {
		t.Fatalf("LevelGetSend failed: %v", err)
	}
	emu.Step()
	if _, _, r := c.LevelGetRecv(); r != Failed {
		t.Errorf("LevelGetRecv of a negative level = %v, want %v", r, Failed)
	}
}

func TestSendOnErroredChannel(t *testing.T) {
	c, _, mem := newTestClient(t)
	mem.Store(scmi.OffsetChannelStatus, scmi.ChannelError)
	if err := c.LevelSetSend(scmi.DomainBuck1, 0, 1000000); !errors.Is(err, ErrChannelErrored) {
		t.Fatalf("LevelSetSend = %v, want %v", err, ErrChannelErrored)
	}
	if got := mem.Load(scmi.OffsetChannelStatus); got != scmi.ChannelFree {
		t.Errorf("status after errored send = %#x, want %#x", got, scmi.ChannelFree)
	}
}

func TestProtocolVersion(t *testing.T) {
	c, emu, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go emu.Run(ctx)

	if err := c.WaitFree(ctx, DefaultSetupTimeout); err != nil {
		t.Fatalf("WaitFree failed: %v", err)
	}
	v, err := c.ProtocolVersion(ctx, time.Second)
	if err != nil {
		t.Fatalf("ProtocolVersion failed: %v", err)
	}
	if v != emulator.DefaultVersion {
		t.Errorf("ProtocolVersion = %#x, want %#x", v, emulator.DefaultVersion)
	}
}

func TestProtocolVersionTimeout(t *testing.T) {
	// Nobody answers.
	c, _, _ := newTestClient(t)
	_, err := c.ProtocolVersion(context.Background(), time.Millisecond)
	if !errors.Is(err, scmi.Timeout) {
		t.Errorf("ProtocolVersion = %v, want %v", err, scmi.Timeout)
	}
}

func TestProtocolVersionErrored(t *testing.T) {
	c, emu, mem := newTestClient(t)
	emu.FailNext(emulator.Fault{ErrorFlag: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go emu.Run(ctx)

	_, err := c.ProtocolVersion(ctx, time.Second)
	if !errors.Is(err, scmi.CommsError) {
		t.Errorf("ProtocolVersion = %v, want %v", err, scmi.CommsError)
	}
	if got := mem.Load(scmi.OffsetChannelStatus); got != 0 {
		t.Errorf("status after errored version query = %#x, want 0", got)
	}
}

func TestWaitFree(t *testing.T) {
	c, _, mem := newTestClient(t)

	mem.Store(scmi.OffsetChannelStatus, 0)
	if err := c.WaitFree(context.Background(), time.Millisecond); !errors.Is(err, errStillBusy) {
		t.Errorf("WaitFree on a busy channel = %v, want %v", err, errStillBusy)
	}
	// The channel is cleared on failure.
	if !c.ch.Ready() {
		t.Errorf("channel not cleared after WaitFree timeout")
	}

	mem.Store(scmi.OffsetChannelStatus, scmi.ChannelError)
	if err := c.WaitFree(context.Background(), time.Second); !errors.Is(err, ErrChannelErrored) {
		t.Errorf("WaitFree on an errored channel = %v, want %v", err, ErrChannelErrored)
	}
}
