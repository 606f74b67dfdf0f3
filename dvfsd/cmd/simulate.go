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

package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/dvfs/dvfsd/cmd/util"
	"gvisor.dev/dvfs/dvfsd/config"
	"gvisor.dev/dvfs/dvfsd/flag"
	"gvisor.dev/dvfs/pkg/clk"
	"gvisor.dev/dvfs/pkg/cpufreq"
	"gvisor.dev/dvfs/pkg/mailbox/emulator"
	"gvisor.dev/dvfs/pkg/smc"
)

// demoTable is used by simulate when --opp-table is not set.
const demoTable = `
[[opp]]
opp-hz = 650000000
opp-microvolt = 1200000
opp-supported-hw = 0x3

[[opp]]
opp-hz = 800000000
opp-microvolt = 1350000
opp-supported-hw = 0x2
`

// Simulate implements subcommands.Command for the "simulate" command.
type Simulate struct {
	initialRate uint64
	latency     time.Duration
}

// Name implements subcommands.Command.Name.
func (*Simulate) Name() string {
	return "simulate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Simulate) Synopsis() string {
	return "run rate changes against an emulated power controller and trace them"
}

// Usage implements subcommands.Command.Usage.
func (*Simulate) Usage() string {
	return `simulate [flags] <rate>... - change the rate of a simulated CPU to each
<rate> in turn, printing every clock and power controller operation.

Without --opp-table, a two point table is used and --part-number defaults to an
overdrive capable part.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Simulate) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&s.initialRate, "initial-rate", 0, "starting rate in Hz. Default is the first operating point.")
	f.DurationVar(&s.latency, "latency", 100*time.Microsecond, "response time of the emulated power controller.")
}

// Execute implements subcommands.Command.Execute.
func (s *Simulate) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := *args[0].(*config.Config)

	var rates []uint64
	for _, arg := range f.Args() {
		hz, err := parseRate(arg)
		if err != nil {
			util.Fatalf("%v", err)
		}
		rates = append(rates, hz)
	}

	var tbl *config.Table
	if conf.OPPTable == "" {
		t, err := config.ParseTable([]byte(demoTable), "toml")
		if err != nil {
			util.Fatalf("demo table: %v", err)
		}
		pn := uint32(1 << 31)
		t.PartNumber = &pn
		tbl = t.WithDefaults(&conf)
	} else {
		var err error
		if tbl, err = loadTable(&conf); err != nil {
			util.Fatalf("%v", err)
		}
	}

	opts := platformOpts{initialRate: s.initialRate, latency: s.latency}
	if err := simulate(ctx, os.Stdout, &conf, tbl, opts, rates); err != nil {
		util.Fatalf("simulate: %v", err)
	}
	return subcommands.ExitSuccess
}

// syncWriter serializes writes from the emulator and service goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format+"\n", args...)
}

// simulate sets up a service on an emulated platform and changes its rate to
// each of rates in turn, tracing to w. The service is reached over an
// in-memory connection so that every call crosses the wire format.
func simulate(ctx context.Context, w io.Writer, conf *config.Config, tbl *config.Table, opts platformOpts, rates []uint64) error {
	c := *conf
	c.Emulate = true
	c.Clock = config.ClockSim
	p, err := newPlatform(&c, tbl, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	out := &syncWriter{w: w}
	p.emu.Observe(func(req emulator.Request) {
		out.printf("  scmi  %v", req)
	})
	p.clock.(*clk.Sim).OnSetRate = func(hz uint64) {
		out.printf("  clock %d Hz", hz)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.runEmulator(gctx) })

	err = func() error {
		svc, err := setupService(gctx, &c, tbl, p)
		if err != nil {
			return err
		}
		srvConn, cliConn := net.Pipe()
		srv := smc.NewServer(svc)
		g.Go(func() error { return srv.ServeConn(srvConn) })
		client := smc.NewClient(cliConn)
		defer client.Close()

		d := cpufreq.NewDriver(client)
		for _, hz := range rates {
			from := p.clock.Rate()
			out.printf("set %d Hz (at %d Hz)", hz, from)
			start := time.Now()
			err := d.SetRate(gctx, hz)
			elapsed := time.Since(start)
			if err != nil {
				out.printf("  -> %v after %v", err, elapsed)
				continue
			}
			out.printf("  -> %d Hz after %v", p.clock.Rate(), elapsed)
		}
		return nil
	}()
	cancel()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}
