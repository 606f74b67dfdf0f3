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
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/subcommands"
	"gvisor.dev/dvfs/dvfsd/cmd/util"
	"gvisor.dev/dvfs/dvfsd/config"
	"gvisor.dev/dvfs/dvfsd/flag"
	"gvisor.dev/dvfs/pkg/cpufreq"
	"gvisor.dev/dvfs/pkg/dvfs"
	"gvisor.dev/dvfs/pkg/log"
	"gvisor.dev/dvfs/pkg/smc"
)

// Rate implements subcommands.Command for the "rate" command.
type Rate struct {
	timeout time.Duration
}

// Name implements subcommands.Command.Name.
func (*Rate) Name() string {
	return "rate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Rate) Synopsis() string {
	return "query or change the CPU rate of a serving dvfsd"
}

// Usage implements subcommands.Command.Usage.
func (*Rate) Usage() string {
	return `rate [flags] get | round <rate> | set <rate> | wait

Rates are in Hz, with an optional k, M or G suffix, e.g. 650M.

  get    prints the current rate.
  round  prints the rate of the operating point closest to <rate>.
  set    changes the rate and waits for the change to complete.
  wait   finishes a change left in flight by an interrupted set.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Rate) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&r.timeout, "timeout", 5*time.Second, "bound on the whole command.")
}

// Execute implements subcommands.Command.Execute.
func (r *Rate) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	op := f.Arg(0)
	var hz uint64
	switch op {
	case "get", "wait":
		if f.NArg() != 1 {
			f.Usage()
			return subcommands.ExitUsageError
		}
	case "round", "set":
		if f.NArg() != 2 {
			f.Usage()
			return subcommands.ExitUsageError
		}
		var err error
		if hz, err = parseRate(f.Arg(1)); err != nil {
			util.Fatalf("%v", err)
		}
	default:
		f.Usage()
		return subcommands.ExitUsageError
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	c, err := smc.Dial(ctx, "unix", conf.SocketPath())
	if err != nil {
		util.Fatalf("connecting to dvfsd: %v", err)
	}
	defer c.Close()

	if err := runRate(ctx, os.Stdout, cpufreq.NewDriver(c), op, hz); err != nil {
		util.Fatalf("%s: %v", op, err)
	}
	return subcommands.ExitSuccess
}

// runRate runs operation op of the rate command.
func runRate(ctx context.Context, w io.Writer, d *cpufreq.Driver, op string, hz uint64) error {
	switch op {
	case "get":
		rate, err := d.Rate(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, rate)
	case "round":
		rate, err := d.RoundRate(ctx, hz)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, rate)
	case "set":
		start := time.Now()
		if err := d.SetRate(ctx, hz); err != nil {
			return err
		}
		log.Infof("Rate change to %d Hz took %v", hz, time.Since(start))
	case "wait":
		err := d.Wait(ctx)
		if cpufreq.IsStatus(err, dvfs.PermissionDenied) {
			fmt.Fprintln(w, "no rate change in flight")
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	return nil
}

// parseRate parses a rate in Hz with an optional k, M or G suffix.
func parseRate(s string) (uint64, error) {
	v := strings.TrimSuffix(strings.TrimSuffix(s, "Hz"), "hz")
	mult := uint64(1)
	if n := len(v); n > 0 {
		switch v[n-1] {
		case 'k', 'K':
			mult = 1e3
		case 'M':
			mult = 1e6
		case 'G':
			mult = 1e9
		}
		if mult != 1 {
			v = v[:n-1]
		}
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q", s)
	}
	if n > math.MaxUint64/mult {
		return 0, fmt.Errorf("rate %q overflows", s)
	}
	return n * mult, nil
}
