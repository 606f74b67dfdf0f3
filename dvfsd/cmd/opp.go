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
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/dvfs/dvfsd/cmd/util"
	"gvisor.dev/dvfs/dvfsd/config"
	"gvisor.dev/dvfs/dvfsd/flag"
	"gvisor.dev/dvfs/pkg/opp"
)

// OPP implements subcommands.Command for the "opp" command.
type OPP struct{}

// Name implements subcommands.Command.Name.
func (*OPP) Name() string {
	return "opp"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*OPP) Synopsis() string {
	return "check the operating point table and print the resulting catalog"
}

// Usage implements subcommands.Command.Usage.
func (*OPP) Usage() string {
	return `opp - check --opp-table against --part-number and print the catalog.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*OPP) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*OPP) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	tbl, err := loadTable(conf)
	if err != nil {
		util.Fatalf("%v", err)
	}
	if err := printCatalog(os.Stdout, tbl); err != nil {
		util.Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// printCatalog writes the catalog built from tbl to w.
func printCatalog(w io.Writer, tbl *config.Table) error {
	cat, err := opp.New(tbl.OperatingPoints(), tbl.HWFilter())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "voltage domain %d, part number %#x, hw filter %#x\n", *tbl.Domain, *tbl.PartNumber, tbl.HWFilter())
	if cat.Absent() {
		fmt.Fprintf(w, "no operating points: DVFS disabled\n")
		return nil
	}
	for i, p := range cat.Points() {
		fmt.Fprintf(w, "%d: %v\n", i, p)
	}
	if n := cat.Truncated(); n > 0 {
		fmt.Fprintf(w, "%d operating points ignored, the catalog holds %d\n", n, opp.MaxPoints)
	}
	return nil
}
