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
	"errors"
	"fmt"
	"math"
	"time"

	"gvisor.dev/dvfs/dvfsd/config"
	"gvisor.dev/dvfs/pkg/abi/scmi"
	"gvisor.dev/dvfs/pkg/clk"
	"gvisor.dev/dvfs/pkg/dvfs"
	"gvisor.dev/dvfs/pkg/log"
	"gvisor.dev/dvfs/pkg/mailbox"
	"gvisor.dev/dvfs/pkg/mailbox/emulator"
	"gvisor.dev/dvfs/pkg/opp"
)

// platform is the hardware the service drives.
type platform struct {
	ch    *mailbox.Channel
	clock dvfs.Clock

	// emu is set when the power controller is emulated. It must be running
	// before the service is set up.
	emu *emulator.Emulator

	windows []*mailbox.Window
}

// Close unmaps the platform's windows.
func (p *platform) Close() {
	for _, w := range p.windows {
		if err := w.Close(); err != nil {
			log.Warningf("Unmapping mailbox window: %v", err)
		}
	}
}

// runEmulator serves the emulated power controller, if any, until ctx is
// done.
func (p *platform) runEmulator(ctx context.Context) error {
	if p.emu == nil {
		return nil
	}
	if err := p.emu.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}

// platformOpts are the settings of newPlatform not carried by Config.
type platformOpts struct {
	// initialRate is the starting rate of a simulated clock. Zero selects
	// the first operating point.
	initialRate uint64

	// latency is how long the emulated power controller takes to answer.
	latency time.Duration
}

// newPlatform opens the mailbox and the clock described by conf. tbl must
// have its defaults applied.
func newPlatform(conf *config.Config, tbl *config.Table, opts platformOpts) (*platform, error) {
	p := &platform{}
	points := tbl.OperatingPoints()

	rate := opts.initialRate
	if rate == 0 && len(points) > 0 {
		rate = points[0].Frequency
	}
	switch conf.Clock {
	case config.ClockSim:
		p.clock = clk.NewSim(rate, 0)
	case config.ClockSysfs:
		s, err := clk.NewSysfs(conf.CPUFreqDir)
		if err != nil {
			return nil, err
		}
		p.clock = s
		rate = s.Rate()
	}

	if conf.Emulate {
		win, err := mailbox.NewAnonymousWindow(scmi.SlotSize)
		if err != nil {
			return nil, err
		}
		p.windows = append(p.windows, win)
		p.emu = emulator.New(win)
		p.emu.SetLatency(opts.latency)
		p.emu.AddDomain(*tbl.Domain, emulatedRail(points, rate))
		if p.ch, err = mailbox.NewChannel(win, p.emu); err != nil {
			p.Close()
			return nil, err
		}
		return p, nil
	}

	if conf.Shm == "" {
		return nil, errors.New("--shm must be set unless --emulate is")
	}
	shm, err := mailbox.OpenWindow(conf.Shm, int64(conf.ShmOffset), scmi.SlotSize)
	if err != nil {
		return nil, fmt.Errorf("mapping mailbox: %w", err)
	}
	p.windows = append(p.windows, shm)
	regs, err := mailbox.OpenWindow(conf.IPCC, int64(conf.IPCCOffset), scmi.IPCCBlockSize)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("mapping IPCC registers: %w", err)
	}
	p.windows = append(p.windows, regs)
	bell, err := mailbox.NewIPCCDoorbell(regs, uint32(conf.IPCCChannel))
	if err != nil {
		p.Close()
		return nil, err
	}
	if p.ch, err = mailbox.NewChannel(shm, bell); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// emulatedRail returns a rail accepting every voltage in points, starting
// at the voltage of the point closest to rate.
func emulatedRail(points []opp.OperatingPoint, rate uint64) emulator.Domain {
	d := emulator.Domain{Min: math.MaxInt32}
	closest := uint64(math.MaxUint64)
	for _, pt := range points {
		v := int32(pt.Voltage)
		d.Min = min(d.Min, v)
		d.Max = max(d.Max, v)
		delta := max(pt.Frequency, rate) - min(pt.Frequency, rate)
		if delta < closest {
			closest = delta
			d.Level = v
		}
	}
	if len(points) == 0 {
		d.Min = 0
	}
	return d
}

// setupService sets up the DVFS service on p.
func setupService(ctx context.Context, conf *config.Config, tbl *config.Table, p *platform) (*dvfs.Service, error) {
	svc, err := dvfs.Setup(ctx, dvfs.SetupConfig{
		Points:   tbl.OperatingPoints(),
		HWFilter: tbl.HWFilter(),
		Domain:   *tbl.Domain,
		Timeout:  conf.SetupTimeout,
	}, p.clock, p.ch)
	if err != nil {
		return nil, err
	}
	cat := svc.Catalog()
	if cat.Absent() {
		log.Warningf("No operating points configured, DVFS is disabled")
		return svc, nil
	}
	if n := cat.Truncated(); n > 0 {
		log.Warningf("Ignored %d operating points beyond the first %d", n, opp.MaxPoints)
	}
	v := svc.ProtocolVersion()
	log.Infof("DVFS enabled: %d operating points, voltage domain %d, protocol version %d.%d", cat.Len(), *tbl.Domain, v>>16, v&0xffff)
	return svc, nil
}

// loadTable loads conf.OPPTable, or an empty table if it is unset, and
// applies the defaults from conf.
func loadTable(conf *config.Config) (*config.Table, error) {
	tbl := &config.Table{}
	if conf.OPPTable != "" {
		var err error
		if tbl, err = config.LoadTable(conf.OPPTable); err != nil {
			return nil, err
		}
	}
	return tbl.WithDefaults(conf), nil
}
