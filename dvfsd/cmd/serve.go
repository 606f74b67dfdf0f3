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
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gofrs/flock"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"gvisor.dev/dvfs/dvfsd/cmd/util"
	"gvisor.dev/dvfs/dvfsd/config"
	"gvisor.dev/dvfs/dvfsd/flag"
	"gvisor.dev/dvfs/dvfsd/metricserver"
	"gvisor.dev/dvfs/pkg/log"
	"gvisor.dev/dvfs/pkg/metric"
	"gvisor.dev/dvfs/pkg/smc"
)

// Serve implements subcommands.Command for the "serve" command.
type Serve struct {
	initialRate uint64
	latency     time.Duration
}

// Name implements subcommands.Command.Name.
func (*Serve) Name() string {
	return "serve"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Serve) Synopsis() string {
	return "serve DVFS calls on the service socket"
}

// Usage implements subcommands.Command.Usage.
func (*Serve) Usage() string {
	return `serve [flags] - serve DVFS calls until interrupted.

The operating points are read from --opp-table. Without a table, every call is
answered with "not supported".
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Serve) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&s.initialRate, "initial-rate", 0, "starting rate in Hz of the simulated clock. Default is the first operating point.")
	f.DurationVar(&s.latency, "emulate-latency", 20*time.Microsecond, "response time of the emulated power controller.")
}

// Execute implements subcommands.Command.Execute.
func (s *Serve) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	ctx, stop := signal.NotifyContext(ctx, unix.SIGINT, unix.SIGTERM)
	defer stop()

	if err := s.serve(ctx, conf); err != nil {
		util.Fatalf("serve: %v", err)
	}
	return subcommands.ExitSuccess
}

func (s *Serve) serve(ctx context.Context, conf *config.Config) error {
	if err := os.MkdirAll(conf.RootDir, 0711); err != nil {
		return fmt.Errorf("creating root directory %q: %w", conf.RootDir, err)
	}
	lock := flock.New(conf.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking %q: %w", conf.LockPath(), err)
	}
	if !locked {
		return fmt.Errorf("another dvfsd is serving root %q", conf.RootDir)
	}
	defer lock.Unlock()

	tbl, err := loadTable(conf)
	if err != nil {
		return err
	}
	p, err := newPlatform(conf, tbl, platformOpts{initialRate: s.initialRate, latency: s.latency})
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.runEmulator(ctx) })
	// fail stops the goroutines started so far.
	fail := func(err error) error {
		cancel()
		g.Wait()
		return err
	}

	svc, err := setupService(ctx, conf, tbl, p)
	if err != nil {
		return fail(fmt.Errorf("setting up DVFS: %w", err))
	}

	m, err := newServiceMetrics(metric.Default, p.clock.Rate, func() bool { return svc.State().HasTarget() })
	if err != nil {
		return fail(fmt.Errorf("registering metrics: %w", err))
	}
	srv := smc.NewServer(svc)
	srv.OnCall = m.observe

	l, err := listenUnix(ctx, conf.SocketPath())
	if err != nil {
		return fail(err)
	}
	defer os.Remove(conf.SocketPath())
	g.Go(func() error { return srv.Serve(ctx, l) })

	if conf.MetricServer != "" {
		ms := &metricserver.Server{
			Address: conf.MetricServer,
			State:   func() string { return svc.State().String() },
		}
		g.Go(func() error { return ms.Run(ctx) })
	} else if err := metric.Initialize(); err != nil {
		log.Warningf("Initializing metrics: %v", err)
	}

	log.Infof("Serving on %s", conf.SocketPath())
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warningf("Notifying service manager: %v", err)
	} else if sent {
		log.Debugf("Notified service manager")
	}

	err = g.Wait()
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	if st := svc.State(); st.HasTarget() {
		log.Warningf("Exiting with a rate change in flight: %v", st)
	}
	log.Infof("Stopped serving")
	return err
}

// listenUnix listens on the unix socket at path, replacing a stale socket
// file.
func listenUnix(ctx context.Context, path string) (net.Listener, error) {
	if st, err := os.Lstat(path); err == nil && st.Mode()&os.ModeSocket != 0 {
		os.Remove(path)
	}
	l, err := (&net.ListenConfig{}).Listen(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("cannot listen on unix domain socket %q: %w", path, err)
	}
	return l, nil
}
