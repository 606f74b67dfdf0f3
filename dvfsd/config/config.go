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

// Package config provides basic infrastructure to set configuration settings
// for dvfsd. Each setting that can be changed from the command line must
// have a flag tag and be registered in RegisterFlags.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"gvisor.dev/dvfs/pkg/abi/scmi"
	"gvisor.dev/dvfs/pkg/log"
	"gvisor.dev/dvfs/pkg/voltd"
)

// Config holds configuration that is not part of the operating point table.
type Config struct {
	// RootDir is the directory holding the daemon lock file and, by
	// default, its socket.
	RootDir string `flag:"root"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// DebugLog is the path to log debug information to, if not empty. The
	// variables %TIMESTAMP% and %COMMAND% are substituted.
	DebugLog string `flag:"debug-log"`

	// DebugLogFormat is the log format for the debug log.
	DebugLogFormat string `flag:"debug-log-format"`

	// Socket is the path of the unix socket service calls are served on.
	// If empty, it is RootDir/dvfsd.sock.
	Socket string `flag:"socket"`

	// MetricServer is the address the metric server listens on: a path
	// starting with "/" for a unix socket, otherwise a TCP address. Empty
	// disables it.
	MetricServer string `flag:"metric-server"`

	// OPPTable is the path of the operating point table, in TOML or YAML.
	OPPTable string `flag:"opp-table"`

	// Emulate serves the voltage domain protocol in-process instead of
	// talking to a remote power controller.
	Emulate bool `flag:"emulate"`

	// Shm is the file holding the shared memory mailbox, usually /dev/mem.
	Shm string `flag:"shm"`

	// ShmOffset is the offset of the mailbox within Shm.
	ShmOffset uint64 `flag:"shm-offset"`

	// IPCC is the file holding the IPCC register block, usually /dev/mem.
	IPCC string `flag:"ipcc"`

	// IPCCOffset is the offset of the IPCC register block within IPCC.
	IPCCOffset uint64 `flag:"ipcc-offset"`

	// IPCCChannel is the IPCC channel, counted from zero.
	IPCCChannel uint `flag:"ipcc-channel"`

	// VoltageDomain is the voltage domain supplying the CPU, unless the
	// table names one.
	VoltageDomain uint `flag:"voltage-domain"`

	// PartNumber is the silicon part number, from which the hardware
	// filter is derived, unless the table sets one.
	PartNumber uint64 `flag:"part-number"`

	// Clock selects the CPU frequency driver.
	Clock ClockType `flag:"clock"`

	// CPUFreqDir is the cpufreq policy directory used by the sysfs clock.
	CPUFreqDir string `flag:"cpufreq-dir"`

	// SetupTimeout bounds each of the two waits during setup.
	SetupTimeout time.Duration `flag:"setup-timeout"`
}

// ClockType selects a CPU frequency driver.
type ClockType int

const (
	// ClockSim is an in-memory clock. It is the only choice off target.
	ClockSim ClockType = iota

	// ClockSysfs drives the cpufreq userspace governor.
	ClockSysfs
)

func clockTypePtr(v ClockType) *ClockType {
	return &v
}

// Set implements flag.Value.
func (c *ClockType) Set(v string) error {
	switch v {
	case "sim":
		*c = ClockSim
	case "sysfs":
		*c = ClockSysfs
	default:
		return fmt.Errorf("invalid clock %q", v)
	}
	return nil
}

// Get implements flag.Getter.
func (c *ClockType) Get() any {
	return *c
}

// String implements flag.Value.
func (c ClockType) String() string {
	switch c {
	case ClockSim:
		return "sim"
	case ClockSysfs:
		return "sysfs"
	}
	panic(fmt.Sprintf("Invalid clock %d", c))
}

// SocketPath returns the effective service socket path.
func (c *Config) SocketPath() string {
	if c.Socket != "" {
		return c.Socket
	}
	return filepath.Join(c.RootDir, "dvfsd.sock")
}

// LockPath returns the path of the file locked by a serving daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.RootDir, "dvfsd.lock")
}

func (c *Config) validate() error {
	for _, f := range []string{c.LogFormat, c.DebugLogFormat} {
		if !validLogFormat(f) {
			return fmt.Errorf("invalid log format %q, must be one of %v", f, log.Formats)
		}
	}
	if c.IPCCChannel >= scmi.IPCCSetShift {
		return fmt.Errorf("ipcc-channel %d out of range [0, %d)", c.IPCCChannel, scmi.IPCCSetShift)
	}
	if c.ShmOffset%scmi.WordBytes != 0 {
		return fmt.Errorf("shm-offset %#x is not word aligned", c.ShmOffset)
	}
	if c.IPCCOffset%scmi.WordBytes != 0 {
		return fmt.Errorf("ipcc-offset %#x is not word aligned", c.IPCCOffset)
	}
	if c.PartNumber > 0xffffffff {
		return fmt.Errorf("part-number %#x does not fit 32 bits", c.PartNumber)
	}
	if c.SetupTimeout < 0 {
		return fmt.Errorf("setup-timeout %v is negative", c.SetupTimeout)
	}
	return nil
}

func validLogFormat(f string) bool {
	for _, v := range log.Formats {
		if f == v {
			return true
		}
	}
	return false
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Root: %s, socket: %s", c.RootDir, c.SocketPath())
	log.Infof("OPP table: %q, emulate: %t, clock: %v", c.OPPTable, c.Emulate, c.Clock)
	if !c.Emulate {
		log.Infof("Mailbox: %s@%#x, IPCC: %s@%#x channel %d", c.Shm, c.ShmOffset, c.IPCC, c.IPCCOffset, c.IPCCChannel)
	}
	log.Infof("Voltage domain: %d, part number: %#x, setup timeout: %v", c.VoltageDomain, c.PartNumber, c.SetupTimeout)
}

// defaultSetupTimeout is the default of --setup-timeout.
const defaultSetupTimeout = voltd.DefaultSetupTimeout
