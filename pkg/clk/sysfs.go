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

package clk

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gvisor.dev/dvfs/pkg/log"
)

// DefaultPolicyDir is the cpufreq policy of the first CPU cluster.
const DefaultPolicyDir = "/sys/devices/system/cpu/cpufreq/policy0"

// Sysfs drives a cpufreq policy through the userspace governor interface.
// Rates are exchanged with the kernel in kHz.
type Sysfs struct {
	dir string

	// warn reports unreadable rates. A broken policy is read on every
	// service call, so it is rate limited.
	warn log.Logger
}

// NewSysfs returns a driver for the cpufreq policy directory dir. The policy
// must use the userspace governor for SetRate to take effect.
func NewSysfs(dir string) (*Sysfs, error) {
	gov, err := readAttr(filepath.Join(dir, "scaling_governor"))
	if err != nil {
		return nil, err
	}
	if gov != "userspace" {
		return nil, fmt.Errorf("cpufreq policy %q uses governor %q, want userspace", dir, gov)
	}
	return &Sysfs{dir: dir, warn: log.BasicRateLimitedLogger(time.Minute)}, nil
}

// Rate returns the current rate in Hz, or zero if it cannot be read.
func (s *Sysfs) Rate() uint64 {
	path := filepath.Join(s.dir, "scaling_cur_freq")
	v, err := readAttr(path)
	if err != nil {
		s.warn.Warningf("Cannot read CPU rate: %v", err)
		return 0
	}
	khz, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		s.warn.Warningf("Cannot parse CPU rate in %q: %v", path, err)
		return 0
	}
	return khz * 1000
}

// SetRate sets the rate in Hz, rounded down to kHz.
func (s *Sysfs) SetRate(hz uint64) error {
	khz := hz / 1000
	if khz == 0 {
		return fmt.Errorf("%w: %d Hz", ErrInvalidRate, hz)
	}
	path := filepath.Join(s.dir, "scaling_setspeed")
	if err := os.WriteFile(path, []byte(strconv.FormatUint(khz, 10)), 0644); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}

func readAttr(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %q: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}
