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
	"fmt"
	"time"

	"gvisor.dev/dvfs/pkg/mailbox"
	"gvisor.dev/dvfs/pkg/opp"
	"gvisor.dev/dvfs/pkg/voltd"
)

// SetupConfig is consumed once by Setup.
type SetupConfig struct {
	// Points are the candidate operating points, in ascending frequency.
	Points []opp.OperatingPoint

	// HWFilter is the capability of the running silicon (see opp.HWFilter).
	HWFilter uint32

	// Domain is the voltage domain supplying the CPU.
	Domain uint32

	// Timeout bounds each of the two setup waits. Zero selects
	// voltd.DefaultSetupTimeout.
	Timeout time.Duration
}

// Setup builds the catalog and arms the service.
//
// An operating point the hardware does not support is fatal. An empty
// catalog is not: the returned service is permanently disabled and ch is
// never touched. Otherwise Setup waits for ch to be free and queries the
// voltage domain protocol version, both bounded by cfg.Timeout. These are
// the only blocking waits in the package.
func Setup(ctx context.Context, cfg SetupConfig, clock Clock, ch *mailbox.Channel) (*Service, error) {
	cat, err := opp.New(cfg.Points, cfg.HWFilter)
	if err != nil {
		return nil, fmt.Errorf("invalid operating points: %w", err)
	}
	if cat.Absent() {
		return NewService(cat, clock, nil, cfg.Domain), nil
	}

	client := voltd.NewClient(ch)
	if err := client.WaitFree(ctx, cfg.Timeout); err != nil {
		return nil, err
	}
	version, err := client.ProtocolVersion(ctx, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("couldn't get scmi voltage domain protocol: %w", err)
	}

	s := NewService(cat, clock, client, cfg.Domain)
	s.version = version
	return s, nil
}
