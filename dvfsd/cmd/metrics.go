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
	"sync"
	"time"

	"gvisor.dev/dvfs/pkg/dvfs"
	"gvisor.dev/dvfs/pkg/log"
	"gvisor.dev/dvfs/pkg/metric"
	"gvisor.dev/dvfs/pkg/smc"
)

// unknownFunction labels calls to functions the service doesn't know.
const unknownFunction = "unknown"

var (
	functionField = metric.NewField("function", []string{
		dvfs.NoFunction.String(),
		dvfs.SetRate.String(),
		dvfs.SetRateStatus.String(),
		dvfs.RecalcRate.String(),
		dvfs.RoundRate.String(),
		unknownFunction,
	})
	statuses = []dvfs.Status{
		dvfs.OK,
		dvfs.NotSupported,
		dvfs.Failed,
		dvfs.InvalidParameter,
		dvfs.PermissionDenied,
		dvfs.Pending,
	}
)

func statusField(name string) metric.Field {
	var values []string
	for _, st := range statuses {
		values = append(values, st.String())
	}
	return metric.NewField(name, values)
}

// serviceMetrics records service calls as they are served.
type serviceMetrics struct {
	calls       *metric.Uint64Metric
	changes     *metric.Uint64Metric
	changeTimes *metric.DistributionMetric
	warn        log.Logger

	mu sync.Mutex

	// changeStart is when the in-flight rate change was accepted, or zero.
	changeStart time.Time
}

// newServiceMetrics registers the service metrics with r. rate and inFlight
// back the gauges.
func newServiceMetrics(r *metric.Registry, rate func() uint64, inFlight func() bool) (*serviceMetrics, error) {
	m := &serviceMetrics{warn: log.BasicRateLimitedLogger(time.Minute)}
	var err error
	if m.calls, err = r.NewUint64Metric("dvfs_calls_total", "Service calls by function and result.", functionField, statusField("status")); err != nil {
		return nil, err
	}
	if m.changes, err = r.NewUint64Metric("dvfs_rate_changes_total", "Completed rate changes by result.", statusField("result")); err != nil {
		return nil, err
	}
	if m.changeTimes, err = r.NewDistributionMetric("dvfs_rate_change_seconds", "Time from accepting a rate change to its completion.", metric.NewDurationBucketer(12, 10*time.Microsecond, 100*time.Millisecond)); err != nil {
		return nil, err
	}
	if err := r.RegisterCustomUint64Metric("dvfs_cpu_rate_hz", false, "Current CPU rate.", func(...string) uint64 { return rate() }); err != nil {
		return nil, err
	}
	if err := r.RegisterCustomUint64Metric("dvfs_rate_change_in_flight", false, "1 while a rate change is in flight.", func(...string) uint64 {
		if inFlight() {
			return 1
		}
		return 0
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// observe is an smc.Server.OnCall callback.
func (m *serviceMetrics) observe(call smc.Call, res smc.Result) {
	fn := call.Function.String()
	switch call.Function {
	case dvfs.NoFunction, dvfs.SetRate, dvfs.SetRateStatus, dvfs.RecalcRate, dvfs.RoundRate:
	default:
		fn = unknownFunction
	}
	m.calls.Increment(fn, res.Status.String())

	if res.Status == dvfs.Failed {
		m.warn.Warningf("Service call %v failed", call)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch call.Function {
	case dvfs.SetRate:
		switch res.Status {
		case dvfs.Pending:
			m.changeStart = time.Now()
		case dvfs.PermissionDenied:
			// A change is already in flight.
		default:
			// Completed or rejected without going in flight.
			m.changes.Increment(res.Status.String())
		}
	case dvfs.SetRateStatus:
		if res.Status == dvfs.Pending || m.changeStart.IsZero() {
			return
		}
		m.changes.Increment(res.Status.String())
		m.changeTimes.AddDuration(time.Since(m.changeStart))
		m.changeStart = time.Time{}
	}
}
