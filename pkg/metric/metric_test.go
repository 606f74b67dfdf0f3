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

package metric

import (
	"bytes"
	"errors"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/common/expfmt"
)

var approx = cmp.Comparer(func(x, y float64) bool {
	d := x - y
	return d < 1e-12 && d > -1e-12
})

func TestUint64Metric(t *testing.T) {
	r := NewRegistry()
	calls, err := r.NewUint64Metric("dvfs_calls_total", "Service calls.",
		NewField("function", []string{"set_rate", "round_rate"}),
		NewField("status", []string{"ok", "failed", "pending"}))
	if err != nil {
		t.Fatalf("NewUint64Metric failed: %v", err)
	}
	calls.Increment("set_rate", "pending")
	calls.Increment("set_rate", "pending")
	calls.IncrementBy(5, "round_rate", "ok")

	for _, tc := range []struct {
		fields []string
		want   uint64
	}{
		{[]string{"set_rate", "pending"}, 2},
		{[]string{"round_rate", "ok"}, 5},
		{[]string{"round_rate", "failed"}, 0},
	} {
		if got := calls.Value(tc.fields...); got != tc.want {
			t.Errorf("Value(%v) = %d, want %d", tc.fields, got, tc.want)
		}
	}

	defer func() {
		if recover() == nil {
			t.Errorf("Increment with a disallowed value did not panic")
		}
	}()
	calls.Increment("set_rate", "exploded")
}

func TestFieldMapperRoundTrip(t *testing.T) {
	m, err := newFieldMapper(
		NewField("a", []string{"x", "y"}),
		NewField("b", []string{"1", "2", "3"}))
	if err != nil {
		t.Fatalf("newFieldMapper failed: %v", err)
	}
	if got := m.numKeys(); got != 6 {
		t.Fatalf("numKeys() = %d, want 6", got)
	}
	for key := 0; key < m.numKeys(); key++ {
		if got := m.lookup(m.keyToMultiField(key)...); got != key {
			t.Errorf("lookup(keyToMultiField(%d)) = %d", key, got)
		}
	}

	if _, err := newFieldMapper(NewField("a", nil)); err == nil {
		t.Errorf("newFieldMapper accepted a field with no values")
	}
	if _, err := newFieldMapper(NewField("a", []string{"x", "x"})); err == nil {
		t.Errorf("newFieldMapper accepted duplicate values")
	}
}

func TestRegistration(t *testing.T) {
	r := NewRegistry()
	if _, err := r.NewUint64Metric("dvfs_x", ""); err != nil {
		t.Fatalf("NewUint64Metric failed: %v", err)
	}
	if _, err := r.NewUint64Metric("dvfs_x", ""); !errors.Is(err, ErrNameInUse) {
		t.Errorf("duplicate NewUint64Metric = %v, want %v", err, ErrNameInUse)
	}
	if _, err := r.NewUint64Metric("0dvfs", ""); err == nil {
		t.Errorf("NewUint64Metric accepted an invalid name")
	}
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := r.Initialize(); err == nil {
		t.Errorf("second Initialize succeeded")
	}
	if _, err := r.NewUint64Metric("dvfs_y", ""); !errors.Is(err, ErrInitializationDone) {
		t.Errorf("NewUint64Metric after Initialize = %v, want %v", err, ErrInitializationDone)
	}
}

func TestDurationBucketer(t *testing.T) {
	b := NewDurationBucketer(3, time.Millisecond, 100*time.Millisecond)
	var got []float64
	for i := 0; i < b.NumFiniteBuckets(); i++ {
		got = append(got, b.UpperBound(i))
	}
	want := []float64{0.001, 0.01, 0.1}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("bounds mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteText(t *testing.T) {
	r := NewRegistry()
	calls, err := r.NewUint64Metric("dvfs_calls_total", "Service calls.",
		NewField("status", []string{"ok", "failed"}))
	if err != nil {
		t.Fatalf("NewUint64Metric failed: %v", err)
	}
	calls.Increment("ok")
	if err := r.RegisterCustomUint64Metric("dvfs_cpu_rate_hz", false, "Current CPU rate.", func(...string) uint64 {
		return 1200000000
	}); err != nil {
		t.Fatalf("RegisterCustomUint64Metric failed: %v", err)
	}
	latency, err := r.NewDistributionMetric("dvfs_rate_change_seconds", "Rate change latency.",
		NewDurationBucketer(2, time.Millisecond, 10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewDistributionMetric failed: %v", err)
	}
	latency.AddDuration(500 * time.Microsecond)
	latency.AddDuration(time.Millisecond)
	latency.AddDuration(5 * time.Millisecond)
	latency.AddDuration(time.Second)

	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("TextToMetricFamilies failed: %v\n%s", err, buf.String())
	}

	type sample struct {
		Labels map[string]string
		Value  float64
	}
	got := map[string][]sample{}
	var (
		bounds     []float64
		cumulative []uint64
	)
	for name, f := range families {
		for _, m := range f.GetMetric() {
			s := sample{Labels: map[string]string{}}
			for _, l := range m.GetLabel() {
				s.Labels[l.GetName()] = l.GetValue()
			}
			switch {
			case m.Counter != nil:
				s.Value = m.GetCounter().GetValue()
			case m.Gauge != nil:
				s.Value = m.GetGauge().GetValue()
			case m.Histogram != nil:
				s.Value = float64(m.GetHistogram().GetSampleCount())
				for _, b := range m.GetHistogram().GetBucket() {
					if math.IsInf(b.GetUpperBound(), +1) {
						continue
					}
					bounds = append(bounds, b.GetUpperBound())
					cumulative = append(cumulative, b.GetCumulativeCount())
				}
			}
			got[name] = append(got[name], s)
		}
	}
	want := map[string][]sample{
		"dvfs_calls_total": {
			{Labels: map[string]string{"status": "ok"}, Value: 1},
			{Labels: map[string]string{"status": "failed"}, Value: 0},
		},
		"dvfs_cpu_rate_hz":         {{Labels: map[string]string{}, Value: 1200000000}},
		"dvfs_rate_change_seconds": {{Labels: map[string]string{}, Value: 4}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("exported metrics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.001, 0.01}, bounds, approx); diff != "" {
		t.Errorf("bucket bounds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{2, 3}, cumulative); diff != "" {
		t.Errorf("bucket counts mismatch (-want +got):\n%s", diff)
	}
}

func TestServeHTTP(t *testing.T) {
	r := NewRegistry()
	if _, err := r.NewUint64Metric("dvfs_calls_total", "Service calls."); err != nil {
		t.Fatalf("NewUint64Metric failed: %v", err)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if got, want := rec.Header().Get("Content-Type"), string(expfmt.FmtText); got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
	if !strings.Contains(rec.Body.String(), "dvfs_calls_total 0") {
		t.Errorf("body missing counter:\n%s", rec.Body.String())
	}
}
