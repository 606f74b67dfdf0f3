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

package opp

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const mhz = 1000 * 1000

func mustNew(t *testing.T, points []OperatingPoint, filter uint32) *Catalog {
	t.Helper()
	c, err := New(points, filter)
	if err != nil {
		t.Fatalf("New(%v, %#x) failed: %v", points, filter, err)
	}
	return c
}

func TestClosest(t *testing.T) {
	c := mustNew(t, []OperatingPoint{
		{Frequency: 200 * mhz, Voltage: 800000, SupportedHW: HWNoOverdrive},
		{Frequency: 400 * mhz, Voltage: 900000, SupportedHW: HWNoOverdrive},
		{Frequency: 800 * mhz, Voltage: 1000000, SupportedHW: HWNoOverdrive},
	}, HWNoOverdrive)

	for _, tc := range []struct {
		name   string
		target uint64
		want   int
	}{
		{"exact first", 200 * mhz, 0},
		{"exact last", 800 * mhz, 2},
		{"below all", 1, 0},
		{"above all", 5000 * mhz, 2},
		{"nearer to second", 350 * mhz, 1},
		{"tie resolves low", 300 * mhz, 0},
		{"tie resolves low upper pair", 600 * mhz, 1},
		{"zero", 0, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Closest(tc.target); got != tc.want {
				t.Errorf("Closest(%d) = %d, want %d", tc.target, got, tc.want)
			}
		})
	}
}

func TestClosestEmpty(t *testing.T) {
	c := mustNew(t, nil, HWNoOverdrive)
	if !c.Absent() {
		t.Errorf("empty catalog is not absent")
	}
	if got := c.Closest(100 * mhz); got < c.Len() {
		t.Errorf("Closest on empty catalog = %d, want out of range", got)
	}
	var nilCatalog *Catalog
	if !nilCatalog.Absent() || nilCatalog.Len() != 0 {
		t.Errorf("nil catalog should be absent and empty")
	}
}

func TestNewUnsupportedHW(t *testing.T) {
	_, err := New([]OperatingPoint{
		{Frequency: 400 * mhz, Voltage: 900000, SupportedHW: HWNoOverdrive | HWSupportsOverdrive},
		{Frequency: 1500 * mhz, Voltage: 1100000, SupportedHW: HWSupportsOverdrive},
	}, HWNoOverdrive)
	var hwErr *UnsupportedHWError
	if !errors.As(err, &hwErr) {
		t.Fatalf("New() error = %v, want *UnsupportedHWError", err)
	}
	want := UnsupportedHWError{Index: 1, SupportedHW: HWSupportsOverdrive, Filter: HWNoOverdrive}
	if diff := cmp.Diff(want, *hwErr); diff != "" {
		t.Errorf("UnsupportedHWError mismatch (-want +got):\n%s", diff)
	}
}

func TestNewTruncates(t *testing.T) {
	var points []OperatingPoint
	for i := 1; i <= MaxPoints+2; i++ {
		points = append(points, OperatingPoint{Frequency: uint64(i) * 100 * mhz, Voltage: 800000, SupportedHW: HWNoOverdrive})
	}
	c := mustNew(t, points, HWNoOverdrive)
	if c.Len() != MaxPoints {
		t.Errorf("Len() = %d, want %d", c.Len(), MaxPoints)
	}
	if c.Truncated() != 2 {
		t.Errorf("Truncated() = %d, want 2", c.Truncated())
	}
	if diff := cmp.Diff(points[:MaxPoints], c.Points()); diff != "" {
		t.Errorf("Points() mismatch (-want +got):\n%s", diff)
	}
}

func TestHWFilter(t *testing.T) {
	if got := HWFilter(0x00002500); got != HWNoOverdrive {
		t.Errorf("HWFilter(no overdrive) = %#x, want %#x", got, HWNoOverdrive)
	}
	if got := HWFilter(PartNumberOverdrive | 0x2500); got != HWSupportsOverdrive {
		t.Errorf("HWFilter(overdrive) = %#x, want %#x", got, HWSupportsOverdrive)
	}
}
