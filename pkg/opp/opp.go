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

// Package opp implements the CPU operating point catalog.
//
// A Catalog is built once from the platform configuration, filtered against
// the running silicon, and is read-only afterwards.
package opp

import (
	"fmt"
	"math"
)

// MaxPoints is the capacity of a Catalog.
const MaxPoints = 4

// Hardware support bits, matched against OperatingPoint.SupportedHW.
const (
	// HWNoOverdrive is set on parts without overdrive support.
	HWNoOverdrive = 1 << 0

	// HWSupportsOverdrive is set on overdrive capable parts.
	HWSupportsOverdrive = 1 << 1

	// PartNumberOverdrive is the part number bit advertising overdrive
	// support.
	PartNumberOverdrive = 1 << 31
)

// HWFilter returns the hardware filter for a part number.
func HWFilter(partNumber uint32) uint32 {
	if partNumber&PartNumberOverdrive != 0 {
		return HWSupportsOverdrive
	}
	return HWNoOverdrive
}

// OperatingPoint is a frequency and the voltage it requires.
type OperatingPoint struct {
	// Frequency is in Hz.
	Frequency uint64

	// Voltage is in microvolts.
	Voltage uint32

	// SupportedHW is the mask of hardware revisions this point applies to.
	SupportedHW uint32
}

// String implements fmt.Stringer.String.
func (p OperatingPoint) String() string {
	return fmt.Sprintf("%d Hz @ %d uV (hw %#x)", p.Frequency, p.Voltage, p.SupportedHW)
}

// UnsupportedHWError is returned by New when an operating point does not
// apply to the running hardware.
type UnsupportedHWError struct {
	Index       int
	SupportedHW uint32
	Filter      uint32
}

// Error implements error.Error.
func (e *UnsupportedHWError) Error() string {
	return fmt.Sprintf("operating point %d: supported-hw %#x doesn't match hw filter %#x", e.Index, e.SupportedHW, e.Filter)
}

// Catalog is an ordered, fixed capacity table of operating points.
//
// The zero value is an absent catalog.
type Catalog struct {
	points    [MaxPoints]OperatingPoint
	n         int
	truncated int
}

// New builds a Catalog from points. Points beyond MaxPoints are ignored.
// Every retained point must intersect hwFilter; otherwise the configuration
// is invalid and New fails. An empty points yields an absent catalog.
func New(points []OperatingPoint, hwFilter uint32) (*Catalog, error) {
	c := &Catalog{}
	if len(points) > MaxPoints {
		c.truncated = len(points) - MaxPoints
		points = points[:MaxPoints]
	}
	for i, p := range points {
		if p.SupportedHW&hwFilter == 0 {
			return nil, &UnsupportedHWError{Index: i, SupportedHW: p.SupportedHW, Filter: hwFilter}
		}
		c.points[i] = p
	}
	c.n = len(points)
	return c, nil
}

// Absent returns true if the catalog has no entries. An absent catalog
// disables DVFS.
func (c *Catalog) Absent() bool {
	return c == nil || c.n == 0
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return c.n
}

// Truncated returns the number of configured points New dropped because
// the catalog was full.
func (c *Catalog) Truncated() int {
	if c == nil {
		return 0
	}
	return c.truncated
}

// At returns entry i.
//
// Precondition: 0 <= i < c.Len().
func (c *Catalog) At(i int) OperatingPoint {
	if i < 0 || i >= c.Len() {
		panic(fmt.Sprintf("operating point index %d out of range [0, %d)", i, c.Len()))
	}
	return c.points[i]
}

// Points returns a copy of the entries.
func (c *Catalog) Points() []OperatingPoint {
	if c.Absent() {
		return nil
	}
	return append([]OperatingPoint(nil), c.points[:c.n]...)
}

// Closest returns the index of the entry whose frequency is nearest to
// target. An exact match returns immediately; otherwise the first index
// with the smallest distance wins, so ties resolve to the earlier entry.
//
// If the catalog is empty, Closest returns MaxPoints, which callers must
// reject by comparing against Len.
func (c *Catalog) Closest(target uint64) int {
	idx := MaxPoints
	best := uint64(math.MaxUint64)
	for i := 0; i < c.Len(); i++ {
		hz := c.points[i].Frequency
		if hz == target {
			return i
		}
		var delta uint64
		if hz > target {
			delta = hz - target
		} else {
			delta = target - hz
		}
		if delta < best {
			best = delta
			idx = i
		}
	}
	return idx
}
