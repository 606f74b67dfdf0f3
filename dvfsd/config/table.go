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

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"
	"gvisor.dev/dvfs/pkg/opp"
)

// Entry is one operating point of a Table, named after the device tree
// operating-points-v2 properties.
type Entry struct {
	Hz          uint64 `toml:"opp-hz" yaml:"opp-hz"`
	Microvolt   uint32 `toml:"opp-microvolt" yaml:"opp-microvolt"`
	SupportedHW uint32 `toml:"opp-supported-hw" yaml:"opp-supported-hw"`
}

// Table is the platform description of the CPU cluster. It is loaded from a
// TOML or YAML file, e.g.:
//
//	domain = 10
//	part-number = 0x80000000
//
//	[[opp]]
//	opp-hz = 650000000
//	opp-microvolt = 1200000
//	opp-supported-hw = 0x1
//
// A table without entries disables DVFS.
type Table struct {
	// Domain overrides Config.VoltageDomain.
	Domain *uint32 `toml:"domain" yaml:"domain"`

	// PartNumber overrides Config.PartNumber.
	PartNumber *uint32 `toml:"part-number" yaml:"part-number"`

	Entries []Entry `toml:"opp" yaml:"opp"`
}

// LoadTable reads and validates the table at path. The format is chosen by
// extension: .toml, or .yaml and .yml.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading operating point table: %w", err)
	}
	t, err := ParseTable(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, fmt.Errorf("operating point table %q: %w", path, err)
	}
	return t, nil
}

// ParseTable parses and validates a table in format "toml" or "yaml".
// Unknown keys are rejected.
func ParseTable(data []byte, format string) (*Table, error) {
	t := &Table{}
	switch format {
	case "toml":
		md, err := toml.Decode(string(data), t)
		if err != nil {
			return nil, err
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return nil, fmt.Errorf("unknown key %q", undec[0].String())
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(t); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown table format %q", format)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) validate() error {
	for i, e := range t.Entries {
		if e.Hz == 0 {
			return fmt.Errorf("opp %d: opp-hz must be set", i)
		}
		if e.Microvolt == 0 || e.Microvolt > math.MaxInt32 {
			return fmt.Errorf("opp %d: opp-microvolt %d out of range", i, e.Microvolt)
		}
		if e.SupportedHW == 0 {
			return fmt.Errorf("opp %d: opp-supported-hw must be set", i)
		}
		if i > 0 && e.Hz <= t.Entries[i-1].Hz {
			return fmt.Errorf("opp %d: opp-hz %d not above previous %d", i, e.Hz, t.Entries[i-1].Hz)
		}
	}
	return nil
}

// WithDefaults returns a copy of t where settings the table leaves out are
// taken from conf.
func (t *Table) WithDefaults(conf *Config) *Table {
	c := deepcopy.Copy(t).(*Table)
	if c.Domain == nil {
		d := uint32(conf.VoltageDomain)
		c.Domain = &d
	}
	if c.PartNumber == nil {
		p := uint32(conf.PartNumber)
		c.PartNumber = &p
	}
	return c
}

// OperatingPoints returns the entries as catalog input.
func (t *Table) OperatingPoints() []opp.OperatingPoint {
	var pts []opp.OperatingPoint
	for _, e := range t.Entries {
		pts = append(pts, opp.OperatingPoint{
			Frequency:   e.Hz,
			Voltage:     e.Microvolt,
			SupportedHW: e.SupportedHW,
		})
	}
	return pts
}

// HWFilter returns the hardware filter of the table's part number, or of
// part number zero if it is unset.
func (t *Table) HWFilter() uint32 {
	var pn uint32
	if t.PartNumber != nil {
		pn = *t.PartNumber
	}
	return opp.HWFilter(pn)
}
