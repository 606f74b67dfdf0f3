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

// Package metric provides primitives for collecting metrics.
//
// Metrics are registered in a Registry until it is initialized, after which
// the set of metrics is fixed and may be exported in the Prometheus text
// format.
package metric

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInitializationDone indicates that the caller tried to create a
	// new metric after the registry was initialized.
	ErrInitializationDone = errors.New("metric cannot be created after initialization is complete")

	// ErrFieldValueNotAllowed indicates that a field value was not one of
	// the allowed values.
	ErrFieldValueNotAllowed = errors.New("field value not allowed")
)

// Field contains the field name and allowed values for the metric which is
// used in registration of the metric.
type Field struct {
	// name is the metric field name.
	name string

	// allowedValues is the list of allowed values for the field.
	allowedValues []string
}

// NewField defines a new Field that can be used to break down a metric.
func NewField(name string, allowedValues []string) Field {
	return Field{
		name:          name,
		allowedValues: allowedValues,
	}
}

// fieldMapper maps a combination of field values to a dense index key, and
// back. Keys enumerate the cartesian product of allowed values, with the
// last field varying fastest.
type fieldMapper struct {
	fields []Field
}

func newFieldMapper(fields ...Field) (fieldMapper, error) {
	for _, f := range fields {
		if len(f.allowedValues) == 0 {
			return fieldMapper{}, fmt.Errorf("field %q has no allowed values", f.name)
		}
		seen := make(map[string]struct{}, len(f.allowedValues))
		for _, v := range f.allowedValues {
			if _, ok := seen[v]; ok {
				return fieldMapper{}, fmt.Errorf("field %q allows %q twice", f.name, v)
			}
			seen[v] = struct{}{}
		}
	}
	return fieldMapper{fields: fields}, nil
}

// numKeys returns the number of field value combinations.
func (m fieldMapper) numKeys() int {
	n := 1
	for _, f := range m.fields {
		n *= len(f.allowedValues)
	}
	return n
}

// lookup returns the key for fieldValues. It panics if the number of values
// is wrong or a value is not allowed, as that is a programming error.
func (m fieldMapper) lookup(fieldValues ...string) int {
	if len(fieldValues) != len(m.fields) {
		panic(fmt.Sprintf("got %d field values, want %d", len(fieldValues), len(m.fields)))
	}
	key := 0
	for i, f := range m.fields {
		idx := -1
		for j, v := range f.allowedValues {
			if v == fieldValues[i] {
				idx = j
				break
			}
		}
		if idx < 0 {
			panic(fmt.Sprintf("%v: %q for field %q", ErrFieldValueNotAllowed, fieldValues[i], f.name))
		}
		key = key*len(f.allowedValues) + idx
	}
	return key
}

// keyToMultiField is the reverse of lookup.
func (m fieldMapper) keyToMultiField(key int) []string {
	values := make([]string, len(m.fields))
	for i := len(m.fields) - 1; i >= 0; i-- {
		f := m.fields[i]
		values[i] = f.allowedValues[key%len(f.allowedValues)]
		key /= len(f.allowedValues)
	}
	return values
}

func (m fieldMapper) names() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.name
	}
	return names
}

// Uint64Metric encapsulates a uint64 that represents some kind of metric to
// be monitored.
type Uint64Metric struct {
	// fields is the map of field-value combination index keys to counters.
	fields []atomic.Uint64

	// fieldMapper is used to generate index keys for the fields array.
	fieldMapper fieldMapper
}

// Value returns the current value of the metric for the given set of fields.
func (m *Uint64Metric) Value(fieldValues ...string) uint64 {
	return m.fields[m.fieldMapper.lookup(fieldValues...)].Load()
}

// Increment increments the metric field by 1.
func (m *Uint64Metric) Increment(fieldValues ...string) {
	m.IncrementBy(1, fieldValues...)
}

// IncrementBy increments the metric by v.
func (m *Uint64Metric) IncrementBy(v uint64, fieldValues ...string) {
	m.fields[m.fieldMapper.lookup(fieldValues...)].Add(v)
}

// customUint64Metric is a metric whose value is computed on demand.
type customUint64Metric struct {
	value func(fieldValues ...string) uint64
}

// Bucketer is an interface to bucket values into finite, distinct buckets.
type Bucketer interface {
	// NumFiniteBuckets is the number of finite buckets in the distribution.
	// This is only called once and never expected to return a different
	// value.
	NumFiniteBuckets() int

	// UpperBound returns the inclusive upper bound of finite bucket i.
	UpperBound(i int) float64
}

// DurationBucketer buckets durations in seconds with exponentially growing
// upper bounds.
type DurationBucketer struct {
	bounds []float64
}

// NewDurationBucketer returns a bucketer with numFiniteBuckets buckets whose
// upper bounds grow geometrically from minDuration to maxDuration.
func NewDurationBucketer(numFiniteBuckets int, minDuration, maxDuration time.Duration) *DurationBucketer {
	if numFiniteBuckets < 1 || minDuration <= 0 || maxDuration <= minDuration {
		panic(fmt.Sprintf("invalid duration bucketer: %d buckets from %v to %v", numFiniteBuckets, minDuration, maxDuration))
	}
	bounds := make([]float64, numFiniteBuckets)
	if numFiniteBuckets == 1 {
		bounds[0] = maxDuration.Seconds()
		return &DurationBucketer{bounds: bounds}
	}
	growth := math.Pow(maxDuration.Seconds()/minDuration.Seconds(), 1/float64(numFiniteBuckets-1))
	b := minDuration.Seconds()
	for i := range bounds {
		bounds[i] = b
		b *= growth
	}
	return &DurationBucketer{bounds: bounds}
}

// NumFiniteBuckets implements Bucketer.NumFiniteBuckets.
func (b *DurationBucketer) NumFiniteBuckets() int {
	return len(b.bounds)
}

// UpperBound implements Bucketer.UpperBound.
func (b *DurationBucketer) UpperBound(i int) float64 {
	return b.bounds[i]
}

// DistributionMetric is a distribution of values, exported as a histogram.
type DistributionMetric struct {
	bounds []float64

	mu sync.Mutex

	// counts holds, per field key, one count per finite bucket plus one
	// for the overflow bucket.
	//
	// +checklocks:mu
	counts [][]uint64

	// +checklocks:mu
	sums []float64

	fieldMapper fieldMapper
}

// AddSample adds a sample to the distribution.
func (d *DistributionMetric) AddSample(sample float64, fieldValues ...string) {
	key := d.fieldMapper.lookup(fieldValues...)
	// Buckets are inclusive of their upper bound.
	i := sort.SearchFloat64s(d.bounds, sample)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[key][i]++
	d.sums[key] += sample
}

// AddDuration adds a duration sample, in seconds.
func (d *DistributionMetric) AddDuration(v time.Duration, fieldValues ...string) {
	d.AddSample(v.Seconds(), fieldValues...)
}

// snapshot returns copies of the counts and sum for key.
func (d *DistributionMetric) snapshot(key int) ([]uint64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint64(nil), d.counts[key]...), d.sums[key]
}

// kind is the exported type of a registered metric.
type kind int

const (
	kindCounter kind = iota
	kindGauge
	kindHistogram
)

// registeredMetric is a metric known to a Registry.
type registeredMetric struct {
	name        string
	description string
	kind        kind
	fieldMapper fieldMapper

	// Exactly one of the following is set.
	uint64Metric *Uint64Metric
	custom       *customUint64Metric
	distribution *DistributionMetric
}

// Registry is a set of metrics.
type Registry struct {
	mu sync.Mutex

	// initialized indicates that all metrics are registered. metrics is
	// immutable once initialized is true.
	//
	// +checklocks:mu
	initialized bool

	// +checklocks:mu
	metrics map[string]*registeredMetric
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]*registeredMetric)}
}

// Default is the registry used by the package-level functions.
var Default = NewRegistry()

// Initialize marks the registry complete. Metrics may not be registered
// afterwards.
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return fmt.Errorf("metric.Initialize called after metric.Initialize: %w", ErrInitializationDone)
	}
	r.initialized = true
	return nil
}

func (r *Registry) register(m *registeredMetric) error {
	if err := verifyName(m.name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return ErrInitializationDone
	}
	if _, ok := r.metrics[m.name]; ok {
		return ErrNameInUse
	}
	r.metrics[m.name] = m
	return nil
}

// verifyName verifies that name is a valid Prometheus metric name.
func verifyName(name string) error {
	if name == "" {
		return errors.New("metric name is empty")
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == ':':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return fmt.Errorf("invalid metric name %q: character %q", name, c)
		}
	}
	if strings.HasPrefix(name, "__") {
		return fmt.Errorf("invalid metric name %q: reserved prefix", name)
	}
	return nil
}

// NewUint64Metric creates and registers a new cumulative metric with the
// given name.
func (r *Registry) NewUint64Metric(name, description string, fields ...Field) (*Uint64Metric, error) {
	f, err := newFieldMapper(fields...)
	if err != nil {
		return nil, err
	}
	m := &Uint64Metric{
		fieldMapper: f,
		fields:      make([]atomic.Uint64, f.numKeys()),
	}
	return m, r.register(&registeredMetric{
		name:         name,
		description:  description,
		kind:         kindCounter,
		fieldMapper:  f,
		uint64Metric: m,
	})
}

// RegisterCustomUint64Metric registers a metric whose value is obtained by
// calling value. A cumulative metric is exported as a counter, otherwise as
// a gauge.
func (r *Registry) RegisterCustomUint64Metric(name string, cumulative bool, description string, value func(...string) uint64, fields ...Field) error {
	f, err := newFieldMapper(fields...)
	if err != nil {
		return err
	}
	k := kindGauge
	if cumulative {
		k = kindCounter
	}
	return r.register(&registeredMetric{
		name:        name,
		description: description,
		kind:        k,
		fieldMapper: f,
		custom:      &customUint64Metric{value: value},
	})
}

// NewDistributionMetric creates and registers a new distribution metric.
func (r *Registry) NewDistributionMetric(name, description string, bucketer Bucketer, fields ...Field) (*DistributionMetric, error) {
	f, err := newFieldMapper(fields...)
	if err != nil {
		return nil, err
	}
	n := bucketer.NumFiniteBuckets()
	bounds := make([]float64, n)
	for i := range bounds {
		bounds[i] = bucketer.UpperBound(i)
		if i > 0 && bounds[i] <= bounds[i-1] {
			return nil, fmt.Errorf("bucket upper bounds must increase: %v", bounds[:i+1])
		}
	}
	d := &DistributionMetric{
		bounds:      bounds,
		counts:      make([][]uint64, f.numKeys()),
		sums:        make([]float64, f.numKeys()),
		fieldMapper: f,
	}
	for i := range d.counts {
		d.counts[i] = make([]uint64, n+1)
	}
	return d, r.register(&registeredMetric{
		name:         name,
		description:  description,
		kind:         kindHistogram,
		fieldMapper:  f,
		distribution: d,
	})
}

// MustCreateNewUint64Metric calls Default.NewUint64Metric and panics if it
// returns an error.
func MustCreateNewUint64Metric(name, description string, fields ...Field) *Uint64Metric {
	m, err := Default.NewUint64Metric(name, description, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// MustRegisterCustomUint64Metric calls Default.RegisterCustomUint64Metric
// and panics if it returns an error.
func MustRegisterCustomUint64Metric(name string, cumulative bool, description string, value func(...string) uint64, fields ...Field) {
	if err := Default.RegisterCustomUint64Metric(name, cumulative, description, value, fields...); err != nil {
		panic(fmt.Sprintf("Unable to register metric %q: %s", name, err))
	}
}

// MustCreateNewDistributionMetric calls Default.NewDistributionMetric and
// panics if it returns an error.
func MustCreateNewDistributionMetric(name, description string, bucketer Bucketer, fields ...Field) *DistributionMetric {
	d, err := Default.NewDistributionMetric(name, description, bucketer, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return d
}

// Initialize calls Default.Initialize.
func Initialize() error {
	return Default.Initialize()
}
