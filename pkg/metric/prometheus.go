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
	"fmt"
	"io"
	"net/http"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Families returns a snapshot of every metric in r, sorted by name.
func (r *Registry) Families() []*dto.MetricFamily {
	r.mu.Lock()
	metrics := make([]*registeredMetric, 0, len(r.metrics))
	for _, m := range r.metrics {
		metrics = append(metrics, m)
	}
	r.mu.Unlock()

	sort.Slice(metrics, func(i, j int) bool { return metrics[i].name < metrics[j].name })
	families := make([]*dto.MetricFamily, 0, len(metrics))
	for _, m := range metrics {
		families = append(families, m.family())
	}
	return families
}

func (m *registeredMetric) family() *dto.MetricFamily {
	f := &dto.MetricFamily{
		Name: proto.String(m.name),
		Help: proto.String(m.description),
	}
	switch m.kind {
	case kindCounter:
		f.Type = dto.MetricType_COUNTER.Enum()
	case kindGauge:
		f.Type = dto.MetricType_GAUGE.Enum()
	case kindHistogram:
		f.Type = dto.MetricType_HISTOGRAM.Enum()
	}

	names := m.fieldMapper.names()
	for key := 0; key < m.fieldMapper.numKeys(); key++ {
		values := m.fieldMapper.keyToMultiField(key)
		metric := &dto.Metric{Label: labels(names, values)}
		switch {
		case m.uint64Metric != nil:
			metric.Counter = &dto.Counter{Value: proto.Float64(float64(m.uint64Metric.fields[key].Load()))}
		case m.custom != nil:
			v := proto.Float64(float64(m.custom.value(values...)))
			if m.kind == kindCounter {
				metric.Counter = &dto.Counter{Value: v}
			} else {
				metric.Gauge = &dto.Gauge{Value: v}
			}
		case m.distribution != nil:
			metric.Histogram = m.distribution.histogram(key)
		}
		f.Metric = append(f.Metric, metric)
	}
	return f
}

func labels(names, values []string) []*dto.LabelPair {
	if len(names) == 0 {
		return nil
	}
	pairs := make([]*dto.LabelPair, len(names))
	for i := range names {
		pairs[i] = &dto.LabelPair{Name: proto.String(names[i]), Value: proto.String(values[i])}
	}
	return pairs
}

func (d *DistributionMetric) histogram(key int) *dto.Histogram {
	counts, sum := d.snapshot(key)
	h := &dto.Histogram{SampleSum: proto.Float64(sum)}
	var cumulative uint64
	for i, bound := range d.bounds {
		cumulative += counts[i]
		h.Bucket = append(h.Bucket, &dto.Bucket{
			CumulativeCount: proto.Uint64(cumulative),
			UpperBound:      proto.Float64(bound),
		})
	}
	cumulative += counts[len(d.bounds)]
	h.SampleCount = proto.Uint64(cumulative)
	return h
}

// WriteText writes every metric in r to w in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	for _, f := range r.Families() {
		if _, err := expfmt.MetricFamilyToText(w, f); err != nil {
			return fmt.Errorf("writing metric %q: %w", f.GetName(), err)
		}
	}
	return nil
}

// ServeHTTP implements http.Handler.ServeHTTP by writing every metric in the
// Prometheus text format.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", string(expfmt.FmtText))
	if err := r.WriteText(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
