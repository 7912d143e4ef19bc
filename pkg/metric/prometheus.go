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
	"io"
	"sort"

	"github.com/prometheus/common/expfmt"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"
)

// family returns a snapshot of m as a Prometheus metric family.
func (m *Uint64Metric) family() *dto.MetricFamily {
	typ := dto.MetricType_GAUGE
	if m.cumulative {
		typ = dto.MetricType_COUNTER
	}
	f := &dto.MetricFamily{
		Name: proto.String(m.name),
		Help: proto.String(m.description),
		Type: typ.Enum(),
	}
	for i := range m.values {
		v := proto.Float64(float64(m.values[i].Load()))
		metric := &dto.Metric{}
		if m.cumulative {
			metric.Counter = &dto.Counter{Value: v}
		} else {
			metric.Gauge = &dto.Gauge{Value: v}
		}
		if m.field != nil {
			metric.Label = []*dto.LabelPair{{
				Name:  proto.String(m.field.name),
				Value: proto.String(m.field.allowedValues[i]),
			}}
		}
		f.Metric = append(f.Metric, metric)
	}
	return f
}

// WritePrometheus writes all registered metrics to w in the Prometheus text
// exposition format, ordered by name.
func WritePrometheus(w io.Writer) error {
	allMetricsMu.Lock()
	metrics := make([]*Uint64Metric, 0, len(allMetrics))
	for _, m := range allMetrics {
		metrics = append(metrics, m)
	}
	allMetricsMu.Unlock()
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].name < metrics[j].name })

	for _, m := range metrics {
		if _, err := expfmt.MetricFamilyToText(w, m.family()); err != nil {
			return err
		}
	}
	return nil
}
