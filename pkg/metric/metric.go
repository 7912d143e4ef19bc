// Copyright 2018 The gVisor Authors.
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
package metric

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"gvisor.dev/futex/pkg/sync"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrFieldHasNoAllowedValues indicates that the field needs to define some
	// allowed values to be a valid and useful field.
	ErrFieldHasNoAllowedValues = errors.New("metric field does not define any allowed values")

	// ErrTooManyFields indicates that a metric was defined with more fields
	// than are supported.
	ErrTooManyFields = errors.New("metric has more than one field")
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

// Uint64Metric encapsulates a uint64 that represents some kind of metric to be
// monitored. A cumulative metric is exported as a counter, any other as a
// gauge.
type Uint64Metric struct {
	name        string
	description string
	cumulative  bool

	// field is the optional single field of the metric.
	field *Field

	// values holds one value per allowed field value, or a single value if
	// the metric has no field.
	values []atomic.Uint64
}

var (
	// allMetricsMu protects allMetrics.
	allMetricsMu sync.Mutex

	// allMetrics are the registered metrics, by name.
	allMetrics = make(map[string]*Uint64Metric)
)

// NewUint64Metric creates and registers a new metric with the given name.
//
// Metrics must be statically defined (i.e., at init).
func NewUint64Metric(name string, cumulative bool, description string, fields ...Field) (*Uint64Metric, error) {
	m := &Uint64Metric{
		name:        name,
		description: description,
		cumulative:  cumulative,
	}
	switch len(fields) {
	case 0:
		m.values = make([]atomic.Uint64, 1)
	case 1:
		if len(fields[0].allowedValues) == 0 {
			return nil, ErrFieldHasNoAllowedValues
		}
		m.field = &fields[0]
		m.values = make([]atomic.Uint64, len(fields[0].allowedValues))
	default:
		return nil, ErrTooManyFields
	}

	allMetricsMu.Lock()
	defer allMetricsMu.Unlock()
	if _, ok := allMetrics[name]; ok {
		return nil, ErrNameInUse
	}
	allMetrics[name] = m
	return m, nil
}

// MustCreateNewUint64Metric calls NewUint64Metric for a cumulative metric and
// panics if it returns an error.
func MustCreateNewUint64Metric(name string, description string, fields ...Field) *Uint64Metric {
	m, err := NewUint64Metric(name, true /* cumulative */, description, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// MustCreateNewUint64GaugeMetric calls NewUint64Metric for a non-cumulative
// metric and panics if it returns an error.
func MustCreateNewUint64GaugeMetric(name string, description string, fields ...Field) *Uint64Metric {
	m, err := NewUint64Metric(name, false /* cumulative */, description, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// key returns the index into m.values for fieldValues. It panics if called
// with the wrong number of field values or a value that is not allowed.
func (m *Uint64Metric) key(fieldValues []string) int {
	if m.field == nil {
		if len(fieldValues) != 0 {
			panic(fmt.Sprintf("metric %q has no fields, got %v", m.name, fieldValues))
		}
		return 0
	}
	if len(fieldValues) != 1 {
		panic(fmt.Sprintf("metric %q takes one field value, got %v", m.name, fieldValues))
	}
	i := slices.Index(m.field.allowedValues, fieldValues[0])
	if i < 0 {
		panic(fmt.Sprintf("metric %q: invalid value %q for field %q", m.name, fieldValues[0], m.field.name))
	}
	return i
}

// Value returns the current value of the metric for the given set of fields.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Value(fieldValues ...string) uint64 {
	return m.values[m.key(fieldValues)].Load()
}

// Increment increments the metric field by 1.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Increment(fieldValues ...string) {
	m.values[m.key(fieldValues)].Add(1)
}

// IncrementBy increments the metric by v.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) IncrementBy(v uint64, fieldValues ...string) {
	m.values[m.key(fieldValues)].Add(v)
}

// Decrement decrements the metric by 1. It is only meaningful for gauges.
func (m *Uint64Metric) Decrement(fieldValues ...string) {
	m.values[m.key(fieldValues)].Add(^uint64(0))
}
