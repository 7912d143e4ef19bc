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

package futex

import (
	"time"

	"gvisor.dev/futex/pkg/log"
	"gvisor.dev/futex/pkg/metric"
)

var (
	waitOutcomes = metric.MustCreateNewUint64Metric(
		"futex_wait_total",
		"Number of completed futex waits, by outcome.",
		metric.NewField("outcome", []string{"woken", "value_changed", "timed_out", "interrupted", "fault"}))

	wokenCount = metric.MustCreateNewUint64Metric(
		"futex_woken_total",
		"Number of waiters woken by wake, requeue and wake-op calls.")

	requeuedCount = metric.MustCreateNewUint64Metric(
		"futex_requeued_total",
		"Number of waiters moved to another futex by requeue calls.")

	futexObjects = metric.MustCreateNewUint64GaugeMetric(
		"futex_objects",
		"Number of live futex objects, by registry scope.",
		metric.NewField("scope", []string{scopePrivate, scopeShared}))
)

const (
	scopePrivate = "private"
	scopeShared  = "shared"
)

// slowLog reports timed out and interrupted waits. These can be frequent in
// well-behaved programs, so they are rate limited.
var slowLog = log.BasicRateLimitedLogger(time.Second)
