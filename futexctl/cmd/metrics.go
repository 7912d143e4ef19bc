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
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/futex/futexctl/config"
	"gvisor.dev/futex/pkg/metric"
)

// maxMetricsIterations caps the workload run by the metrics command.
const maxMetricsIterations = 100

// Metrics implements subcommands.Command for the "metrics" command.
type Metrics struct{}

// Name implements subcommands.Command.Name.
func (*Metrics) Name() string {
	return "metrics"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Metrics) Synopsis() string {
	return "run a short workload and print futex metrics in Prometheus format"
}

// Usage implements subcommands.Command.Usage.
func (*Metrics) Usage() string {
	return `metrics - runs the scenario and a short stress workload, then prints futex metric data in Prometheus metric format.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Metrics) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Metrics) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := runMetrics(ctx, conf, os.Stdout); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

func runMetrics(ctx context.Context, conf *config.Config, out io.Writer) error {
	if err := RunScenario(ctx, io.Discard); err != nil {
		return err
	}
	short := *conf
	short.Iterations = min(short.Iterations, maxMetricsIterations)
	if _, err := RunStress(ctx, &short); err != nil {
		return err
	}
	return metric.WritePrometheus(out)
}
