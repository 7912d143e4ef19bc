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
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/futex/futexctl/config"
	"gvisor.dev/futex/pkg/metric"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	metrics bool
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "hammer a futex mutex and condition variable from many tasks"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [-metrics] - runs --workers tasks in each of --processes processes. Each task increments a shared counter --iterations times under a futex mutex, then waits at a barrier that the last task broadcasts with FUTEX_CMP_REQUEUE (or FUTEX_WAKE with --requeue=false).
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&s.metrics, "metrics", true, "print futex metrics in Prometheus format when done.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	res, err := RunStress(ctx, conf)
	if err != nil {
		Fatalf("stress failed: %v", err)
	}
	Infof("counter: %d (want %d), released at barrier: %d", res.Counter, res.Want, res.Released)
	if s.metrics {
		if err := metric.WritePrometheus(os.Stdout); err != nil {
			Fatalf("writing metrics: %v", err)
		}
	}
	return subcommands.ExitSuccess
}
