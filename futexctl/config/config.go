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

// Package config provides basic infrastructure to set configuration settings
// for futexctl. Each setting that can be changed from the command line must
// have a corresponding flag name, registered in RegisterFlags, and a field in
// Config tagged with that name.
package config

import (
	"fmt"
	"time"

	"gvisor.dev/futex/pkg/log"
	"gvisor.dev/futex/pkg/refs"
)

// Config holds configuration that is not part of the command line arguments
// of a subcommand.
type Config struct {
	// ConfigFile is a TOML or YAML file that supplies defaults for flags
	// that are not set on the command line.
	ConfigFile string `flag:"config"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format"`

	// AlsoLogToStderr allows to send log messages to stderr as well as to
	// LogFilename.
	AlsoLogToStderr bool `flag:"alsologtostderr"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// ReferenceLeak sets reference leak check mode.
	ReferenceLeak refs.LeakMode `flag:"ref-leak-mode"`

	// Clock is the clock that kernels created by the workloads use.
	Clock ClockType `flag:"clock"`

	// Processes is the number of processes that share the futex words.
	Processes int `flag:"processes"`

	// Workers is the number of tasks in each process.
	Workers int `flag:"workers"`

	// Iterations is the number of lock/unlock pairs each task performs.
	Iterations int `flag:"iterations"`

	// Private makes the workloads use process-private futexes. It requires
	// a single process.
	Private bool `flag:"private"`

	// WaitTimeout bounds every futex wait. Waits that time out are retried.
	// Zero means no timeout.
	WaitTimeout time.Duration `flag:"wait-timeout"`

	// Requeue makes condition variable broadcasts requeue waiters onto the
	// mutex with FUTEX_CMP_REQUEUE instead of waking them all.
	Requeue bool `flag:"requeue"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json", "json-k8s":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'json-k8s'", c.LogFormat)
	}
	if c.Processes < 1 {
		return fmt.Errorf("--processes must be at least 1, got %d", c.Processes)
	}
	if c.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1, got %d", c.Workers)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("--iterations must not be negative, got %d", c.Iterations)
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf("--wait-timeout must not be negative, got %v", c.WaitTimeout)
	}
	if c.Private && c.Processes > 1 {
		return fmt.Errorf("--private requires --processes=1, got %d", c.Processes)
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config.Clock: %v", c.Clock)
	log.Infof("Config.Processes: %d, Config.Workers: %d, Config.Iterations: %d", c.Processes, c.Workers, c.Iterations)
	log.Infof("Config.Private: %t, Config.Requeue: %t", c.Private, c.Requeue)
	log.Infof("Config.WaitTimeout: %v", c.WaitTimeout)
	log.Infof("Config.ReferenceLeak: %v", c.ReferenceLeak)
}

// ClockType tells which clock a kernel uses.
type ClockType int

const (
	// ClockReal is the host monotonic clock.
	ClockReal ClockType = iota

	// ClockSynthetic is a clock that only moves when it is told to. Waits
	// with a deadline never time out on it unless a workload advances it.
	ClockSynthetic
)

func clockTypePtr(v ClockType) *ClockType {
	return &v
}

// Set implements flag.Value.
func (c *ClockType) Set(v string) error {
	switch v {
	case "real":
		*c = ClockReal
	case "synthetic":
		*c = ClockSynthetic
	default:
		return fmt.Errorf("invalid clock type %q", v)
	}
	return nil
}

// Get implements flag.Getter.
func (c *ClockType) Get() any {
	return *c
}

// String implements flag.Value.
func (c ClockType) String() string {
	switch c {
	case ClockReal:
		return "real"
	case ClockSynthetic:
		return "synthetic"
	}
	panic(fmt.Sprintf("Invalid clock type %d", c))
}
