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
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/futex/pkg/refs"
)

func newFlagSet() *flag.FlagSet {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	return testFlags
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlagSet())
	if err != nil {
		t.Fatal(err)
	}
	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := newFlagSet()
	if err := testFlags.Parse([]string{
		"--debug",
		"--processes=1",
		"--private",
		"--clock=synthetic",
		"--ref-leak-mode=panic",
		"--wait-timeout=5ms",
	}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		LogFormat:     "text",
		Debug:         true,
		ReferenceLeak: refs.LeaksPanic,
		Clock:         ClockSynthetic,
		Processes:     1,
		Workers:       4,
		Iterations:    1000,
		Private:       true,
		WaitTimeout:   5 * time.Millisecond,
		Requeue:       true,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("NewFromFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	testFlags := newFlagSet()
	testFlags.Set("debug", "true")
	testFlags.Set("workers", "4") // Matches default value.
	testFlags.Set("iterations", "7")
	testFlags.Set("requeue", "false")
	testFlags.Set("wait-timeout", "1s")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}

	flags := c.ToFlags()
	t.Logf("Flags: %s", flags)
	fm := map[string]string{}
	for _, f := range flags {
		kv := strings.Split(f, "=")
		fm[kv[0]] = kv[1]
	}
	want := map[string]string{
		"--debug":        "true",
		"--iterations":   "7",
		"--requeue":      "false",
		"--wait-timeout": "1s",
	}
	if diff := cmp.Diff(want, fm); diff != "" {
		t.Errorf("ToFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestValidation(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
		err  string
	}{
		{name: "log format", args: []string{"--log-format=xml"}, err: "invalid log format"},
		{name: "no processes", args: []string{"--processes=0"}, err: "--processes"},
		{name: "no workers", args: []string{"--workers=0"}, err: "--workers"},
		{name: "negative iterations", args: []string{"--iterations=-1"}, err: "--iterations"},
		{name: "negative timeout", args: []string{"--wait-timeout=-1s"}, err: "--wait-timeout"},
		{name: "private across processes", args: []string{"--private", "--processes=2"}, err: "--private"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newFlagSet()
			if err := testFlags.Parse(tc.args); err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err := NewFromFlags(testFlags)
			if err == nil || !strings.Contains(err.Error(), tc.err) {
				t.Errorf("NewFromFlags(%v) got error %v, want one containing %q", tc.args, err, tc.err)
			}
		})
	}
}

func TestInvalidFlagValues(t *testing.T) {
	for _, args := range [][]string{
		{"--clock=wall"},
		{"--ref-leak-mode=sometimes"},
	} {
		if err := newFlagSet().Parse(args); err == nil {
			t.Errorf("Parse(%v) succeeded, want error", args)
		}
	}
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestApplyFile(t *testing.T) {
	for _, tc := range []struct {
		name     string
		file     string
		contents string
	}{
		{
			name: "toml",
			file: "futexctl.toml",
			contents: `
workers = 3
iterations = 50
requeue = false
wait-timeout = "10ms"
clock = "synthetic"
`,
		},
		{
			name: "yaml",
			file: "futexctl.yaml",
			contents: `
workers: 3
iterations: 50
requeue: false
wait-timeout: 10ms
clock: synthetic
`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.file, tc.contents)
			testFlags := newFlagSet()
			// Explicit flags win over the file.
			if err := testFlags.Parse([]string{"--iterations=9"}); err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if err := ApplyFile(testFlags, path); err != nil {
				t.Fatalf("ApplyFile: %v", err)
			}
			c, err := NewFromFlags(testFlags)
			if err != nil {
				t.Fatal(err)
			}
			want := &Config{
				LogFormat:   "text",
				Clock:       ClockSynthetic,
				Processes:   2,
				Workers:     3,
				Iterations:  9,
				WaitTimeout: 10 * time.Millisecond,
			}
			if diff := cmp.Diff(want, c); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyFileErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		file     string
		contents string
		err      string
	}{
		{name: "unknown flag", file: "c.toml", contents: "bogus = 1\n", err: "unknown flag"},
		{name: "bad value", file: "c.yaml", contents: "workers: many\n", err: "workers"},
		{name: "nested config", file: "c.yml", contents: "config: other.toml\n", err: "cannot include"},
		{name: "extension", file: "c.json", contents: "{}", err: "extension"},
		{name: "syntax", file: "c.toml", contents: "workers = = 1\n", err: "decoding"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.file, tc.contents)
			err := ApplyFile(newFlagSet(), path)
			if err == nil || !strings.Contains(err.Error(), tc.err) {
				t.Errorf("ApplyFile got error %v, want one containing %q", err, tc.err)
			}
		})
	}
}
