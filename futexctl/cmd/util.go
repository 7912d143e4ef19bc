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

// Package cmd holds implementations of the futexctl commands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"gvisor.dev/futex/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages are
// consumed by the caller, so they are also written to stderr.
var ErrorLogger io.Writer

// Fatalf logs the same message to stderr and ErrorLogger, then exits with
// status 128.
func Fatalf(format string, args ...any) {
	log.Warningf(format, args...)
	writeError(format, args...)
	os.Exit(128)
}

// Infof writes an informational message to stdout and logs it.
func Infof(format string, args ...any) {
	log.Infof(format, args...)
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

func writeError(format string, args ...any) {
	msg := fmt.Sprintf(format+"\n", args...)
	fmt.Fprint(os.Stderr, msg)
	if ErrorLogger != nil {
		fmt.Fprint(ErrorLogger, msg)
	}
}
