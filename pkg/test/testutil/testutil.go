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

// Package testutil contains utility functions for futex tests.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
)

// pollInterval is the delay between attempts in Poll.
const pollInterval = 5 * time.Millisecond

// Poll retries cb until it returns nil or the timeout expires, and returns
// the last error.
func Poll(cb func() error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return PollContext(ctx, cb)
}

// PollContext is like Poll, but takes a context instead of a timeout.
func PollContext(ctx context.Context, cb func() error) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(pollInterval), ctx)
	return backoff.Retry(cb, b)
}

// WaitForCount polls get until it returns want, or the timeout expires.
func WaitForCount(get func() (int, error), want int, timeout time.Duration) error {
	return Poll(func() error {
		got, err := get()
		if err != nil {
			return backoff.Permanent(err)
		}
		if got != want {
			return fmt.Errorf("got %d, want %d", got, want)
		}
		return nil
	}, timeout)
}
