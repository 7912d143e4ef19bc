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
	"fmt"

	"gvisor.dev/futex/pkg/sentry/ktime"
	"gvisor.dev/futex/pkg/sync"
)

// Waiter is the struct which gets enqueued into a Futex for wake up routines
// and requeue routines to scan and notify.
//
// Synchronization: waiterEntry and queued are protected by Domain.mu. C is
// only sent to with Domain.mu held, after the Waiter has been dequeued, so a
// Sleeper that observes a value on C also observes queued == nil once it
// reacquires Domain.mu.
type Waiter struct {
	// waiterEntry links Waiter into Futex.waiters.
	waiterEntry

	// queued is the Futex this Waiter is queued on, or nil if it is not
	// queued.
	queued *Futex

	// C is sent to when the Waiter is woken.
	C chan struct{}

	// bitmask is the set of wake bits this Waiter responds to.
	bitmask uint32
}

// NewWaiter returns a new unqueued Waiter.
func NewWaiter() *Waiter {
	return &Waiter{
		C: make(chan struct{}, 1),
	}
}

// queuedOn returns the Futex w is queued on, if any.
//
// Preconditions: Domain.mu is locked.
func (w *Waiter) queuedOn() (*Futex, bool) {
	return w.queued, w.queued != nil
}

// WakeReason is the reason a Sleeper returned from Block.
type WakeReason int

const (
	// Woken means that a value was received on Waiter.C.
	Woken WakeReason = iota

	// TimedOut means that the deadline passed first.
	TimedOut

	// Interrupted means that the sleeping task was interrupted.
	Interrupted

	// Killed means that the sleeping task is exiting.
	Killed
)

// String implements fmt.Stringer.String.
func (r WakeReason) String() string {
	switch r {
	case Woken:
		return "woken"
	case TimedOut:
		return "timed out"
	case Interrupted:
		return "interrupted"
	case Killed:
		return "killed"
	default:
		return fmt.Sprintf("WakeReason(%d)", int(r))
	}
}

// Sleeper blocks the calling task.
type Sleeper interface {
	// Block unlocks l, waits until w.C receives a value, the deadline
	// passes, or the task is interrupted, then locks l again before
	// returning. A deadline of ktime.MaxTime means no deadline.
	//
	// Block must not return Woken unless it received from w.C.
	Block(l sync.Locker, w *Waiter, deadline ktime.Time) WakeReason
}
