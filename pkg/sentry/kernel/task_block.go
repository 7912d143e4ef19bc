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

package kernel

import (
	"gvisor.dev/futex/pkg/sentry/kernel/futex"
	"gvisor.dev/futex/pkg/sentry/ktime"
	"gvisor.dev/futex/pkg/sync"
)

// Block implements futex.Sleeper.Block. The timer is armed before l is
// released, and w.C is buffered, so a wake that happens after l is released
// but before the select is not lost. A wake always beats an interrupt, and
// the interrupt then stays pending for the next blocking call.
func (t *Task) Block(l sync.Locker, w *futex.Waiter, deadline ktime.Time) futex.WakeReason {
	select {
	case <-w.C:
		return futex.Woken
	default:
	}

	var timerC <-chan struct{}
	if !deadline.IsMax() {
		listener, c := ktime.NewChannelNotifier()
		timer := t.p.k.clock.NewTimer(listener)
		defer timer.Destroy()
		timer.Set(ktime.Setting{Enabled: true, Next: deadline}, nil)
		timerC = c
	}

	l.Unlock()
	var reason futex.WakeReason
	select {
	case <-w.C:
		reason = futex.Woken
	case <-timerC:
		reason = futex.TimedOut
	case <-t.interrupt:
		reason = futex.Interrupted
	case <-t.ctx.Done():
		reason = futex.Killed
	}
	l.Lock()

	// Wakes are delivered with l held, so this sees any wake that raced
	// with the interrupt.
	if reason == futex.Interrupted {
		select {
		case <-w.C:
			t.Interrupt()
			return futex.Woken
		default:
		}
	}
	return reason
}
