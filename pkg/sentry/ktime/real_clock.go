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

package ktime

import (
	"time"

	"gvisor.dev/futex/pkg/sync"
)

// realClockStart is read once. Later readings add the monotonic time elapsed
// since, so steps of the host's wall clock are not observed.
var realClockStart = time.Now()

// RealClock is a Clock backed by the host's monotonic clock. Its zero time is
// the Unix epoch, as of process start.
type RealClock struct{}

// Now implements Clock.Now.
func (RealClock) Now() Time {
	return FromNanoseconds(realClockStart.UnixNano()).Add(time.Since(realClockStart))
}

// NewTimer implements Clock.NewTimer.
func (c RealClock) NewTimer(listener Listener) Timer {
	return &realTimer{clock: c, listener: listener}
}

// realTimer implements Timer for RealClock with a host time.Timer.
type realTimer struct {
	clock    RealClock
	listener Listener

	mu sync.Mutex

	// setting is protected by mu.
	setting Setting

	// host is the pending host timer, or nil. host is protected by mu.
	host *time.Timer

	// gen identifies the current host timer. A firing host timer whose
	// generation is stale does nothing. gen is protected by mu.
	gen uint64
}

// Destroy implements Timer.Destroy.
func (t *realTimer) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.setting.Enabled = false
}

// Clock implements Timer.Clock.
func (t *realTimer) Clock() Clock {
	return t.clock
}

// Get implements Timer.Get.
func (t *realTimer) Get() (Time, Setting) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clock.Now(), t.setting
}

// Set implements Timer.Set.
func (t *realTimer) Set(s Setting, f func()) (Time, Setting) {
	t.mu.Lock()
	now := t.clock.Now()
	oldS := t.setting
	newS, exp := s.At(now)
	if f != nil {
		f()
	}
	t.stopLocked()
	t.setting = newS
	t.armLocked(now)
	t.mu.Unlock()
	if exp > 0 {
		t.listener.NotifyTimer(exp)
	}
	return now, oldS
}

// Preconditions: t.mu must be locked.
func (t *realTimer) stopLocked() {
	if t.host != nil {
		t.host.Stop()
		t.host = nil
	}
	t.gen++
}

// Preconditions: t.mu must be locked.
func (t *realTimer) armLocked(now Time) {
	if !t.setting.Enabled || t.setting.Next.IsMax() {
		return
	}
	t.gen++
	gen := t.gen
	t.host = time.AfterFunc(t.setting.Next.Sub(now), func() { t.fire(gen) })
}

func (t *realTimer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.setting.Enabled {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	s, exp := t.setting.At(now)
	t.setting = s
	t.host = nil
	// An early host wakeup re-arms without notifying.
	t.armLocked(now)
	t.mu.Unlock()
	if exp > 0 {
		t.listener.NotifyTimer(exp)
	}
}
