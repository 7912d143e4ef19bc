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
	"gvisor.dev/futex/pkg/log"
)

// Registry maps Keys to live Futex objects. There is one Registry per Manager
// for private futexes and one per Domain for shared futexes.
type Registry struct {
	d     *Domain
	scope string

	// futexes is protected by d.mu.
	futexes map[Key]*Futex
}

func newRegistry(d *Domain, scope string) *Registry {
	return &Registry{
		d:       d,
		scope:   scope,
		futexes: make(map[Key]*Futex),
	}
}

// getLocked returns the Futex for k with an extra reference. If there is none
// and create is true, a new Futex with one reference is inserted. Otherwise
// getLocked returns nil.
//
// Preconditions: r.d.mu is locked.
func (r *Registry) getLocked(k Key, create bool) *Futex {
	if f, ok := r.futexes[k]; ok {
		f.incRef()
		return f
	}
	if !create {
		return nil
	}
	f := newFutex(r, k)
	r.futexes[k] = f
	futexObjects.Increment(r.scope)
	if log.IsLogging(log.Debug) {
		log.Debugf("futex: created %v", k)
	}
	return f
}

// putLocked drops a reference obtained from getLocked or transferred to a
// queued Waiter.
//
// Preconditions: r.d.mu is locked. f belongs to r.
func (r *Registry) putLocked(f *Futex) {
	f.decRef()
}

// FutexInfo is a snapshot of a live Futex.
type FutexInfo struct {
	// Refs is the reference count.
	Refs int64

	// Waiters is the number of queued waiters.
	Waiters int
}

// Len returns the number of live futexes in r.
func (r *Registry) Len() int {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return len(r.futexes)
}

// Lookup returns a snapshot of the Futex for k without taking a reference,
// or false if there is none.
func (r *Registry) Lookup(k Key) (FutexInfo, bool) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	f, ok := r.futexes[k]
	if !ok {
		return FutexInfo{}, false
	}
	return FutexInfo{
		Refs:    f.refs.ReadRefs(),
		Waiters: f.waiters.Len(),
	}, true
}
