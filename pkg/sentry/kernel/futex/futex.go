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

package futex

import (
	"fmt"

	"gvisor.dev/futex/pkg/log"
	"gvisor.dev/futex/pkg/refs"
)

// Futex is a wait point with a queue of waiters. A Futex exists in its
// Registry only while it is referenced: once per queued Waiter, plus once per
// in-flight lookup.
//
// All fields are protected by Domain.mu.
type Futex struct {
	refs     refs.Refs
	key      Key
	registry *Registry

	// waiters is in FIFO order.
	waiters waiterList
}

func newFutex(r *Registry, k Key) *Futex {
	f := &Futex{
		key:      k,
		registry: r,
	}
	f.refs.InitRefs("futex.Futex")
	return f
}

// incRef takes a reference on f.
func (f *Futex) incRef() {
	f.refs.IncRef()
}

// decRef drops a reference on f, destroying it if it was the last.
//
// Preconditions: Domain.mu is locked.
func (f *Futex) decRef() {
	f.refs.DecRef(f.destroy)
}

func (f *Futex) destroy() {
	if !f.waiters.Empty() {
		panic(fmt.Sprintf("destroying futex %v with %d queued waiters", f.key, f.waiters.Len()))
	}
	delete(f.registry.futexes, f.key)
	futexObjects.Decrement(f.registry.scope)
	if log.IsLogging(log.Debug) {
		log.Debugf("futex: destroyed %v", f.key)
	}
}

// enqueueLocked appends w to f's queue and points it at f.
//
// Preconditions: Domain.mu is locked. The caller has a reference on f that
// is transferred to w.
func (f *Futex) enqueueLocked(w *Waiter) {
	if w.queued != nil {
		panic(fmt.Sprintf("waiter already queued on %v", w.queued.key))
	}
	f.waiters.PushBack(w)
	w.queued = f
}

// dequeueLocked removes w from f's queue. It does not drop the reference
// held for w.
//
// Preconditions: Domain.mu is locked. w is queued on f.
func (f *Futex) dequeueLocked(w *Waiter) {
	if w.queued != f {
		panic(fmt.Sprintf("removing waiter from %v that is not queued on it", f.key))
	}
	f.waiters.Remove(w)
	w.queued = nil
}
