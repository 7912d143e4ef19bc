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

// Package futex provides an implementation of the futex interface as found in
// the Linux kernel. Waits are transformed into waits on a channel, which is
// useful in a Go-based kernel.
//
// All futex state in a Domain is serialized by a single mutex. Wait checks
// the futex word and enqueues while holding it, and Wake and Requeue dequeue
// and signal while holding it, so a wakeup can never be lost between the
// check and the sleep. The mutex is released only inside Sleeper.Block.
//
// Lock order:
//
//	Domain.mu
//	  mm.MemoryManager.mappingMu
package futex

import (
	"fmt"

	"gvisor.dev/futex/pkg/abi/linux"
	"gvisor.dev/futex/pkg/errors/linuxerr"
	"gvisor.dev/futex/pkg/hostarch"
	"gvisor.dev/futex/pkg/sentry/ktime"
	"gvisor.dev/futex/pkg/sync"
)

// Domain is the set of futexes that can interoperate: every Manager created
// from a Domain shares its lock and its shared futex registry. A kernel has
// one Domain.
type Domain struct {
	// mu is the global futex lock. It protects every Registry and Futex in
	// the Domain.
	mu sync.Mutex

	// shared holds KindShared futexes. shared is immutable.
	shared *Registry
}

// NewDomain returns a new Domain with an empty shared registry.
func NewDomain() *Domain {
	d := &Domain{}
	d.shared = newRegistry(d, scopeShared)
	return d
}

// Shared returns the registry of shared futexes.
func (d *Domain) Shared() *Registry {
	return d.shared
}

// NewManager returns a Manager with an empty private registry.
func (d *Domain) NewManager() *Manager {
	return &Manager{
		d:       d,
		private: newRegistry(d, scopePrivate),
	}
}

// Manager holds futex state for a single virtual address space.
type Manager struct {
	d *Domain

	// private holds KindPrivate futexes. private is immutable.
	private *Registry
}

// Fork returns a new Manager. Shared futex clients using the returned Manager
// may interoperate with those using m.
func (m *Manager) Fork() *Manager {
	return m.d.NewManager()
}

// Private returns the registry of private futexes.
func (m *Manager) Private() *Registry {
	return m.private
}

// Release is called when the address space that m serves is destroyed.
// Every private futex must already be gone.
func (m *Manager) Release() {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	if n := len(m.private.futexes); n != 0 {
		panic(fmt.Sprintf("releasing futex manager with %d live private futexes", n))
	}
}

// registryFor returns the registry that owns k.
func (m *Manager) registryFor(k Key) *Registry {
	if k.Kind == KindShared {
		return m.d.shared
	}
	return m.private
}

// wakeLocked wakes up to n waiters matching the bitmask on f and returns the
// number of waiters woken.
//
// Preconditions: m.d.mu is locked. The caller holds a reference on f.
func (m *Manager) wakeLocked(f *Futex, bitmask uint32, n int) int {
	done := 0
	for w := f.waiters.Front(); done < n && w != nil; {
		if w.bitmask&bitmask == 0 {
			// Not matching.
			w = w.Next()
			continue
		}

		// Remove from the queue and wake the waiter.
		woke := w
		w = w.Next() // Next iteration.
		f.dequeueLocked(woke)
		woke.C <- struct{}{}
		f.registry.putLocked(f)
		done++
	}
	wokenCount.IncrementBy(uint64(done))
	return done
}

// requeueLocked moves up to n waiters from the front of f to the futex for
// nkey and returns the number moved.
//
// Preconditions: m.d.mu is locked. The caller holds a reference on f.
func (m *Manager) requeueLocked(f *Futex, nkey Key, n int) int {
	// Detach first, so that requeueing onto f itself moves each waiter
	// exactly once.
	var moved []*Waiter
	for w := f.waiters.Front(); w != nil && len(moved) < n; w = f.waiters.Front() {
		f.dequeueLocked(w)
		moved = append(moved, w)
	}

	r := m.registryFor(nkey)
	for _, w := range moved {
		// The reference taken here is owned by w.
		r.getLocked(nkey, true).enqueueLocked(w)
		f.registry.putLocked(f)
	}
	requeuedCount.IncrementBy(uint64(len(moved)))
	return len(moved)
}

// Wait checks that addr contains val and, if so, blocks on s until the waiter
// is woken by Wake, Requeue or WakeOp, the deadline passes, or the task is
// interrupted. A deadline of ktime.MaxTime means no deadline.
//
// Wait returns nil when woken, EAGAIN if addr did not contain val,
// ETIMEDOUT or EINTR if the task stopped waiting while still queued, and
// ECANCELED if the task was killed. A fault reading addr is returned as is.
func (m *Manager) Wait(t Target, s Sleeper, addr hostarch.Addr, private bool, val, bitmask uint32, deadline ktime.Time) error {
	if bitmask == 0 {
		return linuxerr.EINVAL
	}

	m.d.mu.Lock()
	defer m.d.mu.Unlock()

	k, err := getKey(t, addr, private)
	if err != nil {
		return err
	}

	// Perform our atomic check.
	cur, err := t.LoadUint32(addr)
	if err != nil {
		waitOutcomes.Increment("fault")
		return err
	}
	if cur != val {
		waitOutcomes.Increment("value_changed")
		return linuxerr.EAGAIN
	}

	w := NewWaiter()
	w.bitmask = bitmask
	m.registryFor(k).getLocked(k, true).enqueueLocked(w)

	reason := s.Block(&m.d.mu, w, deadline)

	// w may have been requeued, so the Futex it is on now need not be the
	// one it was enqueued on.
	f, queued := w.queuedOn()
	if !queued {
		// A wake wins over a concurrent timeout or interrupt.
		waitOutcomes.Increment("woken")
		return nil
	}
	f.dequeueLocked(w)
	f.registry.putLocked(f)

	switch reason {
	case TimedOut:
		waitOutcomes.Increment("timed_out")
		slowLog.Debugf("futex: wait on %v timed out", f.key)
		return linuxerr.ETIMEDOUT
	case Interrupted:
		waitOutcomes.Increment("interrupted")
		slowLog.Debugf("futex: wait on %v interrupted", f.key)
		return linuxerr.EINTR
	case Killed:
		waitOutcomes.Increment("interrupted")
		return linuxerr.ECANCELED
	default:
		panic(fmt.Sprintf("Sleeper returned %v for a waiter still queued on %v", reason, f.key))
	}
}

// doRequeue implements Wake, Requeue and CmpRequeue. If naddr is nil, no
// waiters are requeued.
func (m *Manager) doRequeue(t Target, addr hostarch.Addr, naddr *hostarch.Addr, private bool, checkval bool, val uint32, bitmask uint32, nwake, nreq int) (int, error) {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()

	k1, err := getKey(t, addr, private)
	if err != nil {
		return 0, err
	}
	var k2 Key
	if naddr != nil {
		if k2, err = getKey(t, *naddr, private); err != nil {
			return 0, err
		}
	}

	if checkval {
		cur, err := t.LoadUint32(addr)
		if err != nil {
			return 0, err
		}
		if cur != val {
			return 0, linuxerr.EAGAIN
		}
	}

	r := m.registryFor(k1)
	f := r.getLocked(k1, false)
	if f == nil {
		// Nobody is waiting.
		return 0, nil
	}
	defer r.putLocked(f)

	done := m.wakeLocked(f, bitmask, nwake)
	if naddr != nil {
		done += m.requeueLocked(f, k2, nreq)
	}
	return done, nil
}

// Wake wakes up to n waiters matching the bitmask on the given addr.
// The number of waiters woken is returned.
func (m *Manager) Wake(t Target, addr hostarch.Addr, private bool, bitmask uint32, n int) (int, error) {
	return m.doRequeue(t, addr, nil, private, false, 0, bitmask, n, 0)
}

// Requeue wakes up to nwake waiters on the given addr, and unconditionally
// requeues up to nreq waiters on naddr. It returns the number of waiters
// woken or requeued.
func (m *Manager) Requeue(t Target, addr, naddr hostarch.Addr, private bool, nwake int, nreq int) (int, error) {
	return m.doRequeue(t, addr, &naddr, private, false, 0, linux.FUTEX_BITSET_MATCH_ANY, nwake, nreq)
}

// CmpRequeue atomically checks that addr contains val, wakes up to nwake
// waiters on addr and then unconditionally requeues up to nreq waiters on
// naddr.
func (m *Manager) CmpRequeue(t Target, addr, naddr hostarch.Addr, private bool, val uint32, nwake int, nreq int) (int, error) {
	return m.doRequeue(t, addr, &naddr, private, true, val, linux.FUTEX_BITSET_MATCH_ANY, nwake, nreq)
}

// WakeOp atomically applies op to the memory address addr2, wakes up to nwake1
// waiters unconditionally from addr1, and, based on the original value at addr2
// and a comparison encoded in op, wakes up to nwake2 waiters from addr2.
// It returns the total number of waiters woken.
func (m *Manager) WakeOp(t Target, addr1, addr2 hostarch.Addr, private bool, nwake1 int, nwake2 int, op uint32) (int, error) {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()

	k1, err := getKey(t, addr1, private)
	if err != nil {
		return 0, err
	}
	k2, err := getKey(t, addr2, private)
	if err != nil {
		return 0, err
	}

	cond, err := atomicOp(t, addr2, op)
	if err != nil {
		return 0, err
	}

	done := m.wakeKeyLocked(k1, nwake1)
	if cond {
		done += m.wakeKeyLocked(k2, nwake2)
	}
	return done, nil
}

// wakeKeyLocked wakes up to n waiters on k, if it has a Futex.
//
// Preconditions: m.d.mu is locked.
func (m *Manager) wakeKeyLocked(k Key, n int) int {
	r := m.registryFor(k)
	f := r.getLocked(k, false)
	if f == nil {
		return 0
	}
	done := m.wakeLocked(f, linux.FUTEX_BITSET_MATCH_ANY, n)
	r.putLocked(f)
	return done
}

// NumWaiters returns the number of waiters queued on addr.
func (m *Manager) NumWaiters(t Target, addr hostarch.Addr, private bool) (int, error) {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()

	k, err := getKey(t, addr, private)
	if err != nil {
		return 0, err
	}
	f, ok := m.registryFor(k).futexes[k]
	if !ok {
		return 0, nil
	}
	return f.waiters.Len(), nil
}

// atomicOp applies the FUTEX_WAKE_OP operation encoded in opword to the word
// at addr and returns the result of the encoded comparison against the
// previous value. Comparisons are unsigned.
func atomicOp(t Target, addr hostarch.Addr, opword uint32) (bool, error) {
	op, oparg, cmp, cmparg := linux.DecodeFutexOp(opword)
	if cmp > linux.FUTEX_OP_CMP_GE {
		return false, linuxerr.ENOSYS
	}

	var old uint32
	if op == linux.FUTEX_OP_SET {
		v, err := t.SwapUint32(addr, oparg)
		if err != nil {
			return false, err
		}
		old = v
	} else {
		for {
			v, err := t.LoadUint32(addr)
			if err != nil {
				return false, err
			}
			var n uint32
			switch op {
			case linux.FUTEX_OP_ADD:
				n = v + oparg
			case linux.FUTEX_OP_OR:
				n = v | oparg
			case linux.FUTEX_OP_ANDN:
				n = v &^ oparg
			case linux.FUTEX_OP_XOR:
				n = v ^ oparg
			default:
				return false, linuxerr.ENOSYS
			}
			prev, err := t.CompareAndSwapUint32(addr, v, n)
			if err != nil {
				return false, err
			}
			if prev == v {
				old = v
				break
			}
		}
	}

	switch cmp {
	case linux.FUTEX_OP_CMP_EQ:
		return old == cmparg, nil
	case linux.FUTEX_OP_CMP_NE:
		return old != cmparg, nil
	case linux.FUTEX_OP_CMP_LT:
		return old < cmparg, nil
	case linux.FUTEX_OP_CMP_LE:
		return old <= cmparg, nil
	case linux.FUTEX_OP_CMP_GT:
		return old > cmparg, nil
	default: // FUTEX_OP_CMP_GE
		return old >= cmparg, nil
	}
}
