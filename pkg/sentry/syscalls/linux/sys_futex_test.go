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

package linux

import (
	"context"
	"errors"
	"testing"
	"time"

	"gvisor.dev/futex/pkg/abi/linux"
	"gvisor.dev/futex/pkg/errors/linuxerr"
	"gvisor.dev/futex/pkg/hostarch"
	"gvisor.dev/futex/pkg/refs"
	"gvisor.dev/futex/pkg/sentry/kernel"
	"gvisor.dev/futex/pkg/sentry/ktime"
	"gvisor.dev/futex/pkg/sentry/memmap"
	"gvisor.dev/futex/pkg/test/testutil"
)

const (
	waitPrivate = linux.FUTEX_WAIT | linux.FUTEX_PRIVATE_FLAG
	wakePrivate = linux.FUTEX_WAKE | linux.FUTEX_PRIVATE_FLAG
)

type harness struct {
	k     *kernel.Kernel
	clock *ktime.SyntheticClock
	p     *kernel.Process
	addr  hostarch.Addr
}

// newHarness returns a process with one anonymous page mapped at the
// returned harness's addr.
func newHarness(t *testing.T) *harness {
	old := refs.GetLeakMode()
	refs.SetLeakMode(refs.LeaksPanic)
	clock := &ktime.SyntheticClock{}
	k := kernel.NewKernel(kernel.InitKernelArgs{Clock: clock})
	p := k.NewProcess()
	addr, err := p.MMap(memmap.MMapOpts{Length: hostarch.PageSize, Addr: 0x1000, Fixed: true})
	if err != nil {
		t.Fatalf("MMap failed: %v", err)
	}
	t.Cleanup(func() {
		if n := p.Futex().Private().Len(); n != 0 {
			t.Errorf("%d private futexes left behind", n)
		}
		p.Release()
		if n := refs.DoRepeatedLeakCheck(); n != 0 {
			t.Errorf("%d objects leaked", n)
		}
		refs.SetLeakMode(old)
	})
	return &harness{k: k, clock: clock, p: p, addr: addr}
}

func (h *harness) task() *kernel.Task {
	return h.p.NewTask(context.Background())
}

func (h *harness) start(t *kernel.Task, args FutexArgs) <-chan error {
	ch := make(chan error, 1)
	go func() {
		_, err := Futex(t, args)
		ch <- err
	}()
	return ch
}

func (h *harness) waitQueued(tb testing.TB, t *kernel.Task, addr hostarch.Addr, n int) {
	tb.Helper()
	get := func() (int, error) { return t.Futex().NumWaiters(t, addr, true) }
	if err := testutil.WaitForCount(get, n, 10*time.Second); err != nil {
		tb.Fatalf("waiting for %d waiters on %v: %v", n, addr, err)
	}
}

func result(tb testing.TB, ch <-chan error) error {
	tb.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(10 * time.Second):
		tb.Fatalf("futex call did not return")
		return nil
	}
}

func TestFutexScenario(t *testing.T) {
	h := newHarness(t)
	waiter, waker := h.task(), h.task()
	if err := waiter.StoreUint32(h.addr, 5); err != nil {
		t.Fatalf("StoreUint32 failed: %v", err)
	}

	if _, err := Futex(waiter, FutexArgs{Addr: h.addr, Op: waitPrivate, Val: 4}); !errors.Is(err, linuxerr.EAGAIN) {
		t.Errorf("WAIT with stale value got %v, want EAGAIN", err)
	}

	w := h.start(waiter, FutexArgs{Addr: h.addr, Op: waitPrivate, Val: 5})
	h.waitQueued(t, waker, h.addr, 1)
	if n, err := Futex(waker, FutexArgs{Addr: h.addr, Op: wakePrivate, Val: 1}); err != nil || n != 1 {
		t.Errorf("WAKE got (%d, %v), want (1, nil)", n, err)
	}
	if err := result(t, w); err != nil {
		t.Errorf("WAIT got %v, want nil", err)
	}
	if n, err := Futex(waker, FutexArgs{Addr: h.addr, Op: wakePrivate, Val: 1}); err != nil || n != 0 {
		t.Errorf("second WAKE got (%d, %v), want (0, nil)", n, err)
	}
	if n := h.p.Futex().Private().Len(); n != 0 {
		t.Errorf("private registry has %d futexes after wake, want 0", n)
	}
}

func TestFutexRelativeTimeout(t *testing.T) {
	h := newHarness(t)
	task := h.task()
	h.clock.Store(ktime.FromSeconds(100))

	ts := linux.DurationToTimespec(2 * time.Second)
	w := h.start(task, FutexArgs{Addr: h.addr, Op: waitPrivate, Timeout: &ts})
	h.waitQueued(t, task, h.addr, 1)

	h.clock.Add(time.Second)
	select {
	case err := <-w:
		t.Fatalf("WAIT returned %v before its timeout", err)
	default:
	}
	h.clock.Add(time.Second)
	if err := result(t, w); !errors.Is(err, linuxerr.ETIMEDOUT) {
		t.Errorf("WAIT got %v, want ETIMEDOUT", err)
	}
}

func TestFutexAbsoluteTimeout(t *testing.T) {
	h := newHarness(t)
	task := h.task()
	h.clock.Store(ktime.FromSeconds(100))

	// A deadline in the past times out without sleeping.
	past := linux.Timespec{Sec: 50}
	if _, err := Futex(task, FutexArgs{Addr: h.addr, Op: linux.FUTEX_WAIT_BITSET | linux.FUTEX_PRIVATE_FLAG, Timeout: &past, Val3: linux.FUTEX_BITSET_MATCH_ANY}); !errors.Is(err, linuxerr.ETIMEDOUT) {
		t.Errorf("WAIT_BITSET with past deadline got %v, want ETIMEDOUT", err)
	}

	deadline := linux.Timespec{Sec: 101}
	op := linux.FUTEX_WAIT_BITSET | linux.FUTEX_PRIVATE_FLAG | linux.FUTEX_CLOCK_REALTIME
	w := h.start(task, FutexArgs{Addr: h.addr, Op: op, Timeout: &deadline, Val3: 1})
	h.waitQueued(t, task, h.addr, 1)
	h.clock.Store(ktime.FromSeconds(101))
	if err := result(t, w); !errors.Is(err, linuxerr.ETIMEDOUT) {
		t.Errorf("WAIT_BITSET got %v, want ETIMEDOUT", err)
	}
}

func TestFutexBitset(t *testing.T) {
	h := newHarness(t)
	waiter, waker := h.task(), h.task()

	w := h.start(waiter, FutexArgs{Addr: h.addr, Op: linux.FUTEX_WAIT_BITSET | linux.FUTEX_PRIVATE_FLAG, Val3: 0b01})
	h.waitQueued(t, waker, h.addr, 1)
	wakeBitset := linux.FUTEX_WAKE_BITSET | linux.FUTEX_PRIVATE_FLAG
	if n, err := Futex(waker, FutexArgs{Addr: h.addr, Op: wakeBitset, Val: 1, Val3: 0b10}); err != nil || n != 0 {
		t.Errorf("WAKE_BITSET with disjoint mask got (%d, %v), want (0, nil)", n, err)
	}
	if n, err := Futex(waker, FutexArgs{Addr: h.addr, Op: wakeBitset, Val: 1, Val3: 0b11}); err != nil || n != 1 {
		t.Errorf("WAKE_BITSET with overlapping mask got (%d, %v), want (1, nil)", n, err)
	}
	if err := result(t, w); err != nil {
		t.Errorf("WAIT_BITSET got %v, want nil", err)
	}
}

func TestFutexInvalid(t *testing.T) {
	h := newHarness(t)
	task := h.task()
	bad := linux.Timespec{Nsec: 1e9}
	for _, tc := range []struct {
		name string
		args FutexArgs
		want error
	}{
		{"wait bitset zero", FutexArgs{Op: linux.FUTEX_WAIT_BITSET, Val3: 0}, linuxerr.EINVAL},
		{"wake bitset zero", FutexArgs{Op: linux.FUTEX_WAKE_BITSET, Val: 1, Val3: 0}, linuxerr.EINVAL},
		{"invalid timespec", FutexArgs{Op: linux.FUTEX_WAIT, Timeout: &bad}, linuxerr.EINVAL},
		{"realtime wait", FutexArgs{Op: linux.FUTEX_WAIT | linux.FUTEX_CLOCK_REALTIME}, linuxerr.ENOSYS},
		{"realtime wake", FutexArgs{Op: linux.FUTEX_WAKE | linux.FUTEX_CLOCK_REALTIME, Val: 1}, linuxerr.ENOSYS},
		{"lock pi", FutexArgs{Op: linux.FUTEX_LOCK_PI}, linuxerr.ENOSYS},
		{"cmp requeue pi", FutexArgs{Op: linux.FUTEX_CMP_REQUEUE_PI}, linuxerr.ENOSYS},
		{"fd", FutexArgs{Op: linux.FUTEX_FD}, linuxerr.ENOSYS},
		{"unknown", FutexArgs{Op: 42}, linuxerr.ENOSYS},
		{"negative nwake", FutexArgs{Op: linux.FUTEX_REQUEUE, Val: 0xffffffff, Addr2: 0x1004}, linuxerr.EINVAL},
		{"negative nreq", FutexArgs{Op: linux.FUTEX_CMP_REQUEUE, Val2: 0x80000000, Addr2: 0x1004}, linuxerr.EINVAL},
		{"misaligned", FutexArgs{Addr: 0x1001, Op: linux.FUTEX_WAKE, Val: 1}, linuxerr.EINVAL},
		{"unmapped", FutexArgs{Addr: 0x100000, Op: linux.FUTEX_WAIT}, linuxerr.EFAULT},
	} {
		t.Run(tc.name, func(t *testing.T) {
			args := tc.args
			if args.Addr == 0 {
				args.Addr = h.addr
			}
			if _, err := Futex(task, args); !errors.Is(err, tc.want) {
				t.Errorf("Futex(%+v) got %v, want %v", args, err, tc.want)
			}
		})
	}
}

func TestFutexWakeNonPositive(t *testing.T) {
	h := newHarness(t)
	waker := h.task()
	var ws []<-chan error
	for i := 0; i < 2; i++ {
		ws = append(ws, h.start(h.task(), FutexArgs{Addr: h.addr, Op: waitPrivate}))
	}
	h.waitQueued(t, waker, h.addr, 2)

	for _, val := range []uint32{0, 0xffffffff} {
		if n, err := Futex(waker, FutexArgs{Addr: h.addr, Op: wakePrivate, Val: val}); err != nil || n != 1 {
			t.Errorf("WAKE with val %d got (%d, %v), want (1, nil)", int32(val), n, err)
		}
	}
	for _, w := range ws {
		if err := result(t, w); err != nil {
			t.Errorf("WAIT got %v, want nil", err)
		}
	}
}

func TestFutexCmpRequeue(t *testing.T) {
	h := newHarness(t)
	waker := h.task()
	addr2 := h.addr + 4
	var ws []<-chan error
	for i := 0; i < 3; i++ {
		ws = append(ws, h.start(h.task(), FutexArgs{Addr: h.addr, Op: waitPrivate}))
	}
	h.waitQueued(t, waker, h.addr, 3)

	cmpRequeue := linux.FUTEX_CMP_REQUEUE | linux.FUTEX_PRIVATE_FLAG
	if _, err := Futex(waker, FutexArgs{Addr: h.addr, Op: cmpRequeue, Val: 1, Val2: 2, Addr2: addr2, Val3: 1}); !errors.Is(err, linuxerr.EAGAIN) {
		t.Errorf("CMP_REQUEUE with stale value got %v, want EAGAIN", err)
	}
	n, err := Futex(waker, FutexArgs{Addr: h.addr, Op: cmpRequeue, Val: 1, Val2: 2, Addr2: addr2, Val3: 0})
	if err != nil || n != 3 {
		t.Errorf("CMP_REQUEUE got (%d, %v), want (3, nil)", n, err)
	}
	h.waitQueued(t, waker, h.addr, 0)
	h.waitQueued(t, waker, addr2, 2)

	if n, err := Futex(waker, FutexArgs{Addr: addr2, Op: wakePrivate, Val: 2}); err != nil || n != 2 {
		t.Errorf("WAKE on requeue target got (%d, %v), want (2, nil)", n, err)
	}
	for _, w := range ws {
		if err := result(t, w); err != nil {
			t.Errorf("WAIT got %v, want nil", err)
		}
	}
}

func TestFutexWakeOp(t *testing.T) {
	h := newHarness(t)
	waker := h.task()
	addr2 := h.addr + 4
	w1 := h.start(h.task(), FutexArgs{Addr: h.addr, Op: waitPrivate})
	w2 := h.start(h.task(), FutexArgs{Addr: addr2, Op: waitPrivate})
	h.waitQueued(t, waker, h.addr, 1)
	h.waitQueued(t, waker, addr2, 1)

	// *addr2 = 1; wake addr; if old *addr2 == 0 also wake addr2.
	op := linux.FutexOp(linux.FUTEX_OP_SET, 1, linux.FUTEX_OP_CMP_EQ, 0)
	n, err := Futex(waker, FutexArgs{Addr: h.addr, Op: linux.FUTEX_WAKE_OP | linux.FUTEX_PRIVATE_FLAG, Val: 1, Val2: 1, Addr2: addr2, Val3: op})
	if err != nil || n != 2 {
		t.Errorf("WAKE_OP got (%d, %v), want (2, nil)", n, err)
	}
	if v, err := waker.LoadUint32(addr2); err != nil || v != 1 {
		t.Errorf("*addr2 = (%d, %v), want (1, nil)", v, err)
	}
	for _, w := range []<-chan error{w1, w2} {
		if err := result(t, w); err != nil {
			t.Errorf("WAIT got %v, want nil", err)
		}
	}
}

func TestFutexInterrupted(t *testing.T) {
	h := newHarness(t)
	task := h.task()
	w := h.start(task, FutexArgs{Addr: h.addr, Op: waitPrivate})
	h.waitQueued(t, task, h.addr, 1)
	task.Interrupt()
	if err := result(t, w); !errors.Is(err, linuxerr.EINTR) {
		t.Errorf("WAIT got %v, want EINTR", err)
	}
}
