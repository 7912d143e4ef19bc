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

package cmd

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/futex/futexctl/config"
	"gvisor.dev/futex/pkg/abi/linux"
	"gvisor.dev/futex/pkg/errors/linuxerr"
	"gvisor.dev/futex/pkg/hostarch"
	"gvisor.dev/futex/pkg/log"
	"gvisor.dev/futex/pkg/refs"
	"gvisor.dev/futex/pkg/sentry/kernel"
	"gvisor.dev/futex/pkg/sentry/ktime"
	"gvisor.dev/futex/pkg/sentry/memmap"
	sys "gvisor.dev/futex/pkg/sentry/syscalls/linux"
)

// Offsets of the futex words used by the stress workload.
const (
	mutexOff   = 0
	counterOff = 4
	seqOff     = 8
	arrivedOff = 12
)

func newKernel(conf *config.Config) *kernel.Kernel {
	var clock ktime.Clock = ktime.RealClock{}
	if conf.Clock == config.ClockSynthetic {
		clock = &ktime.SyntheticClock{}
	}
	return kernel.NewKernel(kernel.InitKernelArgs{Clock: clock})
}

func futexOp(op int, private bool) int {
	if private {
		return op | linux.FUTEX_PRIVATE_FLAG
	}
	return op
}

// waitForWaiters polls until n tasks are blocked on addr.
func waitForWaiters(ctx context.Context, t *kernel.Task, addr hostarch.Addr, private bool, n int) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	b := backoff.WithContext(backoff.NewConstantBackOff(time.Millisecond), ctx)
	return backoff.Retry(func() error {
		got, err := t.Futex().NumWaiters(t, addr, private)
		if err != nil {
			return backoff.Permanent(err)
		}
		if got != n {
			return fmt.Errorf("%d waiters on %v, want %d", got, addr, n)
		}
		return nil
	}, b)
}

// worker is a task taking part in the stress workload. The futex words live
// at base in the task's address space.
type worker struct {
	t       *kernel.Task
	base    hostarch.Addr
	private bool
	timeout time.Duration
}

func (w *worker) addr(off uint64) hostarch.Addr {
	return w.base + hostarch.Addr(off)
}

// wait blocks while the word at off is val. Value mismatches and timeouts
// are not errors; callers recheck the condition they wait for.
func (w *worker) wait(off uint64, val uint32) error {
	args := sys.FutexArgs{Addr: w.addr(off), Op: futexOp(linux.FUTEX_WAIT, w.private), Val: val}
	if w.timeout > 0 {
		ts := linux.DurationToTimespec(w.timeout)
		args.Timeout = &ts
	}
	_, err := sys.Futex(w.t, args)
	if err == nil || linuxerr.Equals(linuxerr.EAGAIN, err) || linuxerr.Equals(linuxerr.ETIMEDOUT, err) {
		return nil
	}
	return err
}

// The mutex word is 0 when unlocked, 1 when locked and 2 when locked with
// possible waiters.

func (w *worker) lock() error {
	c, err := w.t.CompareAndSwapUint32(w.addr(mutexOff), 0, 1)
	if err != nil || c == 0 {
		return err
	}
	return w.lockContended()
}

func (w *worker) lockContended() error {
	for {
		c, err := w.t.SwapUint32(w.addr(mutexOff), 2)
		if err != nil || c == 0 {
			return err
		}
		if err := w.wait(mutexOff, 2); err != nil {
			return err
		}
	}
}

func (w *worker) unlock() error {
	old, err := w.t.SwapUint32(w.addr(mutexOff), 0)
	if err != nil || old != 2 {
		return err
	}
	_, err = sys.Futex(w.t, sys.FutexArgs{Addr: w.addr(mutexOff), Op: futexOp(linux.FUTEX_WAKE, w.private), Val: 1})
	return err
}

func (w *worker) increment() error {
	if err := w.lock(); err != nil {
		return err
	}
	v, err := w.t.LoadUint32(w.addr(counterOff))
	if err != nil {
		return err
	}
	if err := w.t.StoreUint32(w.addr(counterOff), v+1); err != nil {
		return err
	}
	return w.unlock()
}

// broadcast wakes every task blocked in barrier. The caller holds the mutex
// and has already stored seq. It returns the number of tasks woken or
// requeued.
func (w *worker) broadcast(seq uint32, requeue bool) (int, error) {
	if !requeue {
		n, err := sys.Futex(w.t, sys.FutexArgs{Addr: w.addr(seqOff), Op: futexOp(linux.FUTEX_WAKE, w.private), Val: math.MaxInt32})
		return int(n), err
	}
	// Requeued tasks are woken by unlock, so it must see the mutex as
	// contended.
	if _, err := w.t.SwapUint32(w.addr(mutexOff), 2); err != nil {
		return 0, err
	}
	n, err := sys.Futex(w.t, sys.FutexArgs{
		Addr:  w.addr(seqOff),
		Op:    futexOp(linux.FUTEX_CMP_REQUEUE, w.private),
		Val:   1,
		Val2:  math.MaxInt32,
		Addr2: w.addr(mutexOff),
		Val3:  seq,
	})
	return int(n), err
}

// barrier blocks until total tasks have called it. The last task to arrive
// broadcasts and returns the number of tasks it released.
func (w *worker) barrier(total int, requeue bool) (int, error) {
	if err := w.lock(); err != nil {
		return 0, err
	}
	seq, err := w.t.LoadUint32(w.addr(seqOff))
	if err != nil {
		return 0, err
	}
	arrived, err := w.t.LoadUint32(w.addr(arrivedOff))
	if err != nil {
		return 0, err
	}
	arrived++
	if err := w.t.StoreUint32(w.addr(arrivedOff), arrived); err != nil {
		return 0, err
	}
	if int(arrived) == total {
		if err := w.t.StoreUint32(w.addr(seqOff), seq+1); err != nil {
			return 0, err
		}
		n, err := w.broadcast(seq+1, requeue)
		if err != nil {
			return 0, err
		}
		return n, w.unlock()
	}
	if err := w.unlock(); err != nil {
		return 0, err
	}

	for {
		if err := w.wait(seqOff, seq); err != nil {
			return 0, err
		}
		cur, err := w.t.LoadUint32(w.addr(seqOff))
		if err != nil {
			return 0, err
		}
		if cur != seq {
			break
		}
	}
	// Take the mutex as contended so that the next requeued task is woken
	// when it is released.
	if err := w.lockContended(); err != nil {
		return 0, err
	}
	return 0, w.unlock()
}

// StressResult summarizes a stress run.
type StressResult struct {
	// Counter is the final value of the shared counter.
	Counter uint32

	// Want is the number of increments performed.
	Want uint32

	// Released is the number of tasks woken or requeued by the final
	// broadcast.
	Released int
}

// RunStress runs conf.Workers tasks in each of conf.Processes processes. The
// tasks increment a counter under a futex-based mutex and then meet at a
// barrier built on a condition variable. It fails if the counter is off, if
// any futex outlives the run, or if the leak checker finds live objects.
func RunStress(ctx context.Context, conf *config.Config) (StressResult, error) {
	k := newKernel(conf)
	procs := make([]*kernel.Process, 0, conf.Processes)
	bases := make([]hostarch.Addr, 0, conf.Processes)
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		for _, p := range procs {
			p.Release()
		}
	}
	defer release()

	if conf.Private {
		p := k.NewProcess()
		procs = append(procs, p)
		addr, err := p.MMap(memmap.MMapOpts{Length: hostarch.PageSize})
		if err != nil {
			return StressResult{}, fmt.Errorf("mapping futex page: %w", err)
		}
		bases = append(bases, addr)
	} else {
		s, err := k.ShmRegistry().FindOrCreate(linux.IPC_PRIVATE, hostarch.PageSize, true, false)
		if err != nil {
			return StressResult{}, fmt.Errorf("creating shm segment: %w", err)
		}
		s.MarkDestroyed()
		for i := 0; i < conf.Processes; i++ {
			p := k.NewProcess()
			procs = append(procs, p)
			addr, err := p.Attach(s, 0)
			if err != nil {
				s.DecRef()
				return StressResult{}, fmt.Errorf("attaching shm segment: %w", err)
			}
			bases = append(bases, addr)
		}
		s.DecRef()
	}

	total := conf.Processes * conf.Workers
	log.Infof("Stress: %d tasks, %d iterations each, private=%t, requeue=%t", total, conf.Iterations, conf.Private, conf.Requeue)

	g, gctx := errgroup.WithContext(ctx)
	results := make([]int, total)
	for i, p := range procs {
		for j := 0; j < conf.Workers; j++ {
			idx := i*conf.Workers + j
			w := &worker{
				t:       p.NewTask(gctx),
				base:    bases[i],
				private: conf.Private,
				timeout: conf.WaitTimeout,
			}
			g.Go(func() error {
				for n := 0; n < conf.Iterations; n++ {
					if err := w.increment(); err != nil {
						return fmt.Errorf("task %d: increment: %w", w.t.ThreadID(), err)
					}
				}
				n, err := w.barrier(total, conf.Requeue)
				if err != nil {
					return fmt.Errorf("task %d: barrier: %w", w.t.ThreadID(), err)
				}
				results[idx] = n
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return StressResult{}, err
	}

	var res StressResult
	for _, n := range results {
		res.Released += n
	}
	res.Want = uint32(total * conf.Iterations)
	counter, err := procs[0].NewTask(ctx).LoadUint32(bases[0] + counterOff)
	if err != nil {
		return res, err
	}
	res.Counter = counter
	if res.Counter != res.Want {
		return res, fmt.Errorf("counter is %d, want %d", res.Counter, res.Want)
	}

	if n := k.Futexes().Shared().Len(); n != 0 {
		return res, fmt.Errorf("%d shared futexes outlived the run", n)
	}
	for _, p := range procs {
		if n := p.Futex().Private().Len(); n != 0 {
			return res, fmt.Errorf("process %d: %d private futexes outlived the run", p.ID(), n)
		}
	}
	release()
	if n := k.ShmRegistry().Len(); n != 0 {
		return res, fmt.Errorf("%d shm segments outlived the run", n)
	}
	if n := refs.DoRepeatedLeakCheck(); n != 0 {
		return res, fmt.Errorf("%d objects leaked", n)
	}
	log.Infof("Stress: counter=%d released=%d", res.Counter, res.Released)
	return res, nil
}
