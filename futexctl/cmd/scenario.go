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
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"
	"gvisor.dev/futex/pkg/abi/linux"
	"gvisor.dev/futex/pkg/errors/linuxerr"
	"gvisor.dev/futex/pkg/hostarch"
	"gvisor.dev/futex/pkg/refs"
	"gvisor.dev/futex/pkg/sentry/kernel"
	"gvisor.dev/futex/pkg/sentry/kernel/futex"
	"gvisor.dev/futex/pkg/sentry/ktime"
	"gvisor.dev/futex/pkg/sentry/memmap"
	sys "gvisor.dev/futex/pkg/sentry/syscalls/linux"
)

// scenarioAddr is where the scenario maps its futex word.
const scenarioAddr hostarch.Addr = 0x1000

// Scenario implements subcommands.Command for the "scenario" command.
type Scenario struct{}

// Name implements subcommands.Command.Name.
func (*Scenario) Name() string {
	return "scenario"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Scenario) Synopsis() string {
	return "run a scripted wait/wake scenario and print each outcome"
}

// Usage implements subcommands.Command.Usage.
func (*Scenario) Usage() string {
	return `scenario - waits on a private futex at 0x1000, wakes it from another task, and shows that the futex is destroyed afterwards.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Scenario) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Scenario) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := RunScenario(ctx, os.Stdout); err != nil {
		Fatalf("scenario failed: %v", err)
	}
	return subcommands.ExitSuccess
}

func describe(fu *futex.Manager, addr hostarch.Addr) string {
	k := futex.Key{Kind: futex.KindPrivate, Offset: uint64(addr)}
	info, ok := fu.Private().Lookup(k)
	if !ok {
		return fmt.Sprintf("no futex for %v", k)
	}
	return fmt.Sprintf("%v: refs=%d waiters=%d", k, info.Refs, info.Waiters)
}

// RunScenario runs the scripted scenario against a fresh kernel with a
// synthetic clock and writes a line per step to out.
func RunScenario(ctx context.Context, out io.Writer) error {
	clock := &ktime.SyntheticClock{}
	k := kernel.NewKernel(kernel.InitKernelArgs{Clock: clock})
	p := k.NewProcess()
	// On failure a task may still be blocked, so p is not released.
	if err := runScenario(ctx, out, clock, p); err != nil {
		return err
	}
	p.Release()
	if n := refs.DoRepeatedLeakCheck(); n != 0 {
		return fmt.Errorf("%d objects leaked", n)
	}
	return nil
}

func runScenario(ctx context.Context, out io.Writer, clock *ktime.SyntheticClock, p *kernel.Process) error {
	addr, err := p.MMap(memmap.MMapOpts{Length: hostarch.PageSize, Addr: scenarioAddr, Fixed: true})
	if err != nil {
		return fmt.Errorf("mapping %v: %w", scenarioAddr, err)
	}
	waiter, waker := p.NewTask(ctx), p.NewTask(ctx)
	if err := waiter.StoreUint32(addr, 5); err != nil {
		return err
	}
	fmt.Fprintf(out, "*%v = 5\n", addr)

	wait := func(val uint32, timeout *linux.Timespec) <-chan error {
		ch := make(chan error, 1)
		go func() {
			_, err := sys.Futex(waiter, sys.FutexArgs{Addr: addr, Op: linux.FUTEX_WAIT | linux.FUTEX_PRIVATE_FLAG, Val: val, Timeout: timeout})
			ch <- err
		}()
		return ch
	}
	wake := func() (int, error) {
		n, err := sys.Futex(waker, sys.FutexArgs{Addr: addr, Op: linux.FUTEX_WAKE | linux.FUTEX_PRIVATE_FLAG, Val: 1})
		return int(n), err
	}

	// A stale expected value fails without blocking.
	err = <-wait(4, nil)
	fmt.Fprintf(out, "wait(%v, 4) = %v\n", addr, err)
	if !linuxerr.Equals(linuxerr.EAGAIN, err) {
		return fmt.Errorf("wait with stale value returned %v, want EAGAIN", err)
	}

	// Wait, then wake from another task.
	ch := wait(5, nil)
	if err := waitForWaiters(ctx, waker, addr, true, 1); err != nil {
		return err
	}
	fmt.Fprintf(out, "wait(%v, 5) blocked; %s\n", addr, describe(p.Futex(), addr))
	n, err := wake()
	fmt.Fprintf(out, "wake(%v, 1) = %d, %v\n", addr, n, err)
	if err != nil || n != 1 {
		return fmt.Errorf("wake returned (%d, %v), want (1, nil)", n, err)
	}
	if err := <-ch; err != nil {
		return fmt.Errorf("woken wait returned %v", err)
	}
	fmt.Fprintf(out, "wait(%v, 5) returned success; %s\n", addr, describe(p.Futex(), addr))
	if p.Futex().Private().Len() != 0 {
		return fmt.Errorf("futex for %v outlived its last waiter", addr)
	}

	// A wait with a timeout expires when the clock passes its deadline.
	ts := linux.DurationToTimespec(time.Second)
	ch = wait(5, &ts)
	if err := waitForWaiters(ctx, waker, addr, true, 1); err != nil {
		return err
	}
	clock.Add(time.Second)
	err = <-ch
	fmt.Fprintf(out, "wait(%v, 5, 1s) = %v after 1s; %s\n", addr, err, describe(p.Futex(), addr))
	if !linuxerr.Equals(linuxerr.ETIMEDOUT, err) {
		return fmt.Errorf("timed wait returned %v, want ETIMEDOUT", err)
	}
	if n, err := wake(); err != nil || n != 0 {
		return fmt.Errorf("wake after timeout returned (%d, %v), want (0, nil)", n, err)
	}
	return nil
}
