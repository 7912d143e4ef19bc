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

// Package kernel provides the processes and tasks that issue futex
// operations.
//
// Lock order (outermost locks must be taken first):
//
//	Kernel.mu
//	  Process.mu
//	futex.Domain.mu
//	  mm.MemoryManager.mappingMu
//	    shm.Registry.mu
//	      shm.Shm.mu
//	        ktime.Timer locks
package kernel

import (
	"fmt"

	"gvisor.dev/futex/pkg/log"
	"gvisor.dev/futex/pkg/sentry/kernel/futex"
	"gvisor.dev/futex/pkg/sentry/kernel/shm"
	"gvisor.dev/futex/pkg/sentry/ktime"
	"gvisor.dev/futex/pkg/sentry/mm"
	"gvisor.dev/futex/pkg/sync"
)

// ThreadID is a task or process identifier.
type ThreadID int32

// InitKernelArgs holds arguments to NewKernel.
type InitKernelArgs struct {
	// Clock is the time source for futex timeouts. If nil, the host's
	// real time clock is used.
	Clock ktime.Clock
}

// Kernel owns the state shared by all processes: the futex domain, which
// holds the global futex lock and the shared futex registry, the clock and
// the shared memory segments.
type Kernel struct {
	// futexes is immutable.
	futexes *futex.Domain

	// clock is immutable.
	clock ktime.Clock

	// shm is immutable.
	shm *shm.Registry

	// mu protects the fields below.
	mu sync.Mutex

	// processes are the live processes, by ID.
	processes map[ThreadID]*Process

	// lastID is the last process or task ID allocated.
	lastID ThreadID
}

// NewKernel returns a Kernel with no processes.
func NewKernel(args InitKernelArgs) *Kernel {
	clock := args.Clock
	if clock == nil {
		clock = ktime.RealClock{}
	}
	return &Kernel{
		futexes:   futex.NewDomain(),
		clock:     clock,
		shm:       shm.NewRegistry(),
		processes: make(map[ThreadID]*Process),
	}
}

// Futexes returns the kernel's futex domain.
func (k *Kernel) Futexes() *futex.Domain {
	return k.futexes
}

// Clock returns the clock used for futex timeouts.
func (k *Kernel) Clock() ktime.Clock {
	return k.clock
}

// ShmRegistry returns the kernel's shared memory segments.
func (k *Kernel) ShmRegistry() *shm.Registry {
	return k.shm
}

// NumProcesses returns the number of processes that have not been released.
func (k *Kernel) NumProcesses() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.processes)
}

// allocIDLocked returns an unused ID.
//
// Preconditions: k.mu is locked.
func (k *Kernel) allocIDLocked() ThreadID {
	k.lastID++
	return k.lastID
}

// NewProcess returns a process with an empty address space.
func (k *Kernel) NewProcess() *Process {
	return k.newProcess(mm.NewMemoryManager(), k.futexes.NewManager())
}

func (k *Kernel) newProcess(as *mm.MemoryManager, fu *futex.Manager) *Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	p := &Process{
		k:       k,
		id:      k.allocIDLocked(),
		mm:      as,
		futexes: fu,
	}
	k.processes[p.id] = p
	log.Debugf("Process %d created", p.id)
	return p
}

// removeProcess forgets p.
func (k *Kernel) removeProcess(p *Process) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.processes[p.id]; !ok {
		panic(fmt.Sprintf("process %d released twice", p.id))
	}
	delete(k.processes, p.id)
}
