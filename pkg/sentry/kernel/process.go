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
	"context"

	"gvisor.dev/futex/pkg/hostarch"
	"gvisor.dev/futex/pkg/log"
	"gvisor.dev/futex/pkg/sentry/kernel/futex"
	"gvisor.dev/futex/pkg/sentry/kernel/shm"
	"gvisor.dev/futex/pkg/sentry/memmap"
	"gvisor.dev/futex/pkg/sentry/mm"
	"gvisor.dev/futex/pkg/sync"
)

// Process is an address space together with its private futexes. All tasks
// of a process share both.
type Process struct {
	k  *Kernel
	id ThreadID

	// mm and futexes are immutable.
	mm      *mm.MemoryManager
	futexes *futex.Manager

	// mu protects the fields below.
	mu sync.Mutex

	// tasks is the number of tasks created in the process.
	tasks int
}

// ID returns the process ID.
func (p *Process) ID() ThreadID {
	return p.id
}

// Kernel returns the Kernel that p belongs to.
func (p *Process) Kernel() *Kernel {
	return p.k
}

// MemoryManager returns p's address space.
func (p *Process) MemoryManager() *mm.MemoryManager {
	return p.mm
}

// Futex returns p's futex manager.
func (p *Process) Futex() *futex.Manager {
	return p.futexes
}

// MMap creates a mapping in p's address space.
func (p *Process) MMap(opts memmap.MMapOpts) (hostarch.Addr, error) {
	return p.mm.MMap(opts)
}

// Attach maps the shared memory segment s into p at addr, or at any free
// address if addr is 0. The mapping is shared with forked children, so its
// futexes are shared futexes.
func (p *Process) Attach(s *shm.Shm, addr hostarch.Addr) (hostarch.Addr, error) {
	opts, err := s.AttachOpts(addr, addr != 0)
	if err != nil {
		return 0, err
	}
	return p.mm.MMap(opts)
}

// Fork returns a child process with a copy of p's address space as
// determined by each mapping's inheritance, and an empty set of private
// futexes.
func (p *Process) Fork() *Process {
	return p.k.newProcess(p.mm.Fork(), p.futexes.Fork())
}

// NewTask returns a new task in p. The task is killed when ctx is done.
func (p *Process) NewTask(ctx context.Context) *Task {
	p.k.mu.Lock()
	id := p.k.allocIDLocked()
	p.k.mu.Unlock()

	p.mu.Lock()
	p.tasks++
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	return &Task{
		p:         p,
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		interrupt: make(chan struct{}, 1),
	}
}

// NumTasks returns the number of tasks created in p.
func (p *Process) NumTasks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks
}

// Release destroys p's address space. It panics if p still has private
// futexes, which would mean that a task is still waiting or a reference
// leaked.
func (p *Process) Release() {
	p.futexes.Release()
	p.mm.Release()
	p.k.removeProcess(p)
	log.Debugf("Process %d released", p.id)
}
