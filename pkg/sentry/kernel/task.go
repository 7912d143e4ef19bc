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

package kernel

import (
	"context"
)

// Task represents a thread of execution in a process.
//
// A Task's methods other than Interrupt and Kill must only be called from
// the goroutine that runs the task.
type Task struct {
	p  *Process
	id ThreadID

	// ctx is done when the task is killed.
	ctx    context.Context
	cancel context.CancelFunc

	// interrupt is sent to by Interrupt. A pending interrupt is consumed by
	// the next blocking call.
	interrupt chan struct{}
}

// ThreadID returns t's ID.
func (t *Task) ThreadID() ThreadID {
	return t.id
}

// Process returns the process that t belongs to.
func (t *Task) Process() *Process {
	return t.p
}

// Kernel returns the Kernel that t belongs to.
func (t *Task) Kernel() *Kernel {
	return t.p.k
}

// Context returns a context that is done when t is killed.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Interrupt interrupts t's current or next blocking call, like a signal
// would.
func (t *Task) Interrupt() {
	select {
	case t.interrupt <- struct{}{}:
	default:
	}
}

// Kill cancels t's current and all future blocking calls.
func (t *Task) Kill() {
	t.cancel()
}

// Killed returns true if t has been killed.
func (t *Task) Killed() bool {
	return t.ctx.Err() != nil
}
