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
	"gvisor.dev/futex/pkg/hostarch"
	"gvisor.dev/futex/pkg/sentry/kernel/futex"
)

// Futex returns t's futex manager.
func (t *Task) Futex() *futex.Manager {
	return t.p.futexes
}

// LoadUint32 implements futex.Target.LoadUint32.
func (t *Task) LoadUint32(addr hostarch.Addr) (uint32, error) {
	return t.p.mm.LoadUint32(addr)
}

// StoreUint32 atomically stores val at addr.
func (t *Task) StoreUint32(addr hostarch.Addr, val uint32) error {
	return t.p.mm.StoreUint32(addr, val)
}

// SwapUint32 implements futex.Target.SwapUint32.
func (t *Task) SwapUint32(addr hostarch.Addr, new uint32) (uint32, error) {
	return t.p.mm.SwapUint32(addr, new)
}

// CompareAndSwapUint32 implements futex.Target.CompareAndSwapUint32.
func (t *Task) CompareAndSwapUint32(addr hostarch.Addr, old, new uint32) (uint32, error) {
	return t.p.mm.CompareAndSwapUint32(addr, old, new)
}

// GetSharedKey implements futex.Target.GetSharedKey.
func (t *Task) GetSharedKey(addr hostarch.Addr) (futex.Key, bool) {
	return t.p.mm.GetSharedFutexKey(addr)
}
