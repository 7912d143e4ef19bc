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

package mm

import (
	"gvisor.dev/futex/pkg/errors/linuxerr"
	"gvisor.dev/futex/pkg/hostarch"
	"gvisor.dev/futex/pkg/sentry/memmap"
)

// withWord calls fn with the Mappable and offset backing the word at addr,
// with mm.mappingMu held for reading.
func (mm *MemoryManager) withWord(addr hostarch.Addr, fn func(m memmap.Mappable, off uint64) error) error {
	ar, ok := addr.ToRange(4) // sizeof(int32).
	if !ok {
		return linuxerr.EFAULT
	}
	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	v := mm.findVMALocked(addr)
	if v == nil || !v.ar.IsSupersetOf(ar) {
		return linuxerr.EFAULT
	}
	return fn(v.mappable, v.mappableOffsetAt(addr))
}

// LoadUint32 atomically loads the word at addr.
func (mm *MemoryManager) LoadUint32(addr hostarch.Addr) (uint32, error) {
	var val uint32
	err := mm.withWord(addr, func(m memmap.Mappable, off uint64) error {
		var err error
		val, err = m.LoadUint32(off)
		return err
	})
	return val, err
}

// StoreUint32 atomically stores val at addr.
func (mm *MemoryManager) StoreUint32(addr hostarch.Addr, val uint32) error {
	return mm.withWord(addr, func(m memmap.Mappable, off uint64) error {
		return m.StoreUint32(off, val)
	})
}

// CompareAndSwapUint32 atomically replaces the word at addr with new if it
// equals old, and returns the previous value.
func (mm *MemoryManager) CompareAndSwapUint32(addr hostarch.Addr, old, new uint32) (uint32, error) {
	var prev uint32
	err := mm.withWord(addr, func(m memmap.Mappable, off uint64) error {
		var err error
		prev, err = m.CompareAndSwapUint32(off, old, new)
		return err
	})
	return prev, err
}

// SwapUint32 atomically replaces the word at addr with new and returns the
// previous value.
func (mm *MemoryManager) SwapUint32(addr hostarch.Addr, new uint32) (uint32, error) {
	var prev uint32
	err := mm.withWord(addr, func(m memmap.Mappable, off uint64) error {
		var err error
		prev, err = m.SwapUint32(off, new)
		return err
	})
	return prev, err
}
