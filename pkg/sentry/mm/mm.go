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

// Package mm provides a memory management subsystem. It tracks the mappings
// of a single address space and provides word-sized access to the memory
// they map.
package mm

import (
	"github.com/google/btree"

	"gvisor.dev/futex/pkg/hostarch"
	"gvisor.dev/futex/pkg/sentry/memmap"
	"gvisor.dev/futex/pkg/sync"
)

const (
	// MinUserAddress is the lowest address that may be mapped.
	MinUserAddress = hostarch.Addr(hostarch.PageSize)

	// MaxUserAddress is the end of the mappable address space.
	MaxUserAddress = hostarch.Addr(1 << 47)
)

// A vma represents a mapped range of addresses.
type vma struct {
	ar hostarch.AddrRange

	// mappable is the backing object. The vma holds a reference on it.
	mappable memmap.Mappable

	// off is the offset into mappable of ar.Start.
	off uint64

	inherit memmap.Inheritance
}

// mappableOffsetAt returns the offset into v.mappable that addr maps.
//
// Preconditions: v.ar.Contains(addr).
func (v *vma) mappableOffsetAt(addr hostarch.Addr) uint64 {
	return v.off + uint64(addr-v.ar.Start)
}

func vmaLess(a, b *vma) bool {
	return a.ar.Start < b.ar.Start
}

// MemoryManager implements a virtual address space.
type MemoryManager struct {
	// mappingMu is analogous to Linux's struct mm_struct::mmap_sem.
	mappingMu sync.RWMutex

	// vmas holds the non-overlapping mappings, ordered by start address.
	// vmas is protected by mappingMu.
	vmas *btree.BTreeG[*vma]

	// usageAS is vmas' total length in bytes. usageAS is protected by
	// mappingMu.
	usageAS uint64
}

// NewMemoryManager returns a new MemoryManager with no mappings.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		vmas: btree.NewG(8, vmaLess),
	}
}

// findVMALocked returns the vma containing addr, or nil.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) findVMALocked(addr hostarch.Addr) *vma {
	var found *vma
	mm.vmas.DescendLessOrEqual(&vma{ar: hostarch.AddrRange{Start: addr}}, func(v *vma) bool {
		found = v
		return false
	})
	if found == nil || !found.ar.Contains(addr) {
		return nil
	}
	return found
}

// overlappingLocked returns the vmas overlapping ar in address order.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) overlappingLocked(ar hostarch.AddrRange) []*vma {
	var vmas []*vma
	if v := mm.findVMALocked(ar.Start); v != nil {
		vmas = append(vmas, v)
	}
	mm.vmas.AscendGreaterOrEqual(&vma{ar: hostarch.AddrRange{Start: ar.Start + 1}}, func(v *vma) bool {
		if v.ar.Start >= ar.End {
			return false
		}
		vmas = append(vmas, v)
		return true
	})
	return vmas
}

// VirtualMemorySize returns the combined length in bytes of all mappings in
// mm.
func (mm *MemoryManager) VirtualMemorySize() uint64 {
	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	return mm.usageAS
}

// NumMappings returns the number of distinct mappings in mm.
func (mm *MemoryManager) NumMappings() int {
	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	return mm.vmas.Len()
}

// MappingAt describes the mapping containing addr. ok is false if addr is not
// mapped.
func (mm *MemoryManager) MappingAt(addr hostarch.Addr) (ar hostarch.AddrRange, m memmap.Mappable, off uint64, inherit memmap.Inheritance, ok bool) {
	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	v := mm.findVMALocked(addr)
	if v == nil {
		return hostarch.AddrRange{}, nil, 0, 0, false
	}
	return v.ar, v.mappable, v.off, v.inherit, true
}
