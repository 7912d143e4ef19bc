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
	"gvisor.dev/futex/pkg/sentry/kernel/futex"
	"gvisor.dev/futex/pkg/sentry/memmap"
)

// MMap establishes a memory mapping and returns its start address.
func (mm *MemoryManager) MMap(opts memmap.MMapOpts) (hostarch.Addr, error) {
	if opts.Length == 0 {
		return 0, linuxerr.EINVAL
	}
	length, ok := hostarch.Addr(opts.Length).RoundUp()
	if !ok {
		return 0, linuxerr.ENOMEM
	}
	if opts.Offset%hostarch.PageSize != 0 {
		return 0, linuxerr.EINVAL
	}
	if opts.Fixed && !opts.Addr.IsPageAligned() {
		return 0, linuxerr.EINVAL
	}

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()

	var ar hostarch.AddrRange
	if opts.Fixed {
		ar, ok = opts.Addr.ToRange(uint64(length))
		if !ok || ar.Start < MinUserAddress || ar.End > MaxUserAddress {
			return 0, linuxerr.ENOMEM
		}
		mm.unmapLocked(ar)
	} else {
		start, err := mm.findAvailableLocked(opts.Addr.RoundDown(), uint64(length))
		if err != nil {
			return 0, err
		}
		ar = hostarch.AddrRange{Start: start, End: start + length}
	}

	m := opts.Mappable
	if m == nil {
		// The new Anonymous already holds the reference the vma needs.
		m = memmap.NewAnonymous(uint64(length))
	} else {
		m.IncRef()
	}
	mm.vmas.ReplaceOrInsert(&vma{
		ar:       ar,
		mappable: m,
		off:      opts.Offset,
		inherit:  opts.Inherit,
	})
	mm.usageAS += uint64(length)
	return ar.Start, nil
}

// findAvailableLocked returns the lowest address at or above hint (or
// MinUserAddress, whichever is higher) at which length bytes are unmapped.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) findAvailableLocked(hint hostarch.Addr, length uint64) (hostarch.Addr, error) {
	start := max(hint, MinUserAddress)
	if v := mm.findVMALocked(start); v != nil {
		start = v.ar.End
	}
	found := true
	mm.vmas.AscendGreaterOrEqual(&vma{ar: hostarch.AddrRange{Start: start}}, func(v *vma) bool {
		end, ok := start.AddLength(length)
		if !ok {
			found = false
			return false
		}
		if end <= v.ar.Start {
			return false
		}
		start = v.ar.End
		return true
	})
	end, ok := start.AddLength(length)
	if !found || !ok || end > MaxUserAddress {
		return 0, linuxerr.ENOMEM
	}
	return start, nil
}

// MUnmap implements the semantics of Linux's munmap(2).
func (mm *MemoryManager) MUnmap(addr hostarch.Addr, length uint64) error {
	if !addr.IsPageAligned() || length == 0 {
		return linuxerr.EINVAL
	}
	la, ok := hostarch.Addr(length).RoundUp()
	if !ok {
		return linuxerr.EINVAL
	}
	ar, ok := addr.ToRange(uint64(la))
	if !ok {
		return linuxerr.EINVAL
	}

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.unmapLocked(ar)
	return nil
}

// unmapLocked removes all mappings in ar, splitting mappings that straddle its
// boundaries.
//
// Preconditions: mm.mappingMu must be locked for writing.
func (mm *MemoryManager) unmapLocked(ar hostarch.AddrRange) {
	for _, v := range mm.overlappingLocked(ar) {
		mm.vmas.Delete(v)
		mm.usageAS -= uint64(v.ar.Intersect(ar).Length())
		if v.ar.Start < ar.Start {
			v.mappable.IncRef()
			mm.vmas.ReplaceOrInsert(&vma{
				ar:       hostarch.AddrRange{Start: v.ar.Start, End: ar.Start},
				mappable: v.mappable,
				off:      v.off,
				inherit:  v.inherit,
			})
		}
		if v.ar.End > ar.End {
			v.mappable.IncRef()
			mm.vmas.ReplaceOrInsert(&vma{
				ar:       hostarch.AddrRange{Start: ar.End, End: v.ar.End},
				mappable: v.mappable,
				off:      v.mappableOffsetAt(ar.End),
				inherit:  v.inherit,
			})
		}
		v.mappable.DecRef()
	}
}

// Fork creates a copy of mm following each mapping's inheritance.
func (mm *MemoryManager) Fork() *MemoryManager {
	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	mm2 := NewMemoryManager()
	mm.vmas.Ascend(func(v *vma) bool {
		switch v.inherit {
		case memmap.InheritNone:
			return true
		case memmap.InheritShare:
			v.mappable.IncRef()
			mm2.vmas.ReplaceOrInsert(&vma{ar: v.ar, mappable: v.mappable, off: v.off, inherit: v.inherit})
		case memmap.InheritCopy:
			anon := memmap.NewAnonymous(uint64(v.ar.Length()))
			for off := uint64(0); off < uint64(v.ar.Length()); off += 4 {
				// Words past the end of the source read as zero.
				if val, err := v.mappable.LoadUint32(v.off + off); err == nil {
					anon.StoreUint32(off, val)
				}
			}
			mm2.vmas.ReplaceOrInsert(&vma{ar: v.ar, mappable: anon, inherit: v.inherit})
		}
		mm2.usageAS += uint64(v.ar.Length())
		return true
	})
	return mm2
}

// Release removes all mappings and drops their references.
func (mm *MemoryManager) Release() {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.unmapLocked(hostarch.AddrRange{Start: 0, End: MaxUserAddress})
}

// GetSharedFutexKey is used by kernel.Task.GetSharedKey. It returns a shared
// Key for addr if addr is mapped by a mapping that is shared with children,
// and false otherwise.
func (mm *MemoryManager) GetSharedFutexKey(addr hostarch.Addr) (futex.Key, bool) {
	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	v := mm.findVMALocked(addr)
	if v == nil || v.mappable == nil || v.inherit != memmap.InheritShare {
		return futex.Key{}, false
	}
	return futex.Key{
		Kind:     futex.KindShared,
		Mappable: v.mappable,
		Offset:   v.mappableOffsetAt(addr),
	}, true
}
