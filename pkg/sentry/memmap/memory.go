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

package memmap

import (
	"sync/atomic"

	"gvisor.dev/futex/pkg/errors/linuxerr"
	"gvisor.dev/futex/pkg/refs"
)

// Memory is a fixed-size array of atomically accessed words. It implements
// the word access methods of Mappable.
type Memory struct {
	words []atomic.Uint32
}

// NewMemory returns zero-filled Memory of the given size in bytes, rounded up
// to a multiple of 4.
func NewMemory(size uint64) *Memory {
	return &Memory{words: make([]atomic.Uint32, (size+3)/4)}
}

// Size returns the length of m in bytes.
func (m *Memory) Size() uint64 {
	return uint64(len(m.words)) * 4
}

func (m *Memory) word(off uint64) (*atomic.Uint32, error) {
	if off%4 != 0 || off/4 >= uint64(len(m.words)) {
		return nil, linuxerr.EFAULT
	}
	return &m.words[off/4], nil
}

// LoadUint32 implements Mappable.LoadUint32.
func (m *Memory) LoadUint32(off uint64) (uint32, error) {
	w, err := m.word(off)
	if err != nil {
		return 0, err
	}
	return w.Load(), nil
}

// StoreUint32 implements Mappable.StoreUint32.
func (m *Memory) StoreUint32(off uint64, val uint32) error {
	w, err := m.word(off)
	if err != nil {
		return err
	}
	w.Store(val)
	return nil
}

// CompareAndSwapUint32 implements Mappable.CompareAndSwapUint32.
func (m *Memory) CompareAndSwapUint32(off uint64, old, new uint32) (uint32, error) {
	w, err := m.word(off)
	if err != nil {
		return 0, err
	}
	for {
		prev := w.Load()
		if prev != old {
			return prev, nil
		}
		if w.CompareAndSwap(old, new) {
			return prev, nil
		}
	}
}

// SwapUint32 implements Mappable.SwapUint32.
func (m *Memory) SwapUint32(off uint64, new uint32) (uint32, error) {
	w, err := m.word(off)
	if err != nil {
		return 0, err
	}
	return w.Swap(new), nil
}

// CopyFrom copies the overlapping prefix of src into m.
func (m *Memory) CopyFrom(src *Memory) {
	n := min(len(m.words), len(src.words))
	for i := 0; i < n; i++ {
		m.words[i].Store(src.words[i].Load())
	}
}

// Anonymous is a reference counted Mappable backed by Memory, used for
// mappings that have no other backing object.
type Anonymous struct {
	refs.Refs
	*Memory
}

// NewAnonymous returns an Anonymous Mappable of the given size with one
// reference.
func NewAnonymous(size uint64) *Anonymous {
	a := &Anonymous{Memory: NewMemory(size)}
	a.InitRefs("memmap.Anonymous")
	return a
}

// DecRef implements Mappable.DecRef.
func (a *Anonymous) DecRef() {
	a.Refs.DecRef(nil)
}
