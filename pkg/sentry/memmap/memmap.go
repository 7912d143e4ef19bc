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

// Package memmap defines semantics for memory mappings.
package memmap

import (
	"fmt"

	"gvisor.dev/futex/pkg/hostarch"
)

// Mappable represents a memory-mappable object, a mutable mapping from uint64
// offsets to 32-bit words.
//
// All word accesses are atomic with respect to each other. Offsets must be
// 4-byte aligned and inside [0, Size()), else the access fails with EFAULT.
type Mappable interface {
	// IncRef increments the reference count. Each mapping of a Mappable
	// holds one reference.
	IncRef()

	// DecRef decrements the reference count.
	DecRef()

	// Size returns the length of the Mappable in bytes.
	Size() uint64

	// LoadUint32 atomically loads the word at off.
	LoadUint32(off uint64) (uint32, error)

	// StoreUint32 atomically stores val at off.
	StoreUint32(off uint64, val uint32) error

	// CompareAndSwapUint32 atomically replaces the word at off with new if it
	// is equal to old. It returns the previous value of the word.
	CompareAndSwapUint32(off uint64, old, new uint32) (uint32, error)

	// SwapUint32 atomically replaces the word at off with new and returns the
	// previous value.
	SwapUint32(off uint64, new uint32) (uint32, error)
}

// Inheritance controls what happens to a mapping in a child address space
// created by fork.
type Inheritance int

const (
	// InheritCopy gives the child a private copy of the mapping's contents.
	InheritCopy Inheritance = iota

	// InheritShare makes the child map the same Mappable at the same offset.
	// Futexes in mappings with InheritShare are keyed by the Mappable.
	InheritShare

	// InheritNone leaves the range unmapped in the child.
	InheritNone
)

// String implements fmt.Stringer.String.
func (i Inheritance) String() string {
	switch i {
	case InheritCopy:
		return "copy"
	case InheritShare:
		return "share"
	case InheritNone:
		return "none"
	default:
		return fmt.Sprintf("Inheritance(%d)", int(i))
	}
}

// MMapOpts specifies a request to create a memory mapping.
type MMapOpts struct {
	// Length is the length of the mapping. It is rounded up to a page
	// boundary.
	Length uint64

	// Mappable is the Mappable to be mapped. If Mappable is nil, the mapping
	// is backed by fresh zero-filled anonymous memory. If Mappable is not
	// nil, the mapping takes its own reference on it.
	Mappable Mappable

	// Offset is the offset into Mappable to map. It must be page-aligned.
	Offset uint64

	// Addr is the suggested address for the mapping.
	Addr hostarch.Addr

	// Fixed specifies whether this is a fixed mapping (it must be located at
	// Addr, replacing any existing mappings there).
	Fixed bool

	// Inherit is the fork behavior of the mapping.
	Inherit Inheritance
}
