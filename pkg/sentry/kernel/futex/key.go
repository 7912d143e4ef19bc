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

package futex

import (
	"fmt"

	"gvisor.dev/futex/pkg/errors/linuxerr"
	"gvisor.dev/futex/pkg/hostarch"
	"gvisor.dev/futex/pkg/sentry/memmap"
)

// KeyKind indicates the type of a Key.
type KeyKind int

const (
	// KindPrivate indicates a futex identified by its address in one
	// address space. Private keys are always looked up in the registry of
	// the calling Manager.
	KindPrivate KeyKind = iota

	// KindShared indicates a futex on a mapping that is shared with other
	// address spaces. Shared keys are looked up in the Domain's registry.
	KindShared
)

// String implements fmt.Stringer.String.
func (k KeyKind) String() string {
	switch k {
	case KindPrivate:
		return "private"
	case KindShared:
		return "shared"
	default:
		return fmt.Sprintf("KeyKind(%d)", int(k))
	}
}

// Key represents something that a futex waiter may wait on. Keys are
// comparable, and two Keys name the same futex iff they are equal.
type Key struct {
	// Kind is the type of the Key.
	Kind KeyKind

	// Mappable is the memory-mapped object that is represented by the Key.
	// Mappable is nil iff Kind is KindPrivate.
	Mappable memmap.Mappable

	// If Kind is KindPrivate, Offset is the represented memory address.
	// Otherwise, Offset is the represented offset into Mappable.
	Offset uint64
}

// String implements fmt.Stringer.String.
func (k Key) String() string {
	if k.Kind == KindPrivate {
		return fmt.Sprintf("private:%#x", k.Offset)
	}
	return fmt.Sprintf("shared:%p+%#x", k.Mappable, k.Offset)
}

// Target abstracts memory accesses and keys.
type Target interface {
	// LoadUint32 atomically loads the word at addr.
	LoadUint32(addr hostarch.Addr) (uint32, error)

	// SwapUint32 atomically replaces the word at addr with new and returns
	// the previous value.
	SwapUint32(addr hostarch.Addr, new uint32) (uint32, error)

	// CompareAndSwapUint32 atomically replaces the word at addr with new if
	// it is equal to old, and returns the previous value.
	CompareAndSwapUint32(addr hostarch.Addr, old, new uint32) (uint32, error)

	// GetSharedKey returns a Key with kind KindShared corresponding to the
	// memory mapped at address addr, or false if addr is not in a mapping
	// that is shared with other address spaces.
	GetSharedKey(addr hostarch.Addr) (Key, bool)
}

// getKey returns a Key representing address addr in t.
func getKey(t Target, addr hostarch.Addr, private bool) (Key, error) {
	// Ensure the address is aligned.
	// It must be a DWORD boundary.
	if addr&0x3 != 0 {
		return Key{}, linuxerr.EINVAL
	}
	if !private {
		if k, ok := t.GetSharedKey(addr); ok {
			return k, nil
		}
	}
	return Key{Kind: KindPrivate, Offset: uint64(addr)}, nil
}
