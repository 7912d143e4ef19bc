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

// Package shm implements shared memory segments. Segments are the memory
// objects that distinct processes map to share futexes: a segment mapped with
// memmap.InheritShare yields the same futex.Key in every process that maps it.
//
// Lock ordering: mm.mappingMu -> shm registry lock -> shm lock
package shm

import (
	"fmt"

	"gvisor.dev/futex/pkg/abi/linux"
	"gvisor.dev/futex/pkg/errors/linuxerr"
	"gvisor.dev/futex/pkg/hostarch"
	"gvisor.dev/futex/pkg/log"
	"gvisor.dev/futex/pkg/refs"
	"gvisor.dev/futex/pkg/sentry/memmap"
	"gvisor.dev/futex/pkg/sync"
)

// Key represents a shm segment key. Analogous to a file name.
type Key int32

// ID represents the opaque handle for a shm segment. Analogous to an fd.
type ID int32

// Registry tracks all shared memory segments in a kernel. The registry
// provides the mechanisms for creating and finding segments.
type Registry struct {
	// mu protects all fields below.
	mu sync.Mutex

	// shms maps segment ids to segments.
	//
	// shms holds all referenced segments, which are removed on the last
	// DecRef. Thus, it cannot itself hold a reference on the Shm.
	//
	// Since removal only occurs after the last (unlocked) DecRef, there
	// exists a short window during which a Shm still exists in shms, but is
	// unreferenced. Users must use TryIncRef to determine if the Shm is
	// still valid.
	shms map[ID]*Shm

	// keysToShms maps segment keys to segments.
	//
	// Shms in keysToShms are guaranteed to be referenced, as they are
	// removed by dissociateKey before the last DecRef.
	keysToShms map[Key]*Shm

	// Sum of the sizes of all existing segments rounded up to page size, in
	// units of page size.
	totalPages uint64

	// ID assigned to the last created segment. Used to quickly find the next
	// unused ID.
	lastIDUsed ID
}

// NewRegistry creates a new shm registry.
func NewRegistry() *Registry {
	return &Registry{
		shms:       make(map[ID]*Shm),
		keysToShms: make(map[Key]*Shm),
	}
}

// FindByID looks up a segment given an ID.
//
// FindByID returns a reference on Shm.
func (r *Registry) FindByID(id ID) *Shm {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.shms[id]
	// Take a reference on s. If TryIncRef fails, s has reached the last
	// DecRef, but hasn't quite been removed from r.shms yet.
	if s != nil && s.TryIncRef() {
		return s
	}
	return nil
}

// Len returns the number of segments in r, including segments that are
// marked for destruction but still referenced.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shms)
}

// dissociateKey removes the association between a segment and its key,
// preventing it from being discovered in the registry. The segment can still
// be used by a process already referencing it.
func (r *Registry) dissociateKey(s *Shm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != linux.IPC_PRIVATE {
		delete(r.keysToShms, s.key)
		s.key = linux.IPC_PRIVATE
	}
}

// FindOrCreate looks up or creates a segment in the registry. It's functionally
// analogous to open(2). A key of IPC_PRIVATE always creates a new segment.
//
// FindOrCreate returns a reference on Shm.
func (r *Registry) FindOrCreate(key Key, size uint64, create, exclusive bool) (*Shm, error) {
	private := key == linux.IPC_PRIVATE
	if (create || private) && (size < linux.SHMMIN || size > linux.SHMMAX) {
		// "A new segment was to be created and size is less than SHMMIN or
		// greater than SHMMAX." - man shmget(2)
		return nil, linuxerr.EINVAL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.shms) >= linux.SHMMNI {
		return nil, linuxerr.ENOSPC
	}

	if !private {
		// Look up an existing segment.
		if shm := r.keysToShms[key]; shm != nil {
			if size > shm.size {
				// "A segment for the given key exists, but size is greater than
				// the size of that segment." - man shmget(2)
				return nil, linuxerr.EINVAL
			}

			if create && exclusive {
				// "IPC_CREAT and IPC_EXCL were specified in shmflg, but a
				// shared memory segment already exists for key."
				//  - man shmget(2)
				return nil, linuxerr.EEXIST
			}

			shm.IncRef()
			return shm, nil
		}

		if !create {
			// "No segment exists for the given key, and IPC_CREAT was not
			// specified." - man shmget(2)
			return nil, linuxerr.ENOENT
		}
	}

	sizeAligned, ok := hostarch.Addr(size).RoundUp()
	if !ok {
		return nil, linuxerr.EINVAL
	}
	if numPages := uint64(sizeAligned) / hostarch.PageSize; r.totalPages+numPages > linux.SHMALL {
		return nil, linuxerr.ENOSPC
	}

	// Need to create a new segment.
	s, err := r.newShmLocked(key, size, uint64(sizeAligned))
	if err != nil {
		return nil, err
	}
	// The initial reference is held by s itself. Take another to return to
	// the caller.
	s.IncRef()
	return s, nil
}

// newShmLocked creates a new segment in the registry.
//
// Precondition: Caller must hold r.mu.
func (r *Registry) newShmLocked(key Key, size, effectiveSize uint64) (*Shm, error) {
	shm := &Shm{
		Memory:        memmap.NewMemory(effectiveSize),
		registry:      r,
		size:          size,
		effectiveSize: effectiveSize,
		key:           key,
	}

	// Find the next available ID.
	for id := r.lastIDUsed + 1; id != r.lastIDUsed; id++ {
		// Handle wrap around.
		if id < 0 {
			id = 0
			continue
		}
		if r.shms[id] == nil {
			r.lastIDUsed = id

			shm.ID = id
			shm.InitRefs("shm.Shm")
			r.shms[id] = shm
			if key != linux.IPC_PRIVATE {
				r.keysToShms[key] = shm
			}
			r.totalPages += effectiveSize / hostarch.PageSize
			return shm, nil
		}
	}

	log.Warningf("Shm ids exhausted, they may be leaking")
	return nil, linuxerr.ENOSPC
}

// remove deletes a segment from this registry, deaccounting the memory used by
// the segment.
//
// Precondition: Must follow a call to r.dissociateKey(s).
func (r *Registry) remove(s *Shm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != linux.IPC_PRIVATE {
		panic(fmt.Sprintf("Attempted to remove %s from the registry whose key is still associated", s.debugLocked()))
	}

	delete(r.shms, s.ID)
	r.totalPages -= s.effectiveSize / hostarch.PageSize
}

// Shm is a shared memory segment. It implements memmap.Mappable.
type Shm struct {
	// Refs tracks the number of references to this segment.
	//
	// A segment holds a reference to itself until it is marked for
	// destruction. In addition to direct users, every mapping of the
	// segment holds a reference.
	refs.Refs

	// Memory holds the contents of the segment.
	*memmap.Memory

	// registry points to the shm registry containing this segment. Immutable.
	registry *Registry

	// ID is the kernel identifier for this segment. Immutable.
	ID ID

	// size is the requested size of the segment at creation, in
	// bytes. Immutable.
	size uint64

	// effectiveSize of the segment, rounding up to the next page
	// boundary. Immutable.
	effectiveSize uint64

	// mu protects all fields below.
	mu sync.Mutex

	// key is the public identifier for this segment.
	key Key

	// pendingDestruction indicates the segment was marked as destroyed. When
	// marked as destroyed, the segment will not be found in the registry by
	// key. When the last user detaches from the segment, it is destroyed.
	pendingDestruction bool
}

// Precondition: Caller must hold s.mu.
func (s *Shm) debugLocked() string {
	return fmt.Sprintf("Shm{id: %d, key: %d, size: %d bytes, refs: %d, destroyed: %v}",
		s.ID, s.key, s.size, s.ReadRefs(), s.pendingDestruction)
}

// DecRef implements memmap.Mappable.DecRef.
//
// Precondition: Caller must not hold s.mu.
func (s *Shm) DecRef() {
	s.Refs.DecRef(func() {
		s.registry.dissociateKey(s)
		s.registry.remove(s)
	})
}

// EffectiveSize returns the size of the underlying shared memory segment. This
// may be larger than the requested size at creation, due to rounding to page
// boundaries.
func (s *Shm) EffectiveSize() uint64 {
	return s.effectiveSize
}

// AttachOpts returns the mmap configuration that maps s at addr. Futexes in
// the resulting mapping are shared with every other process that attaches s.
//
// Postconditions: The returned MMapOpts are valid only as long as a reference
// continues to be held on s.
func (s *Shm) AttachOpts(addr hostarch.Addr, fixed bool) (memmap.MMapOpts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingDestruction && s.ReadRefs() == 0 {
		return memmap.MMapOpts{}, linuxerr.EINVAL
	}
	return memmap.MMapOpts{
		Length:   s.effectiveSize,
		Mappable: s,
		Offset:   0,
		Addr:     addr,
		Fixed:    fixed,
		Inherit:  memmap.InheritShare,
	}, nil
}

// MarkDestroyed marks a segment for destruction. The segment is actually
// destroyed once it has no references. MarkDestroyed may be called multiple
// times, and is safe to call after a segment has already been destroyed. See
// shmctl(IPC_RMID).
func (s *Shm) MarkDestroyed() {
	s.registry.dissociateKey(s)

	s.mu.Lock()
	if s.pendingDestruction {
		s.mu.Unlock()
		return
	}
	s.pendingDestruction = true
	s.mu.Unlock()

	// Drop the self-reference so destruction occurs when all
	// external references are gone.
	//
	// N.B. This cannot be the final DecRef, as the caller also
	// holds a reference.
	s.DecRef()
}
