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

// Package refs defines an interface for reference counted objects together
// with a leak checker for them.
package refs

import (
	"fmt"
	"sync/atomic"
)

// RefCounter is the interface to be implemented by objects that are reference
// counted.
type RefCounter interface {
	// IncRef increments the reference counter on the object.
	IncRef()

	// DecRef decrements the reference counter on the object, calling
	// destroy when it reaches zero.
	DecRef(destroy func())

	// ReadRefs returns the current number of references.
	ReadRefs() int64
}

// LeakMode configures the leak checker.
type LeakMode uint32

const (
	// NoLeakChecking indicates that no effort should be made to check for
	// leaks.
	NoLeakChecking LeakMode = iota

	// LeaksLogWarning indicates that a warning should be logged when leaks
	// are found.
	LeaksLogWarning

	// LeaksPanic indicates that a panic should be issued when leaks are found.
	LeaksPanic
)

// Set implements flag.Value.
func (l *LeakMode) Set(v string) error {
	switch v {
	case "disabled":
		*l = NoLeakChecking
	case "log-names", "log":
		*l = LeaksLogWarning
	case "panic":
		*l = LeaksPanic
	default:
		return fmt.Errorf("invalid ref leak mode %q", v)
	}
	return nil
}

// Get implements flag.Value.
func (l *LeakMode) Get() any {
	return *l
}

// String implements flag.Value.
func (l LeakMode) String() string {
	switch l {
	case NoLeakChecking:
		return "disabled"
	case LeaksLogWarning:
		return "log-names"
	case LeaksPanic:
		return "panic"
	default:
		panic(fmt.Sprintf("invalid ref leak mode %d", l))
	}
}

// leakMode stores the current mode for the reference leak checker.
var leakMode atomic.Uint32

// SetLeakMode configures the reference leak checker.
func SetLeakMode(mode LeakMode) {
	leakMode.Store(uint32(mode))
}

// GetLeakMode returns the current leak mode.
func GetLeakMode() LeakMode {
	return LeakMode(leakMode.Load())
}

// Refs implements RefCounter. It keeps a reference count using atomic
// operations and calls the destructor when the count reaches zero. The
// count is registered with the leak checker while it is live.
type Refs struct {
	refCount atomic.Int64
	refType  string
}

// InitRefs initializes r with one reference and, if enabled, activates leak
// checking. refType names the owning object in leak reports.
func (r *Refs) InitRefs(refType string) {
	r.refType = refType
	r.refCount.Store(1)
	Register(r)
}

// RefType implements CheckedObject.RefType.
func (r *Refs) RefType() string {
	return r.refType
}

// LeakMessage implements CheckedObject.LeakMessage.
func (r *Refs) LeakMessage() string {
	return fmt.Sprintf("[%s %p] reference count of %d instead of 0", r.RefType(), r, r.ReadRefs())
}

// LogRefs implements CheckedObject.LogRefs.
func (r *Refs) LogRefs() bool {
	return false
}

// ReadRefs returns the current number of references. The returned count is
// inherently racy and is unsafe to use without external synchronization.
func (r *Refs) ReadRefs() int64 {
	return r.refCount.Load()
}

// IncRef implements RefCounter.IncRef.
func (r *Refs) IncRef() {
	v := r.refCount.Add(1)
	if v <= 1 {
		panic(fmt.Sprintf("Incrementing non-positive count %p on %s", r, r.RefType()))
	}
}

// TryIncRef attempts to increment the reference count, but fails if the
// count has already reached zero.
func (r *Refs) TryIncRef() bool {
	for {
		v := r.refCount.Load()
		if v <= 0 {
			return false
		}
		if r.refCount.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

// DecRef implements RefCounter.DecRef.
func (r *Refs) DecRef(destroy func()) {
	v := r.refCount.Add(-1)
	switch {
	case v < 0:
		panic(fmt.Sprintf("Decrementing non-positive ref count %p, owned by %s", r, r.RefType()))

	case v == 0:
		Unregister(r)
		if destroy != nil {
			destroy()
		}
	}
}
